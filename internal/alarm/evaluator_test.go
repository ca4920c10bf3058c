package alarm

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farouk15160/cargamon/internal/telemetry"
)

func reading(topic telemetry.TopicID, v float64, at time.Time) telemetry.Event {
	return telemetry.Event{
		Kind:    telemetry.EventReading,
		Reading: telemetry.Reading{Topic: topic, Value: v, ReceivedAt: at},
	}
}

func TestEvaluator_RaisesAndClearsOnce(t *testing.T) {
	var got []Transition
	e := NewEvaluator(Config{
		Threshold: 40,
		Notify:    func(tr Transition) { got = append(got, tr) },
		Logger:    slog.New(slog.DiscardHandler),
	})

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	values := []float64{20, 40, 41, 45, 43, 40, 39, 42}
	for i, v := range values {
		e.HandleEvent(reading(telemetry.Temperature, v, base.Add(time.Duration(i)*time.Second)))
	}

	require.Len(t, got, 3)
	assert.True(t, got[0].Raised)
	assert.Equal(t, 41.0, got[0].Value)
	assert.Equal(t, base.Add(2*time.Second), got[0].At)

	assert.False(t, got[1].Raised)
	assert.Equal(t, 40.0, got[1].Value)
	assert.Equal(t, 3*time.Second, got[1].Duration)

	assert.True(t, got[2].Raised)
	assert.True(t, e.Active())
	assert.Equal(t, 2, e.Raises())
}

func TestEvaluator_Hysteresis(t *testing.T) {
	var got []Transition
	e := NewEvaluator(Config{
		Threshold:  40,
		Hysteresis: 2,
		Notify:     func(tr Transition) { got = append(got, tr) },
		Logger:     slog.New(slog.DiscardHandler),
	})

	now := time.Now()
	for _, v := range []float64{41, 39, 40.5, 38.5, 38} {
		e.HandleEvent(reading(telemetry.Temperature, v, now))
	}

	require.Len(t, got, 2)
	assert.True(t, got[0].Raised)
	assert.False(t, got[1].Raised)
	assert.Equal(t, 38.0, got[1].Value)
	assert.False(t, e.Active())
}

func TestEvaluator_IgnoresOtherEvents(t *testing.T) {
	calls := 0
	e := NewEvaluator(Config{
		Threshold: 1,
		Notify:    func(Transition) { calls++ },
		Logger:    slog.New(slog.DiscardHandler),
	})

	e.HandleEvent(reading(telemetry.Density, 1060, time.Now()))
	e.HandleEvent(reading(telemetry.FlowRate, 101, time.Now()))
	e.HandleEvent(telemetry.Event{Kind: telemetry.EventConnected})
	e.HandleEvent(telemetry.Event{Kind: telemetry.EventDisconnected})

	assert.Zero(t, calls)
	assert.False(t, e.Active())
}

func TestEvaluator_StampsMissingTime(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var got Transition
	e := NewEvaluator(Config{Threshold: 0, Notify: func(tr Transition) { got = tr }, Logger: slog.New(slog.DiscardHandler)})
	e.timeNow = func() time.Time { return fixed }

	e.HandleEvent(reading(telemetry.Temperature, 5, time.Time{}))
	assert.Equal(t, fixed, got.At)
	assert.Contains(t, got.String(), "above threshold")
}

func TestEvaluator_UsableWithHandlers(t *testing.T) {
	var temps []float64
	e := NewEvaluator(Config{Threshold: 30, Logger: slog.New(slog.DiscardHandler)})
	h := telemetry.Handlers{e, telemetry.Callbacks{OnTemperature: func(v float64) { temps = append(temps, v) }}}

	h.HandleEvent(reading(telemetry.Temperature, 31, time.Now()))
	assert.True(t, e.Active())
	assert.Equal(t, []float64{31}, temps)
}

func TestEvaluator_SetThreshold(t *testing.T) {
	var got []Transition
	e := NewEvaluator(Config{
		Threshold: 40,
		Notify:    func(tr Transition) { got = append(got, tr) },
		Logger:    slog.New(slog.DiscardHandler),
	})
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	e.HandleEvent(reading(telemetry.Temperature, 38, base))
	assert.False(t, e.Active())

	e.SetThreshold(35)
	assert.Equal(t, 35.0, e.Threshold())
	e.HandleEvent(reading(telemetry.Temperature, 38, base.Add(time.Second)))
	require.Len(t, got, 1)
	assert.True(t, got[0].Raised)
	assert.Equal(t, 35.0, got[0].Threshold)

	e.SetThreshold(50)
	assert.True(t, e.Active())
	e.HandleEvent(reading(telemetry.Temperature, 38, base.Add(2*time.Second)))
	require.Len(t, got, 2)
	assert.False(t, got[1].Raised)
	assert.Equal(t, time.Second, got[1].Duration)
	assert.Equal(t, 1, e.Raises())
}
