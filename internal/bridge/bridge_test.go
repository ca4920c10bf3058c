package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farouk15160/cargamon/internal/mqtt"
	"github.com/farouk15160/cargamon/internal/telemetry"
)

type published struct {
	topic    string
	payload  []byte
	retained bool
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	fail error
}

func (f *fakePublisher) Publish(topic string, payload []byte) error {
	return f.record(topic, payload, false)
}

func (f *fakePublisher) PublishRetained(topic string, payload []byte) error {
	return f.record(topic, payload, true)
}

func (f *fakePublisher) record(topic string, payload []byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.msgs = append(f.msgs, published{topic: topic, payload: payload, retained: retained})
	return nil
}

func (f *fakePublisher) onTopic(topic string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, m := range f.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

var quiet = slog.New(slog.DiscardHandler)

func readingEvent(topic telemetry.TopicID, v float64, at time.Time) telemetry.Event {
	return telemetry.Event{Kind: telemetry.EventReading, Reading: telemetry.Reading{Topic: topic, Value: v, ReceivedAt: at}}
}

func TestMirror_PublishesReadingsJSON(t *testing.T) {
	pub := &fakePublisher{}
	m := NewMirror(pub, MirrorConfig{Prefix: "/plant/", Session: "abc123", Order: 1001, Logger: quiet})
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	m.HandleEvent(readingEvent(telemetry.Temperature, 18.5, at))
	m.HandleEvent(readingEvent(telemetry.Density, 1060, at))
	m.HandleEvent(readingEvent(telemetry.FlowRate, 101, at))

	temps := pub.onTopic("plant/temperature")
	require.Len(t, temps, 1)
	assert.False(t, temps[0].retained)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(temps[0].payload, &msg))
	assert.Equal(t, "temperature", msg["topic"])
	assert.Equal(t, 18.5, msg["value"])
	assert.Equal(t, "abc123", msg["session"])
	assert.Equal(t, float64(1001), msg["order"])
	assert.Equal(t, "2026-03-01T10:00:00Z", msg["received_at"])

	assert.Len(t, pub.onTopic("plant/density"), 1)
	assert.Len(t, pub.onTopic("plant/flow_rate"), 1)
	assert.Equal(t, int64(3), m.Published())
}

func TestMirror_PublishesReadingsCBOR(t *testing.T) {
	pub := &fakePublisher{}
	m := NewMirror(pub, MirrorConfig{Prefix: "cargamon", Format: FormatCBOR, Logger: quiet})
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	m.HandleEvent(readingEvent(telemetry.Density, 1060.25, at))

	msgs := pub.onTopic("cargamon/density")
	require.Len(t, msgs, 1)
	got, err := FormatCBOR.decode(msgs[0].payload)
	require.NoError(t, err)
	assert.Equal(t, "density", got.Topic)
	assert.Equal(t, 1060.25, got.Value)
	assert.True(t, got.ReceivedAt.Equal(at))
	assert.Empty(t, got.Session)
}

func TestMirror_Availability(t *testing.T) {
	pub := &fakePublisher{}
	m := NewMirror(pub, MirrorConfig{Prefix: "cargamon", Logger: quiet})

	m.HandleEvent(telemetry.Event{Kind: telemetry.EventConnected})
	m.HandleEvent(telemetry.Event{Kind: telemetry.EventError, Err: errors.New("refused")})
	m.HandleEvent(telemetry.Event{Kind: telemetry.EventDisconnected})
	m.Close()

	msgs := pub.onTopic("cargamon/availability")
	require.Len(t, msgs, 3)
	for _, msg := range msgs {
		assert.True(t, msg.retained)
	}
	assert.Equal(t, "online", string(msgs[0].payload))
	assert.Equal(t, "offline", string(msgs[1].payload))
	assert.Equal(t, "offline", string(msgs[2].payload))
}

func TestAvailabilityTopic_MatchesMirror(t *testing.T) {
	for _, prefix := range []string{"", "cargamon", "/plant/line1/"} {
		m := NewMirror(&fakePublisher{}, MirrorConfig{Prefix: prefix, Logger: quiet})
		assert.Equal(t, m.AvailabilityTopic(), AvailabilityTopic(prefix), "prefix %q", prefix)
	}
	assert.Equal(t, "availability", AvailabilityTopic(""))
	assert.Equal(t, "plant/line1/availability", AvailabilityTopic("/plant/line1/"))
}

func TestMirror_CountsFailures(t *testing.T) {
	pub := &fakePublisher{fail: errors.New("not connected")}
	m := NewMirror(pub, MirrorConfig{Logger: quiet})

	m.HandleEvent(readingEvent(telemetry.Temperature, 1, time.Now()))
	assert.Equal(t, int64(0), m.Published())
	assert.Equal(t, int64(1), m.Failed())
	assert.Equal(t, "temperature", m.Topic("temperature"))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("cbor")
	require.NoError(t, err)
	assert.Equal(t, FormatCBOR, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

type fakeSession struct {
	stats telemetry.Stats
	state telemetry.State
}

func (s *fakeSession) ID() string { return "sess-1" }
func (s *fakeSession) State() telemetry.State { return s.state }
func (s *fakeSession) Stats() telemetry.Stats { return s.stats }

type fixedAlarm bool

func (a fixedAlarm) Active() bool { return bool(a) }

func TestStatusPublisher_Snapshot(t *testing.T) {
	pub := &fakePublisher{}
	m := NewMirror(pub, MirrorConfig{Prefix: "cargamon", Logger: quiet})
	m.HandleEvent(readingEvent(telemetry.Temperature, 1, time.Now()))

	connectedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sess := &fakeSession{
		state: telemetry.StateConnected,
		stats: telemetry.Stats{
			Connects:        2,
			Disconnects:     1,
			FailedAttempts:  3,
			DroppedFrames:   4,
			LastError:       errors.New("transport lost"),
			LastConnectedAt: connectedAt,
		},
	}
	p := NewStatusPublisher(pub, m, sess, StatusConfig{Alarm: fixedAlarm(true), Logger: quiet})
	start := time.Unix(1_800_000_000, 0)
	p.started = start
	p.timeNow = func() time.Time { return start.Add(26*time.Hour + 3*time.Minute + 4*time.Second) }

	st := p.Snapshot()
	assert.Equal(t, "sess-1", st.Session)
	assert.Equal(t, telemetry.StateConnected.String(), st.State)
	assert.Equal(t, 2, st.Connects)
	assert.Equal(t, 1, st.Disconnects)
	assert.Equal(t, 3, st.FailedAttempts)
	assert.Equal(t, 4, st.DroppedFrames)
	assert.Equal(t, "transport lost", st.LastError)
	assert.Equal(t, "2026-03-01T10:00:00Z", st.LastConnectedAt)
	assert.Equal(t, int64(1), st.MirroredReadings)
	require.NotNil(t, st.AlarmActive)
	assert.True(t, *st.AlarmActive)
	assert.Equal(t, "1 days, 2 hours, 3 minutes, 4 seconds", st.Uptime)
	assert.Equal(t, "1800000000", st.StartedAt)
	assert.NotEmpty(t, st.IPAddress)
}

func TestStatusPublisher_Run(t *testing.T) {
	pub := &fakePublisher{}
	m := NewMirror(pub, MirrorConfig{Prefix: "cargamon", Logger: quiet})
	p := NewStatusPublisher(pub, m, &fakeSession{state: telemetry.StateConnecting}, StatusConfig{
		Interval: 10 * time.Millisecond,
		Logger:   quiet,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(pub.onTopic("cargamon/status")) >= 3
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	start := pub.onTopic("cargamon/start")
	require.Len(t, start, 1)
	assert.True(t, start[0].retained)
	assert.Contains(t, string(start[0].payload), "sess-1")

	statuses := pub.onTopic("cargamon/status")
	var last Status
	require.NoError(t, json.Unmarshal(statuses[len(statuses)-1].payload, &last))
	assert.Equal(t, "sess-1", last.Session)
	assert.Nil(t, last.AlarmActive)
	for _, s := range statuses {
		assert.True(t, s.retained)
	}
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "0 days, 0 hours, 0 minutes, 59 seconds", formatUptime(59*time.Second))
	assert.Equal(t, "0 days, 0 hours, 0 minutes, 0 seconds", formatUptime(-time.Second))
}

// fakeSubscriber records handlers so tests can deliver messages by hand.
type fakeSubscriber struct {
	handlers map[string]mqtt.MessageHandler
	fail     error
}

func (f *fakeSubscriber) Subscribe(topic string, h mqtt.MessageHandler) error {
	if f.fail != nil {
		return f.fail
	}
	if f.handlers == nil {
		f.handlers = make(map[string]mqtt.MessageHandler)
	}
	f.handlers[topic] = h
	return nil
}

func (f *fakeSubscriber) deliver(t *testing.T, topic, body string) {
	t.Helper()
	h, ok := f.handlers[topic]
	require.True(t, ok, "no handler for %s", topic)
	h(topic, []byte(body))
}

func TestCommands_Threshold(t *testing.T) {
	sub := &fakeSubscriber{}
	var got []float64
	c := NewCommands(sub, CommandConfig{
		Prefix:    "cargamon",
		Threshold: func(v float64) { got = append(got, v) },
		Logger:    quiet,
	})
	require.NoError(t, c.Start())
	assert.Equal(t, "cargamon/cmd/threshold", c.ThresholdTopic())
	assert.NotContains(t, sub.handlers, c.StopTopic())

	sub.deliver(t, "cargamon/cmd/threshold", "42.5")
	sub.deliver(t, "cargamon/cmd/threshold", `{"value": 38}`)
	sub.deliver(t, "cargamon/cmd/threshold", "warm")
	sub.deliver(t, "cargamon/cmd/threshold", "Infinity")
	assert.Equal(t, []float64{42.5, 38}, got)
}

func TestCommands_Stop(t *testing.T) {
	sub := &fakeSubscriber{}
	stops := 0
	c := NewCommands(sub, CommandConfig{Stop: func() { stops++ }, Logger: quiet})
	require.NoError(t, c.Start())
	assert.Equal(t, "cmd/stop", c.StopTopic())
	assert.NotContains(t, sub.handlers, c.ThresholdTopic())

	sub.deliver(t, "cmd/stop", "")
	assert.Equal(t, 1, stops)
}

func TestCommands_SubscribeFailure(t *testing.T) {
	sub := &fakeSubscriber{fail: errors.New("not authorized")}
	c := NewCommands(sub, CommandConfig{Threshold: func(float64) {}, Stop: func() {}, Logger: quiet})
	err := c.Start()
	require.Error(t, err)
	assert.ErrorContains(t, err, "threshold")
	assert.ErrorContains(t, err, "stop")
}
