// Package alarm watches the live temperature stream of a loading order and
// reports when it crosses the product's threshold.
package alarm

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/farouk15160/cargamon/internal/telemetry"
)

// Transition is a change of alarm state.
type Transition struct {
	Raised    bool // false means cleared
	Value     float64
	Threshold float64
	At        time.Time
	// Duration is how long the alarm was active. Only set when clearing.
	Duration time.Duration
}

func (t Transition) String() string {
	if t.Raised {
		return fmt.Sprintf("temperature %.2f above threshold %.2f", t.Value, t.Threshold)
	}
	return fmt.Sprintf("temperature %.2f back under threshold %.2f after %s", t.Value, t.Threshold, t.Duration.Round(time.Second))
}

// Config configures an Evaluator.
type Config struct {
	// Threshold is the highest acceptable temperature.
	Threshold float64
	// Hysteresis is how far under Threshold a reading must fall to clear an
	// active alarm. Zero clears at Threshold.
	Hysteresis float64
	// Notify receives every transition. It runs on the session's delivery
	// goroutine.
	Notify func(Transition)
	Logger *slog.Logger
}

// Evaluator is a telemetry.Handler that raises an alarm once when a
// temperature reading exceeds the threshold and clears it once when the
// temperature recovers. Other topics are ignored.
type Evaluator struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	active   bool
	raisedAt time.Time
	raises   int

	// timeNow is replaced in tests.
	timeNow func() time.Time
}

// NewEvaluator returns an inactive Evaluator.
func NewEvaluator(cfg Config) *Evaluator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Hysteresis < 0 {
		cfg.Hysteresis = 0
	}
	return &Evaluator{
		cfg:     cfg,
		logger:  logger.With("component", "alarm"),
		timeNow: time.Now,
	}
}

// HandleEvent implements telemetry.Handler.
func (e *Evaluator) HandleEvent(ev telemetry.Event) {
	if ev.Kind != telemetry.EventReading || ev.Reading.Topic != telemetry.Temperature {
		return
	}
	at := ev.Reading.ReceivedAt
	if at.IsZero() {
		at = e.timeNow()
	}
	if tr, ok := e.observe(ev.Reading.Value, at); ok {
		if tr.Raised {
			e.logger.Warn("alarm: raised", "temperature", tr.Value, "threshold", tr.Threshold)
		} else {
			e.logger.Info("alarm: cleared", "temperature", tr.Value, "threshold", tr.Threshold, "duration", tr.Duration)
		}
		if e.cfg.Notify != nil {
			e.cfg.Notify(tr)
		}
	}
}

func (e *Evaluator) observe(value float64, at time.Time) (Transition, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case !e.active && value > e.cfg.Threshold:
		e.active = true
		e.raisedAt = at
		e.raises++
		return Transition{Raised: true, Value: value, Threshold: e.cfg.Threshold, At: at}, true
	case e.active && value <= e.cfg.Threshold-e.cfg.Hysteresis:
		e.active = false
		return Transition{Value: value, Threshold: e.cfg.Threshold, At: at, Duration: at.Sub(e.raisedAt)}, true
	}
	return Transition{}, false
}

// SetThreshold replaces the threshold. The next temperature reading is
// judged against it; an active alarm stays raised until then.
func (e *Evaluator) SetThreshold(v float64) {
	e.mu.Lock()
	old := e.cfg.Threshold
	e.cfg.Threshold = v
	e.mu.Unlock()
	e.logger.Info("alarm: threshold changed", "from", old, "to", v)
}

// Threshold returns the current threshold.
func (e *Evaluator) Threshold() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Threshold
}

// Active reports whether the alarm is currently raised.
func (e *Evaluator) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Raises returns how many times the alarm has been raised.
func (e *Evaluator) Raises() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.raises
}
