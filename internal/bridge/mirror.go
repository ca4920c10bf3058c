// Package bridge republishes live telemetry to an MQTT broker: every reading
// goes to <prefix>/<topic>, session availability to a retained
// <prefix>/availability, and a periodic status document to <prefix>/status.
// It also takes remote commands on <prefix>/cmd/...
package bridge

import (
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/farouk15160/cargamon/internal/telemetry"
)

const (
	AvailabilityOnline  = "online"
	AvailabilityOffline = "offline"
)

// MirrorConfig configures a Mirror.
type MirrorConfig struct {
	Prefix  string
	Format  Format
	Session string // tagged on every message when set
	Order   int64  // tagged on every message when non-zero
	Logger  *slog.Logger
}

// Mirror is a telemetry.Handler that forwards session events to a
// Publisher.
type Mirror struct {
	pub       Publisher
	cfg       MirrorConfig
	logger    *slog.Logger
	published atomic.Int64
	failed    atomic.Int64
}

// NewMirror returns a Mirror publishing through pub.
func NewMirror(pub Publisher, cfg MirrorConfig) *Mirror {
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{pub: pub, cfg: cfg, logger: logger.With("component", "bridge")}
}

// TopicFor joins name under prefix. Every bridge topic is built this way.
func TopicFor(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// AvailabilityTopic is where online/offline is published for prefix, and
// where the MQTT last will has to point.
func AvailabilityTopic(prefix string) string { return TopicFor(prefix, "availability") }

// Topic returns the MQTT topic for a name under the mirror's prefix.
func (m *Mirror) Topic(name string) string { return TopicFor(m.cfg.Prefix, name) }

// AvailabilityTopic is where the mirror publishes online/offline.
func (m *Mirror) AvailabilityTopic() string { return AvailabilityTopic(m.cfg.Prefix) }

// HandleEvent implements telemetry.Handler.
func (m *Mirror) HandleEvent(ev telemetry.Event) {
	switch ev.Kind {
	case telemetry.EventReading:
		m.publishReading(ev.Reading)
	case telemetry.EventConnected:
		m.setAvailability(AvailabilityOnline)
	case telemetry.EventDisconnected:
		m.setAvailability(AvailabilityOffline)
	}
}

func (m *Mirror) publishReading(r telemetry.Reading) {
	payload, err := m.cfg.Format.Encode(ReadingMessage{
		Topic:      r.Topic.String(),
		Value:      r.Value,
		ReceivedAt: r.ReceivedAt,
		Session:    m.cfg.Session,
		Order:      m.cfg.Order,
	})
	if err != nil {
		m.failed.Add(1)
		m.logger.Error("bridge: failed to encode reading", "topic", r.Topic, "error", err)
		return
	}
	topic := m.Topic(r.Topic.String())
	if err := m.pub.Publish(topic, payload); err != nil {
		m.failed.Add(1)
		m.logger.Error("bridge: publish failed", "topic", topic, "error", err)
		return
	}
	m.published.Add(1)
}

func (m *Mirror) setAvailability(state string) {
	if err := m.pub.PublishRetained(m.AvailabilityTopic(), []byte(state)); err != nil {
		m.logger.Error("bridge: availability publish failed", "state", state, "error", err)
		return
	}
	m.logger.Debug("bridge: availability", "state", state)
}

// Close marks the mirror offline. Call it after the session is closed.
func (m *Mirror) Close() {
	m.setAvailability(AvailabilityOffline)
}

// Published returns how many readings were handed to the publisher.
func (m *Mirror) Published() int64 { return m.published.Load() }

// Failed returns how many readings could not be published.
func (m *Mirror) Failed() int64 { return m.failed.Load() }
