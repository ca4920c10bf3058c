package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/farouk15160/cargamon/internal/mqtt"
	"github.com/farouk15160/cargamon/internal/payload"
)

// Subscriber is the receiving half of the MQTT client.
type Subscriber interface {
	Subscribe(topic string, h mqtt.MessageHandler) error
}

// CommandConfig wires remote commands to their actions. A nil action leaves
// its topic unsubscribed.
type CommandConfig struct {
	Prefix string
	// Threshold receives a new alarm threshold from <prefix>/cmd/threshold.
	Threshold func(float64)
	// Stop is called for any message on <prefix>/cmd/stop.
	Stop   func()
	Logger *slog.Logger
}

// Commands subscribes to the remote control topics and dispatches them.
type Commands struct {
	sub    Subscriber
	cfg    CommandConfig
	logger *slog.Logger
}

// NewCommands returns Commands listening through sub. Call Start to
// subscribe.
func NewCommands(sub Subscriber, cfg CommandConfig) *Commands {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Commands{sub: sub, cfg: cfg, logger: logger.With("component", "bridge")}
}

func (c *Commands) ThresholdTopic() string { return TopicFor(c.cfg.Prefix, "cmd/threshold") }
func (c *Commands) StopTopic() string      { return TopicFor(c.cfg.Prefix, "cmd/stop") }

// Start subscribes to every topic that has an action. The subscriptions
// survive reconnects of the MQTT client.
func (c *Commands) Start() error {
	var errs []error
	if c.cfg.Threshold != nil {
		if err := c.sub.Subscribe(c.ThresholdTopic(), c.handleThreshold); err != nil {
			errs = append(errs, fmt.Errorf("bridge: subscribe threshold command: %w", err))
		}
	}
	if c.cfg.Stop != nil {
		if err := c.sub.Subscribe(c.StopTopic(), c.handleStop); err != nil {
			errs = append(errs, fmt.Errorf("bridge: subscribe stop command: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *Commands) handleThreshold(topic string, data []byte) {
	v, ok := payload.Decode(data)
	if !ok || math.IsInf(v, 0) {
		c.logger.Warn("bridge: ignoring threshold command without a finite number", "topic", topic, "payload", truncate(data, 32))
		return
	}
	c.logger.Info("bridge: alarm threshold changed remotely", "threshold", v)
	c.cfg.Threshold(v)
}

func (c *Commands) handleStop(topic string, _ []byte) {
	c.logger.Info("bridge: stop requested remotely", "topic", topic)
	c.cfg.Stop()
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
