package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/farouk15160/cargamon/internal/telemetry"
)

// DefaultStatusInterval is used when StatusConfig.Interval is not positive.
const DefaultStatusInterval = 30 * time.Second

// SessionSource is the part of a telemetry.Session the status publisher
// reports on.
type SessionSource interface {
	ID() string
	State() telemetry.State
	Stats() telemetry.Stats
}

// AlarmSource reports whether a temperature alarm is active.
type AlarmSource interface {
	Active() bool
}

// Status is the retained document published on <prefix>/status.
type Status struct {
	Session             string `json:"session"`
	State               string `json:"state"`
	Connects            int    `json:"connects"`
	Disconnects         int    `json:"disconnects"`
	FailedAttempts      int    `json:"failed_attempts"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	DroppedFrames       int    `json:"dropped_frames"`
	LastError           string `json:"last_error,omitempty"`
	LastConnectedAt     string `json:"last_connected_at,omitempty"`
	MirroredReadings    int64  `json:"mirrored_readings"`
	AlarmActive         *bool  `json:"alarm_active,omitempty"`
	Uptime              string `json:"uptime"`
	IPAddress           string `json:"ip_address"`
	StartedAt           string `json:"started_at"`
	Timestamp           string `json:"timestamp"`
}

// StatusConfig configures a StatusPublisher.
type StatusConfig struct {
	Interval time.Duration
	Alarm    AlarmSource // optional
	Logger   *slog.Logger
}

// StatusPublisher periodically publishes a retained status document for a
// session, plus a one-off start message when it begins running.
type StatusPublisher struct {
	pub     Publisher
	mirror  *Mirror
	session SessionSource
	cfg     StatusConfig
	logger  *slog.Logger
	started time.Time
	ip      string

	// timeNow is replaced in tests.
	timeNow func() time.Time
}

// NewStatusPublisher reports on session under mirror's topic prefix.
// mirror must not be nil.
func NewStatusPublisher(pub Publisher, mirror *Mirror, session SessionSource, cfg StatusConfig) *StatusPublisher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultStatusInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusPublisher{
		pub:     pub,
		mirror:  mirror,
		session: session,
		cfg:     cfg,
		logger:  logger.With("component", "status"),
		ip:      getIPAddress(logger),
		timeNow: time.Now,
	}
}

// Run publishes the start message and a status document every interval
// until ctx is done, then publishes a final status and returns nil.
func (p *StatusPublisher) Run(ctx context.Context) error {
	p.started = p.timeNow()
	p.publishStartInfo()
	p.PublishStatus()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	p.logger.Info("status: publisher started", "interval", p.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			p.PublishStatus()
			p.logger.Info("status: publisher stopped")
			return nil
		case <-ticker.C:
			p.PublishStatus()
		}
	}
}

// Snapshot builds the current status document.
func (p *StatusPublisher) Snapshot() Status {
	now := p.timeNow()
	stats := p.session.Stats()
	st := Status{
		Session:             p.session.ID(),
		State:               p.session.State().String(),
		Connects:            stats.Connects,
		Disconnects:         stats.Disconnects,
		FailedAttempts:      stats.FailedAttempts,
		ConsecutiveFailures: stats.ConsecutiveFailures,
		DroppedFrames:       stats.DroppedFrames,
		Uptime:              formatUptime(now.Sub(p.started)),
		IPAddress:           p.ip,
		StartedAt:           strconv.FormatInt(p.started.Unix(), 10),
		Timestamp:           strconv.FormatInt(now.Unix(), 10),
	}
	if stats.LastError != nil {
		st.LastError = stats.LastError.Error()
	}
	if !stats.LastConnectedAt.IsZero() {
		st.LastConnectedAt = stats.LastConnectedAt.UTC().Format(time.RFC3339)
	}
	st.MirroredReadings = p.mirror.Published()
	if p.cfg.Alarm != nil {
		active := p.cfg.Alarm.Active()
		st.AlarmActive = &active
	}
	return st
}

// PublishStatus publishes one retained status document.
func (p *StatusPublisher) PublishStatus() {
	payload, err := json.Marshal(p.Snapshot())
	if err != nil {
		p.logger.Error("status: failed to marshal status", "error", err)
		return
	}
	if err := p.pub.PublishRetained(p.mirror.Topic("status"), payload); err != nil {
		p.logger.Error("status: publish failed", "error", err)
	}
}

func (p *StatusPublisher) publishStartInfo() {
	payload, err := json.MarshalIndent(map[string]string{
		"message":    "cargamon telemetry monitor is up and running",
		"session":    p.session.ID(),
		"ip_address": p.ip,
		"timestamp":  strconv.FormatInt(p.started.Unix(), 10),
	}, "", "  ")
	if err != nil {
		p.logger.Error("status: failed to marshal start info", "error", err)
		return
	}
	if err := p.pub.PublishRetained(p.mirror.Topic("start"), payload); err != nil {
		p.logger.Error("status: start info publish failed", "error", err)
	}
}

func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%d days, %d hours, %d minutes, %d seconds", days, hours, minutes, seconds)
}

// getIPAddress tries to find the primary local IPv4 address.
func getIPAddress(logger *slog.Logger) string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		logger.Warn("status: could not list interface addresses", "error", err)
		return "unknown"
	}
	for _, address := range addrs {
		if ipnet, ok := address.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			return ipnet.IP.String()
		}
	}
	logger.Debug("status: no non-loopback IPv4 address found")
	return "unknown"
}
