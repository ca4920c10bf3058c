package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/google/uuid"

	"github.com/farouk15160/cargamon/internal/payload"
)

// Connection defaults of the plant deployment.
const (
	DefaultReconnectDelay    = 3 * time.Second
	DefaultHeartbeat         = 4 * time.Second
	DefaultConnectTimeout    = 10 * time.Second
	DefaultDisconnectTimeout = 2 * time.Second
)

// Config describes how a Session reaches the broker. Everything is passed in
// explicitly; nothing is read from the environment.
type Config struct {
	// BaseURL is the broker origin, e.g. "https://plant.example.com".
	// Empty means DefaultBaseURL.
	BaseURL string
	// Path is the STOMP endpoint path. Empty means DefaultPath.
	Path string
	// Token, when set, is sent as the "token" query parameter of the endpoint.
	Token string
	// Login and Passcode are optional STOMP CONNECT credentials.
	Login    string
	Passcode string

	// Dialer opens the transport. Nil means a SockJS-aware WebSocketDialer.
	Dialer Dialer

	// ReconnectDelay is the constant wait between connection attempts.
	ReconnectDelay time.Duration
	// HeartbeatOutgoing and HeartbeatIncoming are the STOMP heart-beat
	// intervals. Zero selects DefaultHeartbeat, a negative value disables it.
	HeartbeatOutgoing time.Duration
	HeartbeatIncoming time.Duration
	// ConnectTimeout bounds dial plus STOMP handshake.
	ConnectTimeout time.Duration
	// DisconnectTimeout bounds the graceful DISCONNECT sent by Close.
	DisconnectTimeout time.Duration

	// Logger receives structured diagnostics. Nil disables logging.
	Logger *slog.Logger
	// Now stamps readings. Nil means time.Now.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Dialer == nil {
		c.Dialer = WebSocketDialer{SockJS: true}
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	c.HeartbeatOutgoing = heartbeatOrDefault(c.HeartbeatOutgoing)
	c.HeartbeatIncoming = heartbeatOrDefault(c.HeartbeatIncoming)
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.DisconnectTimeout <= 0 {
		c.DisconnectTimeout = DefaultDisconnectTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

func heartbeatOrDefault(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultHeartbeat
	case d < 0:
		return 0
	default:
		return d
	}
}

// State is the lifecycle position of a Session.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stats are counters for observing a session that never gives up.
type Stats struct {
	Connects            int
	Disconnects         int
	FailedAttempts      int
	ConsecutiveFailures int
	DroppedFrames       int
	LastError           error
	LastConnectedAt     time.Time
}

var errSubscriptionClosed = errors.New("subscription closed by broker")

// go-stomp tells every subscription about a silent or vanished transport with
// a locally built ERROR frame carrying one of these messages.
var localStompFailures = map[string]bool{
	"read timeout":                      true,
	"connection closed":                 true,
	"channel read failed":               true,
	stomp.ErrClosedUnexpectedly.Error(): true,
}

// isTransportFailure reports whether a subscription error comes from the
// client side of the connection rather than from a broker ERROR frame.
func isTransportFailure(err error) bool {
	return err != nil && localStompFailures[err.Error()]
}

// heartbeatGrace is the slack allowed on top of the negotiated incoming
// heart-beat before the broker is declared silent.
func heartbeatGrace(incoming time.Duration) time.Duration {
	return incoming / 2
}

// Session is one logical broker connection and everything it owns.
// Create it with Open and release it with Close.
type Session struct {
	id      string
	cfg     Config
	handler Handler
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	closed atomic.Bool

	mu    sync.Mutex
	state State
	stats Stats
}

// Open starts a session in the background and returns immediately. The
// session connects, subscribes to Topics and delivers events to h until Close
// is called. Connection problems never surface here; they show up as
// EventError and EventDisconnected events and in Stats.
func Open(cfg Config, h Handler) *Session {
	cfg = cfg.withDefaults()
	if h == nil {
		h = Handlers(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	s := &Session{
		id:      id,
		cfg:     cfg,
		handler: h,
		log:     cfg.Logger.With("session", id[:8]),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   StateConnecting,
	}
	go s.run()
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Close tears the session down: pending connects and reconnect waits are
// cancelled, a DISCONNECT is attempted and the transport is released. Close
// does not wait and may be called from a handler; calling it again is a no-op.
// An event whose delivery already started when Close was called from another
// goroutine still completes; wait on Done to be sure no handler is running.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	s.cancel()
	s.log.Info("telemetry: session closed by caller")
}

// Done is closed once the session goroutine has exited and the transport is released.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.state = st
}

func (s *Session) emit(ev Event) {
	if s.closed.Load() {
		return
	}
	s.handler.HandleEvent(ev)
}

func (s *Session) run() {
	defer close(s.done)

	for attempt := 1; ; attempt++ {
		connected, err := s.connectAndServe(attempt)
		if s.ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		s.stats.LastError = err
		if connected {
			s.stats.Disconnects++
		} else {
			s.stats.FailedAttempts++
			s.stats.ConsecutiveFailures++
		}
		failures := s.stats.ConsecutiveFailures
		s.mu.Unlock()
		s.setState(StateReconnecting)

		if connected {
			s.log.Warn("telemetry: connection lost, reconnecting",
				"error", err, "delay", s.cfg.ReconnectDelay)
			s.emit(Event{Kind: EventDisconnected, Err: err, Attempt: attempt})
		} else {
			s.log.Warn("telemetry: connection attempt failed",
				"attempt", attempt, "consecutive_failures", failures,
				"error", err, "delay", s.cfg.ReconnectDelay)
			s.emit(Event{Kind: EventError, Err: err, Attempt: attempt})
		}

		timer := time.NewTimer(s.cfg.ReconnectDelay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// connectAndServe runs one connection from dial to loss. connected reports
// whether the session reached CONNECTED on this attempt.
func (s *Session) connectAndServe(attempt int) (connected bool, err error) {
	endpoint, err := ResolveEndpoint(s.cfg.BaseURL, s.cfg.Path, s.cfg.Token)
	if err != nil {
		return false, err
	}
	s.log.Debug("telemetry: connecting", "endpoint", endpoint.Redacted(), "attempt", attempt)

	hctx, hcancel := context.WithTimeout(s.ctx, s.cfg.ConnectTimeout)
	defer hcancel()

	rwc, err := s.cfg.Dialer.Dial(hctx, endpoint)
	if err != nil {
		return false, err
	}
	conn := newWatchedConn(rwc)
	defer conn.Close()

	// Close the stream if the caller tears down or the handshake stalls;
	// that is what unblocks stomp.Connect.
	stop := context.AfterFunc(hctx, func() { conn.Close() })
	sc, err := stomp.Connect(conn, s.connectOptions(endpoint.Hostname())...)
	if !stop() {
		if err == nil {
			err = hctx.Err()
		}
		return false, fmt.Errorf("stomp handshake: %w", err)
	}
	if err != nil {
		return false, fmt.Errorf("stomp handshake: %w", err)
	}

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	inbound := make(chan inboundFrame)
	for _, topic := range Topics {
		sub, err := sc.Subscribe(topic.Address(), stomp.AckAuto)
		if err != nil {
			return false, fmt.Errorf("subscribe %s: %w", topic.Address(), err)
		}
		go forward(ctx, topic, sub, inbound)
	}

	s.mu.Lock()
	s.stats.Connects++
	s.stats.ConsecutiveFailures = 0
	s.stats.LastConnectedAt = s.cfg.Now()
	s.mu.Unlock()
	s.setState(StateConnected)
	s.log.Info("telemetry: connected and subscribed", "endpoint", endpoint.Redacted(), "topics", len(Topics))
	s.emit(Event{Kind: EventConnected, Attempt: attempt})

	return true, s.serve(sc, conn, inbound, attempt)
}

func (s *Session) connectOptions(host string) []func(*stomp.Conn) error {
	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.HeartBeat(s.cfg.HeartbeatOutgoing, s.cfg.HeartbeatIncoming),
		stomp.ConnOpt.HeartBeatError(heartbeatGrace(s.cfg.HeartbeatIncoming)),
		stomp.ConnOpt.Logger(stompLogger{log: s.log}),
	}
	if host != "" {
		opts = append(opts, stomp.ConnOpt.Host(host))
	}
	if s.cfg.Login != "" {
		opts = append(opts, stomp.ConnOpt.Login(s.cfg.Login, s.cfg.Passcode))
	}
	return opts
}

// serve dispatches frames until the transport dies or the session is closed.
func (s *Session) serve(sc *stomp.Conn, conn *watchedConn, inbound <-chan inboundFrame, attempt int) error {
	for {
		select {
		case <-s.ctx.Done():
			s.disconnect(sc)
			return nil
		case <-conn.Dead():
			return fmt.Errorf("transport lost: %w", conn.Err())
		case in := <-inbound:
			if in.msg == nil {
				return fmt.Errorf("%s: %w", in.topic.Address(), errSubscriptionClosed)
			}
			if isTransportFailure(in.msg.Err) {
				return fmt.Errorf("transport lost: %w", in.msg.Err)
			}
			if in.msg.Err != nil {
				s.log.Warn("telemetry: broker error frame", "topic", in.topic, "error", in.msg.Err)
				s.emit(Event{Kind: EventError, Err: in.msg.Err, Attempt: attempt})
				return fmt.Errorf("broker error on %s: %w", in.topic.Address(), in.msg.Err)
			}
			s.dispatch(in.topic, in.msg.Body, attempt)
		}
	}
}

func (s *Session) dispatch(topic TopicID, body []byte, attempt int) {
	value, ok := payload.Decode(body)
	if !ok {
		s.mu.Lock()
		s.stats.DroppedFrames++
		s.mu.Unlock()
		s.log.Debug("telemetry: dropped frame without a number", "topic", topic, "body", truncate(body, 64))
		return
	}
	s.emit(Event{
		Kind:    EventReading,
		Reading: Reading{Topic: topic, Value: value, ReceivedAt: s.cfg.Now()},
		Attempt: attempt,
	})
}

// disconnect sends a best-effort DISCONNECT; the caller closes the stream
// afterwards, which also unblocks a broker that never sends the receipt.
func (s *Session) disconnect(sc *stomp.Conn) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sc.Disconnect(); err != nil {
			s.log.Debug("telemetry: disconnect", "error", err)
		}
	}()
	timer := time.NewTimer(s.cfg.DisconnectTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.log.Debug("telemetry: disconnect receipt timed out")
	}
}

type inboundFrame struct {
	topic TopicID
	msg   *stomp.Message // nil when the subscription channel closed
}

// forward copies one subscription into the shared inbound channel, keeping
// the broker's order for that topic.
func forward(ctx context.Context, topic TopicID, sub *stomp.Subscription, out chan<- inboundFrame) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				msg = nil
			}
			select {
			case out <- inboundFrame{topic: topic, msg: msg}:
			case <-ctx.Done():
				return
			}
			if msg == nil || msg.Err != nil {
				return
			}
		}
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
