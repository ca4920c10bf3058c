package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/go-stomp/stomp/v3/frame"
)

// fakeBroker is an in-memory STOMP broker good enough for a single client:
// it answers CONNECT, records SUBSCRIBE ids per destination, acknowledges
// DISCONNECT receipts and lets tests push MESSAGE frames.
type fakeBroker struct {
	t *testing.T

	mu           sync.Mutex
	sessions     []*brokerSession
	endpoints    []*url.URL
	failDials    int
	rejectLogins bool
	// heartBeat is the CONNECTED heart-beat header; empty means "0,0".
	// The broker itself never sends heart-beats.
	heartBeat string
}

func newFakeBroker(t *testing.T) *fakeBroker {
	return &fakeBroker{t: t}
}

// Dialer returns a Dialer connecting to the broker through net.Pipe.
func (b *fakeBroker) Dialer() Dialer {
	return DialerFunc(func(ctx context.Context, endpoint *url.URL) (io.ReadWriteCloser, error) {
		b.mu.Lock()
		b.endpoints = append(b.endpoints, endpoint)
		if b.failDials > 0 {
			b.failDials--
			b.mu.Unlock()
			return nil, errors.New("connection refused")
		}
		b.mu.Unlock()

		client, server := net.Pipe()
		b.serve(server)
		return client, nil
	})
}

func (b *fakeBroker) serve(conn io.ReadWriteCloser) *brokerSession {
	s := &brokerSession{
		conn:   conn,
		w:      frame.NewWriter(conn),
		subs:   make(map[string]string),
		closed: make(chan struct{}),
	}
	b.mu.Lock()
	b.sessions = append(b.sessions, s)
	reject := b.rejectLogins
	heartBeat := b.heartBeat
	b.mu.Unlock()
	if heartBeat == "" {
		heartBeat = "0,0"
	}
	go s.loop(reject, heartBeat)
	return s
}

func (b *fakeBroker) sessionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

func (b *fakeBroker) session(i int) *brokerSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i >= len(b.sessions) {
		return nil
	}
	return b.sessions[i]
}

func (b *fakeBroker) latest() *brokerSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sessions) == 0 {
		return nil
	}
	return b.sessions[len(b.sessions)-1]
}

func (b *fakeBroker) dialedEndpoints() []*url.URL {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*url.URL(nil), b.endpoints...)
}

type brokerSession struct {
	conn io.ReadWriteCloser

	wmu sync.Mutex
	w   *frame.Writer

	mu           sync.Mutex
	subs         map[string]string
	seq          int
	disconnected bool
	connect      *frame.Frame

	closed chan struct{}
}

func (s *brokerSession) loop(reject bool, heartBeat string) {
	defer close(s.closed)
	defer s.conn.Close()

	r := frame.NewReader(s.conn)
	for {
		f, err := r.Read()
		if err != nil {
			return
		}
		if f == nil {
			continue // heart-beat
		}
		switch f.Command {
		case "CONNECT", "STOMP":
			s.mu.Lock()
			s.connect = f
			s.mu.Unlock()
			if reject {
				_ = s.write(frame.New("ERROR", "message", "authentication failed"))
				return
			}
			if err := s.write(frame.New("CONNECTED", "version", "1.2", "heart-beat", heartBeat)); err != nil {
				return
			}
		case "SUBSCRIBE":
			s.mu.Lock()
			s.subs[f.Header.Get("destination")] = f.Header.Get("id")
			s.mu.Unlock()
		case "DISCONNECT":
			s.mu.Lock()
			s.disconnected = true
			s.mu.Unlock()
			if receipt := f.Header.Get("receipt"); receipt != "" {
				_ = s.write(frame.New("RECEIPT", "receipt-id", receipt))
			}
			return
		}
	}
}

func (s *brokerSession) write(f *frame.Frame) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.w.Write(f)
}

func (s *brokerSession) subscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *brokerSession) destinations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.subs))
	for d := range s.subs {
		out = append(out, d)
	}
	return out
}

func (s *brokerSession) gotDisconnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnected
}

func (s *brokerSession) connectHeader(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connect == nil {
		return ""
	}
	return s.connect.Header.Get(key)
}

// publish sends body to the client's subscription for dest.
func (s *brokerSession) publish(dest, body string) error {
	s.mu.Lock()
	id, ok := s.subs[dest]
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no subscription for %s", dest)
	}
	f := frame.New("MESSAGE",
		"destination", dest,
		"subscription", id,
		"message-id", strconv.Itoa(seq),
		"content-type", "text/plain")
	f.Body = []byte(body)
	return s.write(f)
}

// sendError sends an ERROR frame and closes the connection, as a STOMP
// server must.
func (s *brokerSession) sendError(msg string) {
	_ = s.write(frame.New("ERROR", "message", msg))
	s.conn.Close()
}

// drop closes the connection without any protocol goodbye.
func (s *brokerSession) drop() {
	s.conn.Close()
}

// recorder collects events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) HandleEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) readings(topic TopicID) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []float64
	for _, ev := range r.events {
		if ev.Kind == EventReading && ev.Reading.Topic == topic {
			out = append(out, ev.Reading.Value)
		}
	}
	return out
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
