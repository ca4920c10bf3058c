package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Dialer opens the byte stream a STOMP connection runs over.
type Dialer interface {
	Dial(ctx context.Context, endpoint *url.URL) (io.ReadWriteCloser, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, endpoint *url.URL) (io.ReadWriteCloser, error)

func (f DialerFunc) Dial(ctx context.Context, endpoint *url.URL) (io.ReadWriteCloser, error) {
	return f(ctx, endpoint)
}

// WebSocketDialer connects over a WebSocket. With SockJS set the raw
// WebSocket endpoint of a SockJS service ("<path>/websocket") is used, which
// is how non-browser clients reach a SockJS-enabled STOMP endpoint.
type WebSocketDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
	SockJS bool
}

func (d WebSocketDialer) Dial(ctx context.Context, endpoint *url.URL) (io.ReadWriteCloser, error) {
	target := *endpoint
	switch target.Scheme {
	case "http":
		target.Scheme = "ws"
	case "https":
		target.Scheme = "wss"
	}
	if d.SockJS {
		target.Path = strings.TrimRight(target.Path, "/") + "/websocket"
	}

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, target.String(), d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake with %s: %s: %w", target.Redacted(), resp.Status, err)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", target.Redacted(), err)
	}
	return newWSConn(ws), nil
}

// TCPDialer connects to a STOMP broker listening on plain TCP. Addr overrides
// the endpoint host; the endpoint path and query are not used.
type TCPDialer struct {
	Addr    string
	Timeout time.Duration
}

func (d TCPDialer) Dial(ctx context.Context, endpoint *url.URL) (io.ReadWriteCloser, error) {
	addr := d.Addr
	if addr == "" {
		addr = endpoint.Host
	}
	nd := net.Dialer{Timeout: d.Timeout}
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcp dial %s: %w", addr, err)
	}
	return conn, nil
}

// FallbackDialer tries each dialer in order and returns the first stream
// that opens.
type FallbackDialer []Dialer

func (fd FallbackDialer) Dial(ctx context.Context, endpoint *url.URL) (io.ReadWriteCloser, error) {
	if len(fd) == 0 {
		return nil, errors.New("no transports configured")
	}
	var errs []error
	for _, d := range fd {
		conn, err := d.Dial(ctx, endpoint)
		if err == nil {
			return conn, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}

// wsConn exposes a WebSocket as a byte stream. Each Write is sent as one text
// message; reads run across message boundaries, so a STOMP frame split over
// several messages, or several frames in one message, decode the same way.
type wsConn struct {
	ws *websocket.Conn

	rmu sync.Mutex
	r   io.Reader

	wmu sync.Mutex
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	for {
		if c.r == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				return 0, err
			}
			c.r = r
		}
		n, err := c.r.Read(p)
		if err == io.EOF {
			c.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

// watchedConn records the first read or write failure of the stream so the
// session notices a dead transport even when the protocol layer is idle.
type watchedConn struct {
	io.ReadWriteCloser

	once sync.Once
	dead chan struct{}
	err  error
}

func newWatchedConn(rwc io.ReadWriteCloser) *watchedConn {
	return &watchedConn{ReadWriteCloser: rwc, dead: make(chan struct{})}
}

func (c *watchedConn) Read(p []byte) (int, error) {
	n, err := c.ReadWriteCloser.Read(p)
	if err != nil {
		c.fail(err)
	}
	return n, err
}

func (c *watchedConn) Write(p []byte) (int, error) {
	n, err := c.ReadWriteCloser.Write(p)
	if err != nil {
		c.fail(err)
	}
	return n, err
}

func (c *watchedConn) Close() error {
	err := c.ReadWriteCloser.Close()
	c.fail(net.ErrClosed)
	return err
}

func (c *watchedConn) fail(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.dead)
	})
}

// Dead is closed once the stream has failed or been closed.
func (c *watchedConn) Dead() <-chan struct{} { return c.dead }

// Err returns the failure that closed Dead.
func (c *watchedConn) Err() error {
	select {
	case <-c.dead:
		return c.err
	default:
		return nil
	}
}
