// Package transport is the WebSocket client connection to a remote-debugging
// endpoint. It performs the upgrade handshake and exposes one logical frame
// at a time, answering pings and close frames itself.
package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"devtools-bridge/internal/adapter/wsframe"
	"devtools-bridge/internal/domain"
	"devtools-bridge/internal/infra/metrics"
)

// State is the handshake state of a Conn.
type State int32

const (
	StatePending State = iota
	StateEstablished
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateEstablished:
		return "established"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

const (
	defaultHandshakeTimeout = 10 * time.Second
	closeWriteTimeout       = time.Second
	readChunk               = 32 << 10
)

// Option configures a Conn.
type Option func(*Conn)

// WithHandshakeTimeout bounds the upgrade when the context has no deadline.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Conn) { c.handshakeTimeout = d }
}

// WithMaxPayload sets the largest message the connection will accept.
func WithMaxPayload(n int64) Option {
	return func(c *Conn) { c.maxPayload = n }
}

// WithHeader adds headers to the upgrade request.
func WithHeader(h http.Header) Option {
	return func(c *Conn) { c.header = h.Clone() }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) { c.logger = l }
}

// WithTLSConfig sets the TLS configuration used for wss:// endpoints.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Conn) { c.tlsConfig = cfg }
}

// Conn is a client-side WebSocket connection. SendFrame may be called from
// any goroutine; NextFrame must be called from a single reader.
type Conn struct {
	handshakeTimeout time.Duration
	maxPayload       int64
	header           http.Header
	logger           *slog.Logger
	tlsConfig        *tls.Config

	nc    net.Conn
	br    *bufio.Reader
	dec   *wsframe.Decoder
	rbuf  []byte
	queue []wsframe.Frame

	// readErr is a decode failure held back until queue drains.
	readErr error

	state     atomic.Int32
	wmu       sync.Mutex
	closeOnce sync.Once
}

// New wraps an already connected socket. The returned Conn is pending until
// Handshake succeeds.
func New(nc net.Conn, opts ...Option) *Conn {
	c := &Conn{
		handshakeTimeout: defaultHandshakeTimeout,
		nc:               nc,
		logger:           slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(c)
	}
	c.br = bufio.NewReaderSize(nc, readChunk)
	c.dec = wsframe.NewDecoder(c.maxPayload)
	c.rbuf = make([]byte, readChunk)
	return c
}

// Dial connects to a ws:// or wss:// endpoint and performs the upgrade.
// Any failure before the connection is established wraps domain.ErrHandshake.
func Dial(ctx context.Context, endpoint string, opts ...Option) (*Conn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, handshakeErr("parse endpoint", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, handshakeErr(fmt.Sprintf("unsupported scheme %q", u.Scheme), nil)
	}

	opt := &Conn{}
	for _, o := range opts {
		o(opt)
	}

	addr := u.Host
	if u.Port() == "" {
		if u.Scheme == "wss" {
			addr = net.JoinHostPort(u.Hostname(), "443")
		} else {
			addr = net.JoinHostPort(u.Hostname(), "80")
		}
	}

	var nc net.Conn
	if u.Scheme == "wss" {
		cfg := opt.tlsConfig
		if cfg == nil {
			cfg = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: u.Hostname()}
		}
		d := &tls.Dialer{Config: cfg}
		nc, err = d.DialContext(ctx, "tcp", addr)
	} else {
		var d net.Dialer
		nc, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, handshakeErr("dial "+addr, err)
	}

	c := New(nc, opts...)
	if err := c.Handshake(ctx, u); err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

// Handshake performs the HTTP upgrade on a pending connection.
func (c *Conn) Handshake(ctx context.Context, u *url.URL) error {
	if c.State() != StatePending {
		return handshakeErr("connection is "+c.State().String(), nil)
	}

	deadline, ok := ctx.Deadline()
	if !ok && c.handshakeTimeout > 0 {
		deadline = time.Now().Add(c.handshakeTimeout)
	}
	if !deadline.IsZero() {
		_ = c.nc.SetDeadline(deadline)
		defer c.nc.SetDeadline(time.Time{})
	}

	stop := context.AfterFunc(ctx, func() { _ = c.nc.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	key, err := newKey()
	if err != nil {
		return handshakeErr("generate key", err)
	}
	req := buildRequest(u, key, c.header)
	if _, err := c.nc.Write(writeRequest(req)); err != nil {
		return handshakeErr("write request", err)
	}

	head, err := readResponseHeader(c.br)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return handshakeErr("", err)
	}
	if err := checkResponse(head, req, key); err != nil {
		return handshakeErr("", err)
	}

	c.state.Store(int32(StateEstablished))
	c.logger.Debug("websocket established", "endpoint", u.String())
	return nil
}

// State returns the current handshake state.
func (c *Conn) State() State { return State(c.state.Load()) }

// SendFrame masks and writes f. Writes from concurrent callers never
// interleave.
func (c *Conn) SendFrame(f wsframe.Frame) error {
	switch c.State() {
	case StatePending:
		return domain.NewDomainError("Conn.SendFrame", domain.ErrNotHandshaked, "")
	case StateClosed:
		return domain.NewDomainError("Conn.SendFrame", domain.ErrConnectionClosed, "")
	}
	return c.write(f)
}

func (c *Conn) write(f wsframe.Frame) error {
	b, err := wsframe.Encode(f, true)
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.nc.Write(b); err != nil {
		return domain.NewDomainError("Conn.SendFrame", domain.ErrConnectionClosed, err.Error())
	}
	metrics.RecordFrame("out", f.Opcode.String())
	return nil
}

// NextFrame blocks until a text or binary message is available. Pings are
// answered and pongs dropped without being returned. When the peer closes
// the connection, the close is echoed and this and every later call return
// an error wrapping domain.ErrConnectionClosed. A protocol violation is
// reported the same way, after every frame decoded before it.
func (c *Conn) NextFrame() (wsframe.Frame, error) {
	switch c.State() {
	case StatePending:
		return wsframe.Frame{}, domain.NewDomainError("Conn.NextFrame", domain.ErrNotHandshaked, "")
	case StateClosed:
		return wsframe.Frame{}, domain.NewDomainError("Conn.NextFrame", domain.ErrConnectionClosed, "")
	}

	for {
		for len(c.queue) > 0 {
			f := c.queue[0]
			c.queue = c.queue[1:]
			metrics.RecordFrame("in", f.Opcode.String())

			switch f.Opcode {
			case wsframe.OpPing:
				if err := c.write(wsframe.Frame{Opcode: wsframe.OpPong, Payload: f.Payload}); err != nil {
					c.shutdown()
					return wsframe.Frame{}, err
				}
			case wsframe.OpPong:
			case wsframe.OpClose:
				code, reason := wsframe.ParseClose(f.Payload)
				c.logger.Debug("peer closed connection", "code", code, "reason", reason)
				c.closeWith(code, "")
				return wsframe.Frame{}, domain.NewDomainError("Conn.NextFrame", domain.ErrConnectionClosed,
					fmt.Sprintf("peer sent close %d", code))
			default:
				return f, nil
			}
		}

		if c.readErr != nil {
			err := c.readErr
			c.readErr = nil
			c.closeWith(wsframe.CloseProtocolError, "")
			return wsframe.Frame{}, err
		}

		n, err := c.br.Read(c.rbuf)
		if n > 0 {
			frames, ferr := c.dec.Feed(c.rbuf[:n])
			c.queue = append(c.queue, frames...)
			if ferr != nil {
				// Frames decoded ahead of the bad one are delivered first.
				c.logger.Warn("websocket protocol error", "error", ferr)
				c.readErr = fmt.Errorf("%w: %w", domain.ErrConnectionClosed, ferr)
				continue
			}
		}
		if err != nil && len(c.queue) == 0 {
			c.shutdown()
			detail := err.Error()
			if errors.Is(err, io.EOF) {
				detail = "peer closed socket"
			}
			return wsframe.Frame{}, domain.NewDomainError("Conn.NextFrame", domain.ErrConnectionClosed, detail)
		}
	}
}

// Close sends a normal close frame (best effort) and closes the socket.
// It is safe to call more than once.
func (c *Conn) Close() error {
	if c.State() == StateClosed {
		return nil
	}
	c.closeWith(wsframe.CloseNormal, "")
	return nil
}

// closeWith sends a close frame when the connection was established, then
// tears the socket down.
func (c *Conn) closeWith(code uint16, reason string) {
	if c.state.CompareAndSwap(int32(StateEstablished), int32(StateClosed)) {
		var payload []byte
		if code != wsframe.CloseNoStatus {
			payload = wsframe.ClosePayload(code, reason)
		}
		_ = c.nc.SetWriteDeadline(time.Now().Add(closeWriteTimeout))
		_ = c.write(wsframe.Frame{Opcode: wsframe.OpClose, Payload: payload})
	}
	c.shutdown()
}

func (c *Conn) shutdown() {
	c.state.Store(int32(StateClosed))
	c.closeOnce.Do(func() { c.nc.Close() })
}
