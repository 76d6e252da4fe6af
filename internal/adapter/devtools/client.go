// Package devtools multiplexes remote-debugging commands over one frame
// connection. A single reader goroutine sorts inbound messages into command
// replies, network activity and page lifecycle notifications; any number of
// goroutines may issue commands concurrently.
package devtools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"devtools-bridge/internal/adapter/wsframe"
	"devtools-bridge/internal/domain"
	"devtools-bridge/internal/infra/metrics"
)

// DefaultCommandTimeout applies to calls whose context has no deadline.
const DefaultCommandTimeout = 30 * time.Second

// FrameConn is the frame-level connection the client runs on.
// *transport.Conn implements it.
type FrameConn interface {
	SendFrame(wsframe.Frame) error
	NextFrame() (wsframe.Frame, error)
	Close() error
}

// Option configures a Client.
type Option func(*Client)

// WithCommandTimeout sets the default per-command timeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *Client) { c.commandTimeout = d }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

type reply struct {
	result  jsontext.Value
	remote  *Error
	invalid error
	err     error
}

// Client correlates commands with replies by id and records notifications.
type Client struct {
	conn           FrameConn
	logger         *slog.Logger
	commandTimeout time.Duration

	nextID atomic.Int64

	// mu guards the pending table, both logs and err.
	mu      sync.Mutex
	pending map[int64]chan reply
	network NetworkLog
	page    PageLog
	err     error

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient starts the reader goroutine on conn. The client owns conn from
// here on.
func NewClient(conn FrameConn, opts ...Option) *Client {
	c := &Client{
		conn:           conn,
		logger:         slog.New(slog.DiscardHandler),
		commandTimeout: DefaultCommandTimeout,
		pending:        make(map[int64]chan reply),
		done:           make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	go c.readLoop()
	return c
}

// Call sends method with params and waits for its reply. params may be nil,
// a cdproto params struct, or any value that marshals to a JSON object.
//
// When ctx has no deadline the client's command timeout applies. A timeout
// wraps domain.ErrTimeout; a reply that arrives afterwards is discarded.
// A reply carrying an error object is returned as *domain.RemoteError.
func (c *Client) Call(ctx context.Context, method string, params any) (jsontext.Value, error) {
	var rawParams jsontext.Value
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, domain.NewDomainError("Client.Call", domain.ErrInvalidInput,
				fmt.Sprintf("encode %s params: %v", method, err))
		}
		rawParams = b
	}

	if _, ok := ctx.Deadline(); !ok && c.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.commandTimeout)
		defer cancel()
	}

	id := c.nextID.Add(1)
	ch := make(chan reply, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		metrics.RecordCommand(method, metrics.OutcomeClosed, 0)
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	c.pending[id] = ch
	c.mu.Unlock()

	payload, err := json.Marshal(Message{ID: id, Method: method, Params: rawParams})
	if err != nil {
		c.forget(id)
		return nil, domain.NewDomainError("Client.Call", domain.ErrInvalidInput, err.Error())
	}

	start := time.Now()
	if err := c.conn.SendFrame(wsframe.Text(payload)); err != nil {
		c.forget(id)
		metrics.RecordCommand(method, metrics.OutcomeClosed, 0)
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	c.logger.Debug("command sent", "id", id, "method", method)

	select {
	case r := <-ch:
		elapsed := time.Since(start)
		switch {
		case r.err != nil:
			metrics.RecordCommand(method, metrics.OutcomeClosed, elapsed)
			return nil, fmt.Errorf("%s: %w", method, r.err)
		case r.invalid != nil:
			metrics.RecordCommand(method, metrics.OutcomeError, elapsed)
			return nil, domain.NewDomainError("Client.Call", domain.ErrInvalidInput,
				fmt.Sprintf("decode %s reply: %v", method, r.invalid))
		case r.remote != nil:
			metrics.RecordCommand(method, metrics.OutcomeRemote, elapsed)
			return nil, &domain.RemoteError{Method: method, Code: r.remote.Code, Message: r.remote.Message}
		}
		metrics.RecordCommand(method, metrics.OutcomeOK, elapsed)
		return r.result, nil

	case <-ctx.Done():
		c.forget(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			metrics.RecordCommand(method, metrics.OutcomeTimeout, time.Since(start))
			c.logger.Warn("command timed out", "id", id, "method", method)
			return nil, domain.NewDomainError("Client.Call", domain.ErrTimeout, method)
		}
		metrics.RecordCommand(method, metrics.OutcomeError, time.Since(start))
		return nil, fmt.Errorf("%s: %w", method, ctx.Err())
	}
}

// Execute is Call followed by decoding the result into res. A nil res
// discards the result.
func (c *Client) Execute(ctx context.Context, method string, params, res any) error {
	raw, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if res == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, res, lenient); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// NetworkEntries returns a snapshot of the network log.
func (c *Client) NetworkEntries() []domain.NetworkEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.network.Entries()
}

// PageEvents returns a snapshot of the page log.
func (c *Client) PageEvents() []domain.PageEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page.Events()
}

// ClearLogs empties both notification logs.
func (c *Client) ClearLogs() {
	c.mu.Lock()
	c.network.Reset()
	c.page.Reset()
	c.mu.Unlock()
}

// Done is closed once the reader goroutine has stopped.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the error that stopped the reader, or nil while it runs.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close closes the connection and waits for the reader to stop. Pending and
// later calls fail with domain.ErrConnectionClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
		<-c.done
	})
	return err
}
