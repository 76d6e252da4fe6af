// Package bridge exposes WebDriver-style operations on top of a
// remote-debugging command channel. Element lookups and actions run through
// a capability library injected into the page; everything else maps onto
// page, network and runtime commands.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-json-experiment/json/jsontext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"devtools-bridge/internal/domain"
	"devtools-bridge/internal/infra/tracer"
)

// DefaultKeyInterval is the pause SetValue takes per typed character.
const DefaultKeyInterval = 20 * time.Millisecond

// Commander issues protocol commands and exposes the notification logs.
// *devtools.Client implements it.
type Commander interface {
	Call(ctx context.Context, method string, params any) (jsontext.Value, error)
	NetworkEntries() []domain.NetworkEntry
	PageEvents() []domain.PageEvent
	ClearLogs()
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithKeyInterval sets the per-character pause used by SetValue. Zero or
// less disables pacing.
func WithKeyInterval(d time.Duration) Option {
	return func(s *Session) { s.keyInterval = d }
}

// WithCapability replaces the built-in capability library. The source must
// define window.__devtoolsBridge with the same functions.
func WithCapability(src string) Option {
	return func(s *Session) {
		if src != "" {
			s.capability = src
		}
	}
}

// Session drives one remote page. Methods are safe for concurrent use;
// operations that replace or extend the element table are serialized.
type Session struct {
	cmd         Commander
	logger      *slog.Logger
	capability  string
	keyInterval time.Duration
	keys        *rate.Limiter

	registry Registry
	// mu serializes operations that change the remote element table.
	mu sync.Mutex
}

// NewSession returns a Session issuing commands through cmd.
func NewSession(cmd Commander, opts ...Option) *Session {
	s := &Session{
		cmd:         cmd,
		logger:      slog.New(slog.DiscardHandler),
		capability:  defaultCapability,
		keyInterval: DefaultKeyInterval,
	}
	for _, o := range opts {
		o(s)
	}
	if s.keyInterval > 0 {
		s.keys = rate.NewLimiter(rate.Every(s.keyInterval), 1)
	} else {
		s.keys = rate.NewLimiter(rate.Inf, 1)
	}
	return s
}

func (s *Session) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.StartSpan(ctx, "bridge."+op, trace.WithAttributes(attrs...))
}

// ensureLibrary injects the capability library when the page lacks it.
// It reports whether an injection happened.
func (s *Session) ensureLibrary(ctx context.Context) (bool, error) {
	v, err := s.evaluate(ctx, missingLibraryExpression())
	if err != nil {
		return false, err
	}
	missing, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("library check: expected a boolean, page returned %T %v", v, v)
	}
	if !missing {
		return false, nil
	}
	if _, err := s.evaluate(ctx, s.capability); err != nil {
		return false, err
	}
	s.logger.Debug("capability library injected")
	return true, nil
}

// NetworkTraffic returns a snapshot of the requests seen since the last
// navigation.
func (s *Session) NetworkTraffic() []domain.NetworkEntry {
	return s.cmd.NetworkEntries()
}

// PageEvents returns a snapshot of the page lifecycle notifications seen
// since the last navigation.
func (s *Session) PageEvents() []domain.PageEvent {
	return s.cmd.PageEvents()
}

// Registry exposes the element registry, mainly for inspection.
func (s *Session) Registry() *Registry { return &s.registry }
