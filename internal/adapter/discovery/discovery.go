// Package discovery lists the debuggable targets a remote-debugging host
// advertises on its HTTP endpoint.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/sony/gobreaker/v2"

	"devtools-bridge/internal/domain"
	"devtools-bridge/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 3
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// maxListSize bounds the target list body.
const maxListSize = 4 << 20

// Client queries <url>/json.
type Client struct {
	base    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]domain.Target]
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a Client for cfg.URL. With cfg.CircuitBreaker.Enabled,
// consecutive failures open a breaker that fails fast until its timeout.
func New(cfg config.DiscoveryConfig, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimSuffix(cfg.URL, "/"),
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(c)
	}
	if cfg.CircuitBreaker.Enabled {
		c.breaker = newBreaker(c.base, cfg.CircuitBreaker, c.logger)
	}
	return c
}

func newBreaker(name string, cfg config.CircuitBreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[[]domain.Target] {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	return gobreaker.NewCircuitBreaker[[]domain.Target](gobreaker.Settings{
		Name:        "discovery:" + name,
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// A canceled caller says nothing about the host.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// Targets returns every target the host advertises.
func (c *Client) Targets(ctx context.Context) ([]domain.Target, error) {
	if c.breaker == nil {
		return c.fetch(ctx)
	}
	targets, err := c.breaker.Execute(func() ([]domain.Target, error) {
		return c.fetch(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("discovery %q circuit open: %w", c.base, err)
	}
	return targets, err
}

// PageEndpoint returns the WebSocket URL of the first page target that
// accepts a debugger connection.
func (c *Client) PageEndpoint(ctx context.Context) (string, error) {
	targets, err := c.Targets(ctx)
	if err != nil {
		return "", err
	}
	for _, t := range targets {
		if t.Type == "page" && t.WebSocketDebuggerURL != "" {
			c.logger.Debug("target selected", "id", t.ID, "url", t.URL)
			return t.WebSocketDebuggerURL, nil
		}
	}
	return "", domain.NewDomainError("discovery.PageEndpoint", domain.ErrNotFound,
		fmt.Sprintf("no attachable page among %d targets at %s", len(targets), c.base))
}

// State returns the breaker state, or StateClosed without a breaker.
func (c *Client) State() gobreaker.State {
	if c.breaker == nil {
		return gobreaker.StateClosed
	}
	return c.breaker.State()
}

func (c *Client) fetch(ctx context.Context) ([]domain.Target, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/json", nil)
	if err != nil {
		return nil, domain.NewDomainError("discovery.Targets", domain.ErrInvalidInput, err.Error())
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListSize))
	if err != nil {
		return nil, fmt.Errorf("discovery: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery: %s returned %s", req.URL, resp.Status)
	}

	var targets []domain.Target
	if err := json.Unmarshal(body, &targets); err != nil {
		return nil, fmt.Errorf("discovery: decode target list: %w", err)
	}
	return targets, nil
}
