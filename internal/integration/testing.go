package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"devtools-bridge/internal/adapter/devtools"
	"devtools-bridge/internal/adapter/transport"
	"devtools-bridge/internal/usecase/bridge"
)

// Config holds integration test configuration from environment
type Config struct {
	Endpoint     string
	DiscoveryURL string
	PageURL      string
	Launch       bool
	TestTimeout  time.Duration
	SkipSlow     bool
}

// LoadConfig loads integration test configuration from environment
func LoadConfig() *Config {
	pageURL := os.Getenv("DEVTOOLSBRIDGE_IT_PAGE_URL")
	if pageURL == "" {
		pageURL = "about:blank"
	}
	return &Config{
		Endpoint:     os.Getenv("DEVTOOLSBRIDGE_IT_ENDPOINT"),
		DiscoveryURL: os.Getenv("DEVTOOLSBRIDGE_IT_DISCOVERY_URL"),
		PageURL:      pageURL,
		Launch:       os.Getenv("DEVTOOLSBRIDGE_IT_LAUNCH") == "1",
		TestTimeout:  60 * time.Second,
		SkipSlow:     os.Getenv("SKIP_SLOW_TESTS") == "1",
	}
}

// SkipIfNoBrowser skips the test unless a debuggable browser is reachable
// through an endpoint or a discovery URL.
func SkipIfNoBrowser(t *testing.T, cfg *Config) {
	t.Helper()
	if cfg.Endpoint == "" && cfg.DiscoveryURL == "" {
		t.Skip("Skipping live browser test: DEVTOOLSBRIDGE_IT_ENDPOINT and DEVTOOLSBRIDGE_IT_DISCOVERY_URL not set")
	}
}

// SkipIfShort skips integration tests in short mode
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestContext creates a context with timeout for integration tests
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// Dialer wires the real transport and protocol client the way the CLI does.
func Dialer(commandTimeout time.Duration) bridge.Dialer {
	return func(ctx context.Context, endpoint string) (bridge.Conn, error) {
		conn, err := transport.Dial(ctx, endpoint, transport.WithHandshakeTimeout(5*time.Second))
		if err != nil {
			return nil, err
		}
		return devtools.NewClient(conn, devtools.WithCommandTimeout(commandTimeout)), nil
	}
}
