// Package launcher starts a local Chrome with remote debugging enabled so
// the bridge has a page to attach to.
package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"devtools-bridge/internal/infra/config"
)

// Browser is a running local browser with one open page.
type Browser struct {
	port     int
	targetID string
	logger   *slog.Logger

	closeOnce     sync.Once
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

// flags returns the command-line switches added to chromedp's defaults.
func flags(cfg config.LauncherConfig) map[string]any {
	return map[string]any{
		"headless":              cfg.Headless,
		"disable-gpu":           true,
		"no-sandbox":            true,
		"disable-dev-shm-usage": true,
		"remote-debugging-port": strconv.Itoa(cfg.Port),
	}
}

func allocatorOptions(cfg config.LauncherConfig) []chromedp.ExecAllocatorOption {
	// Copy default options to avoid mutating the package-level slice.
	opts := make([]chromedp.ExecAllocatorOption, len(chromedp.DefaultExecAllocatorOptions))
	copy(opts, chromedp.DefaultExecAllocatorOptions[:])
	for name, v := range flags(cfg) {
		opts = append(opts, chromedp.Flag(name, v))
	}
	opts = append(opts, chromedp.WindowSize(1280, 720))
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	return opts
}

// Launch starts the browser and waits until its first page is ready or
// cfg.StartTimeout passes.
func Launch(ctx context.Context, cfg config.LauncherConfig, logger *slog.Logger) (*Browser, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := &Browser{port: cfg.Port, logger: logger}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	b.allocCancel = allocCancel
	logger.Info("launching local browser", "headless", cfg.Headless, "port", cfg.Port)

	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Debug("chromedp: " + fmt.Sprintf(format, args...))
		}),
	)
	b.browserCancel = browserCancel

	// chromedp binds the browser to the context of the first Run, so the
	// timeout is applied around it rather than to it.
	startDone := make(chan error, 1)
	go func() { startDone <- chromedp.Run(browserCtx) }()
	select {
	case err := <-startDone:
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("start browser: %w", err)
		}
	case <-time.After(cfg.StartTimeout):
		b.Close()
		return nil, fmt.Errorf("start browser: timed out after %v", cfg.StartTimeout)
	case <-ctx.Done():
		b.Close()
		return nil, fmt.Errorf("start browser: %w", ctx.Err())
	}

	b.targetID = string(chromedp.FromContext(browserCtx).Target.TargetID)
	logger.Info("local browser started", "target", b.targetID)
	return b, nil
}

// DiscoveryURL is the HTTP root listing the browser's targets.
func (b *Browser) DiscoveryURL() string {
	return "http://127.0.0.1:" + strconv.Itoa(b.port)
}

// PageEndpoint is the WebSocket URL of the page opened at launch.
func (b *Browser) PageEndpoint() string {
	return pageEndpoint(b.port, b.targetID)
}

func pageEndpoint(port int, targetID string) string {
	return fmt.Sprintf("ws://127.0.0.1:%d/devtools/page/%s", port, targetID)
}

// Close terminates the browser.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		if b.browserCancel != nil {
			b.browserCancel()
		}
		if b.allocCancel != nil {
			b.allocCancel()
		}
		b.logger.Info("local browser closed")
	})
	return nil
}
