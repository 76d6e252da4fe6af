package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"devtools-bridge/internal/adapter/devtools"
	"devtools-bridge/internal/adapter/discovery"
	"devtools-bridge/internal/adapter/store"
	"devtools-bridge/internal/adapter/transport"
	"devtools-bridge/internal/infra/config"
	"devtools-bridge/internal/infra/logger"
	"devtools-bridge/internal/infra/metrics"
	"devtools-bridge/internal/infra/opsserver"
	"devtools-bridge/internal/infra/tracer"
	"devtools-bridge/internal/usecase/bridge"
)

// app carries what every subcommand needs once config is loaded.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	closers  []func(context.Context) error
	opsDone  chan error
}

func setup(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if opts.logLevel != "" {
		cfg.Logger.Level = opts.logLevel
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &app{cfg: cfg, logger: log}
	a.closers = append(a.closers, func(context.Context) error { return closeLog() })

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.closers = append(a.closers, shutdownTracer)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.Register(a.registry)
	metrics.SetBuildInfo(version)
	return a, nil
}

// serveOps starts the ops listener when an address is configured.
func (a *app) serveOps(ctx context.Context, health opsserver.HealthFunc) {
	if a.cfg.Metrics.Addr == "" {
		return
	}
	h := opsserver.NewHandler(a.registry, health, logger.Component(a.logger, "ops"))
	ctx, cancel := context.WithCancel(ctx)
	a.opsDone = make(chan error, 1)
	go func() { a.opsDone <- opsserver.Serve(ctx, a.cfg.Metrics.Addr, h, a.logger) }()
	a.closers = append(a.closers, func(context.Context) error {
		cancel()
		return <-a.opsDone
	})
}

// close runs the closers in reverse order.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// dialer connects the transport, handshakes and starts a protocol client.
func (a *app) dialer() bridge.Dialer {
	b := a.cfg.Bridge
	wsLog := logger.Component(a.logger, "transport")
	cdpLog := logger.Component(a.logger, "devtools")
	return func(ctx context.Context, endpoint string) (bridge.Conn, error) {
		conn, err := transport.Dial(ctx, endpoint,
			transport.WithHandshakeTimeout(b.HandshakeTimeout),
			transport.WithMaxPayload(b.MaxFrameSize),
			transport.WithLogger(wsLog),
		)
		if err != nil {
			return nil, err
		}
		return devtools.NewClient(conn,
			devtools.WithCommandTimeout(b.CommandTimeout),
			devtools.WithLogger(cdpLog),
		), nil
	}
}

// sessionOptions maps bridge config onto session options.
func (a *app) sessionOptions() ([]bridge.Option, error) {
	src, err := a.cfg.Bridge.ReadCapabilityScript()
	if err != nil {
		return nil, err
	}
	return []bridge.Option{
		bridge.WithKeyInterval(a.cfg.Bridge.KeyInterval),
		bridge.WithCapability(src),
	}, nil
}

// endpoint picks the debugger URL: the flag, then bridge.endpoint, then
// the first page discovery reports.
func (a *app) endpoint(ctx context.Context, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if a.cfg.Bridge.Endpoint != "" {
		return a.cfg.Bridge.Endpoint, nil
	}
	return a.discovery().PageEndpoint(ctx)
}

func (a *app) discovery() *discovery.Client {
	return discovery.New(a.cfg.Discovery, discovery.WithLogger(logger.Component(a.logger, "discovery")))
}

// openArchive opens the traffic store and registers it for closing.
func (a *app) openArchive() (*store.TrafficStore, error) {
	s, err := store.Open(a.cfg.Archive.Path)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return s.Close() })
	return s, nil
}
