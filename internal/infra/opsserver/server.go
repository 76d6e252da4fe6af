// Package opsserver serves the operational endpoints: Prometheus metrics
// and a health check.
package opsserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-json-experiment/json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"devtools-bridge/internal/infra/middleware"
)

const shutdownTimeout = 5 * time.Second

// HealthFunc reports readiness. A nil error means healthy; details are
// included in the response either way.
type HealthFunc func(ctx context.Context) (map[string]any, error)

type healthBody struct {
	Status  string         `json:"status"`
	Error   string         `json:"error,omitzero"`
	Details map[string]any `json:"details,omitzero"`
}

// NewHandler builds the ops router. health may be nil.
func NewHandler(gatherer prometheus.Gatherer, health HealthFunc, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.AccessLog(logger))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		body := healthBody{Status: "ok"}
		code := http.StatusOK
		if health != nil {
			details, err := health(req.Context())
			body.Details = details
			if err != nil {
				body.Status = "unhealthy"
				body.Error = err.Error()
				code = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.MarshalWrite(w, body); err != nil {
			logger.Warn("write health response", "error", err)
		}
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

// Serve listens on addr until ctx is canceled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ServeListener(ctx, ln, h, logger)
}

// ServeListener is Serve on an existing listener.
func ServeListener(ctx context.Context, ln net.Listener, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.Info("ops server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
