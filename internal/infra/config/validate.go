package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateBridge(cfg, ve)
	validateDiscovery(cfg, ve)
	validateLauncher(cfg, ve)
	validateArchive(cfg, ve)
	validateMetrics(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateBridge(cfg *Config, ve *ValidationError) {
	b := cfg.Bridge
	if b.Endpoint != "" {
		u, err := url.Parse(b.Endpoint)
		switch {
		case err != nil:
			ve.Add("bridge.endpoint: %v", err)
		case u.Scheme != "ws" && u.Scheme != "wss":
			ve.Add("bridge.endpoint %q must use ws:// or wss://", b.Endpoint)
		case u.Host == "":
			ve.Add("bridge.endpoint %q has no host", b.Endpoint)
		}
	}
	if b.CommandTimeout <= 0 {
		ve.Add("bridge.command_timeout must be > 0")
	}
	if b.HandshakeTimeout <= 0 {
		ve.Add("bridge.handshake_timeout must be > 0")
	}
	if b.MaxFrameSize <= 0 {
		ve.Add("bridge.max_frame_size must be > 0")
	}
	if b.KeyInterval < 0 {
		ve.Add("bridge.key_interval must be >= 0")
	}
	for name, v := range b.ExtraHeaders {
		if strings.TrimSpace(name) == "" {
			ve.Add("bridge.extra_headers: header name must not be empty")
		}
		if strings.HasPrefix(v, encPrefix) {
			ve.Add("bridge.extra_headers[%s] is still encrypted (set %sCONFIG_KEY)", name, envPrefix)
		}
		if strings.ContainsAny(v, "\r\n") {
			ve.Add("bridge.extra_headers[%s] must not contain line breaks", name)
		}
	}
}

func validateDiscovery(cfg *Config, ve *ValidationError) {
	d := cfg.Discovery
	if cfg.Bridge.Endpoint == "" && d.URL == "" {
		ve.Add("discovery.url is required when bridge.endpoint is empty")
	}
	if d.URL != "" {
		u, err := url.Parse(d.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			ve.Add("discovery.url %q must be an http(s) URL", d.URL)
		}
	}
	if d.Timeout <= 0 {
		ve.Add("discovery.timeout must be > 0")
	}
	if cb := d.CircuitBreaker; cb.Enabled {
		if cb.MaxFailures == 0 {
			ve.Add("discovery.circuit_breaker.max_failures must be > 0 when enabled")
		}
		if cb.Timeout <= 0 {
			ve.Add("discovery.circuit_breaker.timeout must be > 0 when enabled")
		}
	}
}

func validateLauncher(cfg *Config, ve *ValidationError) {
	l := cfg.Launcher
	if l.Port < 1 || l.Port > 65535 {
		ve.Add("launcher.port %d is out of range", l.Port)
	}
	if l.StartTimeout <= 0 {
		ve.Add("launcher.start_timeout must be > 0")
	}
}

func validateArchive(cfg *Config, ve *ValidationError) {
	if cfg.Archive.Enabled && cfg.Archive.Path == "" {
		ve.Add("archive.path is required when archive is enabled")
	}
}

func validateMetrics(cfg *Config, ve *ValidationError) {
	if cfg.Metrics.Addr == "" {
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Metrics.Addr); err != nil {
		ve.Add("metrics.addr %q is invalid: %v", cfg.Metrics.Addr, err)
	}
}

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if !validLogFormats[strings.ToLower(cfg.Logger.Format)] {
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

var validExporters = map[string]bool{
	"":       true,
	"noop":   true,
	"stdout": true,
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
}
