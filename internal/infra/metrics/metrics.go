// Package metrics holds the Prometheus collectors for the bridge. Collectors
// are package-level and safe to update before Register is called.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "devtools_bridge_build_info",
			Help: "Build information",
		},
		[]string{"version"},
	)

	commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devtools_bridge_commands_total",
			Help: "Protocol commands issued, by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devtools_bridge_command_duration_seconds",
			Help:    "Time from sending a command to receiving its reply",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devtools_bridge_notifications_total",
			Help: "Unsolicited notifications received, by protocol domain",
		},
		[]string{"domain"},
	)

	lateReplies = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "devtools_bridge_late_replies_total",
			Help: "Replies discarded because no caller was waiting",
		},
	)

	malformed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "devtools_bridge_malformed_messages_total",
			Help: "Inbound messages that could not be decoded",
		},
	)

	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devtools_bridge_frames_total",
			Help: "WebSocket frames by direction and opcode",
		},
		[]string{"direction", "opcode"},
	)
)

// Outcome labels for RecordCommand.
const (
	OutcomeOK      = "ok"
	OutcomeRemote  = "remote_error"
	OutcomeTimeout = "timeout"
	OutcomeClosed  = "closed"
	OutcomeError   = "error"
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, commands, commandDuration, notifications, lateReplies, malformed, frames)
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version string) {
	buildInfo.WithLabelValues(version).Set(1)
}

// RecordCommand counts a finished command and, for answered commands,
// observes its round-trip latency.
func RecordCommand(method, outcome string, d time.Duration) {
	commands.WithLabelValues(method, outcome).Inc()
	if outcome == OutcomeOK || outcome == OutcomeRemote {
		commandDuration.WithLabelValues(method).Observe(d.Seconds())
	}
}

// RecordNotification counts one notification for the given protocol domain.
func RecordNotification(domain string) {
	notifications.WithLabelValues(domain).Inc()
}

// RecordLateReply counts a reply that arrived after its caller gave up.
func RecordLateReply() { lateReplies.Inc() }

// RecordMalformed counts an undecodable inbound message.
func RecordMalformed() { malformed.Inc() }

// RecordFrame counts one frame. direction is "in" or "out".
func RecordFrame(direction, opcode string) {
	frames.WithLabelValues(direction, opcode).Inc()
}
