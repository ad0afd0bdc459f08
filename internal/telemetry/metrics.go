// Package telemetry exposes Prometheus metrics and OpenTelemetry tracing for
// sitewatch. Metrics follow Prometheus convention: a sitewatch_ prefix,
// _total for counters, _seconds for duration histograms and gauges.
// Generalized from the teacher's internal/metrics/metrics.go
// (RunsTotal/RunDurationSeconds/ScheduleLagSeconds) onto probe/check/
// downtime/session concerns.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ChecksTotal counts completed checks by target and outcome.
	ChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitewatch_checks_total",
			Help: "Total number of checks performed, by target and outcome.",
		},
		[]string{"target", "outcome"},
	)

	// CheckDurationSeconds is a histogram of probe round-trip time.
	CheckDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitewatch_check_duration_seconds",
			Help:    "Duration of a single probe invocation in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"target"},
	)

	// ScheduleLagSeconds is the delay between a job's due time and when it
	// actually started running.
	ScheduleLagSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sitewatch_schedule_lag_seconds",
			Help: "Seconds between a target's scheduled check time and actual trigger.",
		},
		[]string{"target"},
	)

	// CircuitBreakerOpenTotal counts breaker open transitions by target.
	CircuitBreakerOpenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitewatch_circuit_breaker_open_total",
			Help: "Total number of times a target's circuit breaker opened.",
		},
		[]string{"target"},
	)

	// DowntimeWindowsOpenGauge is the current count of open downtime windows.
	DowntimeWindowsOpenGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sitewatch_downtime_windows_open",
			Help: "Number of downtime windows currently open.",
		},
	)

	// DebugSessionsActiveGauge is the current count of active debug sessions.
	DebugSessionsActiveGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sitewatch_debug_sessions_active",
			Help: "Number of debug sessions currently active.",
		},
	)

	// NetworkEventsCapturedTotal counts captured network events by resource type.
	NetworkEventsCapturedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitewatch_network_events_captured_total",
			Help: "Total network events captured across debug sessions.",
		},
		[]string{"resource_type"},
	)
)

func init() {
	prometheus.MustRegister(
		ChecksTotal,
		CheckDurationSeconds,
		ScheduleLagSeconds,
		CircuitBreakerOpenTotal,
		DowntimeWindowsOpenGauge,
		DebugSessionsActiveGauge,
		NetworkEventsCapturedTotal,
	)
}

// RecordCheck records a single completed check.
func RecordCheck(target, outcome string, duration time.Duration) {
	ChecksTotal.WithLabelValues(target, outcome).Inc()
	CheckDurationSeconds.WithLabelValues(target).Observe(duration.Seconds())
}

// RecordScheduleLag records the scheduling delay observed for a target.
func RecordScheduleLag(target string, lag time.Duration) {
	ScheduleLagSeconds.WithLabelValues(target).Set(lag.Seconds())
}

// RecordCircuitBreakerOpen records a single breaker-open transition.
func RecordCircuitBreakerOpen(target string) {
	CircuitBreakerOpenTotal.WithLabelValues(target).Inc()
}

// RecordNetworkEvent records a single captured network event.
func RecordNetworkEvent(resourceType string) {
	NetworkEventsCapturedTotal.WithLabelValues(resourceType).Inc()
}
