// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsTotal counts classified packets by verdict
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanguard_packets_total",
			Help: "Total number of packets classified, by verdict",
		},
		[]string{"verdict"},
	)

	// RuleMatchesTotal counts signature matches by rule name
	RuleMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanguard_rule_matches_total",
			Help: "Total number of packets matched by each scan signature",
		},
		[]string{"rule"},
	)

	// DecisionsTotal counts decisions by reason
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanguard_decisions_total",
			Help: "Total number of classification decisions, by reason",
		},
		[]string{"reason"},
	)

	// ExtractErrorsTotal counts packets accepted because their headers could not be extracted
	ExtractErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanguard_extract_errors_total",
			Help: "Total number of packets that failed header extraction",
		},
		[]string{"reason"},
	)

	// ClassifyLatencySeconds measures extraction plus classification time
	ClassifyLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scanguard_classify_latency_seconds",
			Help:    "Latency of packet classification in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0000001, 2, 16), // 100ns to ~3ms
		},
	)

	// HookRegistered is 1 while an interception hook is registered
	HookRegistered = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scanguard_hook_registered",
			Help: "Whether the interception hook is registered (1) or not (0)",
		},
		[]string{"mode"},
	)

	// HookErrorsTotal counts errors reported by the interception hook
	HookErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanguard_hook_errors_total",
			Help: "Total number of errors reported by the interception hook",
		},
		[]string{"mode"},
	)

	// ControlRequestsTotal counts control socket requests by method and
	// JSON-RPC error code (0 on success)
	ControlRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanguard_control_requests_total",
			Help: "Total number of control socket requests, by method and error code",
		},
		[]string{"method", "code"},
	)
)
