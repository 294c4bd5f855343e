package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snaplist_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snaplist_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	GateDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snaplist_gate_decisions_total",
			Help: "Metered-request gate decisions by outcome.",
		},
		[]string{"action", "outcome"},
	)

	GenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snaplist_generations_total",
			Help: "Listing copy generations by status.",
		},
		[]string{"status"},
	)

	CreditsReconciledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snaplist_credits_reconciled_total",
			Help: "Total bonus credits granted by reconciliation.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		GateDecisionsTotal,
		GenerationsTotal,
		CreditsReconciledTotal,
	)
}
