// Package metrics provides Prometheus metrics for the Fern action service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsTotal tracks dispatched turns by intent and outcome
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "dispatch",
			Name:      "turns_total",
			Help:      "Total number of dispatched turns by intent and outcome",
		},
		[]string{"intent", "outcome"},
	)

	// TurnDuration tracks full turn duration in seconds
	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "dispatch",
			Name:      "turn_duration_seconds",
			Help:      "Duration of a full turn in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"intent"},
	)

	// GenerativeCallsTotal tracks generative fallback invocations by verdict
	GenerativeCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "generative",
			Name:      "calls_total",
			Help:      "Total number of generative invocations by safety verdict",
		},
		[]string{"verdict", "category"},
	)

	// CancellationsTotal tracks cancellation attempts by result
	CancellationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "lifecycle",
			Name:      "cancellations_total",
			Help:      "Total number of order cancellation attempts by result",
		},
		[]string{"result"},
	)

	// BackendRequestsTotal tracks outbound commerce backend requests
	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Total number of commerce backend requests",
		},
		[]string{"operation", "status_code"},
	)

	// BackendRequestDuration tracks commerce backend request duration
	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Duration of commerce backend requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	// IdentityResolutionsTotal tracks identity resolutions by winning source
	IdentityResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "identity",
			Name:      "resolutions_total",
			Help:      "Total number of identity resolutions by evidence source",
		},
		[]string{"source"},
	)
)
