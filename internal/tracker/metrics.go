package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stepTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_sentinel_step_transitions_total",
			Help: "Step status updates applied, by status",
		},
		[]string{"status"},
	)

	phaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quote_sentinel_phase_duration_seconds",
			Help:    "Duration of finished pipeline steps by phase",
			Buckets: []float64{10, 60, 300, 600, 1800, 3600, 14400, 86400, 172800},
		},
		[]string{"phase"},
	)

	trackingErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_sentinel_tracking_errors_total",
			Help: "Tracker operations that failed and were swallowed",
		},
		[]string{"operation"},
	)
)
