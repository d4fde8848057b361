package alerting

import (
	"time"

	"quote-sentinel/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	alertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_sentinel_alerts_raised_total",
			Help: "Alerts raised by type and severity",
		},
		[]string{"type", "severity"},
	)

	alertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_sentinel_alerts_suppressed_total",
			Help: "Workflow alerts dropped because the workflow already carried one of the same kind",
		},
		[]string{"type"},
	)

	sweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quote_sentinel_sweep_duration_seconds",
			Help:    "Duration of monitoring sweeps",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sweep"},
	)
)

func RecordAlert(alert *domain.Alert) {
	alertsRaised.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()
}

func recordSuppressed(alert *domain.Alert) {
	alertsSuppressed.WithLabelValues(string(alert.Type)).Inc()
}

func recordSweep(name string, started time.Time) {
	sweepDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())
}
