package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess  = "success"
	outcomeFailure  = "failure"
	outcomeRejected = "rejected"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_sentinel_breaker_requests_total",
			Help: "Guarded calls by service and outcome",
		},
		[]string{"service", "outcome"},
	)

	stateGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quote_sentinel_breaker_state",
			Help: "Breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"service"},
	)

	tripsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_sentinel_breaker_trips_total",
			Help: "Transitions into OPEN",
		},
		[]string{"service"},
	)

	degradationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_sentinel_breaker_degradations_total",
			Help: "Rejected calls answered by a degradation strategy",
		},
		[]string{"service"},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_sentinel_breaker_retries_total",
			Help: "Retries issued by ExecuteWithRetry",
		},
		[]string{"service"},
	)
)

func recordRequest(service, outcome string) {
	requestsTotal.WithLabelValues(service, outcome).Inc()
}

func recordState(service string, state State) {
	var v float64
	switch state {
	case StateHalfOpen:
		v = 1
	case StateOpen:
		v = 2
	}
	stateGauge.WithLabelValues(service).Set(v)
}

func recordTrip(service string) {
	tripsTotal.WithLabelValues(service).Inc()
}

func recordDegradation(service string) {
	degradationsTotal.WithLabelValues(service).Inc()
}

func recordRetry(service string) {
	retriesTotal.WithLabelValues(service).Inc()
}
