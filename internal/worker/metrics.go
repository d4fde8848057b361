package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var followUpsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "quote_sentinel_follow_ups_total",
		Help: "Supplier follow-ups taken off the queue, by outcome",
	},
	[]string{"outcome"},
)
