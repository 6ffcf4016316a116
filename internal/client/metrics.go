package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quiver_forward_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
	}, []string{"breaker"})

	forwardedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quiver_forward_records_total",
		Help: "Records forwarded to Longbow by result",
	}, []string{"result"})
)
