package device

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	poolHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiver_pool_hits_total",
		Help: "Total number of tensors served from the pool",
	})

	poolMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiver_pool_misses_total",
		Help: "Total number of pool misses (allocations)",
	})

	tensorsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quiver_tensors_live",
		Help: "Current number of tensors not yet released",
	})

	tensorBytesLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quiver_tensor_bytes_live",
		Help: "Current size of unreleased tensor storage in bytes",
	})
)
