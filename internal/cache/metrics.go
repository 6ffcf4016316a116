package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiver_cache_hits_total",
		Help: "Total number of encode cache hits",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiver_cache_misses_total",
		Help: "Total number of encode cache misses",
	})
	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiver_cache_evictions_total",
		Help: "Total number of entries evicted from the encode cache",
	})
)
