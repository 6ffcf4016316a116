package pixels

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pixelsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quiver_pixels_decoded_total",
		Help: "Total number of pixel sources decoded into tensors",
	}, []string{"channels"})

	pixelsEncoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quiver_pixels_encoded_total",
		Help: "Total number of tensors encoded into RGBA pixels",
	}, []string{"dtype"})

	codecErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quiver_pixels_errors_total",
		Help: "Total number of failed codec calls by error kind",
	}, []string{"op", "kind"})

	codecDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quiver_pixels_duration_seconds",
		Help:    "Time spent in codec calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)
