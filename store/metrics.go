package store

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	flushDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "store_flush_duration_seconds",
			Help:    "Time spent persisting a record store to disk",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	flushErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "store_flush_errors_total",
			Help: "Record store flushes that failed and were rolled back",
		},
	)
)

// Collectors exposes the package metrics so the monitoring service can
// register them on its registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{flushDurationSeconds, flushErrorsTotal}
}
