// Prometheus instrumentation.
package trove

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricOps = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trove_store_op_duration_seconds",
			Help:    "Duration of store operations by operation and result.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"op", "result"},
	)
	metricCompact = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trove_file_compact_duration_seconds",
			Help:    "Duration of file store compactions.",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
		},
	)
	metricRepairs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trove_file_repairs_total",
			Help: "Number of file stores truncated during repair on open.",
		},
	)
)

// observe records the duration of op since start. err == nil counts as ok.
func observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metricOps.WithLabelValues(op, result).Observe(float64(time.Since(start)) / float64(time.Second))
}
