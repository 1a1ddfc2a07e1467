package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Translation job counters, labeled by terminal outcome where it applies.
var (
	JobsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "doctrans_jobs_created_total",
		Help: "Number of translation jobs accepted for processing.",
	})

	JobsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doctrans_jobs_finished_total",
		Help: "Number of translation jobs that reached a terminal state.",
	}, []string{"status"})

	JobDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "doctrans_job_duration_seconds",
		Help:    "Wall time from dispatch to terminal state.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
)

// NewPrometheusMetricsHandler exposes the default registry over HTTP.
func NewPrometheusMetricsHandler() http.Handler {
	return promhttp.Handler()
}
