package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	FilesDiscovered = prometheus.NewCounter(prometheus.CounterOpts{Name: "vg_files_discovered_total", Help: "Input files matched by the locator"})
	RetriesTotal    = prometheus.NewCounter(prometheus.CounterOpts{Name: "vg_request_retries_total", Help: "Backend requests retried after a transient failure"})
	JobsCompleted   = prometheus.NewCounter(prometheus.CounterOpts{Name: "vg_jobs_completed_total", Help: "Jobs that reached a verdict"})
	JobsFailed      = prometheus.NewCounter(prometheus.CounterOpts{Name: "vg_jobs_failed_total", Help: "Jobs that failed before a verdict"})
	JobsTimedOut    = prometheus.NewCounter(prometheus.CounterOpts{Name: "vg_jobs_timed_out_total", Help: "Jobs whose deadline expired while polling"})
	JobsCancelled   = prometheus.NewCounter(prometheus.CounterOpts{Name: "vg_jobs_cancelled_total", Help: "Jobs aborted by operator cancellation"})
	InFlightGauge   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "vg_jobs_inflight", Help: "Jobs currently being tracked"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			FilesDiscovered,
			RetriesTotal,
			JobsCompleted,
			JobsFailed,
			JobsTimedOut,
			JobsCancelled,
			InFlightGauge,
		)
	})
	return promhttp.Handler()
}
