// Package metrics exposes Prometheus metrics for the slurmdesk daemon.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Command channel
	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slurmdesk_remote_commands_total",
			Help: "Total number of commands run on the cluster",
		},
		[]string{"result"},
	)

	commandDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slurmdesk_remote_command_duration_seconds",
			Help:    "Remote command duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	connected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slurmdesk_connected",
			Help: "1 when the session is connected to the cluster",
		},
	)

	reconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slurmdesk_reconnects_total",
			Help: "Total automatic reconnections",
		},
	)

	// Sync
	syncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slurmdesk_sync_runs_total",
			Help: "Total synchronization runs",
		},
		[]string{"mode", "status"},
	)

	syncBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slurmdesk_sync_bytes_total",
			Help: "Total bytes transferred by synchronization",
		},
		[]string{"mode"},
	)

	syncFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slurmdesk_sync_files_total",
			Help: "Total files uploaded, downloaded or deleted by synchronization",
		},
		[]string{"mode"},
	)

	syncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slurmdesk_sync_duration_seconds",
			Help:    "Synchronization run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	// Jobs
	jobsSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slurmdesk_jobs_submitted_total",
			Help: "Total batch job submissions",
		},
		[]string{"status"},
	)

	jobsCancelledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slurmdesk_jobs_cancelled_total",
			Help: "Total jobs cancelled",
		},
	)

	jobsInQueue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slurmdesk_jobs_in_queue",
			Help: "Jobs of the user in the queue at the last refresh",
		},
		[]string{"status"},
	)

	freeGPUs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slurmdesk_free_gpus",
			Help: "Free GPU slots at the last refresh",
		},
	)

	// HTTP
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slurmdesk_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	httpPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slurmdesk_http_panics_total",
			Help: "Total number of handler panics recovered",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

func RecordCommand(duration time.Duration, err error) {
	commandsTotal.WithLabelValues(status(err == nil)).Inc()
	commandDuration.Observe(duration.Seconds())
}

func SetConnected(ok bool) {
	if ok {
		connected.Set(1)
	} else {
		connected.Set(0)
	}
}

func RecordReconnect() {
	reconnectsTotal.Inc()
}

// RecordSync records a finished synchronization run.
func RecordSync(mode string, files int, bytes int64, duration time.Duration, err error) {
	syncRunsTotal.WithLabelValues(mode, status(err == nil)).Inc()
	syncFilesTotal.WithLabelValues(mode).Add(float64(files))
	syncBytesTotal.WithLabelValues(mode).Add(float64(bytes))
	syncDuration.Observe(duration.Seconds())
}

func RecordSubmit(err error) {
	jobsSubmittedTotal.WithLabelValues(status(err == nil)).Inc()
}

func RecordCancel() {
	jobsCancelledTotal.Inc()
}

// SetQueue replaces the queue gauges with the given per-status counts.
func SetQueue(counts map[string]int) {
	jobsInQueue.Reset()
	for s, n := range counts {
		jobsInQueue.WithLabelValues(s).Set(float64(n))
	}
}

func SetFreeGPUs(n int) {
	freeGPUs.Set(float64(n))
}

func RecordHTTPRequest(method, path string, code int) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(code)).Inc()
}

func RecordPanic() {
	httpPanicsTotal.Inc()
}
