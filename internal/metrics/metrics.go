// Package metrics provides Prometheus metrics for contextpack.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Loader metrics
	fileReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contextpack_file_reads_total",
			Help: "Total number of background file reads",
		},
		[]string{"status"},
	)

	fileReadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contextpack_file_read_bytes_total",
			Help: "Total bytes read by the background loader",
		},
	)

	batchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "contextpack_batch_duration_seconds",
			Help:    "Time to complete a batch read",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Selection metrics
	selectedFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "contextpack_selected_files",
			Help: "Number of entries in the selection store",
		},
	)

	droppedResults = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contextpack_dropped_results_total",
			Help: "Read results discarded because the path was deselected in flight",
		},
	)

	// Detection metrics
	reconcileRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contextpack_reconcile_runs_total",
			Help: "Total number of prompt reconciliation passes",
		},
	)

	autoSelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contextpack_auto_selections_total",
			Help: "Files auto-selected or auto-deselected by prompt detection",
		},
		[]string{"action"},
	)

	// Staleness metrics
	staleFlagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contextpack_stale_flagged_total",
			Help: "Entries flagged stale by the staleness monitor",
		},
	)

	// Remote service metrics
	remoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contextpack_remote_requests_total",
			Help: "Requests to the summarize and generate-prompt services",
		},
		[]string{"endpoint", "status"},
	)

	// Event bus metrics
	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contextpack_events_published_total",
			Help: "Session events published to subscribers",
		},
		[]string{"kind"},
	)

	eventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "contextpack_event_subscribers",
			Help: "Number of active session event subscribers",
		},
	)
)

// RecordFileRead records one background read.
func RecordFileRead(ok bool, bytes int) {
	if ok {
		fileReadsTotal.WithLabelValues("ok").Inc()
		fileReadBytes.Add(float64(bytes))
		return
	}
	fileReadsTotal.WithLabelValues("error").Inc()
}

// ObserveBatch records the duration of a completed batch.
func ObserveBatch(d time.Duration) {
	batchDuration.Observe(d.Seconds())
}

// SetSelectedFiles sets the current selection size.
func SetSelectedFiles(n int) {
	selectedFiles.Set(float64(n))
}

// RecordDroppedResult counts a read result that arrived for a deselected path.
func RecordDroppedResult() {
	droppedResults.Inc()
}

// RecordReconcile records a reconcile pass and its mutations.
func RecordReconcile(added, removed int) {
	reconcileRuns.Inc()
	autoSelections.WithLabelValues("select").Add(float64(added))
	autoSelections.WithLabelValues("deselect").Add(float64(removed))
}

// RecordStale counts entries newly flagged stale.
func RecordStale(n int) {
	staleFlagged.Add(float64(n))
}

// RecordRemote records a remote service call outcome.
func RecordRemote(endpoint string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	remoteRequests.WithLabelValues(endpoint, status).Inc()
}

// RecordEvent counts a published session event.
func RecordEvent(kind string) {
	eventsPublished.WithLabelValues(kind).Inc()
}

// SetEventSubscribers sets the number of active event subscribers.
func SetEventSubscribers(n int) {
	eventSubscribers.Set(float64(n))
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
