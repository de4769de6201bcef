package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	syncJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contactsync_jobs_total",
			Help: "Total number of contact sync jobs finished, by outcome",
		},
		[]string{"provider", "outcome"},
	)

	syncJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contactsync_job_duration_seconds",
			Help:    "Duration of contact sync job attempts in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"provider"},
	)

	syncRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contactsync_records_total",
			Help: "Total number of source records reconciled, by result",
		},
		[]string{"provider", "result"},
	)

	batchWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contactsync_batch_writes_total",
			Help: "Total number of contact bulk upserts",
		},
		[]string{"status"},
	)

	jobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contactsync_jobs_enqueued_total",
			Help: "Total number of contact sync jobs enqueued",
		},
		[]string{"provider", "trigger"},
	)

	jobsPruned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contactsync_jobs_pruned_total",
			Help: "Total number of finished jobs removed by retention",
		},
		[]string{"status"},
	)

	activeJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "contactsync_active_jobs",
			Help: "Number of contact sync jobs currently running in this process",
		},
	)
)

// Outcome labels for RecordJob.
const (
	OutcomeCompleted = "completed"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
	OutcomeDeferred  = "deferred"
)

func RecordJob(provider, outcome string, duration time.Duration) {
	syncJobsTotal.WithLabelValues(provider, outcome).Inc()
	syncJobDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordSyncResult(provider string, imported, updated, skipped int) {
	syncRecordsTotal.WithLabelValues(provider, "imported").Add(float64(imported))
	syncRecordsTotal.WithLabelValues(provider, "updated").Add(float64(updated))
	syncRecordsTotal.WithLabelValues(provider, "skipped").Add(float64(skipped))
}

func RecordBatchWrite(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	batchWritesTotal.WithLabelValues(status).Inc()
}

func RecordEnqueue(provider, trigger string) {
	jobsEnqueued.WithLabelValues(provider, trigger).Inc()
}

func RecordPruned(status string, n int64) {
	jobsPruned.WithLabelValues(status).Add(float64(n))
}

func JobStarted() {
	activeJobs.Inc()
}

func JobFinished() {
	activeJobs.Dec()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
