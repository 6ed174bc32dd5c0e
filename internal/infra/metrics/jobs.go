package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(jobsSubmittedTotal, jobsFinishedTotal, jobsDuplicateTotal, jobsRecoveredTotal, jobDurationMs, workerQueueRejected,
		claimConflictsTotal, streamChunksTotal)
}

var (
	jobsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_jobs_submitted_total",
			Help: "Generation jobs created, labeled by mode (background|deferred).",
		},
		[]string{"mode"},
	)

	jobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_jobs_finished_total",
			Help: "Generation jobs reaching a terminal state, labeled by status and path.",
		},
		[]string{"status", "path"}, // status: done|error, path: background|stream
	)

	jobsDuplicateTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "generation_jobs_duplicate_total",
			Help: "Submissions rejected by the dedup window.",
		},
	)

	jobsRecoveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_jobs_recovered_total",
			Help: "Jobs re-driven by the recovery sweeper, labeled by origin state.",
		},
		[]string{"from"}, // stale|orphaned
	)

	jobDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "generation_job_duration_ms",
			Help:    "Claim-to-terminal duration in milliseconds.",
			Buckets: []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 25000, 40000},
		},
		[]string{"status"},
	)

	claimConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "generation_claim_conflicts_total",
			Help: "Claim attempts that lost to another worker or found a finished job.",
		},
	)

	streamChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "generation_stream_chunks_total",
			Help: "Chunks forwarded to streaming clients.",
		},
	)

	workerQueueRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_queue_rejected_total",
			Help: "Tasks rejected because the worker queue was full.",
		},
	)
)

func IncJobSubmitted(mode string) { jobsSubmittedTotal.WithLabelValues(norm(mode)).Inc() }

func IncJobFinished(status, path string, durationMs int64) {
	jobsFinishedTotal.WithLabelValues(norm(status), norm(path)).Inc()
	jobDurationMs.WithLabelValues(norm(status)).Observe(float64(durationMs))
}

func IncJobDuplicate() { jobsDuplicateTotal.Inc() }

func IncJobRecovered(from string) { jobsRecoveredTotal.WithLabelValues(norm(from)).Inc() }

func IncQueueRejected() { workerQueueRejected.Inc() }

func IncClaimConflict() { claimConflictsTotal.Inc() }

func IncStreamChunk() { streamChunksTotal.Inc() }
