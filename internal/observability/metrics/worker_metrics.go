package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	WorkerReasonDeadlineExceeded     = "deadline_exceeded"
	WorkerReasonDBLockTimeout        = "db_lock_timeout"
	WorkerReasonSerializationFailure = "serialization_failure"
	WorkerReasonUniqueViolation      = "unique_violation"
	WorkerReasonLockContention       = "lock_contention"
	WorkerReasonUnknown              = "unknown"
)

const (
	JobBillingReconcile = "billing_reconcile"
	JobBillingRetry     = "billing_retry"
	JobDedupeSweep      = "dedupe_sweep"
)

const (
	LockResourceAccount = "account"
)

// ErrLockContention is matched by the classifier; lockers wrap it when
// an account lock cannot be acquired in time.
var ErrLockContention = errors.New("lock contention")

// WorkerMetrics tracks background jobs and account lock contention.
type WorkerMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobErrors      *prometheus.CounterVec
	batchProcessed *prometheus.CounterVec
	lockWait       *prometheus.HistogramVec
	queueDepth     *prometheus.GaugeVec

	accountLockWait prometheus.Observer
}

var (
	workerMetricsOnce sync.Once
	workerMetrics     *WorkerMetrics
)

// Worker returns the process-wide worker metrics.
func Worker() *WorkerMetrics {
	return WorkerWithConfig(Config{})
}

// WorkerWithConfig returns the process-wide worker metrics labelled from cfg.
func WorkerWithConfig(cfg Config) *WorkerMetrics {
	workerMetricsOnce.Do(func() {
		workerMetrics = newWorkerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return workerMetrics
}

// ResetWorkerMetricsForTest resets the worker metrics singleton for tests.
func ResetWorkerMetricsForTest() {
	workerMetricsOnce = sync.Once{}
	workerMetrics = nil
}

func newWorkerMetrics(registerer prometheus.Registerer, cfg Config) *WorkerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := constLabelsFor(cfg)

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "tokenledger_worker_job_runs_total",
		Help:        "Background job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "tokenledger_worker_job_duration_seconds",
		Help:        "Background job latency.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "tokenledger_worker_job_errors_total",
		Help:        "Background job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	batchProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "tokenledger_worker_batch_processed_total",
		Help:        "Items processed by background jobs.",
		ConstLabels: constLabels,
	}, []string{"job"})
	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "tokenledger_lock_wait_seconds",
		Help:        "Time spent waiting for a serialization lock.",
		Buckets:     []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	}, []string{"resource"})
	queueDepth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "tokenledger_worker_queue_depth",
		Help:        "Pending items in in-process work queues.",
		ConstLabels: constLabels,
	}, []string{"job"})

	jobRuns, _ = registerOrReuse(registerer, jobRuns)
	jobDuration, _ = registerOrReuse(registerer, jobDuration)
	jobErrors, _ = registerOrReuse(registerer, jobErrors)
	batchProcessed, _ = registerOrReuse(registerer, batchProcessed)
	lockWait, _ = registerOrReuse(registerer, lockWait)
	queueDepth, _ = registerOrReuse(registerer, queueDepth)

	return &WorkerMetrics{
		jobRuns:         jobRuns,
		jobDuration:     jobDuration,
		jobErrors:       jobErrors,
		batchProcessed:  batchProcessed,
		lockWait:        lockWait,
		queueDepth:      queueDepth,
		accountLockWait: lockWait.WithLabelValues(LockResourceAccount),
	}
}

// IncJobRun increments the run counter for a job.
func (m *WorkerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records job latency in seconds.
func (m *WorkerMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncJobError increments the job error counter with classification.
func (m *WorkerMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyWorkerReason(err)).Inc()
}

func (m *WorkerMetrics) AddBatchProcessed(job string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.batchProcessed.WithLabelValues(job).Add(float64(count))
}

func (m *WorkerMetrics) SetQueueDepth(job string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(job).Set(float64(depth))
}

// ObserveLockWait records how long a caller waited for a lock.
func (m *WorkerMetrics) ObserveLockWait(resource string, duration time.Duration) {
	if m == nil {
		return
	}
	if resource == LockResourceAccount {
		m.accountLockWait.Observe(duration.Seconds())
		return
	}
	m.lockWait.WithLabelValues(resource).Observe(duration.Seconds())
}

// ClassifyWorkerReason maps job errors to low-cardinality reasons.
func ClassifyWorkerReason(err error) string {
	if err == nil {
		return WorkerReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return WorkerReasonDeadlineExceeded
	}
	if errors.Is(err, ErrLockContention) {
		return WorkerReasonLockContention
	}
	if hasPGCode(err, "55P03") {
		return WorkerReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return WorkerReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return WorkerReasonUniqueViolation
	}
	return WorkerReasonUnknown
}

// IsRetryable reports whether a failed write is worth retrying.
func IsRetryable(err error) bool {
	switch ClassifyWorkerReason(err) {
	case WorkerReasonUniqueViolation:
		return false
	case WorkerReasonUnknown:
		var pgErr *pgconn.PgError
		return !errors.As(err, &pgErr) && !errors.Is(err, gorm.ErrRecordNotFound)
	default:
		return true
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
