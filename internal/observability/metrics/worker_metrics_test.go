package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyWorkerReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: WorkerReasonDeadlineExceeded},
		{name: "lock_contention", err: fmt.Errorf("account u-1: %w", ErrLockContention), want: WorkerReasonLockContention},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: WorkerReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: WorkerReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: WorkerReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: WorkerReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyWorkerReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(gorm.ErrDuplicatedKey) {
		t.Fatalf("duplicate key must not be retried")
	}
	if !IsRetryable(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("serialization failure should be retried")
	}
	if !IsRetryable(errors.New("connection reset")) {
		t.Fatalf("transient errors should be retried")
	}
}

func TestWorkerMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newWorkerMetrics(registry, Config{ServiceName: "tokenledger", Environment: "test"})

	m.IncJobRun(JobBillingReconcile)
	m.IncJobRun(JobBillingReconcile)
	m.IncJobError(JobBillingReconcile, &pgconn.PgError{Code: "40001"})
	m.AddBatchProcessed(JobBillingReconcile, 3)
	m.ObserveLockWait(LockResourceAccount, 5*time.Millisecond)

	if got := testutil.ToFloat64(m.jobRuns.WithLabelValues(JobBillingReconcile)); got != 2 {
		t.Fatalf("expected 2 job runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobErrors.WithLabelValues(JobBillingReconcile, WorkerReasonSerializationFailure)); got != 1 {
		t.Fatalf("expected 1 job error, got %v", got)
	}
	if got := testutil.ToFloat64(m.batchProcessed.WithLabelValues(JobBillingReconcile)); got != 3 {
		t.Fatalf("expected 3 processed, got %v", got)
	}
	if got := testutil.CollectAndCount(m.lockWait); got != 1 {
		t.Fatalf("expected one lock wait series, got %d", got)
	}
}

func TestHTTPMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first, err := newHTTPMetrics(registry, Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := newHTTPMetrics(registry, Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.requests != second.requests {
		t.Fatalf("expected the existing collector to be reused")
	}
}
