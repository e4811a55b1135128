package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/foospulse/foospulse/internal/logging"
	"github.com/foospulse/foospulse/internal/metrics"
	"github.com/foospulse/foospulse/internal/storage"
	"github.com/foospulse/foospulse/internal/testutil"
)

type fakeFailures struct {
	mu       sync.Mutex
	failures []storage.JobFailure
}

func (f *fakeFailures) RecordJobFailure(_ context.Context, jf storage.JobFailure) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, jf)
	return nil
}

func (f *fakeFailures) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.failures)
}

func fastPool(handlers map[Kind]Handler, failures FailureRecorder, rec *metrics.Recorder) *Pool {
	logger, _ := testutil.NewBufferLogger()
	return NewPool(PoolConfig{Workers: 2, MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond},
		handlers, failures, logger, rec)
}

func TestHandleRetriesTransientErrors(t *testing.T) {
	rec := metrics.NewRecorder()
	calls := 0
	pool := fastPool(map[Kind]Handler{
		KindRatingUpdate: func(context.Context, Job) error {
			calls++
			if calls < 3 {
				return errors.New("database is locked")
			}
			return nil
		},
	}, nil, rec)

	if err := pool.Handle(context.Background(), FromOutbox(RatingUpdate("m1"))); err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	snap := rec.Snapshot()
	if snap.JobRetries[string(KindRatingUpdate)] != 2 || rec.JobCount(string(KindRatingUpdate), logging.OutcomeDone) != 1 {
		t.Fatalf("unexpected metrics: %+v", snap)
	}
}

func TestHandleRecordsExhaustedJobs(t *testing.T) {
	failures := &fakeFailures{}
	rec := metrics.NewRecorder()
	calls := 0
	pool := fastPool(map[Kind]Handler{
		KindStatsRecompute: func(context.Context, Job) error {
			calls++
			return errors.New("store unavailable")
		},
	}, failures, rec)

	job := FromOutbox(StatsRecompute("l", "s"))
	err := pool.Handle(context.Background(), job)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected max attempts, got %d", calls)
	}
	if failures.count() != 1 || failures.failures[0].JobID != job.ID || failures.failures[0].Attempts != 3 {
		t.Fatalf("unexpected failure records: %+v", failures.failures)
	}
	if rec.JobCount(string(KindStatsRecompute), logging.OutcomeFailed) != 1 {
		t.Fatal("expected a failed outcome metric")
	}
}

func TestHandlePermanentErrorStopsRetrying(t *testing.T) {
	failures := &fakeFailures{}
	calls := 0
	pool := fastPool(map[Kind]Handler{
		KindRatingUpdate: func(context.Context, Job) error {
			calls++
			return Permanent(errors.New("bad payload"))
		},
	}, failures, nil)

	if err := pool.Handle(context.Background(), FromOutbox(RatingUpdate("m1"))); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("permanent errors must not be retried, got %d calls", calls)
	}
}

func TestHandleSkipIsNotAFailure(t *testing.T) {
	failures := &fakeFailures{}
	rec := metrics.NewRecorder()
	logger, buf := testutil.NewBufferLogger()
	pool := NewPool(PoolConfig{MaxAttempts: 3}, map[Kind]Handler{
		KindRatingUpdate: func(context.Context, Job) error { return Skip("already_rated") },
	}, failures, logger, rec)

	if err := pool.Handle(context.Background(), FromOutbox(RatingUpdate("m1"))); err != nil {
		t.Fatalf("skip should succeed, got %v", err)
	}
	if failures.count() != 0 || rec.JobCount(string(KindRatingUpdate), logging.OutcomeSkipped) != 1 {
		t.Fatal("skip must be recorded as skipped, not failed")
	}
	if out := buf.String(); !strings.Contains(out, "outcome=skipped") || !strings.Contains(out, "reason=already_rated") {
		t.Fatalf("expected skip to be logged with reason, got %q", out)
	}
}

func TestHandleUnknownKind(t *testing.T) {
	failures := &fakeFailures{}
	pool := fastPool(map[Kind]Handler{}, failures, nil)
	if err := pool.Handle(context.Background(), Job{ID: "x", Kind: "mystery"}); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if failures.count() != 1 {
		t.Fatal("expected unknown kind to be recorded")
	}
}

func TestHandleInterruptedReturnsContextError(t *testing.T) {
	failures := &fakeFailures{}
	ctx, cancel := context.WithCancel(context.Background())
	pool := fastPool(map[Kind]Handler{
		KindRatingUpdate: func(context.Context, Job) error {
			cancel()
			return errors.New("boom")
		},
	}, failures, nil)

	if err := pool.Handle(ctx, FromOutbox(RatingUpdate("m1"))); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if failures.count() != 0 {
		t.Fatal("interrupted jobs are redelivered, not recorded as failures")
	}
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	var p RatingUpdatePayload
	err := Job{Kind: KindRatingUpdate, Payload: []byte("{")}.Decode(&p)
	if err == nil {
		t.Fatal("expected decode error")
	}
}
