package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/foospulse/foospulse/internal/logging"
	"github.com/foospulse/foospulse/internal/metrics"
	"github.com/foospulse/foospulse/internal/storage"
)

// FailureRecorder stores jobs that used up their retries
type FailureRecorder interface {
	RecordJobFailure(ctx context.Context, f storage.JobFailure) error
}

// PoolConfig configures retries for the worker pool
type PoolConfig struct {
	Workers        int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Pool runs typed handlers with bounded exponential retries
type Pool struct {
	handlers map[Kind]Handler
	failures FailureRecorder
	cfg      PoolConfig
	logger   *slog.Logger
	metrics  *metrics.Recorder
}

// NewPool creates a worker pool. handlers maps each kind to its processor.
func NewPool(cfg PoolConfig, handlers map[Kind]Handler, failures FailureRecorder, logger *slog.Logger, rec *metrics.Recorder) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	return &Pool{handlers: handlers, failures: failures, cfg: cfg, logger: logger, metrics: rec}
}

// Run consumes q until ctx is done
func (p *Pool) Run(ctx context.Context, q Queue) error {
	logging.Info(p.logger, "worker pool started", "workers", p.cfg.Workers, "max_attempts", p.cfg.MaxAttempts)
	err := q.Consume(ctx, p.cfg.Workers, p.Handle)
	logging.Info(p.logger, "worker pool stopped")
	return err
}

func (p *Pool) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitialBackoff
	b.MaxInterval = p.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.cfg.MaxAttempts-1)), ctx)
}

// Handle runs job to completion. It returns nil on success or skip,
// ErrExhausted after recording a terminal failure, and the context error
// when interrupted so the queue can redeliver.
func (p *Pool) Handle(ctx context.Context, job Job) error {
	logger := p.logger
	if logger != nil {
		logger = logger.With(logging.FieldJobID, job.ID, logging.FieldJobKind, job.Kind)
	}
	ctx = logging.WithLogger(ctx, logger)

	handler, ok := p.handlers[job.Kind]
	if !ok {
		return p.fail(ctx, logger, job, 1, fmt.Errorf("no handler for job kind %q", job.Kind))
	}

	attempt := 0
	var skipped *SkipError
	start := time.Now()
	op := func() error {
		attempt++
		err := handler(ctx, job)
		if errors.As(err, &skipped) {
			return nil
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		p.metrics.RecordJobRetry(string(job.Kind))
		logging.Warn(logger, "job attempt failed, retrying",
			logging.FieldAttempt, attempt, logging.FieldOutcome, logging.OutcomeRetry,
			"retry_in", wait.String(), "error", err)
		job.keepAlive()
	}

	err := backoff.RetryNotify(op, p.newBackOff(ctx), notify)
	elapsed := time.Since(start)

	switch {
	case err == nil && skipped != nil:
		p.metrics.RecordJob(string(job.Kind), logging.OutcomeSkipped, elapsed)
		logging.Skipped(logger, "job skipped", skipped.Reason, logging.FieldAttempt, attempt)
		return nil
	case err == nil:
		p.metrics.RecordJob(string(job.Kind), logging.OutcomeDone, elapsed)
		logging.Info(logger, "job done", logging.FieldAttempt, attempt,
			logging.FieldOutcome, logging.OutcomeDone, logging.FieldDurationMS, elapsed.Milliseconds())
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return p.fail(ctx, logger, job, attempt, err)
}

func (p *Pool) fail(ctx context.Context, logger *slog.Logger, job Job, attempts int, cause error) error {
	p.metrics.RecordJob(string(job.Kind), logging.OutcomeFailed, 0)
	logging.Error(logger, "job failed", cause, logging.FieldAttempt, attempts, logging.FieldOutcome, logging.OutcomeFailed)

	if p.failures != nil {
		record := storage.JobFailure{
			JobID:    job.ID,
			Kind:     string(job.Kind),
			Payload:  string(job.Payload),
			Attempts: attempts,
			Error:    cause.Error(),
		}
		if err := p.failures.RecordJobFailure(context.WithoutCancel(ctx), record); err != nil {
			logging.Error(logger, "recording job failure", err)
		}
	}
	return fmt.Errorf("%w: %v", ErrExhausted, cause)
}
