package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foospulse/foospulse/internal/logging"
	"github.com/foospulse/foospulse/internal/storage"
	"github.com/go-co-op/gocron/v2"
)

const relayBatch = 100

// Relay moves committed outbox rows onto the queue
type Relay struct {
	mu     sync.Mutex
	store  *storage.Store
	queue  Queue
	logger *slog.Logger
}

// NewRelay creates an outbox relay
func NewRelay(store *storage.Store, queue Queue, logger *slog.Logger) *Relay {
	return &Relay{store: store, queue: queue, logger: logger}
}

// Flush publishes every pending outbox row and returns how many reached the
// queue. Rows that fail to publish stay pending for the next flush.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	published := 0
	for {
		entries, err := r.store.PendingOutbox(ctx, relayBatch)
		if err != nil {
			return published, fmt.Errorf("loading outbox: %w", err)
		}
		progressed := false
		for _, e := range entries {
			job := FromOutbox(e)
			if err := r.queue.Publish(ctx, job); err != nil {
				logging.Warn(r.logger, "outbox publish failed", logging.FieldJobID, e.ID,
					logging.FieldJobKind, e.Kind, logging.FieldAttempt, e.Attempts+1, "error", err)
				if err := r.store.MarkDispatchFailed(ctx, e.ID); err != nil {
					return published, err
				}
				continue
			}
			if err := r.store.MarkDispatched(ctx, e.ID); err != nil {
				return published, fmt.Errorf("marking %s dispatched: %w", e.ID, err)
			}
			published++
			progressed = true
		}
		if len(entries) < relayBatch || !progressed {
			return published, nil
		}
	}
}

// Enqueue stores entries in the outbox and flushes right away. A failed
// flush is logged; the scheduled relay picks the rows up later.
func (r *Relay) Enqueue(ctx context.Context, entries ...storage.OutboxEntry) error {
	if err := r.store.EnqueueOutbox(ctx, entries); err != nil {
		return err
	}
	r.Kick(ctx)
	return nil
}

// Kick flushes after a transaction that wrote outbox rows.
func (r *Relay) Kick(ctx context.Context) {
	if _, err := r.Flush(ctx); err != nil {
		logging.Warn(r.logger, "immediate outbox flush failed", "error", err)
	}
}

// Reconciler periodically asks for stats of every league season with matches
type Reconciler struct {
	store  *storage.Store
	relay  *Relay
	logger *slog.Logger
}

// NewReconciler creates a stats reconciler
func NewReconciler(store *storage.Store, relay *Relay, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, relay: relay, logger: logger}
}

// Run enqueues one stats recompute per league season holding valid matches.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	pairs, err := r.store.LeagueSeasonsWithMatches(ctx)
	if err != nil {
		return 0, err
	}
	if len(pairs) == 0 {
		return 0, nil
	}
	entries := make([]storage.OutboxEntry, len(pairs))
	for i, p := range pairs {
		entries[i] = StatsRecompute(p.LeagueID, p.SeasonID)
	}
	if err := r.relay.Enqueue(ctx, entries...); err != nil {
		return 0, err
	}
	logging.Info(r.logger, "stats reconcile enqueued", logging.FieldCount, len(entries))
	return len(entries), nil
}

// SchedulerConfig holds the periodic intervals
type SchedulerConfig struct {
	RelayInterval     time.Duration
	ReconcileInterval time.Duration
}

// Scheduler runs the relay and reconciler on fixed intervals
type Scheduler struct {
	s      gocron.Scheduler
	logger *slog.Logger
}

// NewScheduler registers the periodic jobs. reconciler may be nil.
func NewScheduler(ctx context.Context, cfg SchedulerConfig, relay *Relay, reconciler *Reconciler, logger *slog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}

	if _, err := s.NewJob(
		gocron.DurationJob(cfg.RelayInterval),
		gocron.NewTask(func() {
			if n, err := relay.Flush(ctx); err != nil {
				logging.Error(logger, "outbox relay failed", err)
			} else if n > 0 {
				logging.Info(logger, "outbox relayed", logging.FieldCount, n)
			}
		}),
		gocron.WithName("outbox-relay"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, fmt.Errorf("scheduling relay: %w", err)
	}

	if reconciler != nil && cfg.ReconcileInterval > 0 {
		if _, err := s.NewJob(
			gocron.DurationJob(cfg.ReconcileInterval),
			gocron.NewTask(func() {
				if _, err := reconciler.Run(ctx); err != nil {
					logging.Error(logger, "stats reconcile failed", err)
				}
			}),
			gocron.WithName("stats-reconciler"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, fmt.Errorf("scheduling reconciler: %w", err)
		}
	}

	return &Scheduler{s: s, logger: logger}, nil
}

// Start begins running the scheduled jobs
func (s *Scheduler) Start() {
	s.s.Start()
	logging.Info(s.logger, "scheduler started", logging.FieldCount, len(s.s.Jobs()))
}

// Shutdown stops the scheduler and waits for running jobs
func (s *Scheduler) Shutdown() error {
	return s.s.Shutdown()
}
