package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foospulse/foospulse/internal/logging"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	subjectPrefix   = "foospulse.jobs."
	consumerDurable = "foospulse-workers"
)

// JetStreamConfig configures the durable queue
type JetStreamConfig struct {
	Stream string
	// AckWait must outlast a job's full retry schedule; retries call
	// InProgress to extend it.
	AckWait    time.Duration
	MaxDeliver int
	// Duplicates is the broker's deduplication window for job IDs
	Duplicates time.Duration
}

// JetStreamQueue is a Queue on a JetStream work-queue stream
type JetStreamQueue struct {
	js     jetstream.JetStream
	stream jetstream.Stream
	cfg    JetStreamConfig
	logger *slog.Logger
}

// NewJetStreamQueue creates or updates the job stream on nc
func NewJetStreamQueue(ctx context.Context, nc *nats.Conn, cfg JetStreamConfig, logger *slog.Logger) (*JetStreamQueue, error) {
	if cfg.Stream == "" {
		cfg.Stream = "FOOSPULSE_JOBS"
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 2 * time.Minute
	}
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = 10
	}
	if cfg.Duplicates <= 0 {
		cfg.Duplicates = 10 * time.Minute
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       cfg.Stream,
		Subjects:   []string{subjectPrefix + ">"},
		Retention:  jetstream.WorkQueuePolicy,
		Storage:    jetstream.FileStorage,
		Duplicates: cfg.Duplicates,
	})
	if err != nil {
		return nil, fmt.Errorf("creating stream %s: %w", cfg.Stream, err)
	}
	return &JetStreamQueue{js: js, stream: stream, cfg: cfg, logger: logger}, nil
}

func (q *JetStreamQueue) Publish(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	ack, err := q.js.Publish(ctx, subjectPrefix+string(job.Kind), data, jetstream.WithMsgID(job.ID))
	if err != nil {
		return fmt.Errorf("publishing %s: %w", job.Kind, err)
	}
	if ack.Duplicate {
		logging.Skipped(q.logger, "job already on stream", "duplicate",
			logging.FieldJobID, job.ID, logging.FieldJobKind, job.Kind)
	}
	return nil
}

func (q *JetStreamQueue) Consume(ctx context.Context, workers int, handle Handler) error {
	if workers <= 0 {
		workers = 1
	}
	cons, err := q.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       consumerDurable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       q.cfg.AckWait,
		MaxDeliver:    q.cfg.MaxDeliver,
		FilterSubject: subjectPrefix + ">",
	})
	if err != nil {
		return fmt.Errorf("creating consumer: %w", err)
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			_ = msg.Nak()
			return
		}
		wg.Add(1)
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			q.deliver(ctx, msg, handle)
		}()
	}, jetstream.PullMaxMessages(workers))
	if err != nil {
		return fmt.Errorf("starting consumer: %w", err)
	}

	<-ctx.Done()
	cc.Stop()
	wg.Wait()
	return nil
}

func (q *JetStreamQueue) deliver(ctx context.Context, msg jetstream.Msg, handle Handler) {
	var job Job
	if err := json.Unmarshal(msg.Data(), &job); err != nil {
		logging.Error(q.logger, "dropping undecodable job message", err, logging.FieldOutcome, logging.OutcomeFailed)
		_ = msg.Term()
		return
	}
	job.touch = func() { _ = msg.InProgress() }

	err := handle(ctx, job)
	switch {
	case err == nil:
		_ = msg.Ack()
	case errors.Is(err, ErrExhausted):
		_ = msg.Term()
	default:
		// interrupted, e.g. by shutdown; let another worker take it
		_ = msg.NakWithDelay(time.Second)
	}
}

func (q *JetStreamQueue) Close() error { return nil }
