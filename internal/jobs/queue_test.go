package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

type collector struct {
	mu   sync.Mutex
	seen map[string]int
	done chan struct{}
	want int
}

func newCollector(want int) *collector {
	return &collector{seen: make(map[string]int), done: make(chan struct{}), want: want}
}

func (c *collector) handle(_ context.Context, job Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[job.ID]++
	total := 0
	for _, n := range c.seen {
		total += n
	}
	if total == c.want {
		close(c.done)
	}
	return nil
}

func (c *collector) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for jobs")
	}
}

func TestMemoryQueueDeduplicatesAndConsumes(t *testing.T) {
	q := NewMemoryQueue(8, nil)
	defer q.Close()
	ctx := context.Background()

	a := FromOutbox(RatingUpdate("m1"))
	b := FromOutbox(StatsRecompute("l", "s"))
	for _, job := range []Job{a, a, b} {
		if err := q.Publish(ctx, job); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if q.Pending() != 2 {
		t.Fatalf("expected duplicate to be dropped, %d pending", q.Pending())
	}

	c := newCollector(2)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		q.Consume(runCtx, 2, c.handle)
		close(done)
	}()
	c.wait(t)
	cancel()
	<-done

	if c.seen[a.ID] != 1 || c.seen[b.ID] != 1 {
		t.Fatalf("unexpected deliveries: %+v", c.seen)
	}
}

func TestMemoryQueueFullAndClosed(t *testing.T) {
	q := NewMemoryQueue(1, nil)
	ctx := context.Background()
	if err := q.Publish(ctx, FromOutbox(RatingUpdate("m1"))); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := q.Publish(ctx, FromOutbox(RatingUpdate("m2"))); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	q.Close()
	if err := q.Publish(ctx, FromOutbox(RatingUpdate("m3"))); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}

func startJetStream(t *testing.T) *nats.Conn {
	t.Helper()
	ns, err := StartEmbedded(t.TempDir(), -1)
	if err != nil {
		t.Fatalf("embedded nats: %v", err)
	}
	t.Cleanup(ns.Shutdown)

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(nc.Close)
	return nc
}

func TestJetStreamQueueDeduplicatesByJobID(t *testing.T) {
	nc := startJetStream(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q, err := NewJetStreamQueue(ctx, nc, JetStreamConfig{Stream: "TEST_JOBS"}, nil)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}

	a := FromOutbox(RatingUpdate("m1"))
	b := FromOutbox(RatingRecompute("l1"))
	for _, job := range []Job{a, a, b} {
		if err := q.Publish(ctx, job); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	c := newCollector(2)
	done := make(chan struct{})
	go func() {
		if err := q.Consume(ctx, 2, c.handle); err != nil {
			t.Errorf("consume: %v", err)
		}
		close(done)
	}()
	c.wait(t)

	// give a duplicate delivery a chance to show up
	time.Sleep(200 * time.Millisecond)
	cancel()
	<-done

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.seen) != 2 || c.seen[a.ID] != 1 || c.seen[b.ID] != 1 {
		t.Fatalf("expected each job exactly once, got %+v", c.seen)
	}
}

func TestJetStreamQueueTerminatesExhaustedJobs(t *testing.T) {
	nc := startJetStream(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q, err := NewJetStreamQueue(ctx, nc, JetStreamConfig{Stream: "TEST_TERM", AckWait: time.Second}, nil)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	job := FromOutbox(StatsRecompute("l", "s"))
	if err := q.Publish(ctx, job); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var mu sync.Mutex
	calls := 0
	go q.Consume(ctx, 1, func(context.Context, Job) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return ErrExhausted
	})

	// redelivery would happen after AckWait if the message had not been terminated
	time.Sleep(2500 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected a single delivery, got %d", calls)
	}
}
