package metrics

import (
	"sync"
	"time"
)

type jobStats struct {
	outcomes    map[string]int
	retries     int
	lastLatency time.Duration
}

// Recorder keeps in-memory counters and forwards to OpenTelemetry when configured.
type Recorder struct {
	mu          sync.Mutex
	jobs        map[string]*jobStats
	published   int
	dropped     int
	subscribers int
	otel        *otelInstruments
}

func NewRecorder() *Recorder {
	return newRecorder(nil)
}

func newRecorder(otel *otelInstruments) *Recorder {
	return &Recorder{
		jobs: make(map[string]*jobStats),
		otel: otel,
	}
}

// RecordJob tracks a finished job attempt by kind and outcome.
func (r *Recorder) RecordJob(kind, outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	r.mu.Lock()
	stats := r.ensureJobStats(kind)
	stats.outcomes[outcome]++
	stats.lastLatency = duration
	r.mu.Unlock()

	if r.otel != nil {
		r.otel.recordJob(kind, outcome, duration)
	}
}

// RecordJobRetry counts a retried job attempt.
func (r *Recorder) RecordJobRetry(kind string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.ensureJobStats(kind).retries++
	r.mu.Unlock()

	if r.otel != nil {
		r.otel.recordJobRetry(kind)
	}
}

// RecordBroadcast counts published messages and slow-subscriber drops.
func (r *Recorder) RecordBroadcast(dropped int) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.published++
	r.dropped += dropped
	r.mu.Unlock()

	if r.otel != nil {
		r.otel.recordBroadcast(dropped)
	}
}

// AddSubscribers moves the live subscriber gauge by delta.
func (r *Recorder) AddSubscribers(delta int) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.subscribers += delta
	r.mu.Unlock()

	if r.otel != nil {
		r.otel.addSubscribers(delta)
	}
}

// RecordHTTPRequest tracks basic HTTP metrics.
func (r *Recorder) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if r == nil || r.otel == nil {
		return
	}
	r.otel.recordHTTPRequest(method, path, status, duration)
}

// Snapshot is a copy of the in-memory counters.
type Snapshot struct {
	JobOutcomes map[string]map[string]int
	JobRetries  map[string]int
	Published   int
	Dropped     int
	Subscribers int
}

func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		JobOutcomes: make(map[string]map[string]int, len(r.jobs)),
		JobRetries:  make(map[string]int, len(r.jobs)),
		Published:   r.published,
		Dropped:     r.dropped,
		Subscribers: r.subscribers,
	}
	for kind, stats := range r.jobs {
		outcomes := make(map[string]int, len(stats.outcomes))
		for k, v := range stats.outcomes {
			outcomes[k] = v
		}
		snap.JobOutcomes[kind] = outcomes
		snap.JobRetries[kind] = stats.retries
	}
	return snap
}

// JobCount returns how many jobs of kind finished with outcome.
func (r *Recorder) JobCount(kind, outcome string) int {
	return r.Snapshot().JobOutcomes[kind][outcome]
}

func (r *Recorder) ensureJobStats(kind string) *jobStats {
	stats, ok := r.jobs[kind]
	if !ok {
		stats = &jobStats{outcomes: make(map[string]int)}
		r.jobs[kind] = stats
	}
	return stats
}
