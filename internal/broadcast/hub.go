package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/foospulse/foospulse/internal/domain"
	"github.com/foospulse/foospulse/internal/logging"
	"github.com/foospulse/foospulse/internal/metrics"
)

// Publisher delivers envelopes to everyone watching a topic
type Publisher interface {
	Publish(topic string, event domain.Event)
}

// Subscriber receives encoded envelopes for one topic. The channel is
// closed when the subscriber is removed or dropped for falling behind.
type Subscriber struct {
	topic string
	ch    chan []byte
}

// Topic returns the topic the subscriber is attached to.
func (s *Subscriber) Topic() string { return s.topic }

// C returns the delivery channel.
func (s *Subscriber) C() <-chan []byte { return s.ch }

// HubOptions configures a Hub
type HubOptions struct {
	Buffer            int
	HeartbeatInterval time.Duration
	Logger            *slog.Logger
	Metrics           *metrics.Recorder
}

// Hub fans live session envelopes out to subscribers, keyed by share token
type Hub struct {
	mu        sync.RWMutex
	topics    map[string]map[*Subscriber]struct{}
	buffer    int
	heartbeat time.Duration
	logger    *slog.Logger
	metrics   *metrics.Recorder
}

// NewHub creates a new hub
func NewHub(opts HubOptions) *Hub {
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	return &Hub{
		topics:    make(map[string]map[*Subscriber]struct{}),
		buffer:    opts.Buffer,
		heartbeat: opts.HeartbeatInterval,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

// Subscribe attaches a new subscriber to topic
func (h *Hub) Subscribe(topic string) *Subscriber {
	sub := &Subscriber{topic: topic, ch: make(chan []byte, h.buffer)}

	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Subscriber]struct{})
		h.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	count := len(subs)
	h.mu.Unlock()

	h.metrics.AddSubscribers(1)
	logging.Info(h.logger, "live subscriber connected", logging.FieldTopic, topic, logging.FieldCount, count)
	return sub
}

// Unsubscribe detaches sub. It is safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	removed := h.remove(sub)
	h.mu.Unlock()

	if removed {
		logging.Info(h.logger, "live subscriber disconnected", logging.FieldTopic, sub.topic)
	}
}

// remove must be called with mu held for writing
func (h *Hub) remove(sub *Subscriber) bool {
	subs, ok := h.topics[sub.topic]
	if !ok {
		return false
	}
	if _, ok := subs[sub]; !ok {
		return false
	}
	delete(subs, sub)
	close(sub.ch)
	if len(subs) == 0 {
		delete(h.topics, sub.topic)
	}
	h.metrics.AddSubscribers(-1)
	return true
}

// Publish encodes event and delivers it to topic's subscribers
func (h *Hub) Publish(topic string, event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logging.Error(h.logger, "encoding live event", err, logging.FieldTopic, topic)
		return
	}
	h.Deliver(topic, data)
}

// Deliver hands an already encoded envelope to topic's subscribers.
// Subscribers whose buffer is full are dropped.
func (h *Hub) Deliver(topic string, data []byte) {
	var slow []*Subscriber

	h.mu.RLock()
	for sub := range h.topics[topic] {
		select {
		case sub.ch <- data:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	if len(slow) > 0 {
		h.mu.Lock()
		for _, sub := range slow {
			h.remove(sub)
		}
		h.mu.Unlock()
		logging.Warn(h.logger, "dropped slow live subscribers", logging.FieldTopic, topic, logging.FieldCount, len(slow))
	}
	h.metrics.RecordBroadcast(len(slow))
}

// Topics returns the topics with at least one subscriber
func (h *Hub) Topics() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	topics := make([]string, 0, len(h.topics))
	for t := range h.topics {
		topics = append(topics, t)
	}
	return topics
}

// SubscriberCount returns the number of subscribers on topic
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Run sends heartbeats to every topic until ctx is done, then closes
// all remaining subscribers.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.Heartbeat()
		}
	}
}

// Heartbeat publishes a heartbeat envelope to every active topic
func (h *Hub) Heartbeat() {
	for _, topic := range h.Topics() {
		h.Publish(topic, domain.NewEvent(domain.EventHeartbeat, nil))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, subs := range h.topics {
		for sub := range subs {
			h.remove(sub)
		}
	}
}
