package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/foospulse/foospulse/internal/domain"
	"github.com/foospulse/foospulse/internal/logging"
	"github.com/nats-io/nats.go"
)

const subjectPrefix = "live."

// Subject returns the NATS subject carrying a topic's envelopes.
func Subject(topic string) string {
	return subjectPrefix + topic
}

// NATSBridge publishes envelopes over core NATS so every process serving
// subscribers sees them. Incoming messages are delivered to the local hub.
type NATSBridge struct {
	nc     *nats.Conn
	hub    *Hub
	sub    *nats.Subscription
	logger *slog.Logger
}

// NewNATSBridge subscribes to all live subjects and feeds hub
func NewNATSBridge(nc *nats.Conn, hub *Hub, logger *slog.Logger) (*NATSBridge, error) {
	b := &NATSBridge{nc: nc, hub: hub, logger: logger}
	sub, err := nc.Subscribe(subjectPrefix+"*", func(msg *nats.Msg) {
		topic := strings.TrimPrefix(msg.Subject, subjectPrefix)
		hub.Deliver(topic, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to live subjects: %w", err)
	}
	b.sub = sub
	return b, nil
}

// Publish sends event to every process. Local delivery happens through the
// subscription, so the envelope is not handed to the hub directly.
func (b *NATSBridge) Publish(topic string, event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logging.Error(b.logger, "encoding live event", err, logging.FieldTopic, topic)
		return
	}
	if err := b.nc.Publish(Subject(topic), data); err != nil {
		logging.Warn(b.logger, "nats publish failed, delivering locally", logging.FieldTopic, topic, "error", err)
		b.hub.Deliver(topic, data)
	}
}

// Close removes the subscription
func (b *NATSBridge) Close() error {
	if b.sub == nil {
		return nil
	}
	return b.sub.Unsubscribe()
}
