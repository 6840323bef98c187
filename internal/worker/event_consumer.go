package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/intake-api/pkg/logger"
	"github.com/jwalitptl/intake-api/pkg/messaging"
	"github.com/jwalitptl/intake-api/pkg/metrics"
)

// envelope mirrors messaging.Message with the payload left undecoded.
type envelope struct {
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt string          `json:"occurred_at"`
}

// EventHandler reacts to one domain event. Handlers run sequentially on the
// consumer goroutine.
type EventHandler func(ctx context.Context, eventType string, payload json.RawMessage) error

// EventConsumer drains the domain event channel, writing an audit line per
// event and fanning it out to registered handlers.
type EventConsumer struct {
	broker   messaging.Broker
	channel  string
	handlers map[string][]EventHandler
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewEventConsumer(broker messaging.Broker, channel string, log *logger.Logger, m *metrics.Metrics) *EventConsumer {
	if log == nil {
		log = logger.Nop()
	}
	return &EventConsumer{
		broker:   broker,
		channel:  channel,
		handlers: map[string][]EventHandler{},
		logger:   log,
		metrics:  m,
	}
}

// Handle registers fn for eventType. It must be called before Start.
func (c *EventConsumer) Handle(eventType string, fn EventHandler) {
	c.handlers[eventType] = append(c.handlers[eventType], fn)
}

// Start subscribes and blocks until ctx is done or the broker closes the
// subscription.
func (c *EventConsumer) Start(ctx context.Context) error {
	messages, err := c.broker.Subscribe(ctx, c.channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.channel, err)
	}

	c.logger.Info("Starting event consumer", "channel", c.channel)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Shutting down event consumer")
			return nil
		case raw, ok := <-messages:
			if !ok {
				return nil
			}
			c.process(ctx, raw)
		}
	}
}

func (c *EventConsumer) process(ctx context.Context, raw []byte) {
	var msg envelope
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Warn("Dropping undecodable event", "error", err.Error())
		return
	}

	if c.metrics != nil {
		c.metrics.EventsConsumed.WithLabelValues(msg.Type).Inc()
	}
	c.logger.Info("Domain event", "event_type", msg.Type, "occurred_at", msg.OccurredAt)

	for _, fn := range c.handlers[msg.Type] {
		if err := fn(ctx, msg.Type, msg.Payload); err != nil {
			c.logger.Error(err, "Failed to handle event", "event_type", msg.Type)
		}
	}
}
