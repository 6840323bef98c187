package messaging

import (
	"context"
	"time"
)

type brokerPublisher struct {
	broker  Broker
	channel string
}

// NewPublisher publishes typed events onto a single broker channel.
func NewPublisher(broker Broker, channel string) Publisher {
	return &brokerPublisher{broker: broker, channel: channel}
}

func (p *brokerPublisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	return p.broker.Publish(ctx, p.channel, Message{
		Type:       eventType,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	})
}

type nopPublisher struct{}

// NopPublisher drops every event.
func NopPublisher() Publisher {
	return nopPublisher{}
}

func (nopPublisher) Publish(context.Context, string, interface{}) error {
	return nil
}
