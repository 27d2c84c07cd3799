package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/orderdesk/apiserver/config"
	"github.com/orderdesk/apiserver/types"
)

const (
	EventOrderCreated = "order.created"
	EventOrderUpdated = "order.updated"
	EventOrderDeleted = "order.deleted"

	attrEventType = "event_type"
	attrOrderID   = "order_id"
	attrActorID   = "actor_id"

	eventContentType = "application/json"
)

// OrderEvent describes a completed change to an order.
type OrderEvent struct {
	Type       string      `json:"type"`
	Order      types.Order `json:"order"`
	ActorID    int64       `json:"actorId"`
	OccurredAt time.Time   `json:"occurredAt"`
}

// OrderEventPublisher publishes order events to a single channel.
type OrderEventPublisher struct {
	mq      *MQ
	channel string
}

func NewOrderEventPublisher(m *MQ, channel string) *OrderEventPublisher {
	return &OrderEventPublisher{mq: m, channel: channel}
}

// PublishOrderEvent encodes event as JSON and returns the broker message id.
// Events for one order share a key so ordering backends keep them in order.
func (p *OrderEventPublisher) PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("encode order event: %w", err)
	}
	orderID := strconv.FormatInt(event.Order.ID, 10)
	return p.mq.Publish(ctx, p.channel, Message{
		Data:        data,
		ContentType: eventContentType,
		Key:         "order-" + orderID,
		Attributes: map[string]string{
			attrEventType: event.Type,
			attrOrderID:   orderID,
			attrActorID:   strconv.FormatInt(event.ActorID, 10),
		},
	})
}

// SubscribeOrderEvents decodes every message on the channel and passes it to
// handle. Messages that cannot be decoded are dropped without redelivery;
// errors from handle requeue the message.
func (p *OrderEventPublisher) SubscribeOrderEvents(ctx context.Context, handle func(ctx context.Context, event OrderEvent) error) error {
	return p.mq.Subscribe(ctx, p.channel, func(ctx context.Context, msg Message) error {
		event, err := DecodeOrderEvent(msg)
		if err != nil {
			return Permanent(err)
		}
		return handle(ctx, event)
	})
}

// Close closes the underlying broker connection.
func (p *OrderEventPublisher) Close() error {
	return p.mq.Close()
}

func DecodeOrderEvent(msg Message) (OrderEvent, error) {
	var event OrderEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return OrderEvent{}, fmt.Errorf("decode order event %s: %w", msg.ID, err)
	}
	if event.Type == "" {
		event.Type = msg.Attributes[attrEventType]
	}
	if event.Type == "" {
		return OrderEvent{}, errors.New("order event has no type")
	}
	return event, nil
}

// FromConfig connects to the configured broker. It returns nil when no
// broker is configured.
func FromConfig(ctx context.Context, cfg config.MQConfig) (*OrderEventPublisher, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Backend {
	case "", config.MQBackendNone:
		return nil, nil
	case config.MQBackendRabbitMQ:
		backend, err = NewRabbitMQClient(cfg.RabbitMQ)
	case config.MQBackendPubSub:
		backend, err = NewPubSubClient(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewOrderEventPublisher(New(backend), cfg.Channel), nil
}
