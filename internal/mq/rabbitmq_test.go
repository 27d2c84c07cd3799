package mq

import (
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ackCall struct {
	method  string
	tag     uint64
	requeue bool
}

// recordingAcknowledger stands in for the broker channel behind a delivery.
type recordingAcknowledger struct {
	calls []ackCall
}

func (a *recordingAcknowledger) Ack(tag uint64, multiple bool) error {
	a.calls = append(a.calls, ackCall{method: "ack", tag: tag})
	return nil
}

func (a *recordingAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.calls = append(a.calls, ackCall{method: "nack", tag: tag, requeue: requeue})
	return nil
}

func (a *recordingAcknowledger) Reject(tag uint64, requeue bool) error {
	a.calls = append(a.calls, ackCall{method: "reject", tag: tag, requeue: requeue})
	return nil
}

func TestSettleDelivery(t *testing.T) {
	ack := &recordingAcknowledger{}
	delivery := func(tag uint64) amqp.Delivery {
		return amqp.Delivery{Acknowledger: ack, DeliveryTag: tag}
	}

	require.NoError(t, settleDelivery(delivery(1), settle(nil)))
	require.NoError(t, settleDelivery(delivery(2), settle(errors.New("busy"))))
	require.NoError(t, settleDelivery(delivery(3), settle(Permanent(errors.New("bad json")))))

	assert.Equal(t, []ackCall{
		{method: "ack", tag: 1},
		{method: "nack", tag: 2, requeue: true},
		{method: "nack", tag: 3, requeue: false},
	}, ack.calls)
}

func TestDeliveryToMessage(t *testing.T) {
	msg := deliveryToMessage(amqp.Delivery{
		MessageId:     "m1",
		ContentType:   "application/json",
		CorrelationId: "order-7",
		Headers:       amqp.Table{"event_type": "order.created", "retries": int32(2)},
		Body:          []byte(`{}`),
	})

	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, "order-7", msg.Key)
	assert.Equal(t, map[string]string{"event_type": "order.created", "retries": "2"}, msg.Attributes)
	assert.Equal(t, []byte(`{}`), msg.Data)
}
