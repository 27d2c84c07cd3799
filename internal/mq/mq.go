package mq

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/orderdesk/apiserver/internal/logging"
)

const defaultContentType = "application/octet-stream"

// ErrPermanent marks a handler failure that redelivery cannot fix, such as
// a payload that does not decode. Such messages are dropped, not requeued.
var ErrPermanent = errors.New("permanent message failure")

// Permanent wraps err so that errors.Is(err, ErrPermanent) holds.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Message is a broker-agnostic payload.
type Message struct {
	ID          string
	Data        []byte
	ContentType string
	// Key groups related messages; backends that support ordering deliver
	// messages with the same key in publish order.
	Key        string
	Attributes map[string]string
}

// Handler processes a message. A returned error requeues the message unless
// it wraps ErrPermanent.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, msg Message) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// outcome is what a backend does with a delivery after the handler ran.
type outcome int

const (
	outcomeAck outcome = iota
	outcomeRequeue
	outcomeDrop
)

func settle(err error) outcome {
	switch {
	case err == nil:
		return outcomeAck
	case errors.Is(err, ErrPermanent):
		return outcomeDrop
	default:
		return outcomeRequeue
	}
}

// MQ wraps a backend with message defaults and failure logging.
type MQ struct {
	backend Backend
}

func New(backend Backend) *MQ {
	return &MQ{backend: backend}
}

// Publish sends msg to channel, filling in an id and content type when unset.
func (m *MQ) Publish(ctx context.Context, channel string, msg Message) (string, error) {
	if msg.ID == "" {
		msg.ID = newMessageID()
	}
	if msg.ContentType == "" {
		msg.ContentType = defaultContentType
	}
	return m.backend.Publish(ctx, channel, msg)
}

// Subscribe consumes messages from channel until ctx is done.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return m.backend.Subscribe(ctx, channel, func(ctx context.Context, msg Message) error {
		err := handler(ctx, msg)
		switch settle(err) {
		case outcomeDrop:
			logging.FromContext(ctx).Warn("dropping message", "channel", channel, "message_id", msg.ID, "error", err)
		case outcomeRequeue:
			logging.FromContext(ctx).Debug("requeueing message", "channel", channel, "message_id", msg.ID, "error", err)
		}
		return err
	})
}

func (m *MQ) Close() error {
	return m.backend.Close()
}

func newMessageID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(buf[:])
}
