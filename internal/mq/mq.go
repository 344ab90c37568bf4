package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/recallpro/auth/config"
)

const (
	BackendRabbitMQ = "rabbitmq"
	BackendPubSub   = "pubsub"
	BackendNone     = "none"
)

// ErrDiscard marks a message that can never be processed. Backends drop it
// instead of redelivering.
var ErrDiscard = errors.New("discard message")

// Message is a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Returning an error requeues it unless the
// error wraps ErrDiscard.
type Handler func(ctx context.Context, msg Message) error

// Backend is the broker surface used by the token sweeper.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// NewBackend dials the broker selected by cfg.Backend. It returns a nil
// Backend for BackendNone.
func NewBackend(ctx context.Context, cfg config.QueueConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendRabbitMQ:
		backend, err := NewRabbitMQBackend(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case BackendPubSub:
		backend, err := NewPubSubBackend(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case BackendNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported queue backend: %s", cfg.Backend)
	}
}

func requeue(err error) bool {
	return !errors.Is(err, ErrDiscard)
}
