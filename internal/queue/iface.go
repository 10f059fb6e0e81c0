package queue

import (
	"context"
	"time"
)

// Service is the external queue service. It hands out handles to physical
// queues by name; a handle does not imply the queue exists.
type Service interface {
	Queue(name string) Queue
	Close() error
}

// Queue is a handle to one physical queue on the service.
//
// ReceiveOne returns (nil, nil) when nothing is visible. A zero visibility
// means the service default. Messages returned by ReceiveOne and ReceiveMany
// carry a back-reference to the handle so Message.Delete works.
type Queue interface {
	Name() string
	CreateIfNotExists(ctx context.Context) error
	Exists(ctx context.Context) (bool, error)
	Send(ctx context.Context, content string, opts SendOptions) (string, error)
	ReceiveOne(ctx context.Context, visibility time.Duration) (*Message, error)
	ReceiveMany(ctx context.Context, max int, visibility time.Duration) ([]*Message, error)
	ApproximateCount(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Delete(ctx context.Context, msg *Message) error
}

// SendOptions controls per-message lifetime. Zero values mean the service
// default.
type SendOptions struct {
	TTL   time.Duration
	Delay time.Duration
}

// ItemHandler receives one message per call. The handler owns the message and
// is responsible for deleting it.
type ItemHandler func(ctx context.Context, msg *Message) error

// BatchHandler receives all messages fetched from a single level in one call.
type BatchHandler func(ctx context.Context, msgs []*Message) error
