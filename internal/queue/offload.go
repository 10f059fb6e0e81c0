package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/prioq/internal/msgstore"
)

// payloadRefPrefix marks content that was replaced by a payload store key.
const payloadRefPrefix = "prioq-payload:"

// OffloadService wraps a Service so that contents larger than a threshold
// are written to a payload store and only a reference travels through the
// queue. Receivers see the original content. Deleting a message removes its
// payload after the queue entry, and clearing a queue removes all of its
// payloads.
type OffloadService struct {
	inner     Service
	store     msgstore.MessageStore
	threshold int
	log       zerolog.Logger
}

// NewOffloadService wraps inner. A threshold of zero or less disables
// offloading for sends; references are still resolved on receive.
func NewOffloadService(inner Service, store msgstore.MessageStore, threshold int, log zerolog.Logger) *OffloadService {
	return &OffloadService{inner: inner, store: store, threshold: threshold, log: log}
}

func (s *OffloadService) Queue(name string) Queue {
	return &offloadQueue{Queue: s.inner.Queue(name), svc: s}
}

func (s *OffloadService) Close() error {
	return s.inner.Close()
}

type offloadQueue struct {
	Queue
	svc *OffloadService
}

func (q *offloadQueue) Send(ctx context.Context, content string, opts SendOptions) (string, error) {
	if q.svc.threshold <= 0 || len(content) <= q.svc.threshold {
		return q.Queue.Send(ctx, content, opts)
	}

	key := q.Name() + "-" + uuid.NewString()
	if err := q.svc.store.Put(ctx, key, []byte(content)); err != nil {
		return "", fmt.Errorf("offload payload: %w", err)
	}

	id, err := q.Queue.Send(ctx, payloadRefPrefix+key, opts)
	if err != nil {
		if derr := q.svc.store.Delete(ctx, key); derr != nil {
			q.svc.log.Warn().Err(derr).Str("payload_key", key).Msg("failed to remove orphaned payload")
		}
		return "", err
	}

	q.svc.log.Debug().
		Str("queue", q.Name()).
		Str("message_id", id).
		Int("size", len(content)).
		Msg("payload offloaded")

	return id, nil
}

func (q *offloadQueue) ReceiveOne(ctx context.Context, visibility time.Duration) (*Message, error) {
	msg, err := q.Queue.ReceiveOne(ctx, visibility)
	if err != nil || msg == nil {
		return msg, err
	}
	if err := q.resolve(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (q *offloadQueue) ReceiveMany(ctx context.Context, max int, visibility time.Duration) ([]*Message, error) {
	msgs, err := q.Queue.ReceiveMany(ctx, max, visibility)
	if err != nil {
		return nil, err
	}
	out := msgs[:0]
	for _, m := range msgs {
		if err := q.resolve(ctx, m); err != nil {
			q.svc.log.Error().Err(err).Str("message_id", m.ID).Msg("dropping message with unreadable payload")
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (q *offloadQueue) Delete(ctx context.Context, msg *Message) error {
	if err := q.Queue.Delete(ctx, msg); err != nil {
		return err
	}
	if msg.payloadRef == "" {
		return nil
	}
	if err := q.svc.store.Delete(ctx, msg.payloadRef); err != nil {
		return fmt.Errorf("delete payload %s: %w", msg.payloadRef, err)
	}
	return nil
}

// Clear purges the queue and then every payload stored under its name.
// Payload keys are "<queue>-<uuid>", so keys of other queues that share the
// name prefix are told apart by the UUID suffix.
func (q *offloadQueue) Clear(ctx context.Context) error {
	if err := q.Queue.Clear(ctx); err != nil {
		return err
	}

	prefix := q.Name() + "-"
	keys, err := q.svc.store.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list payloads for %s: %w", q.Name(), err)
	}

	var errs []error
	removed := 0
	for _, key := range keys {
		if _, err := uuid.Parse(strings.TrimPrefix(key, prefix)); err != nil {
			continue
		}
		if err := q.svc.store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete payload %s: %w", key, err))
			continue
		}
		removed++
	}

	q.svc.log.Debug().Str("queue", q.Name()).Int("payloads", removed).Msg("payloads cleared")

	return errors.Join(errs...)
}

// resolve swaps a reference for the stored content and points the message
// back at this wrapper so Delete also removes the payload.
func (q *offloadQueue) resolve(ctx context.Context, msg *Message) error {
	msg.queue = q
	key, ok := strings.CutPrefix(msg.Content, payloadRefPrefix)
	if !ok {
		return nil
	}

	data, err := q.svc.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load payload %s for message %s: %w", key, msg.ID, err)
	}

	msg.Content = string(data)
	msg.payloadRef = key
	return nil
}
