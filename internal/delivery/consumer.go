package delivery

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sungwon/prioq/internal/queue"
)

// subscriber is the part of queue.Dispatcher the consumer drives.
type subscriber interface {
	OnItem(fn queue.ItemHandler) error
	RemoveItemHandler()
	OnBatch(fn queue.BatchHandler) error
	RemoveBatchHandler()
}

// Consumer subscribes a Target to a dispatcher. Accepted messages are
// deleted; permanently rejected messages are deleted and logged; transient
// failures are left for redelivery after the visibility timeout.
type Consumer struct {
	sub         subscriber
	target      Target
	mode        string
	concurrency int
	log         zerolog.Logger

	mu     sync.Mutex
	active atomic.Bool
}

func NewConsumer(sub subscriber, target Target, cfg Config, log zerolog.Logger) *Consumer {
	cfg = cfg.withDefaults()
	return &Consumer{
		sub:         sub,
		target:      target,
		mode:        cfg.Mode,
		concurrency: cfg.Concurrency,
		log:         log.With().Str("target", target.Name()).Str("mode", cfg.Mode).Logger(),
	}
}

// Resume subscribes the target. It is a no-op when already subscribed.
func (c *Consumer) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active.Load() {
		return nil
	}

	var err error
	if c.mode == ModeBatch {
		err = c.sub.OnBatch(c.HandleBatch)
	} else {
		err = c.sub.OnItem(c.HandleItem)
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.target.Name(), err)
	}

	c.active.Store(true)
	c.log.Info().Msg("delivery resumed")
	return nil
}

// Pause unsubscribes the target. The dispatcher goes idle and stops calling
// the queue service until Resume.
func (c *Consumer) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active.Load() {
		return
	}
	if c.mode == ModeBatch {
		c.sub.RemoveBatchHandler()
	} else {
		c.sub.RemoveItemHandler()
	}
	c.active.Store(false)
	c.log.Info().Msg("delivery paused")
}

func (c *Consumer) Active() bool {
	return c.active.Load()
}

// HandleItem is a queue.ItemHandler.
func (c *Consumer) HandleItem(ctx context.Context, msg *queue.Message) error {
	return c.deliver(ctx, msg)
}

// HandleBatch is a queue.BatchHandler. Messages are delivered concurrently,
// bounded by the configured concurrency. It returns the first failure after
// every message has been attempted.
func (c *Consumer) HandleBatch(ctx context.Context, msgs []*queue.Message) error {
	var g errgroup.Group
	g.SetLimit(c.concurrency)

	for _, msg := range msgs {
		g.Go(func() error {
			return c.deliver(ctx, msg)
		})
	}
	return g.Wait()
}

func (c *Consumer) deliver(ctx context.Context, msg *queue.Message) error {
	err := c.target.Deliver(ctx, msg)
	if err != nil && !IsPermanent(err) {
		c.log.Warn().Err(err).
			Str("message_id", msg.ID).
			Int("dequeue_count", msg.DequeueCount).
			Msg("delivery failed, message left for redelivery")
		return fmt.Errorf("deliver %s: %w", msg.ID, err)
	}

	if err != nil {
		c.log.Error().Err(err).
			Str("message_id", msg.ID).
			Str("priority", msg.Priority.String()).
			Msg("delivery rejected permanently, dropping message")
	}

	if derr := msg.Delete(ctx); derr != nil {
		return fmt.Errorf("acknowledge %s: %w", msg.ID, derr)
	}
	return nil
}
