package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Dispatcher is a priority-aware push layer over a Service. It keeps one
// physical queue per priority level and runs a single background loop that
// delivers messages to the registered handlers, highest level first.
//
// The loop is started by New and runs until Stop or Close. While no handler
// is registered it parks without issuing any service calls.
type Dispatcher struct {
	cfg      Config
	log      zerolog.Logger
	registry *registry
	hub      *Hub
	backoff  *Backoff
	encoder  Encoder

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithEncoder replaces the JSON encoder used by EnqueueValue.
func WithEncoder(enc Encoder) Option {
	return func(d *Dispatcher) {
		if enc != nil {
			d.encoder = enc
		}
	}
}

// New creates a Dispatcher over service and starts its dispatch loop.
// Zero fields in cfg take their DefaultConfig values.
func New(service Service, cfg Config, log zerolog.Logger, opts ...Option) *Dispatcher {
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:      cfg,
		log:      log,
		registry: newRegistry(service, cfg.QueueName, Priorities),
		hub:      NewHub(),
		backoff:  NewBackoff(cfg.BackoffBase, cfg.BackoffCap),
		encoder:  JSONEncoder,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	go d.run(ctx)

	d.log.Info().
		Str("queue_name", cfg.QueueName).
		Int("batch_size", cfg.BatchSize).
		Dur("backoff_cap", cfg.BackoffCap).
		Msg("dispatcher started")

	return d
}

// EnqueueOption configures a single Enqueue call.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	priority Priority
	ttl      time.Duration
	delay    time.Duration
}

// WithPriority routes the message to level p. The default is PriorityDefault.
func WithPriority(p Priority) EnqueueOption {
	return func(o *enqueueOptions) { o.priority = p }
}

// WithTTL sets how long the message lives before the service discards it.
func WithTTL(ttl time.Duration) EnqueueOption {
	return func(o *enqueueOptions) { o.ttl = ttl }
}

// WithDelay keeps the message invisible for d after it is sent.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) { o.delay = d }
}

// Enqueue sends raw content to a priority level, creating the level's queue
// on first use. It returns the service-assigned message ID. Service errors are
// returned to the caller and not retried.
func (d *Dispatcher) Enqueue(ctx context.Context, content string, opts ...EnqueueOption) (string, error) {
	o := enqueueOptions{priority: PriorityDefault}
	for _, opt := range opts {
		opt(&o)
	}

	q, err := d.registry.resolve(ctx, o.priority, true)
	if err != nil {
		return "", err
	}
	if q == nil {
		return "", fmt.Errorf("enqueue to %s: %w", o.priority, ErrQueueNotFound)
	}

	id, err := q.Send(ctx, content, SendOptions{TTL: o.ttl, Delay: o.delay})
	if err != nil {
		return "", fmt.Errorf("send to %s: %w", q.Name(), err)
	}

	MessagesEnqueuedTotal.WithLabelValues(o.priority.String()).Inc()

	return id, nil
}

// EnqueueValue encodes v with the dispatcher's Encoder and enqueues it.
func (d *Dispatcher) EnqueueValue(ctx context.Context, v any, opts ...EnqueueOption) (string, error) {
	content, err := d.encoder(v)
	if err != nil {
		return "", err
	}
	return d.Enqueue(ctx, content, opts...)
}

// ApproximateCount returns the service's message count for level p. ok is
// false when the level's queue has never been created.
func (d *Dispatcher) ApproximateCount(ctx context.Context, p Priority) (count int, ok bool, err error) {
	q, err := d.registry.resolve(ctx, p, false)
	if err != nil {
		return 0, false, err
	}
	if q == nil {
		return 0, false, nil
	}

	count, err = q.ApproximateCount(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("count %s: %w", q.Name(), err)
	}

	QueueDepth.WithLabelValues(p.String()).Set(float64(count))

	return count, true, nil
}

// TotalApproximateCount sums ApproximateCount over every level. Levels that
// were never created contribute nothing, so the total is 0 when none exist.
func (d *Dispatcher) TotalApproximateCount(ctx context.Context) (int, error) {
	total := 0
	for _, p := range Priorities {
		n, _, err := d.ApproximateCount(ctx, p)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Clear purges level p. Levels that were never created are left alone.
func (d *Dispatcher) Clear(ctx context.Context, p Priority) error {
	q, err := d.registry.resolve(ctx, p, false)
	if err != nil {
		return err
	}
	if q == nil {
		return nil
	}
	if err := q.Clear(ctx); err != nil {
		return fmt.Errorf("clear %s: %w", q.Name(), err)
	}
	QueueDepth.WithLabelValues(p.String()).Set(0)
	return nil
}

// ClearAll purges every level, attempting all of them even if one fails.
func (d *Dispatcher) ClearAll(ctx context.Context) error {
	var errs []error
	for _, p := range Priorities {
		if err := d.Clear(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnItem registers fn to receive messages one at a time, replacing any
// previous item handler, and wakes the dispatch loop.
func (d *Dispatcher) OnItem(fn ItemHandler) error {
	if d.stopped.Load() {
		return ErrStopped
	}
	active := d.hub.SetItemHandler(fn)
	d.log.Debug().Bool("active", active).Msg("item handler registered")
	return nil
}

// RemoveItemHandler unregisters the item handler.
func (d *Dispatcher) RemoveItemHandler() {
	active := d.hub.RemoveItemHandler()
	d.log.Debug().Bool("active", active).Msg("item handler removed")
}

// OnBatch registers fn to receive up to BatchSize messages per call,
// replacing any previous batch handler, and wakes the dispatch loop.
func (d *Dispatcher) OnBatch(fn BatchHandler) error {
	if d.stopped.Load() {
		return ErrStopped
	}
	active := d.hub.SetBatchHandler(fn)
	d.log.Debug().Bool("active", active).Msg("batch handler registered")
	return nil
}

// RemoveBatchHandler unregisters the batch handler.
func (d *Dispatcher) RemoveBatchHandler() {
	active := d.hub.RemoveBatchHandler()
	d.log.Debug().Bool("active", active).Msg("batch handler removed")
}

// Active reports whether any handler is registered.
func (d *Dispatcher) Active() bool {
	return d.hub.Active()
}

// Stop cancels the dispatch loop and waits for it to exit, up to the
// configured shutdown timeout. A handler that is running when Stop is called
// is allowed to finish.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() {
		d.stopped.Store(true)
		d.cancel()
	})

	timer := time.NewTimer(d.cfg.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-d.done:
		d.log.Info().Msg("dispatcher stopped gracefully")
		return nil
	case <-timer.C:
		d.log.Warn().Msg("dispatcher shutdown timed out")
		return fmt.Errorf("shutdown timed out after %s", d.cfg.ShutdownTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the dispatcher. It implements io.Closer.
func (d *Dispatcher) Close() error {
	return d.Stop(context.Background())
}

// run is the dispatch loop. Errors never end it; only cancellation does.
func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)

	for {
		if err := d.hub.WaitUntilActive(ctx); err != nil {
			return
		}

		progress, err := d.cycle(ctx)
		if ctx.Err() != nil {
			return
		}

		switch {
		case err != nil:
			d.log.Error().Err(err).Bool("progress", progress).Msg("dispatch cycle failed")
			PollCyclesTotal.WithLabelValues("error").Inc()
		case progress:
			PollCyclesTotal.WithLabelValues("progress").Inc()
		default:
			PollCyclesTotal.WithLabelValues("empty").Inc()
		}

		if progress {
			d.backoff.Reset()
			BackoffSeconds.Set(0)
			continue
		}

		wait := d.backoff.Next()
		BackoffSeconds.Set(wait.Seconds())
		d.log.Debug().
			Int("attempt", d.backoff.Attempt()).
			Dur("wait", wait).
			Msg("no messages, backing off")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// cycle scans the levels from highest to lowest and dispatches the first
// non-empty receive. It reports whether anything was received; a handler
// error after a receive still counts as progress.
//
// Handlers are read again after a receive returns. If the handler was removed
// while the receive was in flight, the messages are not delivered and become
// visible again once their visibility timeout lapses.
func (d *Dispatcher) cycle(ctx context.Context) (bool, error) {
	item, batch := d.hub.Handlers()

	for _, p := range Priorities {
		q, err := d.registry.resolve(ctx, p, false)
		if err != nil {
			return false, err
		}
		if q == nil {
			continue
		}

		if item != nil {
			msg, err := q.ReceiveOne(ctx, d.cfg.VisibilityTimeout)
			if err != nil {
				return false, fmt.Errorf("receive from %s: %w", q.Name(), err)
			}
			if msg != nil {
				msg.Priority = p
				MessagesReceivedTotal.WithLabelValues(p.String(), "item").Inc()
				current, _ := d.hub.Handlers()
				if current == nil {
					d.log.Debug().Str("message_id", msg.ID).Msg("item handler removed during receive, message not delivered")
					return true, nil
				}
				return true, d.invoke(ctx, "item", func(hctx context.Context) error {
					return current(hctx, msg)
				})
			}
		}

		if batch != nil {
			msgs, err := q.ReceiveMany(ctx, d.cfg.BatchSize, d.cfg.VisibilityTimeout)
			if err != nil {
				return false, fmt.Errorf("receive batch from %s: %w", q.Name(), err)
			}
			if len(msgs) > 0 {
				for _, m := range msgs {
					m.Priority = p
				}
				MessagesReceivedTotal.WithLabelValues(p.String(), "batch").Add(float64(len(msgs)))
				_, current := d.hub.Handlers()
				if current == nil {
					d.log.Debug().Int("count", len(msgs)).Msg("batch handler removed during receive, messages not delivered")
					return true, nil
				}
				return true, d.invoke(ctx, "batch", func(hctx context.Context) error {
					return current(hctx, msgs)
				})
			}
		}
	}

	return false, nil
}

// invoke runs a handler synchronously. The handler context survives loop
// cancellation so an in-flight handler can finish, bounded by ProcessTimeout.
// Panics are converted to errors.
func (d *Dispatcher) invoke(ctx context.Context, mode string, call func(context.Context) error) (err error) {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.ProcessTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s handler panic: %v", mode, r)
		}
		HandlerDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
		if err != nil {
			HandlerFailuresTotal.WithLabelValues(mode).Inc()
		}
	}()

	if err := call(hctx); err != nil {
		return fmt.Errorf("%s handler: %w", mode, err)
	}
	return nil
}
