package queue

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func nopLogger() zerolog.Logger { return zerolog.New(io.Discard) }

// fastConfig keeps idle backoff in the millisecond range.
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.QueueName = "test"
	cfg.BackoffBase = time.Millisecond
	cfg.BackoffCap = 4 * time.Millisecond
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

// countingService wraps a Service and records every queue call by method
// name, optionally failing selected methods.
type countingService struct {
	inner Service

	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
}

func newCountingService(inner Service) *countingService {
	return &countingService{inner: inner, calls: make(map[string]int), fail: make(map[string]error)}
}

func (s *countingService) Queue(name string) Queue {
	return &countingQueue{Queue: s.inner.Queue(name), svc: s}
}

func (s *countingService) Close() error { return s.inner.Close() }

func (s *countingService) record(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[method]++
	return s.fail[method]
}

func (s *countingService) count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *countingService) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *countingService) setFail(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, method)
		return
	}
	s.fail[method] = err
}

type countingQueue struct {
	Queue
	svc *countingService
}

func (q *countingQueue) CreateIfNotExists(ctx context.Context) error {
	if err := q.svc.record("CreateIfNotExists"); err != nil {
		return err
	}
	return q.Queue.CreateIfNotExists(ctx)
}

func (q *countingQueue) Exists(ctx context.Context) (bool, error) {
	if err := q.svc.record("Exists"); err != nil {
		return false, err
	}
	return q.Queue.Exists(ctx)
}

func (q *countingQueue) Send(ctx context.Context, content string, opts SendOptions) (string, error) {
	if err := q.svc.record("Send"); err != nil {
		return "", err
	}
	return q.Queue.Send(ctx, content, opts)
}

func (q *countingQueue) ReceiveOne(ctx context.Context, visibility time.Duration) (*Message, error) {
	if err := q.svc.record("ReceiveOne"); err != nil {
		return nil, err
	}
	return q.Queue.ReceiveOne(ctx, visibility)
}

func (q *countingQueue) ReceiveMany(ctx context.Context, max int, visibility time.Duration) ([]*Message, error) {
	if err := q.svc.record("ReceiveMany"); err != nil {
		return nil, err
	}
	return q.Queue.ReceiveMany(ctx, max, visibility)
}

func (q *countingQueue) ApproximateCount(ctx context.Context) (int, error) {
	if err := q.svc.record("ApproximateCount"); err != nil {
		return 0, err
	}
	return q.Queue.ApproximateCount(ctx)
}

func (q *countingQueue) Clear(ctx context.Context) error {
	if err := q.svc.record("Clear"); err != nil {
		return err
	}
	return q.Queue.Clear(ctx)
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func stopDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	if err := d.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

// holdingService pauses the first receive that returns messages until release
// is closed, signalling entered once the messages are in hand.
type holdingService struct {
	inner   Service
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newHoldingService(inner Service) *holdingService {
	return &holdingService{
		inner:   inner,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *holdingService) Queue(name string) Queue {
	return &holdingQueue{Queue: s.inner.Queue(name), svc: s}
}

func (s *holdingService) Close() error { return s.inner.Close() }

func (s *holdingService) hold() {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
}

type holdingQueue struct {
	Queue
	svc *holdingService
}

func (q *holdingQueue) ReceiveOne(ctx context.Context, visibility time.Duration) (*Message, error) {
	msg, err := q.Queue.ReceiveOne(ctx, visibility)
	if msg != nil {
		q.svc.hold()
	}
	return msg, err
}

func (q *holdingQueue) ReceiveMany(ctx context.Context, max int, visibility time.Duration) ([]*Message, error) {
	msgs, err := q.Queue.ReceiveMany(ctx, max, visibility)
	if len(msgs) > 0 {
		q.svc.hold()
	}
	return msgs, err
}
