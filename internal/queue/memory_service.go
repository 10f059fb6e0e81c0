package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultMemoryVisibility mirrors the 30s default used by hosted services.
const defaultMemoryVisibility = 30 * time.Second

// MemoryService is an in-process queue service. It implements the same
// visibility-timeout and receipt semantics as the hosted backends and is used
// for local development and tests.
type MemoryService struct {
	mu     sync.Mutex
	queues map[string]*memoryQueueState
	now    func() time.Time
}

type memoryQueueState struct {
	entries []*memoryEntry // insertion order
}

type memoryEntry struct {
	id           string
	receipt      string
	content      string
	insertedAt   time.Time
	visibleAt    time.Time
	expiresAt    time.Time // zero: never
	dequeueCount int
}

// NewMemoryService creates an empty MemoryService.
func NewMemoryService() *MemoryService {
	return &MemoryService{
		queues: make(map[string]*memoryQueueState),
		now:    time.Now,
	}
}

// Queue returns a handle to the named queue.
func (s *MemoryService) Queue(name string) Queue {
	return &memoryQueue{service: s, name: name}
}

// Close implements Service.
func (s *MemoryService) Close() error {
	return nil
}

// memoryQueue is a handle to one named queue in a MemoryService.
type memoryQueue struct {
	service *MemoryService
	name    string
}

func (q *memoryQueue) Name() string { return q.name }

func (q *memoryQueue) CreateIfNotExists(_ context.Context) error {
	q.service.mu.Lock()
	defer q.service.mu.Unlock()
	if _, ok := q.service.queues[q.name]; !ok {
		q.service.queues[q.name] = &memoryQueueState{}
	}
	return nil
}

func (q *memoryQueue) Exists(_ context.Context) (bool, error) {
	q.service.mu.Lock()
	defer q.service.mu.Unlock()
	_, ok := q.service.queues[q.name]
	return ok, nil
}

func (q *memoryQueue) Send(_ context.Context, content string, opts SendOptions) (string, error) {
	q.service.mu.Lock()
	defer q.service.mu.Unlock()

	state, err := q.stateLocked()
	if err != nil {
		return "", err
	}

	now := q.service.now()
	entry := &memoryEntry{
		id:         uuid.New().String(),
		content:    content,
		insertedAt: now,
		visibleAt:  now.Add(opts.Delay),
	}
	if opts.TTL > 0 {
		entry.expiresAt = now.Add(opts.TTL)
	}
	state.entries = append(state.entries, entry)

	return entry.id, nil
}

func (q *memoryQueue) ReceiveOne(ctx context.Context, visibility time.Duration) (*Message, error) {
	msgs, err := q.ReceiveMany(ctx, 1, visibility)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return msgs[0], nil
}

func (q *memoryQueue) ReceiveMany(_ context.Context, max int, visibility time.Duration) ([]*Message, error) {
	if visibility <= 0 {
		visibility = defaultMemoryVisibility
	}

	q.service.mu.Lock()
	defer q.service.mu.Unlock()

	state, err := q.stateLocked()
	if err != nil {
		return nil, err
	}

	now := q.service.now()
	state.dropExpired(now)

	var out []*Message
	for _, e := range state.entries {
		if len(out) >= max {
			break
		}
		if e.visibleAt.After(now) {
			continue
		}
		e.visibleAt = now.Add(visibility)
		e.receipt = uuid.New().String()
		e.dequeueCount++
		out = append(out, &Message{
			ID:           e.id,
			Receipt:      e.receipt,
			Content:      e.content,
			DequeueCount: e.dequeueCount,
			InsertedAt:   e.insertedAt,
			queue:        q,
		})
	}
	return out, nil
}

func (q *memoryQueue) ApproximateCount(_ context.Context) (int, error) {
	q.service.mu.Lock()
	defer q.service.mu.Unlock()

	state, err := q.stateLocked()
	if err != nil {
		return 0, err
	}
	state.dropExpired(q.service.now())
	return len(state.entries), nil
}

func (q *memoryQueue) Clear(_ context.Context) error {
	q.service.mu.Lock()
	defer q.service.mu.Unlock()

	state, err := q.stateLocked()
	if err != nil {
		return err
	}
	state.entries = nil
	return nil
}

func (q *memoryQueue) Delete(_ context.Context, msg *Message) error {
	q.service.mu.Lock()
	defer q.service.mu.Unlock()

	state, err := q.stateLocked()
	if err != nil {
		return err
	}
	for i, e := range state.entries {
		if e.id == msg.ID && e.receipt == msg.Receipt {
			state.entries = append(state.entries[:i], state.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("delete %s from %s: %w", msg.ID, q.name, ErrMessageNotFound)
}

// stateLocked returns the queue's state. Caller must hold service.mu.
func (q *memoryQueue) stateLocked() (*memoryQueueState, error) {
	state, ok := q.service.queues[q.name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", q.name, ErrQueueNotFound)
	}
	return state, nil
}

func (s *memoryQueueState) dropExpired(now time.Time) {
	kept := s.entries[:0]
	for _, e := range s.entries {
		if !e.expiresAt.IsZero() && !e.expiresAt.After(now) {
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
}
