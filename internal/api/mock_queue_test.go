package api

import (
	"context"
	"sync"

	"github.com/sungwon/prioq/internal/queue"
)

type enqueued struct {
	content string
	opts    int
}

// mockQueue implements Queue for handler tests.
type mockQueue struct {
	mu       sync.Mutex
	enqueued []enqueued
	counts   map[queue.Priority]int
	cleared  []string
	err      error
}

func newMockQueue() *mockQueue {
	return &mockQueue{counts: make(map[queue.Priority]int)}
}

func (m *mockQueue) Enqueue(_ context.Context, content string, opts ...queue.EnqueueOption) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.enqueued = append(m.enqueued, enqueued{content: content, opts: len(opts)})
	return "msg-1", nil
}

func (m *mockQueue) ApproximateCount(_ context.Context, p queue.Priority) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, false, m.err
	}
	n, ok := m.counts[p]
	return n, ok, nil
}

func (m *mockQueue) TotalApproximateCount(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	total := 0
	for _, n := range m.counts {
		total += n
	}
	return total, nil
}

func (m *mockQueue) Clear(_ context.Context, p queue.Priority) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.cleared = append(m.cleared, p.String())
	return nil
}

func (m *mockQueue) ClearAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.cleared = append(m.cleared, "all")
	return nil
}

type mockDelivery struct {
	mu        sync.Mutex
	active    bool
	resumeErr error
}

func (m *mockDelivery) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = false
}

func (m *mockDelivery) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resumeErr != nil {
		return m.resumeErr
	}
	m.active = true
	return nil
}

func (m *mockDelivery) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}
