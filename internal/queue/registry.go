package queue

import (
	"context"
	"fmt"
	"sync"
)

// registry maps priority levels to lazily resolved queue handles. Once a
// level resolves, the handle is cached for the registry's lifetime.
type registry struct {
	service Service
	base    string
	entries map[Priority]*registryEntry // fixed at construction
}

type registryEntry struct {
	mu    sync.Mutex
	queue Queue
}

func newRegistry(service Service, base string, levels []Priority) *registry {
	entries := make(map[Priority]*registryEntry, len(levels))
	for _, p := range levels {
		entries[p] = &registryEntry{}
	}
	return &registry{service: service, base: base, entries: entries}
}

// resolve returns the handle for p. With create set, the backing queue is
// created when missing. It returns (nil, nil) when the queue does not exist;
// absent levels are not cached.
//
// Resolution of a single level is serialized so concurrent callers never
// issue duplicate create calls.
func (r *registry) resolve(ctx context.Context, p Priority, create bool) (Queue, error) {
	entry, ok := r.entries[p]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPriority, int(p))
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.queue != nil {
		return entry.queue, nil
	}

	q := r.service.Queue(queueName(r.base, p))

	if create {
		if err := q.CreateIfNotExists(ctx); err != nil {
			return nil, fmt.Errorf("create queue %s: %w", q.Name(), err)
		}
	}

	exists, err := q.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check queue %s: %w", q.Name(), err)
	}
	if !exists {
		return nil, nil
	}

	entry.queue = q
	return q, nil
}
