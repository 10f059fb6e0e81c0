package queue

import (
	"context"
	"sync"
)

// Hub holds at most one item handler and at most one batch handler, and the
// gate the dispatch loop parks on. The gate is open exactly when at least one
// handler is registered.
type Hub struct {
	mu    sync.Mutex
	item  ItemHandler
	batch BatchHandler
	open  chan struct{} // closed while the gate is open
}

// NewHub creates a Hub with no handlers and a closed gate.
func NewHub() *Hub {
	return &Hub{open: make(chan struct{})}
}

// SetItemHandler registers fn as the item handler, replacing any previous one,
// and opens the gate. A nil fn is the same as RemoveItemHandler.
func (h *Hub) SetItemHandler(fn ItemHandler) bool {
	if fn == nil {
		return h.RemoveItemHandler()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.item = fn
	return h.updateGateLocked()
}

// RemoveItemHandler unregisters the item handler. The gate closes only if no
// batch handler remains.
func (h *Hub) RemoveItemHandler() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.item = nil
	return h.updateGateLocked()
}

// SetBatchHandler registers fn as the batch handler, replacing any previous
// one, and opens the gate. A nil fn is the same as RemoveBatchHandler.
func (h *Hub) SetBatchHandler(fn BatchHandler) bool {
	if fn == nil {
		return h.RemoveBatchHandler()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batch = fn
	return h.updateGateLocked()
}

// RemoveBatchHandler unregisters the batch handler. The gate closes only if no
// item handler remains.
func (h *Hub) RemoveBatchHandler() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batch = nil
	return h.updateGateLocked()
}

// Active reports whether the gate is open.
func (h *Hub) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.item != nil || h.batch != nil
}

// Handlers returns a snapshot of the registered handlers.
func (h *Hub) Handlers() (ItemHandler, BatchHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.item, h.batch
}

// WaitUntilActive blocks until the gate is open or ctx is done. It returns
// immediately if the gate is already open.
func (h *Hub) WaitUntilActive(ctx context.Context) error {
	h.mu.Lock()
	open := h.open
	h.mu.Unlock()

	select {
	case <-open:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// updateGateLocked makes the gate channel agree with the handler state and
// returns whether the gate is open. Caller must hold h.mu.
func (h *Hub) updateGateLocked() bool {
	active := h.item != nil || h.batch != nil
	select {
	case <-h.open:
		if !active {
			h.open = make(chan struct{})
		}
	default:
		if active {
			close(h.open)
		}
	}
	return active
}
