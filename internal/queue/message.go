package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Message is an item received from a priority level.
//
// The receiving handler owns it exclusively. Calling Delete acknowledges it;
// an undeleted message becomes visible again once the service's visibility
// timeout elapses.
type Message struct {
	ID           string
	Receipt      string
	Content      string
	Priority     Priority
	DequeueCount int
	InsertedAt   time.Time

	queue      Queue
	payloadRef string
}

// Delete removes the message from the queue it was received from.
func (m *Message) Delete(ctx context.Context) error {
	if m.queue == nil {
		return fmt.Errorf("delete message %s: %w", m.ID, ErrQueueNotFound)
	}
	return m.queue.Delete(ctx, m)
}

// QueueName returns the physical queue the message was received from.
func (m *Message) QueueName() string {
	if m.queue == nil {
		return ""
	}
	return m.queue.Name()
}

// Decode unmarshals JSON content produced by EnqueueValue.
func (m *Message) Decode(v any) error {
	if err := json.Unmarshal([]byte(m.Content), v); err != nil {
		return fmt.Errorf("decode message %s: %w", m.ID, err)
	}
	return nil
}

// Encoder turns an arbitrary value into message content.
type Encoder func(v any) (string, error)

// JSONEncoder is the default Encoder.
func JSONEncoder(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	return string(data), nil
}
