package queue

import "errors"

var (
	// ErrQueueNotFound is returned by a backend when the physical queue does
	// not exist.
	ErrQueueNotFound = errors.New("queue: queue not found")

	// ErrMessageNotFound is returned by Delete when the message is gone or its
	// receipt is stale (it was received again by someone else).
	ErrMessageNotFound = errors.New("queue: message not found")

	// ErrUnknownPriority is returned when a priority name or value is not one
	// of the configured levels.
	ErrUnknownPriority = errors.New("queue: unknown priority")

	// ErrStopped is returned when subscribing on a dispatcher that has been
	// stopped.
	ErrStopped = errors.New("queue: dispatcher stopped")
)
