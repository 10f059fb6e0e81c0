package queue

import (
	"fmt"
	"strings"
)

// Priority is a service class. Higher values are polled first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityDefault
	PriorityHigh
)

// Priorities lists every priority level, highest first. This is the order the
// dispatch loop polls in.
var Priorities = []Priority{PriorityHigh, PriorityDefault, PriorityLow}

var priorityNames = map[Priority]string{
	PriorityLow:     "low",
	PriorityDefault: "default",
	PriorityHigh:    "high",
}

// String returns the lowercase level name used in physical queue names.
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Valid reports whether p is one of the known levels.
func (p Priority) Valid() bool {
	_, ok := priorityNames[p]
	return ok
}

// ParsePriority converts a level name (case-insensitive) to a Priority.
func ParsePriority(s string) (Priority, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for p, n := range priorityNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPriority, s)
}

// queueName derives the physical queue name for a level.
func queueName(base string, p Priority) string {
	return base + "-" + p.String()
}
