package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/sungwon/prioq/internal/queue"
)

// Target receives pushed messages. A nil error means the message was
// accepted and may be deleted from its queue.
type Target interface {
	Deliver(ctx context.Context, msg *queue.Message) error
	Name() string
}

// TargetError describes a rejected delivery.
type TargetError struct {
	Target     string
	StatusCode int
	Message    string
	// Permanent means redelivery cannot succeed.
	Permanent bool
}

func (e *TargetError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Target, e.StatusCode, e.Message)
	}
	return e.Target + ": " + e.Message
}

// IsPermanent reports whether err is a permanent TargetError. Unknown errors
// are treated as transient.
func IsPermanent(err error) bool {
	var te *TargetError
	if errors.As(err, &te) {
		return te.Permanent
	}
	return false
}

// classifyStatus returns nil for 2xx responses. 408 and 429 are transient,
// other 4xx permanent, 5xx transient.
func classifyStatus(target string, status int, body string) error {
	if status >= 200 && status < 300 {
		return nil
	}
	te := &TargetError{Target: target, StatusCode: status, Message: body}
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		te.Permanent = false
	case status >= 400 && status < 500:
		te.Permanent = true
	}
	return te
}

// NewTarget creates the target selected by cfg.Type.
func NewTarget(cfg Config, log zerolog.Logger) (Target, error) {
	cfg = cfg.withDefaults()
	switch cfg.Type {
	case "log":
		return NewLogTarget(log), nil
	case "webhook":
		return NewWebhookTarget(cfg.WebhookURL, cfg.Headers, NewHTTPClient(cfg.Timeout)), nil
	default:
		return nil, fmt.Errorf("unknown delivery type: %s", cfg.Type)
	}
}

// LogTarget writes each message to the logger and accepts it.
type LogTarget struct {
	log zerolog.Logger
}

func NewLogTarget(log zerolog.Logger) *LogTarget {
	return &LogTarget{log: log}
}

func (t *LogTarget) Name() string { return "log" }

func (t *LogTarget) Deliver(_ context.Context, msg *queue.Message) error {
	t.log.Info().
		Str("message_id", msg.ID).
		Str("priority", msg.Priority.String()).
		Int("dequeue_count", msg.DequeueCount).
		Int("size", len(msg.Content)).
		Str("content", msg.Content).
		Msg("message delivered")
	return nil
}
