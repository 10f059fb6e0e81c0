package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sungwon/prioq/internal/queue"
)

// maxErrorBody bounds how much of a rejected response is kept in the error.
const maxErrorBody = 512

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// WebhookTarget POSTs each message body to a URL. Message metadata travels
// in X-Prioq-* headers.
type WebhookTarget struct {
	url     string
	headers map[string]string
	client  HTTPClient
}

func NewWebhookTarget(url string, headers map[string]string, client HTTPClient) *WebhookTarget {
	return &WebhookTarget{url: url, headers: headers, client: client}
}

func (t *WebhookTarget) Name() string { return "webhook" }

func (t *WebhookTarget) Deliver(ctx context.Context, msg *queue.Message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader([]byte(msg.Content)))
	if err != nil {
		return &TargetError{Target: t.Name(), Message: err.Error(), Permanent: true}
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	req.Header.Set("X-Prioq-Message-Id", msg.ID)
	req.Header.Set("X-Prioq-Priority", msg.Priority.String())
	req.Header.Set("X-Prioq-Dequeue-Count", strconv.Itoa(msg.DequeueCount))
	if !msg.InsertedAt.IsZero() {
		req.Header.Set("X-Prioq-Inserted-At", msg.InsertedAt.UTC().Format(time.RFC3339Nano))
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return classifyStatus(t.Name(), resp.StatusCode, string(body))
}
