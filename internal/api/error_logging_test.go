package api

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sungwon/prioq/internal/logger"
)

func TestHandlers_LogBackendErrors(t *testing.T) {
	backendErr := errors.New("connection reset by peer")

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		handler    func(q *mockQueue, d *mockDelivery) http.Handler
		wantStatus int
		wantMsg    string
	}{
		{
			name:   "enqueue",
			method: http.MethodPost, target: "/api/v1/messages?priority=high", body: "hello",
			handler:    func(q *mockQueue, _ *mockDelivery) http.Handler { return EnqueueHandler(q, 1024) },
			wantStatus: http.StatusBadGateway,
			wantMsg:    "failed to enqueue message",
		},
		{
			name:   "count",
			method: http.MethodGet, target: "/api/v1/messages/count?priority=low",
			handler:    func(q *mockQueue, _ *mockDelivery) http.Handler { return CountHandler(q) },
			wantStatus: http.StatusBadGateway,
			wantMsg:    "failed to count messages",
		},
		{
			name:   "clear",
			method: http.MethodDelete, target: "/api/v1/messages",
			handler:    func(q *mockQueue, _ *mockDelivery) http.Handler { return ClearHandler(q) },
			wantStatus: http.StatusBadGateway,
			wantMsg:    "failed to clear messages",
		},
		{
			name:   "readyz",
			method: http.MethodGet, target: "/readyz",
			handler:    func(q *mockQueue, _ *mockDelivery) http.Handler { return ReadyzHandler(q) },
			wantStatus: http.StatusServiceUnavailable,
			wantMsg:    "readiness check failed",
		},
		{
			name:   "resume delivery",
			method: http.MethodPost, target: "/api/v1/delivery/resume",
			handler:    func(_ *mockQueue, d *mockDelivery) http.Handler { return ResumeDeliveryHandler(d) },
			wantStatus: http.StatusConflict,
			wantMsg:    "failed to resume delivery",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			q := newMockQueue()
			q.err = backendErr
			d := &mockDelivery{resumeErr: backendErr}

			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			ctx := logger.WithLogger(req.Context(), zerolog.New(&buf))
			ctx = logger.WithCorrelationID(ctx, "corr-42")
			rec := httptest.NewRecorder()

			tt.handler(q, d).ServeHTTP(rec, req.WithContext(ctx))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			out := buf.String()
			for _, want := range []string{tt.wantMsg, "connection reset by peer", `"correlation_id":"corr-42"`} {
				if !strings.Contains(out, want) {
					t.Errorf("log output %q missing %q", out, want)
				}
			}
		})
	}
}
