package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sungwon/prioq/internal/queue"
)

func TestEnqueueHandler(t *testing.T) {
	tests := []struct {
		name         string
		query        string
		body         string
		wantStatus   int
		wantPriority string
		wantOpts     int
	}{
		{"default priority", "", "hello", http.StatusCreated, "default", 1},
		{"high priority", "?priority=high", "hello", http.StatusCreated, "high", 1},
		{"case insensitive", "?priority=LOW", "hello", http.StatusCreated, "low", 1},
		{"ttl and delay", "?priority=high&ttl=1h&delay=5s", "hello", http.StatusCreated, "high", 3},
		{"unknown priority", "?priority=urgent", "hello", http.StatusBadRequest, "", 0},
		{"bad ttl", "?ttl=forever", "hello", http.StatusBadRequest, "", 0},
		{"negative delay", "?delay=-5s", "hello", http.StatusBadRequest, "", 0},
		{"empty body", "", "", http.StatusBadRequest, "", 0},
		{"body too large", "", strings.Repeat("x", 65), http.StatusRequestEntityTooLarge, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newMockQueue()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/messages"+tt.query, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			EnqueueHandler(q, 64).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusCreated {
				if len(q.enqueued) != 0 {
					t.Error("message enqueued on failed request")
				}
				return
			}

			var resp enqueueResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.ID != "msg-1" || resp.Priority != tt.wantPriority {
				t.Errorf("response = %+v, want id msg-1 priority %s", resp, tt.wantPriority)
			}
			if len(q.enqueued) != 1 || q.enqueued[0].content != tt.body {
				t.Fatalf("enqueued = %+v", q.enqueued)
			}
			if q.enqueued[0].opts != tt.wantOpts {
				t.Errorf("options = %d, want %d", q.enqueued[0].opts, tt.wantOpts)
			}
		})
	}
}

func TestEnqueueHandler_ServiceError(t *testing.T) {
	q := newMockQueue()
	q.err = errors.New("connection refused")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader("hello"))
	rec := httptest.NewRecorder()
	EnqueueHandler(q, 64).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
}

func TestCountHandler(t *testing.T) {
	q := newMockQueue()
	q.counts[queue.PriorityHigh] = 3
	q.counts[queue.PriorityLow] = 2

	tests := []struct {
		query     string
		wantLabel string
		wantCount *int
	}{
		{"", "all", intPtr(5)},
		{"?priority=high", "high", intPtr(3)},
		{"?priority=default", "default", nil},
	}

	for _, tt := range tests {
		t.Run(tt.wantLabel, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/messages/count"+tt.query, nil)
			rec := httptest.NewRecorder()
			CountHandler(q).ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			var resp countResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Priority != tt.wantLabel {
				t.Errorf("priority = %s, want %s", resp.Priority, tt.wantLabel)
			}
			switch {
			case tt.wantCount == nil && resp.Count != nil:
				t.Errorf("count = %d, want null", *resp.Count)
			case tt.wantCount != nil && (resp.Count == nil || *resp.Count != *tt.wantCount):
				t.Errorf("count = %v, want %d", resp.Count, *tt.wantCount)
			}
		})
	}
}

func TestCountHandler_AbsentLevelEncodesNull(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages/count?priority=low", nil)
	rec := httptest.NewRecorder()
	CountHandler(newMockQueue()).ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), `"count":null`) {
		t.Errorf("body = %s, want count null", rec.Body.String())
	}
}

func TestCountHandler_TotalWithoutLevelsIsZero(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages/count", nil)
	rec := httptest.NewRecorder()
	CountHandler(newMockQueue()).ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), `"count":0`) {
		t.Errorf("body = %s, want count 0", rec.Body.String())
	}
}

func TestCountHandler_BadPriority(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages/count?priority=7", nil)
	rec := httptest.NewRecorder()
	CountHandler(newMockQueue()).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestClearHandler(t *testing.T) {
	tests := []struct {
		query       string
		wantStatus  int
		wantCleared string
	}{
		{"", http.StatusNoContent, "all"},
		{"?priority=low", http.StatusNoContent, "low"},
		{"?priority=nope", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q := newMockQueue()
			req := httptest.NewRequest(http.MethodDelete, "/api/v1/messages"+tt.query, nil)
			rec := httptest.NewRecorder()
			ClearHandler(q).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantCleared == "" {
				if len(q.cleared) != 0 {
					t.Errorf("cleared = %v, want none", q.cleared)
				}
				return
			}
			if len(q.cleared) != 1 || q.cleared[0] != tt.wantCleared {
				t.Errorf("cleared = %v, want [%s]", q.cleared, tt.wantCleared)
			}
		})
	}
}

func intPtr(n int) *int { return &n }
