package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/sungwon/prioq/internal/logger"
	"github.com/sungwon/prioq/internal/queue"
)

// Queue is the part of queue.Dispatcher served over HTTP.
type Queue interface {
	Enqueue(ctx context.Context, content string, opts ...queue.EnqueueOption) (string, error)
	ApproximateCount(ctx context.Context, p queue.Priority) (int, bool, error)
	TotalApproximateCount(ctx context.Context) (int, error)
	Clear(ctx context.Context, p queue.Priority) error
	ClearAll(ctx context.Context) error
}

type enqueueResponse struct {
	ID       string `json:"id"`
	Priority string `json:"priority"`
}

// countResponse carries a nil Count when no queue exists for the level.
type countResponse struct {
	Priority string `json:"priority"`
	Count    *int   `json:"count"`
}

// EnqueueHandler handles POST /api/v1/messages. The request body is the
// message content; priority, ttl and delay come from the query string.
func EnqueueHandler(q Queue, maxBody int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		p := queue.PriorityDefault
		if s := query.Get("priority"); s != "" {
			parsed, err := queue.ParsePriority(s)
			if err != nil {
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			p = parsed
		}

		opts := []queue.EnqueueOption{queue.WithPriority(p)}
		for _, param := range []struct {
			name string
			opt  func(time.Duration) queue.EnqueueOption
		}{
			{"ttl", queue.WithTTL},
			{"delay", queue.WithDelay},
		} {
			s := query.Get(param.name)
			if s == "" {
				continue
			}
			d, err := time.ParseDuration(s)
			if err != nil || d < 0 {
				respondError(w, http.StatusBadRequest, "invalid "+param.name+": "+s)
				return
			}
			opts = append(opts, param.opt(d))
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondError(w, http.StatusRequestEntityTooLarge, "message body too large")
				return
			}
			respondError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		if len(body) == 0 {
			respondError(w, http.StatusBadRequest, "message body is required")
			return
		}

		id, err := q.Enqueue(r.Context(), string(body), opts...)
		if err != nil {
			logger.FromContext(r.Context()).Error().Err(err).
				Str("priority", p.String()).
				Msg("failed to enqueue message")
			respondError(w, http.StatusBadGateway, "failed to enqueue message")
			return
		}

		respondJSON(w, http.StatusCreated, enqueueResponse{ID: id, Priority: p.String()})
	}
}

// CountHandler handles GET /api/v1/messages/count. Without a priority it
// reports the total over all existing levels.
func CountHandler(q Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			label = "all"
			n     int
			ok    bool
			err   error
		)

		if s := r.URL.Query().Get("priority"); s != "" {
			p, perr := queue.ParsePriority(s)
			if perr != nil {
				respondError(w, http.StatusBadRequest, perr.Error())
				return
			}
			label = p.String()
			n, ok, err = q.ApproximateCount(r.Context(), p)
		} else {
			n, err = q.TotalApproximateCount(r.Context())
			ok = true
		}
		if err != nil {
			logger.FromContext(r.Context()).Error().Err(err).Str("priority", label).Msg("failed to count messages")
			respondError(w, http.StatusBadGateway, "failed to count messages")
			return
		}

		resp := countResponse{Priority: label}
		if ok {
			resp.Count = &n
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

// ClearHandler handles DELETE /api/v1/messages. Without a priority every
// level is cleared.
func ClearHandler(q Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		if s := r.URL.Query().Get("priority"); s != "" {
			p, perr := queue.ParsePriority(s)
			if perr != nil {
				respondError(w, http.StatusBadRequest, perr.Error())
				return
			}
			err = q.Clear(r.Context(), p)
		} else {
			err = q.ClearAll(r.Context())
		}
		if err != nil {
			logger.FromContext(r.Context()).Error().Err(err).Msg("failed to clear messages")
			respondError(w, http.StatusBadGateway, "failed to clear messages")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
