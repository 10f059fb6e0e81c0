package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// sqsMaxBatch is the SQS per-call receive limit.
	sqsMaxBatch = 10
	// sqsMaxDelaySeconds is the SQS DelaySeconds limit.
	sqsMaxDelaySeconds = 900
	// sqsExpiresAtAttr carries a per-message expiry in unix milliseconds;
	// SQS itself only supports a queue-wide retention period.
	sqsExpiresAtAttr = "prioq-expires-at"
)

// SQSService is a queue service backed by AWS SQS, one SQS queue per name.
type SQSService struct {
	client sqsAPI
	log    zerolog.Logger
	now    func() time.Time
}

// NewSQSService creates an SQSService using the given client.
func NewSQSService(client sqsAPI, log zerolog.Logger) *SQSService {
	return &SQSService{client: client, log: log, now: time.Now}
}

// Queue returns a handle to the named SQS queue.
func (s *SQSService) Queue(name string) Queue {
	return &sqsQueue{service: s, name: name}
}

// Close implements Service.
func (s *SQSService) Close() error {
	return nil
}

// sqsQueue resolves its URL on first use and caches it.
type sqsQueue struct {
	service *SQSService
	name    string

	mu  sync.Mutex
	url string
}

func (q *sqsQueue) Name() string { return q.name }

func (q *sqsQueue) queueURL(ctx context.Context) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.url != "" {
		return q.url, nil
	}
	url, err := q.service.client.GetQueueURL(ctx, q.name)
	if err != nil {
		return "", err
	}
	q.url = url
	return url, nil
}

func (q *sqsQueue) CreateIfNotExists(ctx context.Context) error {
	url, err := q.service.client.CreateQueue(ctx, q.name)
	if err != nil {
		return fmt.Errorf("sqs create queue: %w", err)
	}
	q.mu.Lock()
	q.url = url
	q.mu.Unlock()
	return nil
}

func (q *sqsQueue) Exists(ctx context.Context) (bool, error) {
	_, err := q.queueURL(ctx)
	if errors.Is(err, ErrQueueNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqs get queue url: %w", err)
	}
	return true, nil
}

// Send sends content to the queue. The delay is capped at 900 seconds (SQS
// maximum).
func (q *sqsQueue) Send(ctx context.Context, content string, opts SendOptions) (string, error) {
	url, err := q.queueURL(ctx)
	if err != nil {
		return "", err
	}

	input := &sqsSendInput{
		QueueURL:     url,
		MessageBody:  content,
		DelaySeconds: ceilSeconds(opts.Delay, sqsMaxDelaySeconds),
	}
	if opts.TTL > 0 {
		expiresAt := q.service.now().Add(opts.TTL).UnixMilli()
		input.Attributes = map[string]string{sqsExpiresAtAttr: strconv.FormatInt(expiresAt, 10)}
	}

	out, err := q.service.client.SendMessage(ctx, input)
	if err != nil {
		return "", fmt.Errorf("sqs send message: %w", err)
	}
	return out.MessageID, nil
}

func (q *sqsQueue) ReceiveOne(ctx context.Context, visibility time.Duration) (*Message, error) {
	msgs, err := q.ReceiveMany(ctx, 1, visibility)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return msgs[0], nil
}

// ReceiveMany issues as many ReceiveMessage calls as needed to collect up to
// max messages, stopping early once SQS returns a short page. Expired
// messages are deleted instead of returned.
func (q *sqsQueue) ReceiveMany(ctx context.Context, max int, visibility time.Duration) ([]*Message, error) {
	url, err := q.queueURL(ctx)
	if err != nil {
		return nil, err
	}

	var out []*Message
	for len(out) < max {
		n := min(sqsMaxBatch, max-len(out))
		resp, err := q.service.client.ReceiveMessage(ctx, &sqsReceiveInput{
			QueueURL:            url,
			MaxNumberOfMessages: int32(n),
			VisibilityTimeout:   ceilSeconds(visibility, math.MaxInt32),
		})
		if err != nil {
			return out, fmt.Errorf("sqs receive message: %w", err)
		}

		for _, m := range resp.Messages {
			if q.expired(m) {
				q.discard(ctx, url, m)
				continue
			}
			out = append(out, &Message{
				ID:           m.MessageID,
				Receipt:      m.ReceiptHandle,
				Content:      m.Body,
				DequeueCount: m.ReceiveCount,
				InsertedAt:   m.SentAt,
				queue:        q,
			})
		}

		if len(resp.Messages) < n {
			break
		}
	}
	return out, nil
}

func (q *sqsQueue) ApproximateCount(ctx context.Context) (int, error) {
	url, err := q.queueURL(ctx)
	if err != nil {
		return 0, err
	}
	n, err := q.service.client.ApproximateCount(ctx, url)
	if err != nil {
		return 0, fmt.Errorf("sqs get queue attributes: %w", err)
	}
	return n, nil
}

func (q *sqsQueue) Clear(ctx context.Context) error {
	url, err := q.queueURL(ctx)
	if err != nil {
		return err
	}
	if err := q.service.client.PurgeQueue(ctx, url); err != nil {
		return fmt.Errorf("sqs purge queue: %w", err)
	}
	return nil
}

func (q *sqsQueue) Delete(ctx context.Context, msg *Message) error {
	url, err := q.queueURL(ctx)
	if err != nil {
		return err
	}
	if err := q.service.client.DeleteMessage(ctx, &sqsDeleteInput{
		QueueURL:      url,
		ReceiptHandle: msg.Receipt,
	}); err != nil {
		return fmt.Errorf("sqs delete message: %w", err)
	}
	return nil
}

func (q *sqsQueue) expired(m sqsReceivedMessage) bool {
	raw, ok := m.Attributes[sqsExpiresAtAttr]
	if !ok {
		return false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	return !time.UnixMilli(ms).After(q.service.now())
}

// discard deletes an expired message. Failures are only logged; the message
// will be dropped again on its next receive.
func (q *sqsQueue) discard(ctx context.Context, url string, m sqsReceivedMessage) {
	if err := q.service.client.DeleteMessage(ctx, &sqsDeleteInput{
		QueueURL:      url,
		ReceiptHandle: m.ReceiptHandle,
	}); err != nil {
		q.service.log.Error().Err(err).
			Str("sqs_message_id", m.MessageID).
			Str("queue", q.name).
			Msg("failed to delete expired sqs message")
		return
	}
	q.service.log.Debug().
		Str("sqs_message_id", m.MessageID).
		Str("queue", q.name).
		Msg("dropped expired sqs message")
}

// ceilSeconds rounds d up to whole seconds, capped at limit. Non-positive
// durations yield zero.
func ceilSeconds(d time.Duration, limit int32) int32 {
	if d <= 0 {
		return 0
	}
	secs := math.Ceil(d.Seconds())
	if secs > float64(limit) {
		return limit
	}
	return int32(secs)
}
