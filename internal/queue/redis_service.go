package queue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// defaultRedisVisibility applies when the caller passes a zero visibility.
const defaultRedisVisibility = 30 * time.Second

// Each queue is a sorted set of message IDs scored by the unix-ms time they
// become visible, plus one hash per message. IDs are zero-padded sequence
// numbers so equal scores keep arrival order.
var (
	redisSendScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return redis.error_reply('NOQUEUE queue does not exist')
end
local seq = redis.call('INCR', KEYS[3])
local id = string.format('%020d', seq)
local key = ARGV[5] .. id
redis.call('HSET', key, 'content', ARGV[1], 'inserted_at', ARGV[2], 'dequeue_count', 0, 'receipt', '')
local ttl = tonumber(ARGV[4])
if ttl > 0 then
  redis.call('PEXPIRE', key, ttl)
end
redis.call('ZADD', KEYS[2], tonumber(ARGV[2]) + tonumber(ARGV[3]), id)
return id
`)

	redisReceiveScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local invisible_until = now + tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local out = {}
while #out < limit do
  local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', now, 'LIMIT', 0, limit - #out)
  if #ids == 0 then
    break
  end
  for _, id in ipairs(ids) do
    local key = ARGV[4] .. id
    local content = redis.call('HGET', key, 'content')
    if not content then
      redis.call('ZREM', KEYS[1], id)
    else
      local receipt = ARGV[5] .. ':' .. id
      local count = redis.call('HINCRBY', key, 'dequeue_count', 1)
      redis.call('HSET', key, 'receipt', receipt)
      redis.call('ZADD', KEYS[1], invisible_until, id)
      local inserted = redis.call('HGET', key, 'inserted_at')
      table.insert(out, {id, receipt, content, count, inserted})
    end
  end
end
return out
`)

	redisDeleteScript = redis.NewScript(`
local receipt = redis.call('HGET', KEYS[2], 'receipt')
if receipt ~= ARGV[2] then
  return 0
end
redis.call('DEL', KEYS[2])
redis.call('ZREM', KEYS[1], ARGV[1])
return 1
`)

	redisClearScript = redis.NewScript(`
local ids = redis.call('ZRANGE', KEYS[1], 0, -1)
for _, id in ipairs(ids) do
  redis.call('DEL', ARGV[1] .. id)
end
redis.call('DEL', KEYS[1])
return #ids
`)
)

// RedisService is a queue service backed by Redis.
type RedisService struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisService creates a RedisService backed by the given Redis client.
func NewRedisService(client *redis.Client) *RedisService {
	return &RedisService{client: client, now: time.Now}
}

// Queue returns a handle to the named queue.
func (s *RedisService) Queue(name string) Queue {
	return &redisQueue{service: s, name: name}
}

// Close closes the underlying Redis client.
func (s *RedisService) Close() error {
	return s.client.Close()
}

type redisQueue struct {
	service *RedisService
	name    string
}

// Keys share the {name} hash tag so every key of a queue lives in one slot.
func (q *redisQueue) metaKey() string      { return "prioq:{" + q.name + "}:meta" }
func (q *redisQueue) readyKey() string     { return "prioq:{" + q.name + "}:ready" }
func (q *redisQueue) seqKey() string       { return "prioq:{" + q.name + "}:seq" }
func (q *redisQueue) msgKeyPrefix() string { return "prioq:{" + q.name + "}:msg:" }

func (q *redisQueue) Name() string { return q.name }

func (q *redisQueue) CreateIfNotExists(ctx context.Context) error {
	now := strconv.FormatInt(q.service.now().UnixMilli(), 10)
	if err := q.service.client.HSetNX(ctx, q.metaKey(), "created_at", now).Err(); err != nil {
		return fmt.Errorf("hsetnx %s: %w", q.metaKey(), err)
	}
	return nil
}

func (q *redisQueue) Exists(ctx context.Context) (bool, error) {
	n, err := q.service.client.Exists(ctx, q.metaKey()).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", q.metaKey(), err)
	}
	return n == 1, nil
}

func (q *redisQueue) Send(ctx context.Context, content string, opts SendOptions) (string, error) {
	id, err := redisSendScript.Run(ctx, q.service.client,
		[]string{q.metaKey(), q.readyKey(), q.seqKey()},
		content,
		q.service.now().UnixMilli(),
		opts.Delay.Milliseconds(),
		opts.TTL.Milliseconds(),
		q.msgKeyPrefix(),
	).Text()
	if err != nil {
		if strings.HasPrefix(err.Error(), "NOQUEUE") {
			return "", fmt.Errorf("%s: %w", q.name, ErrQueueNotFound)
		}
		return "", fmt.Errorf("redis send to %s: %w", q.name, err)
	}
	return id, nil
}

func (q *redisQueue) ReceiveOne(ctx context.Context, visibility time.Duration) (*Message, error) {
	msgs, err := q.ReceiveMany(ctx, 1, visibility)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return msgs[0], nil
}

func (q *redisQueue) ReceiveMany(ctx context.Context, max int, visibility time.Duration) ([]*Message, error) {
	if visibility <= 0 {
		visibility = defaultRedisVisibility
	}

	res, err := redisReceiveScript.Run(ctx, q.service.client,
		[]string{q.readyKey()},
		q.service.now().UnixMilli(),
		visibility.Milliseconds(),
		max,
		q.msgKeyPrefix(),
		uuid.New().String(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("redis receive from %s: %w", q.name, err)
	}

	msgs := make([]*Message, 0, len(res))
	for _, row := range res {
		fields, ok := row.([]interface{})
		if !ok || len(fields) != 5 {
			return nil, fmt.Errorf("redis receive from %s: unexpected row %v", q.name, row)
		}
		msg := &Message{queue: q}
		msg.ID, _ = fields[0].(string)
		msg.Receipt, _ = fields[1].(string)
		msg.Content, _ = fields[2].(string)
		if n, ok := fields[3].(int64); ok {
			msg.DequeueCount = int(n)
		}
		if s, ok := fields[4].(string); ok {
			if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
				msg.InsertedAt = time.UnixMilli(ms)
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// ApproximateCount counts visible and in-flight messages. Messages whose TTL
// lapsed are included until the next receive sweeps them.
func (q *redisQueue) ApproximateCount(ctx context.Context) (int, error) {
	n, err := q.service.client.ZCard(ctx, q.readyKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard %s: %w", q.readyKey(), err)
	}
	return int(n), nil
}

func (q *redisQueue) Clear(ctx context.Context) error {
	if err := redisClearScript.Run(ctx, q.service.client,
		[]string{q.readyKey()},
		q.msgKeyPrefix(),
	).Err(); err != nil {
		return fmt.Errorf("redis clear %s: %w", q.name, err)
	}
	return nil
}

func (q *redisQueue) Delete(ctx context.Context, msg *Message) error {
	n, err := redisDeleteScript.Run(ctx, q.service.client,
		[]string{q.readyKey(), q.msgKeyPrefix() + msg.ID},
		msg.ID,
		msg.Receipt,
	).Int()
	if err != nil {
		return fmt.Errorf("redis delete %s from %s: %w", msg.ID, q.name, err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s from %s: %w", msg.ID, q.name, ErrMessageNotFound)
	}
	return nil
}
