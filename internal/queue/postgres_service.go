package queue

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// defaultPostgresVisibility applies when the caller passes a zero visibility.
const defaultPostgresVisibility = 30 * time.Second

// postgresSchema creates the tables backing PostgresService. seq gives a
// stable arrival order within a queue.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS prioq_queues (
	name       TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS prioq_messages (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	seq           BIGSERIAL NOT NULL,
	queue_name    TEXT NOT NULL REFERENCES prioq_queues (name) ON DELETE CASCADE,
	content       TEXT NOT NULL,
	receipt       UUID,
	dequeue_count INTEGER NOT NULL DEFAULT 0,
	inserted_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	visible_at    TIMESTAMPTZ NOT NULL,
	expires_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS prioq_messages_ready_idx
	ON prioq_messages (queue_name, visible_at, seq);
`

// pgxQuerier is the subset of pgxpool.Pool used by PostgresService.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresService is a queue service backed by PostgreSQL tables. Receives
// use FOR UPDATE SKIP LOCKED so concurrent consumers never share a message.
type PostgresService struct {
	db    pgxQuerier
	close func()
}

// NewPostgresService creates a PostgresService over db. closeFn, if not nil,
// is called by Close.
func NewPostgresService(db pgxQuerier, closeFn func()) *PostgresService {
	return &PostgresService{db: db, close: closeFn}
}

// EnsureSchema creates the backing tables if they are missing.
func (s *PostgresService) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create prioq schema: %w", err)
	}
	return nil
}

// Queue returns a handle to the named queue.
func (s *PostgresService) Queue(name string) Queue {
	return &postgresQueue{service: s, name: name}
}

// Close releases the connection pool.
func (s *PostgresService) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

type postgresQueue struct {
	service *PostgresService
	name    string
}

func (q *postgresQueue) Name() string { return q.name }

func (q *postgresQueue) CreateIfNotExists(ctx context.Context) error {
	_, err := q.service.db.Exec(ctx,
		`INSERT INTO prioq_queues (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, q.name)
	if err != nil {
		return fmt.Errorf("insert queue %s: %w", q.name, err)
	}
	return nil
}

func (q *postgresQueue) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := q.service.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM prioq_queues WHERE name = $1)`, q.name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("select queue %s: %w", q.name, err)
	}
	return exists, nil
}

func (q *postgresQueue) Send(ctx context.Context, content string, opts SendOptions) (string, error) {
	var expires *time.Time
	if opts.TTL > 0 {
		t := time.Now().Add(opts.TTL)
		expires = &t
	}

	var id string
	err := q.service.db.QueryRow(ctx, `
		INSERT INTO prioq_messages (queue_name, content, visible_at, expires_at)
		VALUES ($1, $2, now() + make_interval(secs => $3), $4)
		RETURNING id::text`,
		q.name, content, opts.Delay.Seconds(), expires,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" { // foreign_key_violation
			return "", fmt.Errorf("%s: %w", q.name, ErrQueueNotFound)
		}
		return "", fmt.Errorf("insert message into %s: %w", q.name, err)
	}
	return id, nil
}

func (q *postgresQueue) ReceiveOne(ctx context.Context, visibility time.Duration) (*Message, error) {
	msgs, err := q.ReceiveMany(ctx, 1, visibility)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return msgs[0], nil
}

func (q *postgresQueue) ReceiveMany(ctx context.Context, max int, visibility time.Duration) ([]*Message, error) {
	if visibility <= 0 {
		visibility = defaultPostgresVisibility
	}

	rows, err := q.service.db.Query(ctx, `
		WITH next AS (
			SELECT id FROM prioq_messages
			WHERE queue_name = $1
			  AND visible_at <= now()
			  AND (expires_at IS NULL OR expires_at > now())
			ORDER BY seq
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE prioq_messages m
		SET visible_at = now() + make_interval(secs => $3),
		    receipt = gen_random_uuid(),
		    dequeue_count = m.dequeue_count + 1
		FROM next
		WHERE m.id = next.id
		RETURNING m.id::text, m.receipt::text, m.content, m.dequeue_count, m.inserted_at, m.seq`,
		q.name, max, visibility.Seconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("receive from %s: %w", q.name, err)
	}
	defer rows.Close()

	type row struct {
		msg *Message
		seq int64
	}
	var received []row
	for rows.Next() {
		msg := &Message{queue: q}
		var seq int64
		if err := rows.Scan(&msg.ID, &msg.Receipt, &msg.Content, &msg.DequeueCount, &msg.InsertedAt, &seq); err != nil {
			return nil, fmt.Errorf("scan message from %s: %w", q.name, err)
		}
		received = append(received, row{msg: msg, seq: seq})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("receive from %s: %w", q.name, err)
	}

	// RETURNING order is unspecified.
	slices.SortFunc(received, func(a, b row) int { return cmp.Compare(a.seq, b.seq) })

	msgs := make([]*Message, len(received))
	for i, r := range received {
		msgs[i] = r.msg
	}
	return msgs, nil
}

func (q *postgresQueue) ApproximateCount(ctx context.Context) (int, error) {
	var n int
	err := q.service.db.QueryRow(ctx, `
		SELECT count(*) FROM prioq_messages
		WHERE queue_name = $1 AND (expires_at IS NULL OR expires_at > now())`,
		q.name,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.name, err)
	}
	return n, nil
}

func (q *postgresQueue) Clear(ctx context.Context) error {
	if _, err := q.service.db.Exec(ctx,
		`DELETE FROM prioq_messages WHERE queue_name = $1`, q.name); err != nil {
		return fmt.Errorf("clear %s: %w", q.name, err)
	}
	return nil
}

func (q *postgresQueue) Delete(ctx context.Context, msg *Message) error {
	tag, err := q.service.db.Exec(ctx,
		`DELETE FROM prioq_messages WHERE id = $1 AND receipt = $2`, msg.ID, msg.Receipt)
	if err != nil {
		return fmt.Errorf("delete %s from %s: %w", msg.ID, q.name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete %s from %s: %w", msg.ID, q.name, ErrMessageNotFound)
	}
	return nil
}
