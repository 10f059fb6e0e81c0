package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sungwon/prioq/internal/storage"
)

// NewService creates the queue service selected by cfg.Backend.
func NewService(ctx context.Context, cfg Config, log zerolog.Logger) (Service, error) {
	cfg = cfg.withDefaults()

	switch cfg.Backend {
	case "memory":
		log.Warn().Msg("using in-memory queue service; messages do not survive restarts")
		return NewMemoryService(), nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		return NewRedisService(client), nil

	case "sqs":
		client, err := newAWSSQSClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create sqs client: %w", err)
		}
		return NewSQSService(client, log), nil

	case "postgres":
		db, err := storage.NewDB(ctx, storage.PoolConfig{
			URL:            cfg.DatabaseURL,
			MinConns:       cfg.PoolMin,
			MaxConns:       cfg.PoolMax,
			ConnectTimeout: cfg.ConnectTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		svc := NewPostgresService(db.Pool, db.Close)
		if err := svc.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return svc, nil

	default:
		return nil, fmt.Errorf("unknown queue backend: %s", cfg.Backend)
	}
}
