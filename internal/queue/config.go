package queue

import "time"

// Config holds configuration for the dispatcher and its backing service.
type Config struct {
	// Backend selects the queue service: "memory" (default), "redis", "sqs"
	// or "postgres".
	Backend   string `mapstructure:"backend"`
	QueueName string `mapstructure:"queue_name"`

	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"` // zero: service default
	BatchSize         int           `mapstructure:"batch_size"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffCap        time.Duration `mapstructure:"backoff_cap"`
	ProcessTimeout    time.Duration `mapstructure:"process_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`

	// Redis-specific config
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	// SQS-specific config
	SQSRegion          string `mapstructure:"sqs_region"`
	SQSEndpoint        string `mapstructure:"sqs_endpoint"` // e.g. localstack
	SQSAccessKeyID     string `mapstructure:"sqs_access_key_id"`
	SQSSecretAccessKey string `mapstructure:"sqs_secret_access_key"`

	// Postgres-specific config
	DatabaseURL    string        `mapstructure:"database_url"`
	PoolMin        int32         `mapstructure:"pool_min"`
	PoolMax        int32         `mapstructure:"pool_max"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:         "memory",
		QueueName:       "prioq",
		BatchSize:       32,
		BackoffBase:     1 * time.Second,
		BackoffCap:      8 * time.Second,
		ProcessTimeout:  30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		RedisAddr:       "localhost:6379",
		SQSRegion:       "us-east-1",
		PoolMin:         1,
		PoolMax:         10,
		ConnectTimeout:  5 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Backend == "" {
		c.Backend = def.Backend
	}
	if c.QueueName == "" {
		c.QueueName = def.QueueName
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = def.BackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = def.BackoffCap
	}
	if c.ProcessTimeout <= 0 {
		c.ProcessTimeout = def.ProcessTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.RedisAddr == "" {
		c.RedisAddr = def.RedisAddr
	}
	if c.SQSRegion == "" {
		c.SQSRegion = def.SQSRegion
	}
	if c.PoolMax <= 0 {
		c.PoolMax = def.PoolMax
	}
	if c.PoolMin <= 0 {
		c.PoolMin = def.PoolMin
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	return c
}
