package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sungwon/prioq/internal/delivery"
	"github.com/sungwon/prioq/internal/logger"
	"github.com/sungwon/prioq/internal/msgstore"
	"github.com/sungwon/prioq/internal/queue"
)

// Config holds all application configuration.
type Config struct {
	API      APIConfig       `mapstructure:"api"`
	Queue    queue.Config    `mapstructure:"queue"`
	Payload  msgstore.Config `mapstructure:"payload"`
	Delivery delivery.Config `mapstructure:"delivery"`
	Logging  logger.Config   `mapstructure:"logging"`
}

// APIConfig holds HTTP API server configuration.
type APIConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// KeyHash is a bcrypt hash of the API key. Empty disables authentication.
	KeyHash string `mapstructure:"key_hash"`
	// MaxBodyBytes bounds the size of an enqueued message body.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// Addr returns the listen address.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads config.yaml from the given directory. Environment variables
// with prefix PRIOQ override file values, e.g. PRIOQ_QUEUE_BACKEND
// overrides queue.backend.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("PRIOQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers every key so env overrides work even when the
// file omits it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", 10*time.Second)
	v.SetDefault("api.write_timeout", 10*time.Second)
	v.SetDefault("api.key_hash", "")
	v.SetDefault("api.max_body_bytes", 1<<20)

	q := queue.DefaultConfig()
	v.SetDefault("queue.backend", q.Backend)
	v.SetDefault("queue.queue_name", q.QueueName)
	v.SetDefault("queue.visibility_timeout", q.VisibilityTimeout)
	v.SetDefault("queue.batch_size", q.BatchSize)
	v.SetDefault("queue.backoff_base", q.BackoffBase)
	v.SetDefault("queue.backoff_cap", q.BackoffCap)
	v.SetDefault("queue.process_timeout", q.ProcessTimeout)
	v.SetDefault("queue.shutdown_timeout", q.ShutdownTimeout)
	v.SetDefault("queue.redis_addr", q.RedisAddr)
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.sqs_region", q.SQSRegion)
	v.SetDefault("queue.sqs_endpoint", "")
	v.SetDefault("queue.sqs_access_key_id", "")
	v.SetDefault("queue.sqs_secret_access_key", "")
	v.SetDefault("queue.database_url", "")
	v.SetDefault("queue.pool_min", q.PoolMin)
	v.SetDefault("queue.pool_max", q.PoolMax)
	v.SetDefault("queue.connect_timeout", q.ConnectTimeout)

	v.SetDefault("payload.type", "")
	v.SetDefault("payload.threshold", 256*1024)
	v.SetDefault("payload.path", "./data/payloads")
	v.SetDefault("payload.s3_bucket", "")
	v.SetDefault("payload.s3_prefix", "")
	v.SetDefault("payload.s3_endpoint", "")
	v.SetDefault("payload.s3_region", "")

	d := delivery.DefaultConfig()
	v.SetDefault("delivery.type", d.Type)
	v.SetDefault("delivery.mode", d.Mode)
	v.SetDefault("delivery.webhook_url", "")
	v.SetDefault("delivery.timeout", d.Timeout)
	v.SetDefault("delivery.concurrency", d.Concurrency)
	v.SetDefault("delivery.paused", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_files", 5)
}

func (c *Config) validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid api.port: %d", c.API.Port)
	}
	switch c.Queue.Backend {
	case "memory", "redis", "sqs", "postgres":
	default:
		return fmt.Errorf("invalid queue.backend: %q", c.Queue.Backend)
	}
	if c.Queue.Backend == "postgres" && c.Queue.DatabaseURL == "" {
		return fmt.Errorf("queue.database_url is required for the postgres backend")
	}
	if err := c.Delivery.Validate(); err != nil {
		return err
	}
	return nil
}
