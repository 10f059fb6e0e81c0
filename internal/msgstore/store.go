// Package msgstore provides payload stores for message contents that are too
// large to travel through the queue service itself.
package msgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when a requested payload does not exist.
	ErrNotFound = errors.New("msgstore: payload not found")
	// ErrInvalidKey is returned for empty keys or keys containing path separators.
	ErrInvalidKey = errors.New("msgstore: invalid key")
)

// MessageStore stores opaque payloads by key.
type MessageStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// List returns the keys starting with prefix, in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Config holds configuration for payload offloading.
type Config struct {
	// Type is "local" or "s3". Empty disables offloading.
	Type string `mapstructure:"type"`
	// Threshold is the content size in bytes above which payloads are offloaded.
	Threshold int `mapstructure:"threshold"`

	Path string `mapstructure:"path"` // base directory for local store

	S3Bucket   string `mapstructure:"s3_bucket"`
	S3Prefix   string `mapstructure:"s3_prefix"`
	S3Endpoint string `mapstructure:"s3_endpoint"`
	S3Region   string `mapstructure:"s3_region"`
}

// Enabled reports whether a payload store is configured.
func (c Config) Enabled() bool {
	return c.Type != ""
}

// New creates the MessageStore selected by cfg.Type.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (MessageStore, error) {
	switch cfg.Type {
	case "local":
		log.Info().Str("path", cfg.Path).Msg("using local payload store")
		return NewLocalFileStore(cfg.Path)
	case "s3":
		log.Info().Str("bucket", cfg.S3Bucket).Str("prefix", cfg.S3Prefix).Msg("using s3 payload store")
		return NewS3StoreFromConfig(ctx, cfg)
	default:
		return nil, fmt.Errorf("msgstore: unsupported store type %q", cfg.Type)
	}
}

func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
