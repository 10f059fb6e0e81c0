// Package delivery pushes messages received by the dispatcher to a target
// and acknowledges them once the target accepts.
package delivery

import (
	"fmt"
	"time"
)

// Config holds delivery configuration.
type Config struct {
	Type        string            `mapstructure:"type"` // log (default) or webhook
	Mode        string            `mapstructure:"mode"` // item (default) or batch
	WebhookURL  string            `mapstructure:"webhook_url"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	Concurrency int               `mapstructure:"concurrency"` // batch fan-out limit
	Paused      bool              `mapstructure:"paused"`      // start without subscribing
	Headers     map[string]string `mapstructure:"headers"`
}

func DefaultConfig() Config {
	return Config{
		Type:        "log",
		Mode:        ModeItem,
		Timeout:     10 * time.Second,
		Concurrency: 8,
	}
}

const (
	ModeItem  = "item"
	ModeBatch = "batch"
)

// Validate checks the type and mode and the webhook URL when required.
func (c Config) Validate() error {
	switch c.Type {
	case "", "log":
	case "webhook":
		if c.WebhookURL == "" {
			return fmt.Errorf("delivery.webhook_url is required for webhook delivery")
		}
	default:
		return fmt.Errorf("invalid delivery.type: %q", c.Type)
	}
	switch c.Mode {
	case "", ModeItem, ModeBatch:
	default:
		return fmt.Errorf("invalid delivery.mode: %q", c.Mode)
	}
	return nil
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Type == "" {
		c.Type = def.Type
	}
	if c.Mode == "" {
		c.Mode = def.Mode
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	return c
}
