package queue

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Backend != "memory" {
		t.Errorf("Backend = %s, want memory", cfg.Backend)
	}
	if cfg.QueueName != "prioq" {
		t.Errorf("QueueName = %s, want prioq", cfg.QueueName)
	}
	if cfg.BatchSize != 32 {
		t.Errorf("BatchSize = %d, want 32", cfg.BatchSize)
	}
	if cfg.BackoffBase != time.Second || cfg.BackoffCap != 8*time.Second {
		t.Errorf("backoff = %v/%v, want 1s/8s", cfg.BackoffBase, cfg.BackoffCap)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 30s", cfg.ShutdownTimeout)
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{QueueName: "jobs", BatchSize: -1, BackoffCap: 2 * time.Second}.withDefaults()

	if cfg.QueueName != "jobs" {
		t.Errorf("QueueName = %s, want jobs", cfg.QueueName)
	}
	if cfg.BatchSize != 32 {
		t.Errorf("BatchSize = %d, want 32", cfg.BatchSize)
	}
	if cfg.BackoffCap != 2*time.Second {
		t.Errorf("BackoffCap = %v, want 2s", cfg.BackoffCap)
	}
	if cfg.BackoffBase != time.Second {
		t.Errorf("BackoffBase = %v, want 1s", cfg.BackoffBase)
	}
	if cfg.Backend != "memory" {
		t.Errorf("Backend = %s, want memory", cfg.Backend)
	}
}
