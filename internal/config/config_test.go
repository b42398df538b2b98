package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "prod")
	t.Setenv("TABLE_PREFIX", "")
	t.Setenv("REPUBLISH_WORKERS", "not-a-number")

	cfg := Load()

	if cfg.TablePrefix != "prod_" {
		t.Errorf("TablePrefix = %q, want prod_", cfg.TablePrefix)
	}
	if cfg.Debug {
		t.Error("Debug should default to false in prod")
	}
	if cfg.RepublishWorkers != 2 {
		t.Errorf("RepublishWorkers = %d, want default 2", cfg.RepublishWorkers)
	}
	if cfg.OutboxPollInterval != time.Second {
		t.Errorf("OutboxPollInterval = %v, want 1s", cfg.OutboxPollInterval)
	}
}

func TestTablePrefix(t *testing.T) {
	tests := []struct {
		name     string
		env      string
		override string
		want     string
	}{
		{"dev default", "dev", "", "dev_"},
		{"test env", "test", "", "test_"},
		{"unknown env", "staging", "", "dev_"},
		{"override wins", "prod", "tenant1_", "tenant1_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TABLE_PREFIX", tt.override)
			if got := getTablePrefix(tt.env); got != tt.want {
				t.Errorf("getTablePrefix(%q) = %q, want %q", tt.env, got, tt.want)
			}
		})
	}
}

func TestDurationAndIntOverrides(t *testing.T) {
	t.Setenv("OUTBOX_POLL_INTERVAL", "250ms")
	t.Setenv("OUTBOX_BATCH_SIZE", "7")

	cfg := Load()
	if cfg.OutboxPollInterval != 250*time.Millisecond {
		t.Errorf("OutboxPollInterval = %v", cfg.OutboxPollInterval)
	}
	if cfg.OutboxBatchSize != 7 {
		t.Errorf("OutboxBatchSize = %d", cfg.OutboxBatchSize)
	}
}
