package config

import (
	"testing"
	"time"
)

func TestLoadIncludesQueueRetryDefaults(t *testing.T) {
	t.Setenv("QUEUE_MAX_ATTEMPTS", "")
	t.Setenv("QUEUE_RETRY_MIN_DELAY", "")
	t.Setenv("QUEUE_RETRY_MAX_DELAY", "")
	t.Setenv("WORKER_COUNT", "")

	cfg := Load()
	if cfg.QueueMaxAttempts != 5 {
		t.Fatalf("expected default max attempts 5, got %d", cfg.QueueMaxAttempts)
	}
	if cfg.QueueRetryMinDelay != 10*time.Second {
		t.Fatalf("expected default min delay 10s, got %s", cfg.QueueRetryMinDelay)
	}
	if cfg.QueueRetryMaxDelay != 600*time.Second {
		t.Fatalf("expected default max delay 600s, got %s", cfg.QueueRetryMaxDelay)
	}
	if cfg.WorkerCount != 4 {
		t.Fatalf("expected default worker count 4, got %d", cfg.WorkerCount)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("QUEUE_MAX_ATTEMPTS", "3")
	t.Setenv("QUEUE_RETRY_MIN_DELAY", "2s")
	t.Setenv("WATCHER_INTERVAL", "30s")
	t.Setenv("API_RATE_LIMIT_RPS", "10")

	cfg := Load()
	if cfg.QueueMaxAttempts != 3 {
		t.Fatalf("expected max attempts 3, got %d", cfg.QueueMaxAttempts)
	}
	if cfg.QueueRetryMinDelay != 2*time.Second {
		t.Fatalf("expected min delay 2s, got %s", cfg.QueueRetryMinDelay)
	}
	if cfg.WatcherInterval != 30*time.Second {
		t.Fatalf("expected watcher interval 30s, got %s", cfg.WatcherInterval)
	}
	if cfg.APIRateLimitRPS != 10 {
		t.Fatalf("expected rate limit 10 rps, got %d", cfg.APIRateLimitRPS)
	}
}

func TestLoadFallsBackOnUnparsableValues(t *testing.T) {
	t.Setenv("QUEUE_MAX_ATTEMPTS", "not-a-number")
	t.Setenv("PROCESS_TIMEOUT", "soon")

	cfg := Load()
	if cfg.QueueMaxAttempts != 5 {
		t.Fatalf("expected fallback max attempts 5, got %d", cfg.QueueMaxAttempts)
	}
	if cfg.ProcessTimeout != 5*time.Minute {
		t.Fatalf("expected fallback process timeout 5m, got %s", cfg.ProcessTimeout)
	}
}
