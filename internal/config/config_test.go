package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "RATE_LIMIT_WINDOW", "REPORTER_TOKENS", "VAPID_PUBLIC_KEY", "VAPID_PRIVATE_KEY", "LOG_FORMAT"} {
		t.Setenv(key, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "8080" || cfg.RateLimitWindow != time.Minute || cfg.PushEnabled() {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if len(cfg.ReporterTokens) != 0 {
		t.Fatalf("reporter tokens should default to none, got %v", cfg.ReporterTokens)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("REPORTER_TOKENS", " a , ,b")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("NOTIFY_QUEUE_SIZE", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "9000" || cfg.RateLimitEnabled {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if len(cfg.ReporterTokens) != 2 || cfg.ReporterTokens[1] != "b" {
		t.Fatalf("tokens %v", cfg.ReporterTokens)
	}
	if cfg.NotifyQueueSize != 256 {
		t.Fatalf("invalid int should fall back, got %d", cfg.NotifyQueueSize)
	}
}

func TestLoadRejectsHalfVAPID(t *testing.T) {
	t.Setenv("VAPID_PUBLIC_KEY", "pub")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing private key")
	}
}

func TestLoadRejectsUnknownLogFormat(t *testing.T) {
	t.Setenv("LOG_FORMAT", "xml")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for LOG_FORMAT=xml")
	}
}
