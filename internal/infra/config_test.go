package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaultStorageBaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_BASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "http://localhost:8080/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
}

func TestLoadConfigInheritsPortInStorageBaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("PORT", "1919")
	t.Setenv("STORAGE_BASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "http://localhost:1919/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected missing DATABASE_URL to be rejected")
	}
}

func TestLoadConfigProviderChains(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("VIDEO_PROVIDERS", " wan , veo ")
	t.Setenv("SPEECH_PROVIDERS", "")
	t.Setenv("VIDEO_PLACEHOLDER_ENABLED", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if len(cfg.VideoProviders) != 2 || cfg.VideoProviders[0] != "wan" || cfg.VideoProviders[1] != "veo" {
		t.Fatalf("VideoProviders mismatch: %#v", cfg.VideoProviders)
	}
	if len(cfg.SpeechProviders) != 3 {
		t.Fatalf("expected default speech chain, got %#v", cfg.SpeechProviders)
	}
	if !cfg.PlaceholderEnabled {
		t.Fatal("expected placeholder flag to be honored")
	}
}

func TestLoadConfigPollBudgets(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("GEN_POLL_INTERVAL_SECONDS", "2")
	t.Setenv("GEN_POLL_MAX_ATTEMPTS", "30")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.GenPollInterval != 2*time.Second || cfg.GenPollMaxAttempts != 30 {
		t.Fatalf("poll budget mismatch: %v x %d", cfg.GenPollInterval, cfg.GenPollMaxAttempts)
	}
	if cfg.PublishPollInterval != 5*time.Second || cfg.PublishPollMaxAttempts != 60 {
		t.Fatalf("publish budget defaults mismatch: %v x %d", cfg.PublishPollInterval, cfg.PublishPollMaxAttempts)
	}
}
