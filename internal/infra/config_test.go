package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://proteus-api.live")
	t.Setenv("APP_ENV", "")
	t.Setenv("HTTP_TIMEOUT_SECONDS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.AppEnv != "development" {
		t.Fatalf("AppEnv = %q, want development", cfg.AppEnv)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Fatalf("HTTPTimeout = %v, want 30s", cfg.HTTPTimeout)
	}
	if cfg.WSHandshakeTimeout != 15*time.Second {
		t.Fatalf("WSHandshakeTimeout = %v, want 15s", cfg.WSHandshakeTimeout)
	}
}

func TestLoadConfigRequiresBaseURL(t *testing.T) {
	t.Setenv("API_BASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error when API_BASE_URL is unset")
	}
}

func TestLoadConfigRejectsRelativeBaseURL(t *testing.T) {
	t.Setenv("API_BASE_URL", "proteus-api.live/api")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for a base URL without scheme")
	}
}

func TestLoadConfigHonorsExplicitTimeouts(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://localhost:3000")
	t.Setenv("HTTP_TIMEOUT_SECONDS", "5")
	t.Setenv("WS_HANDSHAKE_TIMEOUT_SECONDS", "2")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.HTTPTimeout != 5*time.Second {
		t.Fatalf("HTTPTimeout = %v, want 5s", cfg.HTTPTimeout)
	}
	if cfg.WSHandshakeTimeout != 2*time.Second {
		t.Fatalf("WSHandshakeTimeout = %v, want 2s", cfg.WSHandshakeTimeout)
	}
}
