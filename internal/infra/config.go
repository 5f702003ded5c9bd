package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config represents client configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	APIBaseURL         string
	AuthToken          string
	CredentialFile     string
	HTTPTimeout        time.Duration
	WSHandshakeTimeout time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		APIBaseURL:         os.Getenv("API_BASE_URL"),
		AuthToken:          os.Getenv("AUTH_TOKEN"),
		CredentialFile:     os.Getenv("CREDENTIAL_FILE"),
		HTTPTimeout:        time.Second * time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 30)),
		WSHandshakeTimeout: time.Second * time.Duration(getEnvInt("WS_HANDSHAKE_TIMEOUT_SECONDS", 15)),
	}

	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL is required")
	}
	parsed, err := url.Parse(cfg.APIBaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("API_BASE_URL %q is not an absolute URL", cfg.APIBaseURL)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
