// Package config loads the relay's environment-driven configuration.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/sakurairo/danmaku-relay/internal/session"
)

// Environment variable names. The credential variables keep the names the
// upstream service used so existing deployments carry over unchanged.
const (
	EnvAddr           = "RELAY_ADDR"
	EnvWebhookURL     = "RELAY_WEBHOOK_URL"
	EnvAllowedOrigins = "RELAY_ALLOWED_ORIGINS"
	EnvLogLevel       = "RELAY_LOG_LEVEL"
	EnvForwardWorkers = "RELAY_FORWARD_WORKERS"

	EnvAccessKeyID       = "ACCESS_KEY_ID"
	EnvAccessKeySecret   = "ACCESS_KEY_SECRET"
	EnvAppID             = "APP_ID"
	EnvRoomOwnerAuthCode = "ROOM_OWNER_AUTH_CODE"
)

// Config holds the application configuration.
type Config struct {
	Addr           string
	WebhookURL     Secret
	AllowedOrigins []string
	LogLevel       string
	ForwardWorkers int

	// Credentials from the environment. When complete, the relay starts a
	// session at boot without waiting for a /configure call.
	Credentials session.Credentials
}

// DefaultConfig returns a Config with the defaults the upstream service
// shipped with: local bind on port 12346, the stage frontend dev origin.
func DefaultConfig() Config {
	return Config{
		Addr:           "localhost:12346",
		AllowedOrigins: []string{"http://localhost:5173"},
		LogLevel:       "info",
	}
}

// Load reads configuration from the environment on top of the defaults.
func Load() Config {
	cfg := DefaultConfig()

	if v := os.Getenv(EnvAddr); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv(EnvWebhookURL); v != "" {
		cfg.WebhookURL = Secret(v)
	}
	if v := os.Getenv(EnvAllowedOrigins); v != "" {
		cfg.AllowedOrigins = splitOrigins(v)
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(EnvForwardWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ForwardWorkers = n
		}
	}

	cfg.Credentials = session.Credentials{
		AccessKeyID:       os.Getenv(EnvAccessKeyID),
		AccessKeySecret:   os.Getenv(EnvAccessKeySecret),
		RoomOwnerAuthCode: os.Getenv(EnvRoomOwnerAuthCode),
	}
	if v := os.Getenv(EnvAppID); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Credentials.AppID = id
		}
	}

	return cfg
}

// HasCredentials reports whether the environment supplied a complete
// credential set for auto-start.
func (c Config) HasCredentials() bool {
	return c.Credentials.Validate() == nil
}

func splitOrigins(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
