// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all watcher configuration.
type Config struct {
	// Server endpoints.
	BaseURL string // REST API root, e.g. "http://localhost:8080".
	PushURL string // Websocket push channel URL, e.g. "ws://localhost:8080/api/push".

	// Token is an opaque bearer token forwarded to both endpoints.
	Token string

	// Scope parameters for the watched feed.
	OrgID     string
	ProjectID string
	IssueID   string
	SourceID  string

	// Buffer limits. FeedLimit bounds the scoped feed store; BadgeLimit
	// bounds the wider org store the badge count draws from.
	FeedLimit  int
	BadgeLimit int

	// LivenessWindow is how long an emission counts as "active".
	LivenessWindow time.Duration

	// HTTPTimeout applies to individual snapshot and sync requests.
	HTTPTimeout time.Duration

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		BaseURL:        envStr("HOTARU_BASE_URL", "http://localhost:8080"),
		PushURL:        envStr("HOTARU_PUSH_URL", "ws://localhost:8080/api/push"),
		Token:          envStr("HOTARU_TOKEN", ""),
		OrgID:          envStr("HOTARU_ORG_ID", ""),
		ProjectID:      envStr("HOTARU_PROJECT_ID", ""),
		IssueID:        envStr("HOTARU_ISSUE_ID", ""),
		SourceID:       envStr("HOTARU_SOURCE_ID", ""),
		FeedLimit:      envInt("HOTARU_FEED_LIMIT", 15),
		BadgeLimit:     envInt("HOTARU_BADGE_LIMIT", 50),
		LivenessWindow: envDuration("HOTARU_LIVENESS_WINDOW", 30*time.Second),
		HTTPTimeout:    envDuration("HOTARU_HTTP_TIMEOUT", 30*time.Second),
		OTELEndpoint:   envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:   envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:    envStr("OTEL_SERVICE_NAME", "hotaru"),
		LogLevel:       envStr("HOTARU_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("config: HOTARU_BASE_URL is required")
	}
	if c.PushURL == "" {
		return fmt.Errorf("config: HOTARU_PUSH_URL is required")
	}
	if c.OrgID == "" {
		return fmt.Errorf("config: HOTARU_ORG_ID is required")
	}
	if c.FeedLimit <= 0 {
		return fmt.Errorf("config: HOTARU_FEED_LIMIT must be positive")
	}
	if c.BadgeLimit <= 0 {
		return fmt.Errorf("config: HOTARU_BADGE_LIMIT must be positive")
	}
	if c.LivenessWindow <= 0 {
		return fmt.Errorf("config: HOTARU_LIVENESS_WINDOW must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
