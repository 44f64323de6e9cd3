package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/msomdec/tagbatch/internal/service"
)

// config is read from the environment (optionally seeded from .env).
type config struct {
	Port       string
	DBPath     string
	PrefsPath  string
	Debounce   time.Duration
	SessionTTL time.Duration
	QuotaBytes int64
	OpsSecret  string
	LogLevel   slog.Level
}

func loadConfig() (config, error) {
	cfg := config{
		Port:      envOrDefault("PORT", "8080"),
		DBPath:    envOrDefault("DATABASE_PATH", "tagbatch.db"),
		PrefsPath: envOrDefault("PREFS_PATH", "tagbatch-prefs.json"),
		OpsSecret: os.Getenv("OPS_TOKEN_SECRET"),
	}

	var err error
	if cfg.Debounce, err = time.ParseDuration(envOrDefault("SYNC_DEBOUNCE", service.DefaultDebounce.String())); err != nil {
		return cfg, fmt.Errorf("invalid SYNC_DEBOUNCE: %w", err)
	}
	if cfg.SessionTTL, err = time.ParseDuration(envOrDefault("SESSION_TTL", "720h")); err != nil {
		return cfg, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}
	if cfg.QuotaBytes, err = strconv.ParseInt(envOrDefault("BLOB_QUOTA_BYTES", strconv.Itoa(512<<20)), 10, 64); err != nil {
		return cfg, fmt.Errorf("invalid BLOB_QUOTA_BYTES: %w", err)
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(envOrDefault("LOG_LEVEL", "info"))); err != nil {
		return cfg, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	return cfg, nil
}

func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
