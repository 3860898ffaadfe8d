// Package config
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DefinitionsDir string
	DatabaseURL    string
	ListenAddr     string
	MaxWorkers     int
	SearchTimeout  time.Duration
	FetchTimeout   time.Duration
	// Request cache
	CacheTTL           time.Duration
	CacheSweepInterval time.Duration
	// Per-host politeness for the outbound transport
	RateLimitRequests int
	RateLimitWindow   time.Duration
	UserAgent         string
	MaxBodyBytes      int64
	// Logging configuration
	LogFile  string
	LogLevel string
	// Redis health store; empty address keeps statuses in memory
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string
}

func Load() (Config, error) {
	cfg := Config{}

	cfg.DefinitionsDir = getEnv("DEFINITIONS_DIR", "definitions")
	cfg.DatabaseURL = getEnv("DATABASE_URL", "")
	cfg.ListenAddr = getEnv("LISTEN_ADDR", "0.0.0.0:9117")

	cfg.MaxWorkers = getInt("MAX_WORKERS", 8)
	cfg.SearchTimeout = getDuration("SEARCH_TIMEOUT", 20*time.Second)
	cfg.FetchTimeout = getDuration("FETCH_TIMEOUT", 15*time.Second)

	cfg.CacheTTL = getDuration("CACHE_TTL", 5*time.Minute)
	cfg.CacheSweepInterval = getDuration("CACHE_SWEEP_INTERVAL", time.Minute)

	cfg.RateLimitRequests = getInt("RATE_LIMIT_REQUESTS", 5)
	cfg.RateLimitWindow = getDuration("RATE_LIMIT_WINDOW", time.Second)
	cfg.UserAgent = getEnv("USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	cfg.MaxBodyBytes = int64(getInt("MAX_BODY_BYTES", 8<<20))

	cfg.LogFile = getEnv("LOG_FILE", "logs/metasearch.log")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	cfg.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB = getInt("REDIS_DB", 0)
	cfg.RedisKey = getEnv("REDIS_STATUS_KEY", "metasearch:indexer_status")

	if cfg.MaxWorkers < 1 {
		return cfg, fmt.Errorf("MAX_WORKERS must be positive, got %d", cfg.MaxWorkers)
	}
	return cfg, nil
}

// Require reports every listed variable that is unset or empty in one error.
func Require(keys ...string) error {
	var missingVars []string
	for _, key := range keys {
		if strings.TrimSpace(getEnv(key, "")) == "" {
			missingVars = append(missingVars, key)
		}
	}
	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missingVars, ", "))
	}
	return nil
}

// IndexerSetting looks up INDEXER_<ID>_<SETTING>, with the id and setting
// upper-cased and dashes turned into underscores.
func IndexerSetting(indexerID, setting string) (string, bool) {
	key := "INDEXER_" + envName(indexerID) + "_" + envName(setting)
	return os.LookupEnv(key)
}

func envName(s string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(s))
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", raw, "error", err)
		return defaultVal
	}
	return v
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("Invalid duration in environment, using default", "key", key, "value", raw, "error", err)
		return defaultVal
	}
	return v
}
