package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MAX_WORKERS", "")
	t.Setenv("SEARCH_TIMEOUT", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("MAX_BODY_BYTES", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.MaxWorkers)
	assert.Equal(t, 20*time.Second, cfg.SearchTimeout)
	assert.Equal(t, "", cfg.RedisAddr)
	assert.Equal(t, int64(8<<20), cfg.MaxBodyBytes)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MAX_WORKERS", "3")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("FETCH_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxWorkers)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, 15*time.Second, cfg.FetchTimeout)
}

func TestLoadRejectsNonPositiveWorkers(t *testing.T) {
	t.Setenv("MAX_WORKERS", "0")
	_, err := Load()
	assert.Error(t, err)
}

func TestRequireNamesEveryMissingVariable(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DEFINITIONS_DIR", "")
	err := Require("DATABASE_URL", "DEFINITIONS_DIR")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL, DEFINITIONS_DIR")

	t.Setenv("DATABASE_URL", "postgres://x")
	t.Setenv("DEFINITIONS_DIR", "defs")
	assert.NoError(t, Require("DATABASE_URL", "DEFINITIONS_DIR"))
}

func TestIndexerSetting(t *testing.T) {
	t.Setenv("INDEXER_RU_TRACKER_USERNAME", "alice")

	v, ok := IndexerSetting("ru-tracker", "username")
	assert.True(t, ok)
	assert.Equal(t, "alice", v)

	_, ok = IndexerSetting("ru-tracker", "password")
	assert.False(t, ok)
}
