package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "loanbook.db", cfg.DBPath)
	assert.Equal(t, 3, cfg.WarnWindowDays)
	assert.Equal(t, 7, cfg.DueSoonDays)
	assert.Equal(t, 24*time.Hour, cfg.AlertInterval)
	assert.False(t, cfg.ArchiveEnabled())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LOANBOOK_ADDR", ":9090")
	t.Setenv("LOANBOOK_WARN_WINDOW_DAYS", "5")
	t.Setenv("LOANBOOK_S3_ENDPOINT", "localhost:9000")
	t.Setenv("LOANBOOK_S3_BUCKET", "backups")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 5, cfg.WarnWindowDays)
	assert.True(t, cfg.ArchiveEnabled())
	assert.Equal(t, "backups", cfg.Archive().Bucket)
	assert.Equal(t, "exports", cfg.Archive().Prefix)
}

func TestLoadRejectsNegativeWindow(t *testing.T) {
	t.Setenv("LOANBOOK_WARN_WINDOW_DAYS", "-1")

	_, err := Load()
	assert.Error(t, err)
}
