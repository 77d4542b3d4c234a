package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/copybot/config"
	"github.com/alejandrodnm/copybot/internal/domain"
)

func TestLoad_RepoConfig(t *testing.T) {
	cfg, err := config.Load("config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Mirror.MaxCopyAmount)
	assert.Equal(t, 5000, cfg.Mirror.PollingIntervalMs)
	assert.False(t, cfg.Mirror.AutoCopyEnabled)
	assert.Equal(t, "127.0.0.1:8080", cfg.HTTP.Addr)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse([]byte("mirror:\n  target_user_id: abc\n"))
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.Mirror.TargetUserID)
	assert.Equal(t, 10, cfg.Mirror.MaxCopyAmount)
	assert.Equal(t, 3, cfg.Executor.MaxAttempts)
	assert.Equal(t, "copybot.db", cfg.Storage.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, int64(10_000), cfg.CallTimeout().Milliseconds())
	assert.Equal(t, int64(5000), cfg.Settings().PollingInterval().Milliseconds())
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("KALSHI_EMAIL", "ops@example.com")
	t.Setenv("KALSHI_PASSWORD", "secret")
	t.Setenv("TARGET_USER_ID", "  whale-42 ")
	t.Setenv("MAX_COPY_AMOUNT", "3")
	t.Setenv("AUTO_COPY_ENABLED", "true")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := config.Parse([]byte("mirror:\n  max_copy_amount: 50\n"))
	require.NoError(t, err)

	assert.Equal(t, "ops@example.com", cfg.Kalshi.Email)
	assert.Equal(t, "secret", cfg.Kalshi.Password)
	assert.Equal(t, "whale-42", cfg.Mirror.TargetUserID)
	assert.Equal(t, 3, cfg.Mirror.MaxCopyAmount)
	assert.True(t, cfg.Mirror.AutoCopyEnabled)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestParse_InvalidSettings(t *testing.T) {
	_, err := config.Parse([]byte("mirror:\n  max_copy_amount: -5\n"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	t.Setenv("POLLING_INTERVAL_MS", "soon")
	_, err = config.Parse([]byte("{}"))
	assert.Error(t, err)
}

func TestParse_CredentialsNotReadFromYAML(t *testing.T) {
	cfg, err := config.Parse([]byte("kalshi:\n  email: leaked@example.com\n  password: nope\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Kalshi.Email)
	assert.Empty(t, cfg.Kalshi.Password)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
