package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadKeepsDefaultsForMissingSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: DEBUG\njobs:\n  min_batch_size: 50\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, 50, cfg.Jobs.MinBatchSize)
	assert.Equal(t, "*/15 * * * *", cfg.Jobs.MetricsCron)
	assert.Equal(t, 8*time.Hour, cfg.Alerts.DedupWindow)
	assert.Equal(t, 300000, cfg.Sampler.ModelTokenBudget)
	assert.Equal(t, 50000, cfg.Sampler.AgentRunTokenBudget)
	assert.Equal(t, 30*time.Second, cfg.Sampler.QueryTimeout)
	assert.Equal(t, 50, cfg.Jobs.MaxSupportingLogs)
	assert.Equal(t, 0, cfg.Jobs.MaxBatchSize)
}

func TestEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, DefaultConfig().Save(path))

	t.Setenv("GAUGE_REDIS_URL", "redis://cache:6379/0")
	t.Setenv("GAUGE_LOG_LEVEL", "ERROR")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Cache.Provider)
	assert.Equal(t, "redis://cache:6379/0", cfg.Cache.URL)
	assert.Equal(t, "ERROR", cfg.LogLevel)
}

func TestGetConfigPathFromEnv(t *testing.T) {
	t.Setenv("GAUGE_CONFIG_PATH", "/etc/gauge/config.yaml")
	assert.Equal(t, "/etc/gauge/config.yaml", GetConfigPath())
}

func TestLocation(t *testing.T) {
	cfg := DefaultConfig()
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	cfg.Timezone = "Not/AZone"
	_, err = cfg.Location()
	assert.Error(t, err)
}
