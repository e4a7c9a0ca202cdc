package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
[development]
host = "localhost"
port = 8080
log_level = "trace"
log_to_stdout = true
postgres_host = "localhost"
postgres_port = "5432"
postgres_db_name = "liftlab_dev"
redis_host = "localhost"
redis_port = "6379"
data_source = "csv"
snapshot_csv_path = "./data/processed/results_clean.csv"
raw_data_dir = "./data/raw"
processed_data_dir = "./data/processed"
cache_dir = "./data/cache"
backup_dir = "./data/backups"
prometheus_metrics_host = "localhost"
prometheus_metrics_port = "2112"

[production]
host = ""
port = 9000
log_level = "debug"
logs_path = "/var/log/liftlab/service.log"
postgres_host = "localhost"
postgres_port = "5432"
postgres_db_name = "liftlab"
redis_host = "localhost"
redis_port = "6379"
min_cohort_size = 25
compare_rate_limit_allowed_per_min = 10
refresh_schedule = "30 */2 * * *"
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0600))
	return path
}

func TestLoad_Development(t *testing.T) {
	path := writeTestConfig(t)

	cfg, err := Load(context.Background(), "development", path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "csv", cfg.DataSource)
	assert.Equal(t, "liftlab_dev", cfg.PostgresDBName)

	// defaults kick in where the file is silent
	assert.Equal(t, 10, cfg.MinCohortSize)
	assert.Equal(t, 30, cfg.CompareRateLimitAllowedPerMin)
	assert.Equal(t, "0 */4 * * *", cfg.RefreshSchedule)
	assert.Equal(t, "0 3 * * *", cfg.BackupSchedule)
}

func TestLoad_Production(t *testing.T) {
	path := writeTestConfig(t)

	cfg, err := Load(context.Background(), "prod", path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 25, cfg.MinCohortSize)
	assert.Equal(t, 10, cfg.CompareRateLimitAllowedPerMin)
	assert.Equal(t, "30 */2 * * *", cfg.RefreshSchedule)
	// postgres is the default source
	assert.Equal(t, "postgres", cfg.DataSource)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeTestConfig(t)

	t.Setenv("LIFTLAB_POSTGRES_HOST", "warehouse.internal")
	t.Setenv("LIFTLAB_LOG_LEVEL", "error")

	cfg, err := Load(context.Background(), "development", path)
	require.NoError(t, err)

	assert.Equal(t, "warehouse.internal", cfg.PostgresHost)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoad_UnknownEnv(t *testing.T) {
	path := writeTestConfig(t)

	_, err := Load(context.Background(), "staging", path)
	require.Error(t, err)
}
