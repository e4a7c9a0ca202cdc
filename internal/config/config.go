package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Environment string
	Host        string `toml:"host"`
	Port        int    `toml:"port"`

	// logging
	LogLevel      string `toml:"log_level" env:"LIFTLAB_LOG_LEVEL"`
	LogsPath      string `toml:"logs_path" env:"LIFTLAB_LOGS_PATH"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	SentryEnabled bool   `toml:"sentry_enabled"`

	// postgres, the warehouse holding the cleaned results
	PostgresHost   string `toml:"postgres_host" env:"LIFTLAB_POSTGRES_HOST"`
	PostgresPort   string `toml:"postgres_port" env:"LIFTLAB_POSTGRES_PORT"`
	PostgresDBName string `toml:"postgres_db_name" env:"LIFTLAB_POSTGRES_DB_NAME"`

	// redis, used for aggregation caching and rate limiting
	RedisHost string `toml:"redis_host" env:"LIFTLAB_REDIS_HOST"`
	RedisPort string `toml:"redis_port" env:"LIFTLAB_REDIS_PORT"`

	// dataset source: "postgres" or "csv" (local snapshot file)
	DataSource      string `toml:"data_source" env:"LIFTLAB_DATA_SOURCE"`
	SnapshotCsvPath string `toml:"snapshot_csv_path" env:"LIFTLAB_SNAPSHOT_CSV_PATH"`

	// data dirs used by the import pipeline and the scheduler
	RawDataDir       string `toml:"raw_data_dir"`
	ProcessedDataDir string `toml:"processed_data_dir"`
	CacheDir         string `toml:"cache_dir"`
	BackupDir        string `toml:"backup_dir"`

	DownloadURL string `toml:"download_url" env:"LIFTLAB_DOWNLOAD_URL"`

	// prometheus metrics server
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`

	// comparison endpoint policy
	CompareRateLimitAllowedPerMin int `toml:"compare_rate_limit_allowed_per_min"`
	MinCohortSize                 int `toml:"min_cohort_size"`

	// scheduler cron expressions (standard 5-field specs)
	RefreshSchedule string `toml:"refresh_schedule"`
	BackupSchedule  string `toml:"backup_schedule"`
	CleanupSchedule string `toml:"cleanup_schedule"`
	HealthSchedule  string `toml:"health_schedule"`
	StatusSchedule  string `toml:"status_schedule"`

	GDriveBackupEnabled bool `toml:"gdrive_backup_enabled"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	switch strings.ToLower(env) {
	case "dev", "development":
		return t.Development, nil
	case "prod", "production":
		return t.Production, nil
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
}

// Load reads the TOML config file, picks the section for env,
// then applies environment variable overrides on top.
func Load(ctx context.Context, env, path string) (*Config, error) {
	var tomlConfig Toml
	if _, err := toml.DecodeFile(path, &tomlConfig); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}

	cfg, err := tomlConfig.Get(env)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("config section for env %s missing", env)
	}

	cfg.Environment = env

	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, fmt.Errorf("process env overrides: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.DataSource == "" {
		cfg.DataSource = "postgres"
	}
	if cfg.MinCohortSize == 0 {
		cfg.MinCohortSize = 10
	}
	if cfg.CompareRateLimitAllowedPerMin == 0 {
		cfg.CompareRateLimitAllowedPerMin = 30
	}
	if cfg.RefreshSchedule == "" {
		cfg.RefreshSchedule = "0 */4 * * *"
	}
	if cfg.BackupSchedule == "" {
		cfg.BackupSchedule = "0 3 * * *"
	}
	if cfg.CleanupSchedule == "" {
		cfg.CleanupSchedule = "0 4 * * 0"
	}
	if cfg.HealthSchedule == "" {
		cfg.HealthSchedule = "*/30 * * * *"
	}
	if cfg.StatusSchedule == "" {
		cfg.StatusSchedule = "*/5 * * * *"
	}
}
