package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dlukic/liftlab/internal/backup"
	"github.com/dlukic/liftlab/internal/cache"
	"github.com/dlukic/liftlab/internal/cleaner"
	"github.com/dlukic/liftlab/internal/config"
	"github.com/dlukic/liftlab/internal/dataset"
	"github.com/dlukic/liftlab/internal/db"
	"github.com/dlukic/liftlab/internal/fetch"
	"github.com/dlukic/liftlab/internal/logging"
	"github.com/dlukic/liftlab/internal/schedule"
	"github.com/dlukic/liftlab/internal/telemetry/metrics"
	"github.com/dlukic/liftlab/internal/telemetry/tracing"
)

// liftlab scheduler: the companion cron process that keeps the dataset
// fresh. Subcommands:
//
//	start  - run the scheduler in the foreground (default)
//	stop   - signal a running scheduler to shut down
//	status - print the status file of a running scheduler

func main() {
	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	gdCredsPath := flag.String("gd-creds", "", "google drive credentials json, for offsite backups")
	metricsPort := flag.String("metrics-port", "", "prometheus metrics port (empty to disable)")
	flag.Parse()

	command := "start"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(ctx, *env, *configPath)
	if err != nil {
		log.Fatalf("load config: %s", err)
	}

	pidPath := filepath.Join(cfg.CacheDir, "scheduler.pid")
	statusPath := filepath.Join(cfg.CacheDir, "scheduler-status.json")

	switch command {
	case "start":
		start(ctx, cancel, cfg, pidPath, statusPath, *gdCredsPath, *metricsPort)
	case "stop":
		if err := schedule.Stop(pidPath); err != nil {
			log.Fatalf("stop scheduler: %s", err)
		}
		fmt.Println("scheduler stop signal sent")
	case "status":
		status, err := schedule.ReadStatus(statusPath)
		if err != nil {
			log.Fatalf("read scheduler status: %s", err)
		}
		statusJson, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			log.Fatalf("marshal scheduler status: %s", err)
		}
		fmt.Println(string(statusJson))
	default:
		log.Fatalf("unknown command: %s [use start | stop | status]", command)
	}
}

func start(
	ctx context.Context,
	cancel context.CancelFunc,
	cfg *config.Config,
	pidPath, statusPath, gdCredsPath, metricsPort string,
) {
	logging.Setup(logging.LoggerSetupParams{
		LogFileName:      cfg.LogsPath,
		LogToStdout:      cfg.LogToStdout,
		LogLevel:         cfg.LogLevel,
		LogFormatJSON:    false,
		Environment:      cfg.Environment,
		SentryEnabled:    cfg.SentryEnabled,
		SentryDSN:        os.Getenv("SENTRY_DSN"),
		SentryServerName: "liftlab-scheduler",
	})

	honeycombEnabled := os.Getenv("HONEYCOMB_ENABLED") == "true"
	otelShutdown, err := tracing.HoneycombSetup(honeycombEnabled, "liftlab-scheduler")
	if err != nil {
		log.Fatalf("otel setup: %s", err)
	}
	defer otelShutdown()

	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		log.Fatalf("create cache dir: %s", err)
	}

	promRegistry := metrics.SetupPrometheus()
	instr := metrics.NewManager("liftlab", "scheduler", promRegistry)
	if metricsPort != "" {
		go serveMetrics(promRegistry, net.JoinHostPort(cfg.PrometheusMetricsHost, metricsPort))
	}

	var sink schedule.DatasetSink
	if cfg.DataSource == "postgres" {
		dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
			DBHost:         cfg.PostgresHost,
			DBPort:         cfg.PostgresPort,
			DBName:         cfg.PostgresDBName,
			TracingEnabled: honeycombEnabled,
		})
		if err != nil {
			log.Fatalf("new db pool: %s", err)
		}
		defer dbPool.Close()
		sink = dataset.NewRepo(dbPool)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
		Password: os.Getenv("LIFTLAB_REDIS_PASS"),
		DB:       0,
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Errorf("close redis client: %s", err)
		}
	}()
	invalidator := cache.NewRedis(rdb, "liftlab-agg", 0)

	var uploader backup.Uploader
	if cfg.GDriveBackupEnabled {
		if gdCredsPath == "" {
			log.Fatalln("google drive backup enabled, but credentials json not given [-gd-creds]")
		}
		credsJson, err := os.ReadFile(gdCredsPath)
		if err != nil {
			log.Fatalf("read google drive credentials: %s", err)
		}
		uploader, err = backup.NewGoogleDriveUploader(ctx, credsJson)
		if err != nil {
			log.Fatalf("new google drive uploader: %s", err)
		}
	}
	// a nil uploader keeps backups local only
	backupService := backup.NewService(cfg.ProcessedDataDir, cfg.BackupDir, uploader)

	tracedHttpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   10 * time.Minute,
	}
	downloader := fetch.NewDownloader(tracedHttpClient, cfg.DownloadURL, cfg.RawDataDir)
	healthURL := fmt.Sprintf(
		"http://%s/health",
		net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
	)

	scheduler := schedule.NewScheduler(
		pidPath,
		statusPath,
		instr,
		schedule.NewRefreshJob(
			cfg.RefreshSchedule, downloader, cleaner.New(), cfg.ProcessedDataDir, sink, invalidator, instr,
		),
		schedule.NewBackupJob(cfg.BackupSchedule, backupService, instr),
		schedule.NewCleanupJob(cfg.CleanupSchedule, cfg.RawDataDir),
		schedule.NewHealthCheckJob(cfg.HealthSchedule, healthURL, nil),
		schedule.NewStatusJob(cfg.StatusSchedule, instr),
	)

	chOsInterrupt := make(chan os.Signal, 1)
	signal.Notify(chOsInterrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		receivedSig := <-chOsInterrupt
		log.Warnf("signal [%s] received, stopping scheduler ...", receivedSig)
		cancel()
	}()

	log.Infof("scheduler starting, pid file: %s", pidPath)
	if err := scheduler.Run(ctx); err != nil {
		if errors.Is(err, schedule.ErrAlreadyRunning) {
			log.Fatalf("another scheduler instance is already running")
		}
		log.Fatalf("scheduler run: %s", err)
	}
	log.Warnln("scheduler shut down")
}

func serveMetrics(promRegistry *prometheus.Registry, addr string) {
	http.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	log.Debugf(" > metrics listening on: [%s]", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Errorf("metrics server: %s", err)
	}
}
