package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/dlukic/liftlab/internal/cleaner"
	"github.com/dlukic/liftlab/internal/config"
	"github.com/dlukic/liftlab/internal/dataset"
	"github.com/dlukic/liftlab/internal/db"
	"github.com/dlukic/liftlab/internal/fetch"
	"github.com/dlukic/liftlab/internal/logging"
	"github.com/dlukic/liftlab/internal/schedule"
)

// one-shot dataset import: download the raw results export, clean it,
// write the processed snapshot and, when configured, load postgres.
// Used for the initial setup and for manual re-imports; the scheduler
// runs the same pipeline periodically.

func main() {
	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	rawPath := flag.String("raw", "", "skip the download, clean the given raw file instead")
	skipLoad := flag.Bool("skip-load", false, "do not load postgres, only write the snapshot")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(ctx, *env, *configPath)
	if err != nil {
		log.Fatalf("load config: %s", err)
	}

	logging.Setup(logging.LoggerSetupParams{
		LogToStdout: true,
		LogLevel:    cfg.LogLevel,
		Environment: cfg.Environment,
	})

	rawFile := *rawPath
	if rawFile == "" {
		downloader := fetch.NewDownloader(nil, cfg.DownloadURL, cfg.RawDataDir)
		log.Infof("downloading dataset from %s ...", cfg.DownloadURL)
		rawFile, err = downloader.Download(ctx)
		if err != nil {
			log.Fatalf("download dataset: %s", err)
		}
	}
	log.Infof("cleaning raw file %s ...", rawFile)

	rawReader, closeRaw, err := fetch.OpenRaw(rawFile)
	if err != nil {
		log.Fatalf("open raw file: %s", err)
	}
	defer closeRaw()

	records, stats, err := cleaner.New().Clean(ctx, rawReader)
	if err != nil {
		log.Fatalf("clean dataset: %s", err)
	}
	log.Infof("cleaned: %d read, %d kept, %d dropped", stats.RowsRead, stats.RowsKept, stats.RowsDropped)

	if err := os.MkdirAll(cfg.ProcessedDataDir, 0755); err != nil {
		log.Fatalf("create processed data dir: %s", err)
	}
	snapshotPath := filepath.Join(cfg.ProcessedDataDir, schedule.SnapshotFileName)
	snapshotFile, err := os.Create(snapshotPath)
	if err != nil {
		log.Fatalf("create snapshot file: %s", err)
	}
	if err := dataset.WriteSnapshot(csv.NewWriter(snapshotFile), records); err != nil {
		log.Fatalf("write snapshot: %s", err)
	}
	if err := snapshotFile.Close(); err != nil {
		log.Fatalf("close snapshot file: %s", err)
	}
	log.Infof("snapshot written to %s", snapshotPath)

	if *skipLoad || cfg.DataSource != "postgres" {
		fmt.Println("import done (postgres load skipped)")
		return
	}

	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost: cfg.PostgresHost,
		DBPort: cfg.PostgresPort,
		DBName: cfg.PostgresDBName,
	})
	if err != nil {
		log.Fatalf("new db pool: %s", err)
	}
	defer dbPool.Close()

	loaded, err := dataset.NewRepo(dbPool).ReplaceAll(ctx, records)
	if err != nil {
		log.Fatalf("load postgres: %s", err)
	}
	fmt.Printf("import done, %d records loaded\n", loaded)
}
