package schedule

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dlukic/liftlab/internal/backup"
	"github.com/dlukic/liftlab/internal/cleaner"
	"github.com/dlukic/liftlab/internal/dataset"
	"github.com/dlukic/liftlab/internal/fetch"
	"github.com/dlukic/liftlab/internal/telemetry/metrics"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// SnapshotFileName is the processed dataset file the service reads in
// local-file mode.
const SnapshotFileName = "snapshot.csv"

// raw downloads older than this get removed by the cleanup job
const rawFileMaxAge = 30 * 24 * time.Hour

// DatasetSink receives the cleaned records after a refresh, the
// postgres repo in production.
type DatasetSink interface {
	ReplaceAll(ctx context.Context, records []dataset.PerformanceRecord) (int64, error)
}

type cacheInvalidator interface {
	InvalidateAll(ctx context.Context) error
}

// NewRefreshJob builds the job that checks upstream for a new dataset,
// downloads and cleans it, rewrites the processed snapshot, loads the
// sink and drops stale caches. Sink and invalidator may be nil.
func NewRefreshJob(
	schedule string,
	downloader *fetch.Downloader,
	dataCleaner *cleaner.Cleaner,
	processedDataDir string,
	sink DatasetSink,
	invalidator cacheInvalidator,
	instr *metrics.Manager,
) Job {
	return Job{
		Name:     "refresh",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			available, err := downloader.UpdateAvailable(ctx)
			if err != nil {
				return fmt.Errorf("check for update: %w", err)
			}
			if !available {
				log.Debugf("dataset up to date, refresh skipped")
				return nil
			}

			start := time.Now()
			rawPath, err := downloader.Download(ctx)
			if err != nil {
				return fmt.Errorf("download: %w", err)
			}

			rawReader, closeRaw, err := fetch.OpenRaw(rawPath)
			if err != nil {
				return err
			}
			defer closeRaw()

			records, stats, err := dataCleaner.Clean(ctx, rawReader)
			if err != nil {
				return fmt.Errorf("clean: %w", err)
			}
			log.Infof("dataset cleaned: %d kept of %d rows", stats.RowsKept, stats.RowsRead)

			if err := writeSnapshot(processedDataDir, records); err != nil {
				return fmt.Errorf("write snapshot: %w", err)
			}

			if sink != nil {
				loaded, err := sink.ReplaceAll(ctx, records)
				if err != nil {
					return fmt.Errorf("load dataset sink: %w", err)
				}
				log.Debugf("dataset sink loaded with %d records", loaded)
			}
			if invalidator != nil {
				if err := invalidator.InvalidateAll(ctx); err != nil {
					log.Errorf("failed to invalidate caches: %s", err)
				}
			}

			instr.CounterDataRefreshes.Inc()
			instr.HistDataRefreshDuration.Observe(time.Since(start).Seconds())
			instr.GaugeDatasetSize.Set(float64(len(records)))
			return nil
		},
	}
}

// NewBackupJob archives the processed data directory.
func NewBackupJob(schedule string, service *backup.Service, instr *metrics.Manager) Job {
	return Job{
		Name:     "backup",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			archivePath, err := service.Run(ctx)
			if err != nil {
				return err
			}
			log.Infof("backup archive created: %s", archivePath)
			instr.CounterBackups.Inc()
			return nil
		},
	}
}

// NewCleanupJob removes old raw downloads; every failed removal is
// reported, not only the first one.
func NewCleanupJob(schedule, rawDataDir string) Job {
	return Job{
		Name:     "cleanup",
		Schedule: schedule,
		Run: func(_ context.Context) error {
			entries, err := os.ReadDir(rawDataDir)
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return fmt.Errorf("read raw data dir: %w", err)
			}

			cutoff := time.Now().Add(-rawFileMaxAge)
			var errs error
			removed := 0
			for _, entry := range entries {
				if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
					continue
				}
				info, err := entry.Info()
				if err != nil {
					errs = multierr.Append(errs, err)
					continue
				}
				if info.ModTime().After(cutoff) {
					continue
				}
				if err := os.Remove(filepath.Join(rawDataDir, entry.Name())); err != nil {
					errs = multierr.Append(errs, err)
					continue
				}
				removed++
			}

			log.Debugf("cleanup removed %d old raw files", removed)
			return errs
		},
	}
}

// NewHealthCheckJob pings the service health endpoint.
func NewHealthCheckJob(schedule, healthURL string, httpClient *http.Client) Job {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return Job{
		Name:     "healthcheck",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
			if err != nil {
				return fmt.Errorf("create health request: %w", err)
			}
			resp, err := httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("health request: %w", err)
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					log.Errorf("close health response body: %s", closeErr)
				}
			}()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("service unhealthy: status %d", resp.StatusCode)
			}
			return nil
		},
	}
}

// NewStatusJob keeps the status file and the life signal fresh even
// when no other job has fired for a while.
func NewStatusJob(schedule string, instr *metrics.Manager) Job {
	return Job{
		Name:     "status",
		Schedule: schedule,
		Run: func(_ context.Context) error {
			instr.GaugeLifeSignal.Set(1)
			return nil
		},
	}
}

func writeSnapshot(processedDataDir string, records []dataset.PerformanceRecord) error {
	if err := os.MkdirAll(processedDataDir, 0755); err != nil {
		return err
	}

	snapshotPath := filepath.Join(processedDataDir, SnapshotFileName)
	tmpPath := snapshotPath + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(file)
	if err := dataset.WriteSnapshot(writer, records); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, snapshotPath)
}
