package schedule_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlukic/liftlab/internal/cleaner"
	"github.com/dlukic/liftlab/internal/dataset"
	"github.com/dlukic/liftlab/internal/fetch"
	"github.com/dlukic/liftlab/internal/schedule"
	"github.com/dlukic/liftlab/internal/telemetry/metrics"
)

const rawResultsCsv = `Name,Sex,Equipment,Country,Date,AgeClass,WeightClassKg,BodyweightKg,Best3SquatKg,Best3BenchKg,Best3DeadliftKg,TotalKg,Dots
Ana Svensson,F,Raw,Sweden,2021-05-15,24-34,63,62.4,130,75,160,365,401.2
Bo Berg,M,Raw,Sweden,2020-09-01,24-34,93,92.1,220,140,250,610,388.5
`

type sinkStub struct {
	records []dataset.PerformanceRecord
}

func (s *sinkStub) ReplaceAll(_ context.Context, records []dataset.PerformanceRecord) (int64, error) {
	s.records = records
	return int64(len(records)), nil
}

type invalidatorStub struct {
	invalidated bool
}

func (i *invalidatorStub) InvalidateAll(context.Context) error {
	i.invalidated = true
	return nil
}

func TestRefreshJob(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Last-Modified", "Mon, 02 Jan 2023 15:04:05 GMT")
		if r.Method == http.MethodHead {
			return
		}
		_, err := w.Write([]byte(rawResultsCsv))
		assert.NoError(t, err)
	}))
	t.Cleanup(server.Close)

	rawDir := t.TempDir()
	processedDir := t.TempDir()
	downloader := fetch.NewDownloader(server.Client(), server.URL+"/results.csv", rawDir)
	sink := &sinkStub{}
	invalidator := &invalidatorStub{}

	job := schedule.NewRefreshJob(
		"0 */4 * * *",
		downloader,
		cleaner.New(),
		processedDir,
		sink,
		invalidator,
		metrics.NewTestManager(),
	)
	require.NoError(t, job.Run(context.Background()))

	require.Len(t, sink.records, 2)
	assert.Equal(t, "Ana Svensson", sink.records[0].AthleteID)
	assert.True(t, invalidator.invalidated)

	// the processed snapshot is readable by the local-file store
	store, err := dataset.NewStore(filepath.Join(processedDir, schedule.SnapshotFileName))
	require.NoError(t, err)
	count, err := store.CountRecords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// upstream unchanged, second run skips the download
	require.NoError(t, job.Run(context.Background()))
}

func TestCleanupJob(t *testing.T) {
	rawDir := t.TempDir()

	oldPath := filepath.Join(rawDir, "results-old.csv")
	require.NoError(t, os.WriteFile(oldPath, []byte("old"), 0644))
	oldTime := time.Now().Add(-31 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, oldTime, oldTime))

	freshPath := filepath.Join(rawDir, "results-fresh.csv")
	require.NoError(t, os.WriteFile(freshPath, []byte("fresh"), 0644))

	statePath := filepath.Join(rawDir, ".download-state.json")
	require.NoError(t, os.WriteFile(statePath, []byte("{}"), 0644))
	require.NoError(t, os.Chtimes(statePath, oldTime, oldTime))

	job := schedule.NewCleanupJob("0 4 * * 0", rawDir)
	require.NoError(t, job.Run(context.Background()))

	_, err := os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(freshPath)
	assert.NoError(t, err)
	// dotfiles (the download state) survive regardless of age
	_, err = os.Stat(statePath)
	assert.NoError(t, err)
}

func TestHealthCheckJob(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(healthy.Close)

	job := schedule.NewHealthCheckJob("*/30 * * * *", healthy.URL+"/health", healthy.Client())
	assert.NoError(t, job.Run(context.Background()))

	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(unhealthy.Close)

	job = schedule.NewHealthCheckJob("*/30 * * * *", unhealthy.URL+"/health", unhealthy.Client())
	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unhealthy")
}

func TestStatusJob(t *testing.T) {
	instr, registry := metrics.NewTestManagerAndRegistry()
	job := schedule.NewStatusJob("*/5 * * * *", instr)
	require.NoError(t, job.Run(context.Background()))

	families, err := registry.Gather()
	require.NoError(t, err)
	found := false
	for _, family := range families {
		if family.GetName() == "liftlab_test_server_life_signal" {
			found = true
			require.Len(t, family.GetMetric(), 1)
			assert.Equal(t, 1.0, family.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found)
}
