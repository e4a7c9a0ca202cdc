package schedule_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dlukic/liftlab/internal/schedule"
	"github.com/dlukic/liftlab/internal/telemetry/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestScheduler_Run(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "scheduler.pid")
	statusPath := filepath.Join(dir, "status.json")

	noop := schedule.Job{
		Name:     "noop",
		Schedule: "* * * * *",
		Run:      func(context.Context) error { return nil },
	}
	scheduler := schedule.NewScheduler(pidPath, statusPath, metrics.NewTestManager(), noop)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- scheduler.Run(ctx)
	}()

	// wait for the pid file to show up, then stop
	require.Eventually(t, func() bool {
		_, err := os.Stat(pidPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	// pid file removed, status file left behind
	_, err := os.Stat(pidPath)
	assert.True(t, os.IsNotExist(err))

	status, err := schedule.ReadStatus(statusPath)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), status.PID)
	assert.Contains(t, status.Jobs, "noop")
	assert.Zero(t, status.JobsFailed)

	// status writes go through a tmp file and a rename
	_, err = os.Stat(statusPath + ".tmp")
	assert.True(t, os.IsNotExist(err))
	var names []string
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	assert.ElementsMatch(t, []string{"status.json"}, names)
}

func TestScheduler_Run_AlreadyRunning(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "scheduler.pid")
	statusPath := filepath.Join(dir, "status.json")

	// pid file pointing to this very alive process
	require.NoError(t, os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0644))

	scheduler := schedule.NewScheduler(pidPath, statusPath, metrics.NewTestManager())
	err := scheduler.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, schedule.ErrAlreadyRunning))
}

func TestScheduler_Run_StalePidFile(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "scheduler.pid")
	statusPath := filepath.Join(dir, "status.json")

	// no process with such a pid
	require.NoError(t, os.WriteFile(pidPath, []byte("999999"), 0644))

	scheduler := schedule.NewScheduler(pidPath, statusPath, metrics.NewTestManager())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- scheduler.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		pid, err := os.ReadFile(pidPath)
		return err == nil && string(pid) == strconv.Itoa(os.Getpid())
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_Run_BadSchedule(t *testing.T) {
	dir := t.TempDir()
	broken := schedule.Job{
		Name:     "broken",
		Schedule: "often",
		Run:      func(context.Context) error { return nil },
	}
	scheduler := schedule.NewScheduler(
		filepath.Join(dir, "scheduler.pid"),
		filepath.Join(dir, "status.json"),
		metrics.NewTestManager(),
		broken,
	)

	err := scheduler.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule job broken")
}

func TestStop_NoPidFile(t *testing.T) {
	err := schedule.Stop(filepath.Join(t.TempDir(), "nope.pid"))
	require.Error(t, err)
}

func TestStop_DeadProcess(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "scheduler.pid")
	require.NoError(t, os.WriteFile(pidPath, []byte("999999"), 0644))

	err := schedule.Stop(pidPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}

func TestReadStatus_Missing(t *testing.T) {
	_, err := schedule.ReadStatus(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}
