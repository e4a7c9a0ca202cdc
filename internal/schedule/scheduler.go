package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dlukic/liftlab/internal/telemetry/metrics"
	"github.com/dlukic/liftlab/internal/telemetry/tracing"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

var ErrAlreadyRunning = errors.New("scheduler already running")

// Job is one cron-triggered maintenance task. Schedule is a standard
// 5-field cron expression (minute hour day-of-month month day-of-week).
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// JobStatus tracks the run history of one job in the status file.
type JobStatus struct {
	Runs          int        `json:"runs"`
	Failures      int        `json:"failures"`
	LastRunAt     *time.Time `json:"lastRunAt,omitempty"`
	LastSuccessAt *time.Time `json:"lastSuccessAt,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
}

// Status is the JSON document the scheduler keeps current on disk so
// the status CLI (and humans) can see what the daemon is doing.
type Status struct {
	PID          int                   `json:"pid"`
	StartedAt    time.Time             `json:"startedAt"`
	UpdatedAt    time.Time             `json:"updatedAt"`
	JobsExecuted int                   `json:"jobsExecuted"`
	JobsFailed   int                   `json:"jobsFailed"`
	Jobs         map[string]*JobStatus `json:"jobs"`
}

type Scheduler struct {
	jobs       []Job
	pidPath    string
	statusPath string
	instr      *metrics.Manager

	mutex  sync.Mutex
	status Status
}

func NewScheduler(pidPath, statusPath string, instr *metrics.Manager, jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs:       jobs,
		pidPath:    pidPath,
		statusPath: statusPath,
		instr:      instr,
		status: Status{
			Jobs: make(map[string]*JobStatus),
		},
	}
}

// Run enforces single-instance via the PID file, starts the cron
// engine and blocks until the context is canceled. Running jobs are
// allowed to finish before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.acquirePidFile(); err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(s.pidPath); err != nil {
			log.Errorf("failed to remove pid file: %s", err)
		}
	}()

	s.mutex.Lock()
	s.status.PID = os.Getpid()
	s.status.StartedAt = time.Now()
	for _, job := range s.jobs {
		s.status.Jobs[job.Name] = &JobStatus{}
	}
	s.mutex.Unlock()
	s.writeStatus()

	engine := cron.New()
	for _, job := range s.jobs {
		job := job
		if _, err := engine.AddFunc(job.Schedule, func() {
			s.runJob(ctx, job)
		}); err != nil {
			return fmt.Errorf("schedule job %s [%s]: %w", job.Name, job.Schedule, err)
		}
		log.Infof("job %s scheduled: %s", job.Name, job.Schedule)
	}

	s.instr.GaugeLifeSignal.Set(1)
	defer s.instr.GaugeLifeSignal.Set(0)

	engine.Start()
	<-ctx.Done()
	log.Debugf("scheduler stopping ...")

	stopCtx := engine.Stop()
	<-stopCtx.Done()

	s.writeStatus()
	return nil
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	ctx, span := tracing.GlobalSchedulerTracer.Start(ctx, "job."+job.Name)
	defer span.End()

	log.Debugf("job %s starting ...", job.Name)
	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)

	now := time.Now()
	s.mutex.Lock()
	jobStatus := s.status.Jobs[job.Name]
	jobStatus.Runs++
	jobStatus.LastRunAt = &now
	s.status.JobsExecuted++
	if err != nil {
		jobStatus.Failures++
		jobStatus.LastError = err.Error()
		s.status.JobsFailed++
	} else {
		jobStatus.LastSuccessAt = &now
		jobStatus.LastError = ""
	}
	s.mutex.Unlock()

	if err != nil {
		span.RecordError(err)
		log.Errorf("job %s failed after %s: %s", job.Name, elapsed, err)
	} else {
		log.Infof("job %s done in %s", job.Name, elapsed)
	}

	s.writeStatus()
}

func (s *Scheduler) writeStatus() {
	s.mutex.Lock()
	s.status.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(s.status, "", "  ")
	s.mutex.Unlock()
	if err != nil {
		log.Errorf("failed to marshal scheduler status: %s", err)
		return
	}
	// tmp plus rename so the status subcommand never reads a torn file
	tmpPath := s.statusPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		log.Errorf("failed to write scheduler status: %s", err)
		return
	}
	if err := os.Rename(tmpPath, s.statusPath); err != nil {
		log.Errorf("failed to finalize scheduler status: %s", err)
	}
}

// acquirePidFile claims the PID file, removing it first when it points
// to a process that no longer exists.
func (s *Scheduler) acquirePidFile() error {
	if pid, err := readPid(s.pidPath); err == nil {
		if processAlive(pid) {
			return fmt.Errorf("%w: pid %d", ErrAlreadyRunning, pid)
		}
		log.Warnf("removing stale pid file of dead process %d", pid)
		if err := os.Remove(s.pidPath); err != nil {
			return fmt.Errorf("remove stale pid file: %w", err)
		}
	}
	return os.WriteFile(s.pidPath, []byte(strconv.Itoa(os.Getpid())), 0644)
}

// Stop signals the scheduler process recorded in the PID file.
func Stop(pidPath string) error {
	pid, err := readPid(pidPath)
	if err != nil {
		return fmt.Errorf("read pid file: %w", err)
	}
	if !processAlive(pid) {
		return fmt.Errorf("process %d not running", pid)
	}
	return syscall.Kill(pid, syscall.SIGTERM)
}

// ReadStatus loads the scheduler's status file.
func ReadStatus(statusPath string) (*Status, error) {
	data, err := os.ReadFile(statusPath)
	if err != nil {
		return nil, err
	}
	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("unmarshal status file: %w", err)
	}
	return &status, nil
}

func readPid(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func processAlive(pid int) bool {
	return syscall.Kill(pid, syscall.Signal(0)) == nil
}
