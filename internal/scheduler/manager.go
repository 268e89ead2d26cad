package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Manager runs jobs on cron specs with a seconds field. A job still running
// when its next tick arrives is skipped for that tick.
type Manager struct {
	cron    *cron.Cron
	jobs    map[string]cron.EntryID
	timeout time.Duration
	logger  *zap.Logger
	mu      sync.RWMutex
	running bool
}

// NewManager creates a manager. timeout bounds a single job run.
func NewManager(logger *zap.Logger, timeout time.Duration) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	cl := cronLogger{logger: logger}
	return &Manager{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		jobs:    make(map[string]cron.EntryID),
		timeout: timeout,
		logger:  logger,
	}
}

// AddJob schedules job, replacing an earlier job with the same name.
func (m *Manager) AddJob(spec string, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entryID, ok := m.jobs[job.Name()]; ok {
		m.cron.Remove(entryID)
		delete(m.jobs, job.Name())
	}

	entryID, err := m.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		m.RunNow(ctx, job)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job %s: %w", job.Name(), err)
	}
	m.jobs[job.Name()] = entryID

	m.logger.Info("Added job", zap.String("job", job.Name()), zap.String("cron", spec))
	return nil
}

// RunNow executes job synchronously and logs the outcome.
func (m *Manager) RunNow(ctx context.Context, job Job) error {
	started := time.Now()
	err := job.Run(ctx)
	if err != nil {
		m.logger.Error("Job failed",
			zap.String("job", job.Name()),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err),
		)
		return err
	}
	m.logger.Info("Job completed",
		zap.String("job", job.Name()),
		zap.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// Start starts the scheduler
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("scheduler already running")
	}
	m.running = true
	m.cron.Start()
	m.logger.Info("Scheduler started", zap.Int("jobs", len(m.jobs)))
	return nil
}

// Stop stops scheduling and waits for running jobs.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	m.logger.Info("Stopping scheduler")
	<-m.cron.Stop().Done()
}

// JobStatus represents the status of a scheduled job
type JobStatus struct {
	Name    string    `json:"name"`
	NextRun time.Time `json:"next_run"`
	PrevRun time.Time `json:"prev_run"`
}

func (m *Manager) Status() []JobStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]JobStatus, 0, len(m.jobs))
	for name, id := range m.jobs {
		entry := m.cron.Entry(id)
		out = append(out, JobStatus{Name: name, NextRun: entry.Next, PrevRun: entry.Prev})
	}
	return out
}

// ValidateSpec checks a six-field cron expression.
func ValidateSpec(spec string) error {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	_, err := parser.Parse(spec)
	return err
}

// cronLogger routes robfig/cron's internal logging to zap.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
