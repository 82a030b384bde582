package scheduler

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"
)

// JobFunc is a scheduled task. ctx is cancelled when the manager stops.
type JobFunc func(ctx context.Context) error

type job struct {
	name string
	spec string
	fn   JobFunc
}

// Manager runs the periodic background jobs on cron schedules.
type Manager struct {
	cron     *cron.Cron
	jobs     []job
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	running  bool
	location *time.Location
}

func NewManager(loc *time.Location) *Manager {
	if loc == nil {
		loc = time.UTC
	}
	return &Manager{location: loc}
}

// Register adds a job. Jobs must be registered before Start.
func (m *Manager) Register(name, spec string, fn JobFunc) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job{name: name, spec: spec, fn: fn})
	return nil
}

// Start starts the cron scheduler and its registered jobs
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	cronLogger := cron.PrintfLogger(stdlog.New(os.Stdout, "[Scheduler] ", stdlog.LstdFlags))
	m.cron = cron.New(
		cron.WithLocation(m.location),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	m.ctx, m.cancel = context.WithCancel(context.Background())

	for _, j := range m.jobs {
		j := j
		if _, err := m.cron.AddFunc(j.spec, func() { m.run(j) }); err != nil {
			m.cancel()
			return fmt.Errorf("schedule %s: %w", j.name, err)
		}
		log.Infof("[Scheduler] scheduled %s (%s %s)", j.name, j.spec, m.location)
	}

	m.cron.Start()
	m.running = true
	log.Info("[Scheduler] Started successfully")
	return nil
}

func (m *Manager) run(j job) {
	started := time.Now()
	if err := j.fn(m.ctx); err != nil {
		log.Errorf("[Scheduler] %s failed after %s: %v", j.name, time.Since(started).Round(time.Millisecond), err)
		return
	}
	log.Infof("[Scheduler] %s finished in %s", j.name, time.Since(started).Round(time.Millisecond))
}

// Stop stops scheduling, cancels running jobs and waits for them up to ctx.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	done := m.cron.Stop()
	m.cancel()
	m.mu.Unlock()

	log.Info("[Scheduler] Stopping, waiting for running jobs...")
	select {
	case <-done.Done():
		log.Info("[Scheduler] Stopped successfully")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
