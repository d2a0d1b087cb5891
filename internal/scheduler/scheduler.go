// Package scheduler runs the scan and digest jobs on cron specs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

type JobFunc func(ctx context.Context) error

type job struct {
	name string
	fn   JobFunc
	mu   sync.Mutex // one run of a job at a time
}

type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	logger *slog.Logger

	mu   sync.Mutex
	jobs map[string]*job
}

// New returns a scheduler whose jobs receive ctx. Specs are evaluated in loc.
func New(ctx context.Context, loc *time.Location, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		ctx:    ctx,
		logger: logger,
		jobs:   make(map[string]*job),
	}
}

// Add registers fn under name on the standard five-field spec.
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	j := &job{name: name, fn: fn}
	if _, err := s.cron.AddFunc(spec, func() { s.run(j, true) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.mu.Lock()
	s.jobs[name] = j
	s.mu.Unlock()
	s.logger.Info("job scheduled", "job", name, "spec", spec)
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the cron and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce runs the named job now and returns its error. It waits when the
// job is already running.
func (s *Scheduler) RunOnce(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.run(j, false)
}

// run executes j. Scheduled ticks skip when the previous run is still going.
func (s *Scheduler) run(j *job, scheduled bool) error {
	if scheduled {
		if !j.mu.TryLock() {
			s.logger.Warn("job still running, skipping tick", "job", j.name)
			return nil
		}
	} else {
		j.mu.Lock()
	}
	defer j.mu.Unlock()

	if err := s.ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	s.logger.Info("job started", "job", j.name)
	err := j.fn(s.ctx)
	if err != nil {
		s.logger.Error("job failed", "job", j.name, "duration", time.Since(start), "error", err)
		return err
	}
	s.logger.Info("job done", "job", j.name, "duration", time.Since(start))
	return nil
}
