package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// ErrJobExists is returned when a job name is scheduled twice.
var ErrJobExists = errors.New("job already scheduled")

// Scheduler runs batch jobs on their cron expressions.
type Scheduler struct {
	advancer *Advancer
	logger   *slog.Logger
	cron     *cron.Cron
	jobs     map[string]cron.EntryID
	mutex    sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(logger *slog.Logger, advancer *Advancer) *Scheduler {
	return &Scheduler{
		advancer: advancer,
		logger:   logger.With("module", "batch_scheduler"),
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		)),
		jobs: make(map[string]cron.EntryID),
		ctx:  context.Background(),
	}
}

// Add schedules job on its cron expression, a standard five field spec.
func (s *Scheduler) Add(job Job) error {
	if job.Cron == "" {
		return fmt.Errorf("cron expression required for job %s", job.Name)
	}

	if _, err := cron.ParseStandard(job.Cron); err != nil {
		return fmt.Errorf("invalid cron expression '%s' for job %s: %w", job.Cron, job.Name, err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("%w: %s", ErrJobExists, job.Name)
	}

	entryID, err := s.cron.AddFunc(job.Cron, func() {
		s.run(job)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job %s: %w", job.Name, err)
	}

	s.jobs[job.Name] = entryID

	s.logger.Info("Scheduled batch job", "job", job.Name, "cron", job.Cron, "entry_id", entryID)

	return nil
}

// Remove unschedules a job. Unknown names are ignored.
func (s *Scheduler) Remove(name string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if entryID, ok := s.jobs[name]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
	}
}

// Jobs returns the number of scheduled jobs.
func (s *Scheduler) Jobs() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return len(s.jobs)
}

// Start runs the scheduler until Stop. Runs started by it use ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mutex.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mutex.Unlock()

	s.cron.Start()
	s.logger.Info("Batch scheduler started", "jobs", s.Jobs())
}

// Stop halts the scheduler and waits for running jobs or ctx, whichever
// ends first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mutex.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mutex.Unlock()

	done := s.cron.Stop()

	select {
	case <-done.Done():
		s.logger.Info("Batch scheduler stopped")

		return nil
	case <-ctx.Done():
		return fmt.Errorf("batch scheduler stop: %w", ctx.Err())
	}
}

func (s *Scheduler) run(job Job) {
	s.mutex.Lock()
	ctx := s.ctx
	s.mutex.Unlock()

	if _, err := s.advancer.Advance(ctx, job); err != nil {
		s.logger.Error("Batch job failed", "job", job.Name, "error", err)
	}
}
