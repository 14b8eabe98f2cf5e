// Package scheduler runs the periodic batch jobs (rule synthesis,
// calibration, settlement sweeps) on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/courtside/pkg/logger"
	"github.com/okian/courtside/pkg/metrics"
	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule marks a spec cron cannot parse.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Runner wraps a cron instance. Jobs run with the base context and never
// overlap themselves.
type Runner struct {
	cron    *cron.Cron
	baseCtx context.Context
	logger  logger.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithLocation sets the time zone schedules are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(r *Runner) {
		if loc != nil {
			r.cron = cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
		}
	}
}

// New returns a stopped runner. Specs use the standard five-field syntax
// plus descriptors such as @daily.
func New(baseCtx context.Context, opts ...Option) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	r := &Runner{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		baseCtx: baseCtx,
		logger:  logger.Get().Named("scheduler"),
		entries: make(map[string]cron.EntryID),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers job under name. An empty spec disables the job.
func (r *Runner) Add(name, spec string, job Job) error {
	if spec == "" {
		r.logger.Info(r.baseCtx, "job disabled", logger.String("job", name))
		return nil
	}
	id, err := r.cron.AddFunc(spec, func() { r.run(name, job) })
	if err != nil {
		return fmt.Errorf("%w: %s %q: %w", ErrInvalidSchedule, name, spec, err)
	}
	r.mu.Lock()
	r.entries[name] = id
	r.mu.Unlock()
	return nil
}

// RunNow executes a registered-or-not job synchronously with the same
// logging and metrics as a scheduled run.
func (r *Runner) RunNow(name string, job Job) error {
	return r.run(name, job)
}

// Next returns the next activation of the named job.
func (r *Runner) Next(name string) (time.Time, bool) {
	r.mu.Lock()
	id, ok := r.entries[name]
	r.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return r.cron.Entry(id).Next, true
}

// Start begins scheduling.
func (r *Runner) Start() {
	r.cron.Start()
	r.logger.Info(r.baseCtx, "scheduler started", logger.Int("jobs", len(r.cron.Entries())))
}

// Stop stops scheduling and waits for running jobs or ctx.
func (r *Runner) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		r.logger.Info(ctx, "scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}

func (r *Runner) run(name string, job Job) error {
	start := time.Now()
	err := job(r.baseCtx)
	fields := []logger.Field{
		logger.String("job", name),
		logger.Duration("took", time.Since(start)),
	}
	if err != nil {
		metrics.RecordJobRun(name, "error")
		r.logger.Error(r.baseCtx, "job failed", append(fields, logger.Error(err))...)
		return err
	}
	metrics.RecordJobRun(name, "ok")
	r.logger.Info(r.baseCtx, "job finished", fields...)
	return nil
}
