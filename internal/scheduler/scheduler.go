// Package scheduler fires jobs at a fixed wall-clock time every day.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Daily is a time of day.
type Daily struct {
	Hour   int
	Minute int
}

// ParseDaily parses "HH:MM".
func ParseDaily(s string) (Daily, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Daily{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return Daily{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Next returns the first occurrence of d strictly after t, in t's location.
func (d Daily) Next(t time.Time) time.Time {
	next := time.Date(t.Year(), t.Month(), t.Day(), d.Hour, d.Minute, 0, 0, t.Location())
	if !next.After(t) {
		next = time.Date(t.Year(), t.Month(), t.Day()+1, d.Hour, d.Minute, 0, 0, t.Location())
	}
	return next
}

func (d Daily) String() string {
	return fmt.Sprintf("daily %02d:%02d", d.Hour, d.Minute)
}

// Job is a named task fired once a day.
type Job struct {
	Name string
	At   Daily
	Run  func(ctx context.Context) error
}

// Scheduler runs each job in its own goroutine. A job's runs never overlap: the
// next fire time is armed only after the previous run returns.
type Scheduler struct {
	jobs       []Job
	loc        *time.Location
	log        *slog.Logger
	now        func() time.Time
	after      func(time.Duration) <-chan time.Time
	runOnStart bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source and the timer (useful for testing).
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
		s.after = after
	}
}

// WithRunOnStart fires every job once as soon as Run starts.
func WithRunOnStart(on bool) Option {
	return func(s *Scheduler) { s.runOnStart = on }
}

// New creates a Scheduler whose fire times are interpreted in loc.
func New(loc *time.Location, log *slog.Logger, opts ...Option) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		loc:   loc,
		log:   log,
		now:   time.Now,
		after: time.After,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a job. It must be called before Run.
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
}

// Jobs returns the registered jobs.
func (s *Scheduler) Jobs() []Job {
	return s.jobs
}

// Run starts every job loop and blocks until ctx is cancelled and all loops returned.
func (s *Scheduler) Run(ctx context.Context) error {
	var g errgroup.Group
	for _, job := range s.jobs {
		g.Go(func() error {
			s.loop(ctx, job)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	log := s.log.With("job", job.Name)
	if s.runOnStart {
		s.fire(ctx, log, job)
	}

	var prev time.Time
	for {
		now := s.now().In(s.loc)
		from := now
		if prev.After(from) {
			from = prev
		}
		next := job.At.Next(from)
		wait := next.Sub(now)
		log.Debug("next run", "at", next, "in", wait)

		select {
		case <-ctx.Done():
			return
		case <-s.after(wait):
		}
		prev = next
		s.fire(ctx, log, job)
	}
}

func (s *Scheduler) fire(ctx context.Context, log *slog.Logger, job Job) {
	if ctx.Err() != nil {
		return
	}
	start := s.now()
	log.Info("job started")
	if err := job.Run(ctx); err != nil {
		log.Error("job failed", "error", err, "duration", s.now().Sub(start))
		return
	}
	log.Info("job finished", "duration", s.now().Sub(start))
}
