package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"podium/internal/logging"
)

type Schedules struct {
	Reminder   string
	Purge      string
	Reconcile  string
	Stale      string
	Visibility time.Duration
	JobTimeout time.Duration
}

// Runner drives Jobs on cron schedules. A job still running when its next
// firing comes up is skipped, so no job overlaps itself.
type Runner struct {
	Jobs *Jobs
	Log  zerolog.Logger

	c       *cron.Cron
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewRunner(jobs *Jobs, s Schedules, log zerolog.Logger) (*Runner, error) {
	log = log.With().Str("comp", "cron").Logger()
	cl := logging.CronLogger{Log: log}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{Jobs: jobs, Log: log, c: c, timeout: s.JobTimeout, ctx: ctx, cancel: cancel}
	if r.timeout <= 0 {
		r.timeout = 10 * time.Minute
	}
	if s.Stale == "" {
		s.Stale = "@every 1m"
	}
	visibility := s.Visibility
	if visibility <= 0 {
		visibility = 5 * time.Minute
	}

	entries := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"remind", s.Reminder, func(ctx context.Context) error { _, err := jobs.RemindUpcoming(ctx); return err }},
		{"purge", s.Purge, func(ctx context.Context) error { _, err := jobs.PurgeExpired(ctx); return err }},
		{"reconcile", s.Reconcile, func(ctx context.Context) error { _, err := jobs.ReconcilePending(ctx); return err }},
		{"stale", s.Stale, func(ctx context.Context) error { return jobs.RecoverStale(ctx, visibility) }},
	}
	for _, e := range entries {
		if e.spec == "" {
			continue
		}
		if _, err := c.AddFunc(e.spec, r.wrap(e.name, e.run)); err != nil {
			cancel()
			return nil, fmt.Errorf("schedule %s %q: %w", e.name, e.spec, err)
		}
		log.Info().Str("job", e.name).Str("spec", e.spec).Msg("job scheduled")
	}
	return r, nil
}

func (r *Runner) wrap(name string, run func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
		defer cancel()

		start := time.Now()
		if err := run(ctx); err != nil {
			r.Log.Error().Err(err).Str("job", name).Dur("dur", time.Since(start)).Msg("job failed")
			return
		}
		r.Log.Debug().Str("job", name).Dur("dur", time.Since(start)).Msg("job done")
	}
}

// Len reports how many jobs are scheduled.
func (r *Runner) Len() int { return len(r.c.Entries()) }

func (r *Runner) Start() { r.c.Start() }

// Stop prevents new firings, cancels running jobs and waits for them to
// return or for ctx to expire.
func (r *Runner) Stop(ctx context.Context) {
	done := r.c.Stop()
	r.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
		r.Log.Warn().Msg("cron stop timed out")
	}
}
