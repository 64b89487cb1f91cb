package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Runner schedules the engine's passes. The engine itself never touches the
// wall clock; the runner passes time.Now() at fire time.
type Runner struct {
	engine  *Engine
	cron    *cron.Cron
	log     zerolog.Logger
	maxAge  int
	hour    int
	weekday time.Weekday
}

func NewRunner(engine *Engine, hour int, digestDay time.Weekday, subscriptionMaxAgeDays int, log zerolog.Logger) *Runner {
	return &Runner{
		engine:  engine,
		cron:    cron.New(),
		log:     log,
		maxAge:  subscriptionMaxAgeDays,
		hour:    hour,
		weekday: digestDay,
	}
}

// Start registers the cron entries and starts the scheduler in its own
// goroutine.
func (r *Runner) Start() error {
	daily := fmt.Sprintf("0 %d * * *", r.hour)
	weekly := fmt.Sprintf("30 %d * * %d", r.hour, int(r.weekday))
	cleanup := fmt.Sprintf("45 %d * * *", r.hour)

	if _, err := r.cron.AddFunc(daily, func() {
		if _, err := r.engine.RunDaily(context.Background(), Today()); err != nil {
			r.log.Error().Err(err).Msg("daily reminder run failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule daily run: %w", err)
	}

	if _, err := r.cron.AddFunc(weekly, func() {
		if _, err := r.engine.RunWeeklyDigest(context.Background(), Today()); err != nil {
			r.log.Error().Err(err).Msg("weekly digest run failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule weekly digest: %w", err)
	}

	if _, err := r.cron.AddFunc(cleanup, func() {
		if _, err := r.engine.RunSubscriptionCleanup(context.Background(), Today(), r.maxAge); err != nil {
			r.log.Error().Err(err).Msg("subscription cleanup failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule subscription cleanup: %w", err)
	}

	r.cron.Start()
	r.log.Info().Str("daily", daily).Str("weekly", weekly).Str("cleanup", cleanup).
		Msg("reminder scheduler started")
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// Today returns the current date truncated to midnight UTC, the form every
// engine pass expects.
func Today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
