package reminder

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vaxtrack/vaxtrack/internal/domain/schedule"
	"github.com/vaxtrack/vaxtrack/internal/domain/subscription"
	"github.com/vaxtrack/vaxtrack/internal/platform/notification"
)

// RecordStore is the slice of the record repository the passes read and
// write.
type RecordStore interface {
	DueWithUnsentReminder(ctx context.Context, on time.Time, window schedule.ReminderWindow) ([]*schedule.VaccineRecord, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, window schedule.ReminderWindow) (bool, error)
	OverdueCandidates(ctx context.Context, asOf time.Time) ([]*schedule.VaccineRecord, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to schedule.Status) (bool, error)
	FollowUpCandidates(ctx context.Context, asOf time.Time) ([]*schedule.VaccineRecord, error)
	DigestForUser(ctx context.Context, userID string, today time.Time) (*schedule.Digest, error)
}

// Subscriptions resolves where a user's notifications go.
type Subscriptions interface {
	ListByUser(ctx context.Context, userID string) ([]*subscription.Subscription, error)
	ListDigestEnabled(ctx context.Context) ([]*subscription.Subscription, error)
	Cleanup(ctx context.Context, today time.Time, maxAgeDays int) (int, error)
}

// Notifier is the notification manager surface the engine uses.
type Notifier interface {
	SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*notification.Notification, error)
	Templates() *notification.TemplateEngine
}

// Engine runs the batch passes. Every entry point takes the run date as a
// parameter; the cron runner supplies the wall clock.
type Engine struct {
	records  RecordStore
	subs     Subscriptions
	notifier Notifier
	log      zerolog.Logger
}

func NewEngine(records RecordStore, subs Subscriptions, notifier Notifier, log zerolog.Logger) *Engine {
	return &Engine{records: records, subs: subs, notifier: notifier, log: log}
}

// RunStats summarizes one daily run for logging and the CLI.
type RunStats struct {
	Reminders3Day int
	Reminders1Day int
	MarkedOverdue int
	FollowUps     int
	Errors        int
}

// RunDaily executes the four passes in fixed order: 3-day, 1-day, overdue,
// follow-up. Per-record failures are logged and the run continues; calling
// it twice with the same date dispatches nothing new.
func (e *Engine) RunDaily(ctx context.Context, today time.Time) (*RunStats, error) {
	stats := &RunStats{}
	e.reminderPass(ctx, today, schedule.Window3Day, stats)
	e.reminderPass(ctx, today, schedule.Window1Day, stats)
	e.overduePass(ctx, today, stats)
	e.followUpPass(ctx, today, stats)

	e.log.Info().
		Int("reminders_3day", stats.Reminders3Day).
		Int("reminders_1day", stats.Reminders1Day).
		Int("marked_overdue", stats.MarkedOverdue).
		Int("follow_ups", stats.FollowUps).
		Int("errors", stats.Errors).
		Time("run_date", today).
		Msg("daily reminder run finished")
	return stats, nil
}

func (e *Engine) reminderPass(ctx context.Context, today time.Time, window schedule.ReminderWindow, stats *RunStats) {
	templateID := notification.TemplateReminder3Day
	if window == schedule.Window1Day {
		templateID = notification.TemplateReminder1Day
	}

	recs, err := e.records.DueWithUnsentReminder(ctx, today, window)
	if err != nil {
		stats.Errors++
		e.log.Error().Err(err).Int("window_days", window.Days()).Msg("reminder candidate query failed")
		return
	}

	for _, rec := range recs {
		// Claim the flag first; losing a race with a concurrent run means
		// the other run sends.
		claimed, err := e.records.MarkReminderSent(ctx, rec.ID, window)
		if err != nil {
			stats.Errors++
			e.log.Error().Err(err).Str("record_id", rec.ID.String()).Msg("reminder flag update failed")
			continue
		}
		if !claimed {
			continue
		}

		// The flag stays set even when dispatch fails: one attempt per
		// record per window, never a retry storm.
		if err := e.dispatch(ctx, rec, templateID); err != nil {
			stats.Errors++
			e.log.Error().Err(err).Str("record_id", rec.ID.String()).
				Int("window_days", window.Days()).Msg("reminder dispatch failed")
			continue
		}
		if window == schedule.Window1Day {
			stats.Reminders1Day++
		} else {
			stats.Reminders3Day++
		}
	}
}

func (e *Engine) overduePass(ctx context.Context, today time.Time, stats *RunStats) {
	recs, err := e.records.OverdueCandidates(ctx, today)
	if err != nil {
		stats.Errors++
		e.log.Error().Err(err).Msg("overdue candidate query failed")
		return
	}

	for _, rec := range recs {
		moved, err := e.records.TransitionStatus(ctx, rec.ID, schedule.StatusUpcoming, schedule.StatusOverdue)
		if err != nil {
			stats.Errors++
			e.log.Error().Err(err).Str("record_id", rec.ID.String()).Msg("overdue transition failed")
			continue
		}
		if !moved {
			continue
		}
		stats.MarkedOverdue++

		if err := e.dispatch(ctx, rec, notification.TemplateOverdue); err != nil {
			stats.Errors++
			e.log.Error().Err(err).Str("record_id", rec.ID.String()).Msg("overdue notice dispatch failed")
		}
	}
}

func (e *Engine) followUpPass(ctx context.Context, today time.Time, stats *RunStats) {
	recs, err := e.records.FollowUpCandidates(ctx, today)
	if err != nil {
		stats.Errors++
		e.log.Error().Err(err).Msg("follow-up candidate query failed")
		return
	}

	for _, rec := range recs {
		if err := e.dispatch(ctx, rec, notification.TemplateSideEffectFollowUp); err != nil {
			stats.Errors++
			e.log.Error().Err(err).Str("record_id", rec.ID.String()).Msg("follow-up dispatch failed")
			continue
		}
		stats.FollowUps++
	}
}

// dispatch sends one templated notification to every subscription of the
// record's owner matching the template's channel.
func (e *Engine) dispatch(ctx context.Context, rec *schedule.VaccineRecord, templateID string) error {
	channel, err := e.notifier.Templates().Channel(templateID)
	if err != nil {
		return err
	}
	subs, err := e.subs.ListByUser(ctx, rec.UserID)
	if err != nil {
		return fmt.Errorf("resolve recipients: %w", err)
	}

	data := map[string]string{
		"child_name":     rec.ChildID,
		"vaccine_name":   rec.VaccineName,
		"dose_number":    strconv.Itoa(rec.DoseNumber),
		"scheduled_date": rec.ScheduledDate.Format("2006-01-02"),
	}

	sent := 0
	for _, sub := range subs {
		if sub.Channel != channel {
			continue
		}
		if _, err := e.notifier.SendFromTemplate(ctx, templateID, data, sub.Address); err != nil {
			return err
		}
		sent++
	}
	if sent == 0 {
		e.log.Debug().Str("user_id", rec.UserID).Str("template", templateID).
			Msg("no subscription for channel, nothing dispatched")
	}
	return nil
}

// RunWeeklyDigest sends each digest-enabled subscriber a summary of the last
// and next seven days. Users with an empty digest are skipped.
func (e *Engine) RunWeeklyDigest(ctx context.Context, today time.Time) (int, error) {
	subs, err := e.subs.ListDigestEnabled(ctx)
	if err != nil {
		return 0, fmt.Errorf("list digest subscriptions: %w", err)
	}

	sent := 0
	seen := make(map[string]*schedule.Digest)
	for _, sub := range subs {
		digest, ok := seen[sub.UserID]
		if !ok {
			digest, err = e.records.DigestForUser(ctx, sub.UserID, today)
			if err != nil {
				e.log.Error().Err(err).Str("user_id", sub.UserID).Msg("digest query failed")
				continue
			}
			seen[sub.UserID] = digest
		}
		if digest.Empty() {
			continue
		}

		data := map[string]string{
			"done_count":     strconv.Itoa(len(digest.Done)),
			"upcoming_count": strconv.Itoa(len(digest.Upcoming)),
			"overdue_count":  strconv.Itoa(len(digest.Overdue)),
			"details":        digestDetails(digest),
		}
		if _, err := e.notifier.SendFromTemplate(ctx, notification.TemplateWeeklyDigest, data, sub.Address); err != nil {
			e.log.Error().Err(err).Str("user_id", sub.UserID).Msg("digest dispatch failed")
			continue
		}
		sent++
	}

	e.log.Info().Int("sent", sent).Time("run_date", today).Msg("weekly digest run finished")
	return sent, nil
}

func digestDetails(d *schedule.Digest) string {
	var b strings.Builder
	section := func(title string, recs []*schedule.VaccineRecord, dateOf func(*schedule.VaccineRecord) time.Time) {
		if len(recs) == 0 {
			return
		}
		b.WriteString(title)
		b.WriteString("\n")
		for _, rec := range recs {
			fmt.Fprintf(&b, "- %s dose %d (%s)\n", rec.VaccineName, rec.DoseNumber, dateOf(rec).Format("2006-01-02"))
		}
	}
	section("Completed:", d.Done, func(r *schedule.VaccineRecord) time.Time {
		if r.ActualDate != nil {
			return *r.ActualDate
		}
		return r.ScheduledDate
	})
	section("Due soon:", d.Upcoming, func(r *schedule.VaccineRecord) time.Time { return r.ScheduledDate })
	section("Overdue:", d.Overdue, func(r *schedule.VaccineRecord) time.Time { return r.ScheduledDate })
	return strings.TrimRight(b.String(), "\n")
}

// RunSubscriptionCleanup removes contact points older than maxAgeDays.
func (e *Engine) RunSubscriptionCleanup(ctx context.Context, today time.Time, maxAgeDays int) (int, error) {
	return e.subs.Cleanup(ctx, today, maxAgeDays)
}
