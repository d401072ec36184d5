// Package scheduler runs the time-driven jobs: reminder scan, retention
// purge, confirmation reconcile and stale task recovery.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"podium/internal/competition"
	"podium/internal/queue"
	"podium/internal/registration"
	"podium/internal/tasks"
)

const (
	ReminderWindow        = 24 * time.Hour
	DefaultRetention      = 30 * 24 * time.Hour
	DefaultReconcileGrace = 5 * time.Minute

	// DefaultConfirmationBudget caps the confirmation tasks a registration
	// can accumulate, the admission one included.
	DefaultConfirmationBudget = 3
)

type Jobs struct {
	DB    *gorm.DB
	Queue *queue.Repo
	Log   zerolog.Logger
	Now   func() time.Time

	// Production enables PurgeExpired. Outside production it deletes nothing.
	Production     bool
	Retention      time.Duration
	ReconcileGrace time.Duration

	ConfirmationBudget int
}

func NewJobs(db *gorm.DB, q *queue.Repo, production bool, log zerolog.Logger) *Jobs {
	return &Jobs{
		DB:                 db,
		Queue:              q,
		Log:                log.With().Str("comp", "scheduler").Logger(),
		Production:         production,
		Retention:          DefaultRetention,
		ReconcileGrace:     DefaultReconcileGrace,
		ConfirmationBudget: DefaultConfirmationBudget,
	}
}

func (j *Jobs) now() time.Time {
	if j.Now != nil {
		return j.Now().UTC()
	}
	return time.Now().UTC()
}

type upcoming struct {
	CompetitionID string
	Title         string
	UserID        string
}

// RemindUpcoming enqueues one notify task per CONFIRMED registrant of every
// competition starting in [now, now+24h).
//
// Runs are not deduplicated: a competition that stays inside the window
// across two runs gets a second round of reminders.
func (j *Jobs) RemindUpcoming(ctx context.Context) (int, error) {
	now := j.now()
	until := now.Add(ReminderWindow)

	var rows []upcoming
	err := j.DB.WithContext(ctx).
		Table("registrations AS r").
		Select("c.id AS competition_id, c.title AS title, r.user_id AS user_id").
		Joins("JOIN competitions AS c ON c.id = r.competition_id").
		Where("c.start_date >= ? AND c.start_date < ?", now, until).
		Where("r.status = ?", registration.StatusConfirmed).
		Order("c.start_date asc").
		Scan(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("scan upcoming competitions: %w", err)
	}

	var errs []error
	enqueued := 0
	for _, row := range rows {
		t, err := tasks.NewReminder(tasks.Reminder{
			CompetitionID:    row.CompetitionID,
			UserID:           row.UserID,
			CompetitionTitle: row.Title,
		})
		if err == nil {
			err = j.Queue.Enqueue(ctx, &t)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("reminder %s/%s: %w", row.CompetitionID, row.UserID, err))
			continue
		}
		enqueued++
	}

	j.Log.Info().Int("enqueued", enqueued).Int("failed", len(errs)).Time("until", until).Msg("reminder scan done")
	return enqueued, errors.Join(errs...)
}

// PurgeExpired deletes registrations older than the retention window whose
// competition also started before it. Both conditions must hold.
func (j *Jobs) PurgeExpired(ctx context.Context) (int64, error) {
	if !j.Production {
		j.Log.Debug().Msg("purge skipped outside production")
		return 0, nil
	}
	retention := j.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := j.now().Add(-retention)

	db := j.DB.WithContext(ctx)
	expired := db.Model(&competition.Competition{}).
		Select("id").
		Where("start_date < ?", cutoff)

	res := db.
		Where("created_at < ?", cutoff).
		Where("competition_id IN (?)", expired).
		Delete(&registration.Registration{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge registrations: %w", res.Error)
	}

	j.Log.Info().Int64("deleted", res.RowsAffected).Time("cutoff", cutoff).Msg("purge done")
	return res.RowsAffected, nil
}

// ReconcilePending re-enqueues confirmation for PENDING registrations that
// have no PENDING or RUNNING confirmation task, e.g. after the task was
// dead-lettered. The grace period keeps it away from fresh admissions.
// Registrations whose confirmation died of a permanent error, or that have
// used up ConfirmationBudget tasks, are left for manual requeue.
func (j *Jobs) ReconcilePending(ctx context.Context) (int, error) {
	grace := j.ReconcileGrace
	if grace <= 0 {
		grace = DefaultReconcileGrace
	}
	budget := j.ConfirmationBudget
	if budget <= 0 {
		budget = DefaultConfirmationBudget
	}
	before := j.now().Add(-grace)

	key := "'" + tasks.KindConfirmation + ":' || registrations.id"
	var orphans []registration.Registration
	err := j.DB.WithContext(ctx).
		Where("status = ? AND created_at < ?", registration.StatusPending, before).
		Where("NOT EXISTS (SELECT 1 FROM tasks t WHERE t.dedup_key = "+key+
			" AND (t.status IN ? OR (t.status = ? AND t.last_error LIKE ?)))",
			[]string{queue.StatusPending, queue.StatusRunning}, queue.StatusDead, queue.PermanentPrefix+"%").
		Where("(SELECT COUNT(*) FROM tasks t WHERE t.dedup_key = "+key+") < ?", budget).
		Order("created_at asc").
		Find(&orphans).Error
	if err != nil {
		return 0, fmt.Errorf("scan pending registrations: %w", err)
	}

	var errs []error
	enqueued := 0
	for _, r := range orphans {
		t, err := tasks.NewConfirmation(tasks.Confirmation{
			RegistrationID: r.ID,
			UserID:         r.UserID,
			CompetitionID:  r.CompetitionID,
		})
		if err == nil {
			err = j.Queue.Enqueue(ctx, &t)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("reconcile %s: %w", r.ID, err))
			continue
		}
		enqueued++
	}

	if enqueued > 0 || len(errs) > 0 {
		j.Log.Warn().Int("enqueued", enqueued).Int("failed", len(errs)).Msg("pending registrations reconciled")
	}
	return enqueued, errors.Join(errs...)
}

// RecoverStale hands RUNNING tasks abandoned by a dead worker back to the queue.
func (j *Jobs) RecoverStale(ctx context.Context, visibility time.Duration) error {
	_, _, err := j.Queue.RequeueStale(ctx, visibility)
	return err
}
