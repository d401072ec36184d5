package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	DB  *gorm.DB
	Log zerolog.Logger

	// Now defaults to time.Now; tests pin it to drive backoff.
	Now func() time.Time
}

func NewRepo(db *gorm.DB, log zerolog.Logger) *Repo {
	return &Repo{DB: db, Log: log.With().Str("comp", "queue").Logger()}
}

func (r *Repo) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// NewTask builds a PENDING task carrying payload encoded as JSON.
func NewTask(queueName, kind string, payload any, p Policy) (Task, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	p = p.withDefaults()
	return Task{
		Queue:         queueName,
		Kind:          kind,
		Payload:       b,
		Status:        StatusPending,
		MaxAttempts:   p.MaxAttempts,
		BackoffBaseMS: p.BaseDelay.Milliseconds(),
	}, nil
}

func (r *Repo) Enqueue(ctx context.Context, t *Task) error {
	return r.EnqueueTx(r.DB.WithContext(ctx), t)
}

// EnqueueTx writes the task with the caller's transaction so it commits or
// rolls back together with the state change that produced it.
func (r *Repo) EnqueueTx(tx *gorm.DB, t *Task) error {
	if t.Queue == "" || t.Kind == "" {
		return fmt.Errorf("enqueue: queue and kind are required")
	}
	now := r.now()
	if t.RunAt.IsZero() {
		t.RunAt = now
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.MaxAttempts <= 0 {
		t.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if t.BackoffBaseMS <= 0 {
		t.BackoffBaseMS = DefaultPolicy.BaseDelay.Milliseconds()
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	if err := tx.Create(t).Error; err != nil {
		return fmt.Errorf("enqueue %s/%s: %w", t.Queue, t.Kind, err)
	}
	return nil
}

// Claim one due task from queueName and mark it RUNNING.
// FOR UPDATE SKIP LOCKED keeps concurrent workers off the same row on
// postgres; the conditional update below is the guard everywhere else.
// Returns (nil, nil) when nothing is due.
func (r *Repo) Claim(ctx context.Context, queueName, workerID string) (*Task, error) {
	var claimed *Task
	now := r.now()

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t Task
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("queue = ? AND status = ? AND run_at <= ?", queueName, StatusPending, now).
			Order("run_at asc").
			Take(&t).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		res := tx.Model(&Task{}).
			Where("id = ? AND status = ?", t.ID, StatusPending).
			Updates(map[string]any{
				"status":     StatusRunning,
				"attempts":   t.Attempts + 1,
				"locked_by":  workerID,
				"locked_at":  now,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		t.Status = StatusRunning
		t.Attempts++
		t.LockedBy = &workerID
		t.LockedAt = &now
		claimed = &t
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", queueName, err)
	}
	return claimed, nil
}

// held scopes an update to the claim t came from. Once RequeueStale has
// taken the task back, the old holder's writes match nothing.
func (r *Repo) held(ctx context.Context, t *Task) *gorm.DB {
	lockedBy := ""
	if t.LockedBy != nil {
		lockedBy = *t.LockedBy
	}
	return r.DB.WithContext(ctx).Model(&Task{}).
		Where("id = ? AND status = ? AND locked_by = ?", t.ID, StatusRunning, lockedBy)
}

func (r *Repo) leaseLost(t *Task, op string) error {
	r.Log.Warn().
		Str("task", t.ID).Str("queue", t.Queue).Str("kind", t.Kind).
		Int("attempt", t.Attempts).Str("op", op).
		Msg("task claim lost, result discarded")
	return fmt.Errorf("%s task %s: %w", op, t.ID, ErrLeaseLost)
}

// Ack marks a claimed task DONE. Returns ErrLeaseLost when the caller no
// longer holds the claim.
func (r *Repo) Ack(ctx context.Context, t *Task) error {
	res := r.held(ctx, t).
		Updates(map[string]any{
			"status":     StatusDone,
			"locked_by":  nil,
			"locked_at":  nil,
			"updated_at": r.now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.leaseLost(t, "ack")
	}
	return nil
}

// Fail records a failed delivery. The task goes back to PENDING after
// its backoff delay while attempts remain, otherwise it is dead-lettered.
// Permanent errors dead-letter immediately. Returns the resulting status,
// or ErrLeaseLost when the caller no longer holds the claim.
//
// The attempt count used for backoff is the one written by the caller's
// own Claim; the held() guard ensures nobody has claimed it since.
func (r *Repo) Fail(ctx context.Context, t *Task, cause error) (string, error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	now := r.now()

	if IsPermanent(cause) || t.Attempts >= t.MaxAttempts {
		if err := r.deadLetter(ctx, t, msg, now); err != nil {
			return "", err
		}
		return StatusDead, nil
	}

	next := now.Add(t.policy().Backoff(t.Attempts))
	res := r.held(ctx, t).
		Updates(map[string]any{
			"status":     StatusPending,
			"run_at":     next,
			"locked_by":  nil,
			"locked_at":  nil,
			"last_error": msg,
			"updated_at": now,
		})
	if res.Error != nil {
		return "", fmt.Errorf("retry task %s: %w", t.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return "", r.leaseLost(t, "fail")
	}
	r.Log.Debug().
		Str("task", t.ID).Str("queue", t.Queue).Str("kind", t.Kind).
		Int("attempt", t.Attempts).Time("run_at", next).Str("err", msg).
		Msg("task retry scheduled")
	return StatusPending, nil
}

func (r *Repo) deadLetter(ctx context.Context, t *Task, msg string, now time.Time) error {
	res := r.held(ctx, t).
		Updates(map[string]any{
			"status":     StatusDead,
			"locked_by":  nil,
			"locked_at":  nil,
			"last_error": msg,
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("dead-letter task %s: %w", t.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return r.leaseLost(t, "dead-letter")
	}
	r.Log.Error().
		Str("task", t.ID).Str("queue", t.Queue).Str("kind", t.Kind).
		Int("attempts", t.Attempts).Str("err", msg).
		Msg("task dead-lettered")
	return nil
}

// RequeueStale returns RUNNING tasks whose lock is older than visibility
// back to PENDING, which is what makes delivery at-least-once across a
// worker crash. Tasks that already used their last attempt go DEAD.
func (r *Repo) RequeueStale(ctx context.Context, visibility time.Duration) (requeued, dead int64, err error) {
	now := r.now()
	cutoff := now.Add(-visibility)
	db := r.DB.WithContext(ctx)

	res := db.Model(&Task{}).
		Where("status = ? AND locked_at < ? AND attempts >= max_attempts", StatusRunning, cutoff).
		Updates(map[string]any{
			"status":     StatusDead,
			"locked_by":  nil,
			"locked_at":  nil,
			"last_error": "visibility timeout exceeded",
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, 0, fmt.Errorf("dead-letter stale tasks: %w", res.Error)
	}
	dead = res.RowsAffected

	res = db.Model(&Task{}).
		Where("status = ? AND locked_at < ?", StatusRunning, cutoff).
		Updates(map[string]any{
			"status":     StatusPending,
			"run_at":     now,
			"locked_by":  nil,
			"locked_at":  nil,
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, dead, fmt.Errorf("requeue stale tasks: %w", res.Error)
	}
	requeued = res.RowsAffected

	if requeued > 0 || dead > 0 {
		r.Log.Warn().Int64("requeued", requeued).Int64("dead", dead).Msg("stale running tasks recovered")
	}
	return requeued, dead, nil
}

// HasActive reports whether a PENDING or RUNNING task exists for dedupKey.
func (r *Repo) HasActive(ctx context.Context, dedupKey string) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&Task{}).
		Where("dedup_key = ? AND status IN ?", dedupKey, []string{StatusPending, StatusRunning}).
		Count(&n).Error
	return n > 0, err
}

// DeadLetters lists dead tasks, newest first. An empty queueName lists all queues.
func (r *Repo) DeadLetters(ctx context.Context, queueName string, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 50
	}
	q := r.DB.WithContext(ctx).Where("status = ?", StatusDead)
	if queueName != "" {
		q = q.Where("queue = ?", queueName)
	}
	var out []Task
	err := q.Order("updated_at desc").Limit(limit).Find(&out).Error
	return out, err
}

// Requeue gives a dead task a fresh attempt budget. This is the manual
// out-of-band path for anything that exhausted its retries.
func (r *Repo) Requeue(ctx context.Context, id string) error {
	now := r.now()
	res := r.DB.WithContext(ctx).Model(&Task{}).
		Where("id = ? AND status = ?", id, StatusDead).
		Updates(map[string]any{
			"status":     StatusPending,
			"attempts":   0,
			"run_at":     now,
			"last_error": nil,
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("requeue task %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (*Task, error) {
	var t Task
	err := r.DB.WithContext(ctx).Where("id = ?", id).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
