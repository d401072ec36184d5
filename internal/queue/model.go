package queue

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusPending = "PENDING"
	StatusRunning = "RUNNING"
	StatusDone    = "DONE"
	StatusDead    = "DEAD"
)

type Task struct {
	ID    string `gorm:"type:varchar(36);primaryKey"`
	Queue string `gorm:"type:varchar(64);not null"`

	Kind    string         `gorm:"type:varchar(64);not null"` // confirmation / notify
	Payload datatypes.JSON `gorm:"not null"`

	// DedupKey correlates a task with the entity it was produced for,
	// e.g. "confirmation:<registration id>". Not unique.
	DedupKey *string `gorm:"type:varchar(128);index"`

	RunAt  time.Time `gorm:"not null"`
	Status string    `gorm:"type:varchar(16);not null;default:'PENDING'"` // PENDING/RUNNING/DONE/DEAD

	Attempts      int   `gorm:"not null;default:0"`
	MaxAttempts   int   `gorm:"not null;default:3"`
	BackoffBaseMS int64 `gorm:"not null;default:2000"`

	LockedBy *string    `gorm:"type:varchar(64)"`
	LockedAt *time.Time

	LastError *string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (t *Task) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Policy is the retry budget attached to a task at enqueue time.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy: 3 attempts, exponential backoff starting at 2s.
var DefaultPolicy = Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultPolicy.BaseDelay
	}
	return p
}

// Backoff returns the delay before the next delivery after the given
// (1-based) attempt failed: base * 2^(attempt-1).
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

func (t *Task) policy() Policy {
	return Policy{MaxAttempts: t.MaxAttempts, BaseDelay: time.Duration(t.BackoffBaseMS) * time.Millisecond}
}
