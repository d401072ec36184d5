// Package competition holds the competition record as the admission path
// and the scheduler read it. Creating and editing competitions lives elsewhere.
package competition

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Competition struct {
	ID          string     `gorm:"type:varchar(36);primaryKey"`
	OrganizerID string     `gorm:"type:varchar(36);index;not null;default:''"`
	Title       string     `gorm:"not null"`
	Description string     `gorm:"type:text;not null;default:''"`
	Tags        Tags       `gorm:"not null;default:'{}'"`
	Capacity    int        `gorm:"not null"`
	RegDeadline time.Time  `gorm:"not null"`
	StartDate   *time.Time `gorm:"index"`
	CreatedAt   time.Time  `gorm:"not null"`
}

func (c *Competition) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// RegistrationOpen reports whether now is at or before the deadline.
func (c *Competition) RegistrationOpen(now time.Time) bool {
	return !now.After(c.RegDeadline)
}
