package auth

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the participant identity referenced by registrations and reminders.
// Accounts are provisioned elsewhere; this core only reads them.
type User struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	Email     string    `gorm:"uniqueIndex;not null"`
	Name      string    `gorm:"not null;default:''"`
	CreatedAt time.Time `gorm:"not null"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
