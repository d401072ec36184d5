package registration

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"podium/internal/auth"
	"podium/internal/competition"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
)

// Registration admits one user into one competition.
// Created PENDING by the admission path, moved to CONFIRMED only by the
// confirmation worker, deleted only by the retention purge.
type Registration struct {
	ID             string  `gorm:"type:varchar(36);primaryKey"`
	CompetitionID  string  `gorm:"type:varchar(36);not null;uniqueIndex:uq_registrations_competition_user"`
	UserID         string  `gorm:"type:varchar(36);not null;uniqueIndex:uq_registrations_competition_user;index"`
	Status         Status  `gorm:"type:varchar(16);not null;default:'PENDING';index"`
	IdempotencyKey *string `gorm:"type:varchar(255);uniqueIndex"`

	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null"`

	User        auth.User               `gorm:"foreignKey:UserID"`
	Competition competition.Competition `gorm:"foreignKey:CompetitionID"`
}

func (r *Registration) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
