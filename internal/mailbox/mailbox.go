// Package mailbox records that a notification was produced. Delivery is
// someone else's job; entries are written once and never read back here.
package mailbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Entry struct {
	ID        string            `gorm:"type:varchar(36);primaryKey"`
	To        string            `gorm:"column:recipient;not null;index"`
	Subject   string            `gorm:"not null"`
	Body      string            `gorm:"type:text;not null"`
	Metadata  datatypes.JSONMap `gorm:"not null"`
	CreatedAt time.Time         `gorm:"not null"`
}

func (Entry) TableName() string { return "mailbox" }

type Store struct {
	DB *gorm.DB
}

// Append writes a new entry. Replays produce a second entry; nothing is
// deduplicated here.
func (s *Store) Append(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Metadata == nil {
		e.Metadata = datatypes.JSONMap{}
	}
	if err := s.DB.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("append mailbox entry: %w", err)
	}
	return nil
}
