// Package notify holds the queue handlers that turn confirmation and
// reminder tasks into mailbox entries.
package notify

import (
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"podium/internal/mailbox"
	"podium/internal/queue"
	"podium/internal/registration"
	"podium/internal/tasks"
)

// ErrDataInconsistency means a task references a row that no longer
// exists. Retrying cannot fix it.
var ErrDataInconsistency = errors.New("referenced record does not exist")

type Notifier struct {
	DB            *gorm.DB
	Mailbox       *mailbox.Store
	Registrations *registration.Service
	Log           zerolog.Logger
}

func New(db *gorm.DB, regs *registration.Service, log zerolog.Logger) *Notifier {
	return &Notifier{
		DB:            db,
		Mailbox:       &mailbox.Store{DB: db},
		Registrations: regs,
		Log:           log.With().Str("comp", "notify").Logger(),
	}
}

// ConfirmationHandlers is the handler set for the registration queue.
func (n *Notifier) ConfirmationHandlers() map[string]queue.Handler {
	return map[string]queue.Handler{tasks.KindConfirmation: n.Confirmation}
}

// ReminderHandlers is the handler set for the reminder queue.
func (n *Notifier) ReminderHandlers() map[string]queue.Handler {
	return map[string]queue.Handler{tasks.KindNotify: n.Reminder}
}
