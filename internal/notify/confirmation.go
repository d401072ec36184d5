package notify

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"podium/internal/mailbox"
	"podium/internal/queue"
	"podium/internal/registration"
	"podium/internal/tasks"
)

// Confirmation writes the confirmation mailbox entry and marks the
// registration CONFIRMED. Both writes happen before the task is acked; a
// redelivery after a crash between them repeats the entry and re-sets the
// status, which is harmless.
func (n *Notifier) Confirmation(ctx context.Context, t *queue.Task) error {
	p, err := tasks.Decode[tasks.Confirmation](t, tasks.KindConfirmation)
	if err != nil {
		return err
	}

	reg, err := n.Registrations.Get(ctx, p.RegistrationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return queue.Permanent(fmt.Errorf("registration %s: %w", p.RegistrationID, ErrDataInconsistency))
	}
	if err != nil {
		return fmt.Errorf("load registration %s: %w", p.RegistrationID, err)
	}
	if reg.User.ID == "" || reg.Competition.ID == "" {
		return queue.Permanent(fmt.Errorf("registration %s user/competition: %w", reg.ID, ErrDataInconsistency))
	}

	log := n.Log.With().Str("registration", reg.ID).Str("task", t.ID).Logger()
	if reg.Status == registration.StatusConfirmed {
		log.Warn().Int("attempt", t.Attempts).Msg("confirmation redelivered, mailbox entry will be duplicated")
	}

	title := reg.Competition.Title
	entry := mailbox.Entry{
		To:      reg.User.Email,
		Subject: fmt.Sprintf("Registration Confirmed: %s", title),
		Body:    fmt.Sprintf("Hello %s, your registration for %s has been confirmed!", reg.User.Name, title),
		Metadata: datatypes.JSONMap{
			"registrationId": reg.ID,
			"competitionId":  reg.CompetitionID,
			"type":           "confirmation",
		},
	}
	if err := n.Mailbox.Append(ctx, &entry); err != nil {
		return err
	}

	if err := n.Registrations.Confirm(ctx, reg.ID); err != nil {
		return fmt.Errorf("confirm registration %s: %w", reg.ID, err)
	}

	log.Info().Str("to", entry.To).Msg("registration confirmed")
	return nil
}
