package notify

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"podium/internal/auth"
	"podium/internal/mailbox"
	"podium/internal/queue"
	"podium/internal/tasks"
)

// Reminder writes a reminder mailbox entry for the user. It changes no
// registration state.
func (n *Notifier) Reminder(ctx context.Context, t *queue.Task) error {
	p, err := tasks.Decode[tasks.Reminder](t, tasks.KindNotify)
	if err != nil {
		return err
	}

	var user auth.User
	err = n.DB.WithContext(ctx).Where("id = ?", p.UserID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return queue.Permanent(fmt.Errorf("user %s: %w", p.UserID, ErrDataInconsistency))
	}
	if err != nil {
		return fmt.Errorf("load user %s: %w", p.UserID, err)
	}

	entry := mailbox.Entry{
		To:      user.Email,
		Subject: fmt.Sprintf("Reminder: %s starts soon!", p.CompetitionTitle),
		Body: fmt.Sprintf("Hello %s, this is a reminder that %s is starting within 24 hours. Don't forget to participate!",
			user.Name, p.CompetitionTitle),
		Metadata: datatypes.JSONMap{
			"competitionId": p.CompetitionID,
			"userId":        p.UserID,
			"type":          "reminder",
		},
	}
	if err := n.Mailbox.Append(ctx, &entry); err != nil {
		return err
	}

	n.Log.Debug().Str("competition", p.CompetitionID).Str("user", p.UserID).Msg("reminder written")
	return nil
}
