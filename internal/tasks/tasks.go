// Package tasks fixes the queue names, task kinds and payload schemas shared
// by the producers (admission, scheduler) and the notification workers.
package tasks

import (
	"encoding/json"
	"fmt"

	"podium/internal/queue"
)

const (
	QueueRegistration = "registration"
	QueueReminder     = "reminder"

	KindConfirmation = "confirmation"
	KindNotify       = "notify"
)

type Confirmation struct {
	RegistrationID string `json:"registrationId"`
	UserID         string `json:"userId"`
	CompetitionID  string `json:"competitionId"`
}

type Reminder struct {
	CompetitionID    string `json:"competitionId"`
	UserID           string `json:"userId"`
	CompetitionTitle string `json:"competitionTitle"`
}

// ConfirmationKey correlates confirmation tasks with their registration.
func ConfirmationKey(registrationID string) string {
	return KindConfirmation + ":" + registrationID
}

func NewConfirmation(p Confirmation) (queue.Task, error) {
	t, err := queue.NewTask(QueueRegistration, KindConfirmation, p, queue.DefaultPolicy)
	if err != nil {
		return t, err
	}
	key := ConfirmationKey(p.RegistrationID)
	t.DedupKey = &key
	return t, nil
}

func NewReminder(p Reminder) (queue.Task, error) {
	return queue.NewTask(QueueReminder, KindNotify, p, queue.DefaultPolicy)
}

// Decode unmarshals a task payload, rejecting tasks of another kind.
// A payload that does not decode can never succeed, so both failures
// are permanent.
func Decode[T any](t *queue.Task, kind string) (T, error) {
	var v T
	if t.Kind != kind {
		return v, queue.Permanent(fmt.Errorf("%w: got %q, want %q", queue.ErrUnknownKind, t.Kind, kind))
	}
	if err := json.Unmarshal(t.Payload, &v); err != nil {
		return v, queue.Permanent(fmt.Errorf("decode %s payload: %w", kind, err))
	}
	return v, nil
}
