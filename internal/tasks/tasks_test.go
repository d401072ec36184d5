package tasks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podium/internal/queue"
)

func TestNewConfirmationSchema(t *testing.T) {
	task, err := NewConfirmation(Confirmation{RegistrationID: "r1", UserID: "u1", CompetitionID: "c1"})
	require.NoError(t, err)

	assert.Equal(t, QueueRegistration, task.Queue)
	assert.Equal(t, KindConfirmation, task.Kind)
	assert.Equal(t, 3, task.MaxAttempts)
	assert.EqualValues(t, 2000, task.BackoffBaseMS)
	require.NotNil(t, task.DedupKey)
	assert.Equal(t, "confirmation:r1", *task.DedupKey)
	assert.JSONEq(t, `{"registrationId":"r1","userId":"u1","competitionId":"c1"}`, string(task.Payload))
}

func TestNewReminderSchema(t *testing.T) {
	task, err := NewReminder(Reminder{CompetitionID: "c1", UserID: "u1", CompetitionTitle: "Spring Open"})
	require.NoError(t, err)

	assert.Equal(t, QueueReminder, task.Queue)
	assert.Equal(t, KindNotify, task.Kind)
	assert.Nil(t, task.DedupKey)
	assert.JSONEq(t, `{"competitionId":"c1","userId":"u1","competitionTitle":"Spring Open"}`, string(task.Payload))
}

func TestDecode(t *testing.T) {
	task, err := NewReminder(Reminder{CompetitionID: "c1", UserID: "u1", CompetitionTitle: "Open"})
	require.NoError(t, err)

	got, err := Decode[Reminder](&task, KindNotify)
	require.NoError(t, err)
	assert.Equal(t, "Open", got.CompetitionTitle)

	_, err = Decode[Confirmation](&task, KindConfirmation)
	assert.True(t, queue.IsPermanent(err))
	assert.ErrorIs(t, err, queue.ErrUnknownKind)

	task.Payload = []byte("{not json")
	_, err = Decode[Reminder](&task, KindNotify)
	assert.True(t, queue.IsPermanent(err))
}
