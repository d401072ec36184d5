package mailbox_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"podium/internal/db/dbtest"
	"podium/internal/mailbox"
)

func TestAppendFillsDefaults(t *testing.T) {
	gdb := dbtest.Open(t)
	s := &mailbox.Store{DB: gdb}

	e := mailbox.Entry{To: "a@example.com", Subject: "Hi", Body: "Hello"}
	require.NoError(t, s.Append(context.Background(), &e))
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.CreatedAt.IsZero())

	var got mailbox.Entry
	require.NoError(t, gdb.Where("id = ?", e.ID).Take(&got).Error)
	assert.Equal(t, "a@example.com", got.To)
	assert.Empty(t, got.Metadata)
}

func TestAppendKeepsDuplicates(t *testing.T) {
	gdb := dbtest.Open(t)
	s := &mailbox.Store{DB: gdb}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		e := mailbox.Entry{
			To:       "b@example.com",
			Subject:  "Same",
			Body:     "Same",
			Metadata: datatypes.JSONMap{"type": "confirmation"},
		}
		require.NoError(t, s.Append(ctx, &e))
	}

	var n int64
	require.NoError(t, gdb.Model(&mailbox.Entry{}).Where("recipient = ?", "b@example.com").Count(&n).Error)
	assert.EqualValues(t, 2, n)
}
