package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podium/internal/scheduler"
)

func TestNewRunnerSchedulesJobs(t *testing.T) {
	_, j := newJobs(t, false)

	r, err := scheduler.NewRunner(j, scheduler.Schedules{
		Reminder:  "@every 1m",
		Purge:     "0 2 * * *",
		Reconcile: "@every 10m",
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 4, r.Len())

	r.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Stop(ctx)
}

func TestNewRunnerRejectsBadSpec(t *testing.T) {
	_, j := newJobs(t, false)

	_, err := scheduler.NewRunner(j, scheduler.Schedules{Reminder: "every tuesday"}, zerolog.Nop())
	assert.ErrorContains(t, err, "schedule remind")
}
