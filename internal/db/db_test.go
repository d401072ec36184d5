package db

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectUnknownDriver(t *testing.T) {
	_, err := Connect("oracle", "x", zerolog.Nop())
	assert.ErrorContains(t, err, "unknown DB_DRIVER")
}

func TestAutoMigrateSQLite(t *testing.T) {
	gdb, err := Connect("sqlite", ":memory:", zerolog.Nop())
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	require.NoError(t, AutoMigrateAndIndexes(gdb))
	// idempotent
	require.NoError(t, AutoMigrateAndIndexes(gdb))

	for _, table := range []string{"users", "competitions", "registrations", "tasks", "mailbox"} {
		assert.True(t, gdb.Migrator().HasTable(table), table)
	}
	assert.True(t, gdb.Migrator().HasIndex("registrations", "uq_registrations_competition_user"))
}
