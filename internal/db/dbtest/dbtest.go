// Package dbtest opens migrated in-memory stores and seeds fixtures for
// package tests.
package dbtest

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"podium/internal/auth"
	"podium/internal/competition"
	"podium/internal/db"
	"podium/internal/registration"
)

// Open returns a fresh migrated sqlite database that lives for the test.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	gdb, err := db.Connect("sqlite", ":memory:", zerolog.Nop())
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrateAndIndexes(gdb))
	return gdb
}

// PostgresEnv names the DSN of a scratch postgres database. Tests that
// need real row locks skip when it is unset.
const PostgresEnv = "PODIUM_TEST_DATABASE_URL"

// OpenPostgres connects to the database named by PostgresEnv and migrates
// it. Rows are not cleaned up; callers scope their fixtures.
func OpenPostgres(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := os.Getenv(PostgresEnv)
	if dsn == "" {
		t.Skipf("%s not set", PostgresEnv)
	}
	gdb, err := db.Connect("postgres", dsn, zerolog.Nop())
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrateAndIndexes(gdb))
	return gdb
}

func User(t testing.TB, gdb *gorm.DB, email string) auth.User {
	t.Helper()
	name, _, _ := strings.Cut(email, "@")
	u := auth.User{Email: email, Name: name, CreatedAt: time.Now().UTC()}
	require.NoError(t, gdb.Create(&u).Error)
	return u
}

// Competition seeds a competition. A nil start leaves StartDate unset.
func Competition(t testing.TB, gdb *gorm.DB, title string, capacity int, deadline time.Time, start *time.Time) competition.Competition {
	t.Helper()
	c := competition.Competition{
		Title:       title,
		Capacity:    capacity,
		RegDeadline: deadline.UTC(),
		StartDate:   start,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, gdb.Create(&c).Error)
	return c
}

// Registration inserts a registration row directly, bypassing admission.
func Registration(t testing.TB, gdb *gorm.DB, compID, userID string, status registration.Status, createdAt time.Time) registration.Registration {
	t.Helper()
	r := registration.Registration{
		CompetitionID: compID,
		UserID:        userID,
		Status:        status,
		CreatedAt:     createdAt.UTC(),
		UpdatedAt:     createdAt.UTC(),
	}
	require.NoError(t, gdb.Omit("User", "Competition").Create(&r).Error)
	return r
}
