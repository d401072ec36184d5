package db

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"podium/internal/auth"
	"podium/internal/competition"
	"podium/internal/logging"
	"podium/internal/mailbox"
	"podium/internal/queue"
	"podium/internal/registration"
)

// Connect opens the store. postgres is the production engine; sqlite is
// for local runs and tests and is pinned to one connection so that every
// transaction is serialized, standing in for the row lock.
func Connect(driver, dsn string, log zerolog.Logger) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: logger.New(logging.GormWriter{Log: log.With().Str("comp", "gorm").Logger()}, logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}

	var dialector gorm.Dialector
	switch driver {
	case "postgres", "":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", driver)
	}

	gdb, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(2)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}
	return gdb, nil
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	// Tables
	if err := gdb.AutoMigrate(
		&auth.User{},
		&competition.Competition{},
		&registration.Registration{},
		&queue.Task{},
		&mailbox.Entry{},
	); err != nil {
		return err
	}

	// Helpful indexes
	stmts := []string{
		`create index if not exists idx_tasks_due on tasks(queue, status, run_at);`,
		`create index if not exists idx_tasks_lock on tasks(status, locked_at);`,
		`create index if not exists idx_registrations_purge on registrations(created_at, competition_id);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
