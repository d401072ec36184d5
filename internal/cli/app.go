package cli

import (
	"io"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"podium/internal/config"
	"podium/internal/db"
	"podium/internal/logging"
	"podium/internal/queue"
	"podium/internal/registration"
	"podium/internal/scheduler"
)

// app is the dependency graph every command starts from.
type app struct {
	cfg   config.Config
	log   zerolog.Logger
	db    *gorm.DB
	queue *queue.Repo
	regs  *registration.Service
	jobs  *scheduler.Jobs
}

func openApp(opts *RootOptions, logOut io.Writer) (*app, error) {
	cfg, err := opts.LoadConfig()
	if err != nil {
		return nil, err
	}
	log := logging.NewWithWriter(logOut, cfg.LogLevel, cfg.LogPretty).
		With().Str("env", cfg.AppEnv).Logger()

	gdb, err := db.Connect(cfg.DBDriver, cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}

	q := queue.NewRepo(gdb, log)
	jobs := scheduler.NewJobs(gdb, q, cfg.Production(), log)
	jobs.Retention = time.Duration(cfg.RetentionDays) * 24 * time.Hour

	return &app{
		cfg:   cfg,
		log:   log,
		db:    gdb,
		queue: q,
		regs:  registration.NewService(gdb, q, log),
		jobs:  jobs,
	}, nil
}

func (a *app) Close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
