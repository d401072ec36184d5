package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"podium/internal/auth"
	"podium/internal/db"
	httpx "podium/internal/http"
	"podium/internal/notify"
	"podium/internal/queue"
	"podium/internal/scheduler"
	"podium/internal/tasks"
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, both worker pools and the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts, cmd)
		},
	}
}

func runServe(parent context.Context, opts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(opts, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.JWTSecret == "" {
		return errors.New("missing env: JWT_SECRET")
	}
	if err := db.AutoMigrateAndIndexes(a.db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if parent == nil {
		parent = context.Background()
	}
	sigCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	notifier := notify.New(a.db, a.regs, a.log)
	workers := []*queue.Worker{
		queue.NewWorker(a.queue, tasks.QueueRegistration, notifier.ConfirmationHandlers(), a.log),
		queue.NewWorker(a.queue, tasks.QueueReminder, notifier.ReminderHandlers(), a.log),
	}
	var wg sync.WaitGroup
	for _, w := range workers {
		w.Concurrency = a.cfg.WorkerConcurrency
		w.PollInterval = a.cfg.WorkerPollInterval
		wg.Add(1)
		go func(w *queue.Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}

	runner, err := scheduler.NewRunner(a.jobs, scheduler.Schedules{
		Reminder:   a.cfg.ReminderSchedule,
		Purge:      a.cfg.PurgeSchedule,
		Reconcile:  a.cfg.ReconcileSchedule,
		Visibility: a.cfg.TaskVisibilityTimeout,
	}, a.log)
	if err != nil {
		cancel()
		wg.Wait()
		return err
	}
	runner.Start()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           httpx.NewRouter(a.cfg, a.regs, auth.NewJWT(a.cfg.JWTSecret), a.log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.cfg.HTTPAddr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	a.log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	runner.Stop(shutdownCtx)
	cancel()
	wg.Wait()

	return serveErr
}
