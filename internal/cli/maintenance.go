package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"podium/internal/db"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update tables and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := db.AutoMigrateAndIndexes(a.db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			return report(cmd.OutOrStdout(), rootOpts.Format, "migrate", 0)
		},
	}
}

func NewRemindCommand(rootOpts *RootOptions) *cobra.Command {
	return oneShot(rootOpts, "remind", "Enqueue reminders for competitions starting within 24h",
		func(ctx context.Context, a *app) (int64, error) {
			n, err := a.jobs.RemindUpcoming(ctx)
			return int64(n), err
		})
}

func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	return oneShot(rootOpts, "purge", "Delete registrations past the retention window (production only)",
		func(ctx context.Context, a *app) (int64, error) {
			return a.jobs.PurgeExpired(ctx)
		})
}

func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	return oneShot(rootOpts, "reconcile", "Re-enqueue confirmation for pending registrations without an active task",
		func(ctx context.Context, a *app) (int64, error) {
			n, err := a.jobs.ReconcilePending(ctx)
			return int64(n), err
		})
}

// oneShot runs a scheduler job once, outside the cron loop.
func oneShot(rootOpts *RootOptions, name, short string, run func(context.Context, *app) (int64, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			n, err := run(ctx, a)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return report(cmd.OutOrStdout(), rootOpts.Format, name, n)
		},
	}
}

func report(w io.Writer, format, job string, n int64) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(map[string]any{"job": job, "affected": n})
	}
	_, err := fmt.Fprintf(w, "%s: %d\n", job, n)
	return err
}
