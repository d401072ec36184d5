package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type DeadLettersOptions struct {
	*RootOptions
	Queue string
	Limit int
}

type deadLetter struct {
	ID        string    `json:"id"`
	Queue     string    `json:"queue"`
	Kind      string    `json:"kind"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewDeadLettersCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeadLettersOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "deadletters",
		Short: "List tasks that exhausted their retries",
		Long: `List dead-lettered tasks, newest first.

Examples:
  podium deadletters
  podium deadletters --queue registration --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts.RootOptions, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			dead, err := a.queue.DeadLetters(ctx, opts.Queue, opts.Limit)
			if err != nil {
				return err
			}

			out := make([]deadLetter, 0, len(dead))
			for _, t := range dead {
				d := deadLetter{ID: t.ID, Queue: t.Queue, Kind: t.Kind, Attempts: t.Attempts, UpdatedAt: t.UpdatedAt}
				if t.LastError != nil {
					d.LastError = *t.LastError
				}
				out = append(out, d)
			}

			w := cmd.OutOrStdout()
			if opts.Format == "json" {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			if len(out) == 0 {
				_, err := fmt.Fprintln(w, "no dead-lettered tasks")
				return err
			}
			for _, d := range out {
				fmt.Fprintf(w, "%s  %-12s %-12s attempts=%d  %s\n", d.ID, d.Queue, d.Kind, d.Attempts, d.LastError)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Queue, "queue", "", "only list this queue")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum tasks to list")

	return cmd
}

func NewRequeueCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <task-id>",
		Short: "Give a dead-lettered task a fresh retry budget",
		Args:  cobra.ExactArgs(1),
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
			if err := a.queue.Requeue(ctx, args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "requeued %s\n", args[0])
			return err
		},
	}
}
