package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/odoosync/id"
	"github.com/xraph/odoosync/job"
)

func newQueueCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the job queue",
	}
	cmd.AddCommand(
		newQueueStatsCommand(opts),
		newQueueListCommand(opts),
		newQueueRetryCommand(opts),
		newQueueCleanupCommand(opts),
		newQueueCancelCommand(opts),
	)
	return cmd
}

func newQueueStatsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				st, err := a.eng.Stats(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if opts.json {
					return printJSON(out, st)
				}
				last := "never"
				if st.LastCompletedAt != nil {
					last = st.LastCompletedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(out, "pending:        %d\n", st.Pending)
				fmt.Fprintf(out, "processing:     %d\n", st.Processing)
				fmt.Fprintf(out, "completed:      %d\n", st.Completed)
				fmt.Fprintf(out, "failed:         %d\n", st.Failed)
				fmt.Fprintf(out, "total:          %d\n", st.Total())
				fmt.Fprintf(out, "last completed: %s\n", last)
				return nil
			})
		},
	}
}

func newQueueListCommand(opts *rootOptions) *cobra.Command {
	var (
		status string
		mod    string
		limit  int
		offset int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := job.Status(status)
			if status != "" && !st.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				jobs, err := a.eng.List(ctx, job.ListOpts{Status: st, Module: mod, Limit: limit, Offset: offset})
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), jobs)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tMODULE\tDIRECTION\tENTITY\tACTION\tWP\tODOO\tSTATUS\tATTEMPTS\tSCHEDULED\tERROR")
				for _, j := range jobs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\t%d/%d\t%s\t%s\n",
						j.ID, j.Module, j.Direction, j.EntityType, j.Action, j.WPID, j.OdooID,
						j.Status, j.Attempts, j.MaxAttempts, j.ScheduledAt.Format(time.RFC3339),
						job.TruncateError(j.ErrorMessage, 60))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, processing, completed, failed)")
	cmd.Flags().StringVar(&mod, "module", "", "filter by module")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of jobs")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of jobs to skip")
	return cmd
}

func newQueueRetryCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Move every failed job back to pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				n, err := a.eng.Retry(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d failed job(s) requeued\n", n)
				return nil
			})
		},
	}
}

func newQueueCleanupCommand(opts *rootOptions) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete finished jobs older than --days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days < 0 {
				return fmt.Errorf("--days must not be negative")
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				n, err := a.eng.Cleanup(ctx, time.Duration(days)*24*time.Hour)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d finished job(s) deleted\n", n)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "age in days (0 uses sync.cleanup_after)")
	return cmd
}

func newQueueCancelCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Delete a job that has not started",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := id.ParseJobID(args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				ok, err := a.eng.Cancel(ctx, jobID)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("job %s is not pending", jobID)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "job %s cancelled\n", jobID)
				return nil
			})
		},
	}
}
