package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/odoosync/engine"
)

func newSyncCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the queue processor",
	}
	cmd.AddCommand(newSyncRunCommand(opts))
	return cmd
}

func newSyncRunCommand(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process one batch of due jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				var runOpts []engine.RunOption
				if dryRun {
					runOpts = append(runOpts, engine.DryRun())
				}
				res, err := a.eng.ProcessQueue(ctx, runOpts...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if opts.json {
					return printJSON(out, res)
				}
				if res.Skipped {
					fmt.Fprintln(out, "skipped: another processor holds the run lock")
					return nil
				}
				mode := ""
				if res.DryRun {
					mode = " (dry run)"
				}
				fmt.Fprintf(out, "processed %d of %d fetched job(s)%s in %s: %d succeeded, %d failed\n",
					res.Processed, res.Fetched, mode, res.Elapsed.Round(time.Millisecond), res.Succeeded, res.Failed)
				if res.BudgetExhausted {
					fmt.Fprintln(out, "time budget exhausted, remaining jobs stay pending")
				}
				for _, f := range res.Failures {
					terminal := ""
					if f.Terminal {
						terminal = ", no attempts left"
					}
					fmt.Fprintf(out, "  job %s [%s] %s%s: %s\n", f.JobID, f.Module, f.Kind, terminal, f.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "complete jobs without calling adapters")
	return cmd
}
