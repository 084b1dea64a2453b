package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xraph/odoosync/reconcile"
)

func newReconcileCommand(opts *rootOptions) *cobra.Command {
	var (
		fix   bool
		model string
		all   bool
	)
	cmd := &cobra.Command{
		Use:   "reconcile [<module> <entity_type>]",
		Short: "Find mappings whose Odoo record no longer exists",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if a.reconciler == nil {
					return errors.New("reconcile needs an odoo connection (odoo.url)")
				}
				var reports []*reconcile.Report
				if all {
					var err error
					if reports, err = a.reconciler.ReconcileAll(ctx, fix); err != nil {
						return err
					}
				} else {
					rep, err := a.reconciler.Reconcile(ctx, reconcile.Request{
						Module:     args[0],
						EntityType: args[1],
						OdooModel:  model,
						Fix:        fix,
					})
					if err != nil {
						return err
					}
					reports = append(reports, rep)
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), reports)
				}
				for _, rep := range reports {
					printReport(cmd.OutOrStdout(), rep, fix)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "delete orphaned mappings")
	cmd.Flags().StringVar(&model, "model", "", "odoo model (default: from the module registry)")
	cmd.Flags().BoolVar(&all, "all", false, "reconcile every registered entity type")
	return cmd
}

func printReport(w io.Writer, rep *reconcile.Report, fix bool) {
	fmt.Fprintf(w, "%s/%s (%s): %d checked, %d orphaned", rep.Module, rep.EntityType, rep.OdooModel, rep.Checked, len(rep.Orphaned))
	if fix {
		fmt.Fprintf(w, ", %d fixed", rep.Fixed)
	}
	fmt.Fprintln(w)
	if rep.RemoteError != "" {
		fmt.Fprintf(w, "  remote query failed: %s\n", rep.RemoteError)
	}
	for _, o := range rep.Orphaned {
		fmt.Fprintf(w, "  wp_id=%d odoo_id=%d\n", o.WPID, o.OdooID)
	}
}
