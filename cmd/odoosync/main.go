// Command odoosync runs and administers the WordPress to Odoo sync queue.
//
//	odoosync serve                      # cron triggers plus the HTTP API
//	odoosync sync run --dry-run         # one processor pass
//	odoosync queue list --status failed
//	odoosync reconcile crm contact --fix
package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	json       bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "odoosync",
		Short:        "Durable WordPress and Odoo sync queue",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default: ./odoosync.yaml, /etc/odoosync, ~/.odoosync)")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print results as JSON")

	root.AddCommand(
		newQueueCommand(opts),
		newSyncCommand(opts),
		newReconcileCommand(opts),
		newMigrateCommand(opts),
		newServeCommand(opts),
		newTokenCommand(opts),
	)
	return root
}

// withApp loads the config, builds the app, runs fn and closes the app.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) (err error) {
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
