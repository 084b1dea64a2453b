package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/odoosync/api"
	"github.com/xraph/odoosync/cron"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the periodic triggers and the HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if migrate {
					if err := a.store.Migrate(ctx); err != nil {
						return err
					}
				}
				return serve(ctx, a)
			})
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "run schema migrations before starting")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	sched := cron.NewScheduler(cron.WithLogger(a.logger))
	for _, t := range cron.Tasks(a.eng, a.cfg.Cron, a.logger) {
		if err := sched.Add(t); err != nil {
			return err
		}
	}

	var srv *http.Server
	if a.cfg.API.Listen != "" {
		apiOpts := []api.Option{
			api.WithBreaker(a.breaker),
			api.WithLogger(a.logger),
		}
		if a.cfg.API.JWTSecret != "" {
			apiOpts = append(apiOpts, api.WithJWTSecret([]byte(a.cfg.API.JWTSecret)))
		}
		if a.reconciler != nil {
			apiOpts = append(apiOpts, api.WithReconciler(a.reconciler))
		}
		srv = &http.Server{
			Addr:              a.cfg.API.Listen,
			Handler:           api.New(a.eng, apiOpts...).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if err := sched.Start(ctx); err != nil {
		return err
	}

	if srv != nil {
		g.Go(func() error {
			a.logger.Info("api listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("api: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.API.ShutdownTimeout)
		defer cancel()

		var errs []error
		if srv != nil {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		errs = append(errs, sched.Stop(shutdownCtx))
		return errors.Join(errs...)
	})

	return g.Wait()
}
