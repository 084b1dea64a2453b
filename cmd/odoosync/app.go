package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/odoosync"
	audithook "github.com/xraph/odoosync/audit_hook"
	"github.com/xraph/odoosync/circuit"
	"github.com/xraph/odoosync/engine"
	"github.com/xraph/odoosync/kv"
	"github.com/xraph/odoosync/module"
	"github.com/xraph/odoosync/notify"
	"github.com/xraph/odoosync/odoo"
	"github.com/xraph/odoosync/reconcile"
	"github.com/xraph/odoosync/store"
	"github.com/xraph/odoosync/store/memory"
	"github.com/xraph/odoosync/store/mysql"
	"github.com/xraph/odoosync/store/postgres"
	"github.com/xraph/odoosync/store/redis"
	"github.com/xraph/odoosync/store/sqlite"
	"github.com/xraph/odoosync/wordpress"
)

// app is everything a command needs, built once from the config.
type app struct {
	cfg    *Config
	logger *slog.Logger

	syncer  *odoosync.Syncer
	store   store.Store
	eng     *engine.Engine
	breaker *circuit.Breaker

	// odoo and reconciler are nil when no Odoo connection is configured.
	odoo       *odoo.Client
	reconciler *reconcile.Reconciler

	redis     *goredis.Client
	logCloser io.Closer
}

// newApp opens the store and builds the engine. Migrations are not run
// here; see the migrate command and serve --migrate.
func newApp(ctx context.Context, cfg *Config) (_ *app, err error) {
	logger, logCloser, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, logCloser: logCloser}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	a.store, err = openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	var shared kv.Store = kv.NewMemory()
	engOpts := []engine.Option{}
	if cfg.Redis.Addr != "" {
		a.redis = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rs := redis.New(a.redis, redis.WithLogger(logger))
		if err = rs.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		shared = rs
		engOpts = append(engOpts, engine.WithLocker(rs))
	} else {
		logger.Debug("redis not configured, breaker and alert state are process-local")
	}

	a.breaker = circuit.New(shared, "odoo",
		circuit.WithThreshold(cfg.Sync.Breaker.Threshold),
		circuit.WithRecoveryDelay(cfg.Sync.Breaker.RecoveryDelay),
		circuit.WithLogger(logger),
	)

	var notifier notify.Notifier = notify.Log{Logger: logger}
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.Multi{notifier, notify.NewWebhook(cfg.Notify.WebhookURL)}
	}
	engOpts = append(engOpts, engine.WithNotifier(notify.NewPolicy(notifier, shared,
		notify.WithThreshold(cfg.Sync.Notify.FailureThreshold),
		notify.WithCooldown(cfg.Sync.Notify.Cooldown),
		notify.WithLogger(logger),
	)))

	if cfg.Audit.Enabled {
		var auditOpts []audithook.Option
		if len(cfg.Audit.Actions) > 0 {
			auditOpts = append(auditOpts, audithook.WithActions(cfg.Audit.Actions...))
		}
		auditOpts = append(auditOpts, audithook.WithLogger(logger))
		rec := audithook.LogRecorder{Logger: logger.With(slog.String("logger", "audit"))}
		engOpts = append(engOpts, engine.WithExtension(audithook.New(rec, auditOpts...)))
	}

	a.syncer, err = odoosync.New(
		odoosync.WithConfig(cfg.Sync),
		odoosync.WithStore(a.store),
		odoosync.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	a.eng, err = engine.Build(a.syncer, engOpts...)
	if err != nil {
		return nil, err
	}

	if cfg.Odoo.URL == "" {
		if len(cfg.Modules) > 0 {
			return nil, errors.New("modules are configured but odoo.url is empty")
		}
		return a, nil
	}

	a.odoo, err = odoo.New(odoo.Config{
		URL:      cfg.Odoo.URL,
		Database: cfg.Odoo.Database,
		Username: cfg.Odoo.Username,
		APIKey:   cfg.Odoo.APIKey,
		Timeout:  cfg.Odoo.Timeout,
	},
		odoo.WithBreaker(a.breaker),
		odoo.WithRateLimit(cfg.Odoo.RateLimit, cfg.Odoo.RateBurst),
		odoo.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	if err = a.registerModules(); err != nil {
		return nil, err
	}
	a.reconciler = reconcile.New(a.odoo, a.eng.Mappings(),
		reconcile.WithRegistry(a.eng.Registry()),
		reconcile.WithLogger(logger),
	)
	return a, nil
}

func (a *app) registerModules() error {
	var local module.LocalStore
	if wp := a.cfg.WordPress; wp.CallbackURL != "" {
		local = wordpress.NewCallback(wp.CallbackURL,
			wordpress.WithToken(wp.Token),
			wordpress.WithHTTPClient(&http.Client{Timeout: wp.Timeout}),
		)
	}

	for _, mc := range a.cfg.Modules {
		opts := []module.GenericOption{module.WithLogger(a.logger)}
		if local != nil {
			opts = append(opts, module.WithLocalStore(local))
		}
		for _, ec := range mc.Entities {
			if ec.Type == "" || ec.OdooModel == "" {
				return fmt.Errorf("module %s: entity needs type and odoo_model", mc.Name)
			}
			opts = append(opts, module.WithEntity(module.Entity{
				Type:      ec.Type,
				OdooModel: ec.OdooModel,
				Fields:    ec.Fields,
			}))
		}
		if err := a.eng.Register(module.NewGeneric(mc.Name, a.odoo, a.eng.Mappings(), a.eng.Guard(), opts...)); err != nil {
			return fmt.Errorf("module %s: %w", mc.Name, err)
		}
	}
	return nil
}

// close shuts the engine down and releases every connection.
func (a *app) close(ctx context.Context) error {
	var errs []error
	switch {
	case a.syncer != nil:
		errs = append(errs, a.syncer.Close(ctx))
	case a.store != nil:
		errs = append(errs, a.store.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.logCloser != nil {
		errs = append(errs, a.logCloser.Close())
	}
	return errors.Join(errs...)
}

func openStore(ctx context.Context, cfg StoreConfig, logger *slog.Logger) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "postgres", "postgresql", "pg":
		var pg *postgres.Store
		pg, err = postgres.New(ctx, cfg.DSN, postgres.WithLogger(logger))
		st = pg
	case "mysql", "mariadb":
		var my *mysql.Store
		my, err = mysql.Open(ctx, cfg.DSN, mysql.WithLogger(logger))
		st = my
	case "sqlite", "sqlite3":
		var lite *sqlite.Store
		lite, err = sqlite.Open(ctx, cfg.DSN, sqlite.WithLogger(logger))
		st = lite
	case "memory":
		logger.Warn("memory store selected, jobs are lost on exit")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	return st, nil
}
