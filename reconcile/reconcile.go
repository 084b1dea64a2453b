// Package reconcile audits entity mappings against Odoo. It finds mappings
// whose remote record no longer exists and optionally deletes them. It
// runs out of band and never touches the job queue.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/mapping"
	"github.com/xraph/odoosync/module"
	"github.com/xraph/odoosync/odoo"
)

// Request selects the mappings to audit. OdooModel may be empty when the
// Reconciler has a module registry to resolve it from.
type Request struct {
	Module     string
	EntityType string
	OdooModel  string
	// Fix deletes orphaned mappings.
	Fix bool
}

// Orphan is a mapping whose remote record is gone.
type Orphan struct {
	WPID   int64 `json:"wp_id"`
	OdooID int64 `json:"odoo_id"`
}

// Report is the outcome of one reconcile call.
type Report struct {
	Module     string   `json:"module"`
	EntityType string   `json:"entity_type"`
	OdooModel  string   `json:"odoo_model"`
	Checked    int      `json:"checked"`
	Orphaned   []Orphan `json:"orphaned"`
	Fixed      int      `json:"fixed"`
	// RemoteError is set when the remote query failed. Orphaned and Fixed
	// are then empty.
	RemoteError string `json:"remote_error,omitempty"`
}

// Reconciler checks mappings against the remote server.
type Reconciler struct {
	odoo     odoo.Executor
	mappings mapping.Store
	registry *module.Registry
	logger   *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithRegistry resolves remote models for requests that omit OdooModel
// and enables ReconcileAll.
func WithRegistry(r *module.Registry) Option {
	return func(rc *Reconciler) { rc.registry = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(rc *Reconciler) { rc.logger = l }
}

// New creates a Reconciler.
func New(ex odoo.Executor, mappings mapping.Store, opts ...Option) *Reconciler {
	rc := &Reconciler{odoo: ex, mappings: mappings, logger: slog.Default()}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// Reconcile audits one module entity type. The remote existence check is a
// single search with an id IN filter; archived records count as existing.
// A remote failure is reported in the Report, not returned: the caller
// gets Checked set, no orphans and nothing fixed. Only a failure to load
// the mappings returns an error.
func (rc *Reconciler) Reconcile(ctx context.Context, req Request) (*Report, error) {
	if req.OdooModel == "" && rc.registry != nil {
		req.OdooModel, _ = rc.registry.Model(req.Module, req.EntityType)
	}
	if req.OdooModel == "" {
		return nil, fmt.Errorf("reconcile %s/%s: no odoo model: %w", req.Module, req.EntityType, odoosync.ErrAdapterNotFound)
	}

	rows, err := rc.mappings.ListMappings(ctx, req.Module, req.EntityType)
	if err != nil {
		return nil, fmt.Errorf("reconcile %s/%s: list mappings: %w", req.Module, req.EntityType, err)
	}

	report := &Report{
		Module:     req.Module,
		EntityType: req.EntityType,
		OdooModel:  req.OdooModel,
		Checked:    len(rows),
	}
	if len(rows) == 0 {
		return report, nil
	}

	ids := make([]int64, 0, len(rows))
	for _, m := range rows {
		ids = append(ids, m.OdooID)
	}

	found, err := odoo.Search(ctx, rc.odoo, req.OdooModel,
		odoo.Domain{{"id", "in", ids}}, odoo.InactiveContext())
	if err != nil {
		rc.logger.Error("reconcile remote query failed",
			slog.String("module", req.Module),
			slog.String("entity_type", req.EntityType),
			slog.String("odoo_model", req.OdooModel),
			slog.Int("checked", len(rows)),
			slog.String("error", err.Error()),
		)
		report.RemoteError = err.Error()
		return report, nil
	}

	exists := make(map[int64]struct{}, len(found))
	for _, id := range found {
		exists[id] = struct{}{}
	}
	for _, m := range rows {
		if _, ok := exists[m.OdooID]; !ok {
			report.Orphaned = append(report.Orphaned, Orphan{WPID: m.WPID, OdooID: m.OdooID})
		}
	}

	if req.Fix {
		for _, o := range report.Orphaned {
			err := rc.mappings.DeleteMapping(ctx, req.Module, req.EntityType, o.WPID)
			if err != nil && !errors.Is(err, odoosync.ErrMappingNotFound) {
				rc.logger.Warn("failed to delete orphaned mapping",
					slog.String("module", req.Module),
					slog.Int64("wp_id", o.WPID),
					slog.String("error", err.Error()),
				)
				continue
			}
			report.Fixed++
		}
	}

	rc.logger.Info("reconcile completed",
		slog.String("module", req.Module),
		slog.String("entity_type", req.EntityType),
		slog.Int("checked", report.Checked),
		slog.Int("orphaned", len(report.Orphaned)),
		slog.Int("fixed", report.Fixed),
	)
	return report, nil
}

// ReconcileAll audits every entity type of every registered module.
func (rc *Reconciler) ReconcileAll(ctx context.Context, fix bool) ([]*Report, error) {
	if rc.registry == nil {
		return nil, errors.New("reconcile: no module registry")
	}
	var reports []*Report
	for _, name := range rc.registry.Names() {
		a, _ := rc.registry.Get(name)
		models := a.OdooModels()
		types := make([]string, 0, len(models))
		for t := range models {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, entityType := range types {
			model := models[entityType]
			r, err := rc.Reconcile(ctx, Request{Module: name, EntityType: entityType, OdooModel: model, Fix: fix})
			if err != nil {
				return reports, err
			}
			reports = append(reports, r)
		}
	}
	return reports, nil
}
