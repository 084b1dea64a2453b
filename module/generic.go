package module

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/dedup"
	"github.com/xraph/odoosync/job"
	"github.com/xraph/odoosync/mapping"
	"github.com/xraph/odoosync/odoo"
)

// LocalStore is the WordPress side of a pull: it writes entities locally.
type LocalStore interface {
	// Upsert writes fields to the local entity wpID, creating it when
	// wpID is zero, and returns the entity's id.
	Upsert(ctx context.Context, entityType string, wpID int64, fields map[string]any) (int64, error)

	// Delete removes the local entity.
	Delete(ctx context.Context, entityType string, wpID int64) error
}

// Entity describes one entity type handled by a Generic adapter.
type Entity struct {
	Type      string
	OdooModel string

	// Fields limits what a pull reads from Odoo. Empty reads all fields.
	Fields []string

	// ToOdoo maps a local payload to Odoo values. Nil passes the payload
	// through unchanged.
	ToOdoo func(payload map[string]any) (map[string]any, error)

	// FromOdoo maps an Odoo record to local fields. Nil passes the record
	// through unchanged.
	FromOdoo func(record map[string]any) (map[string]any, error)
}

// Generic is a table-driven adapter. Push creates through the dedup guard
// and updates mapped records with write; unchanged payloads are skipped.
// Pull reads the record and upserts it into the LocalStore.
type Generic struct {
	name     string
	entities map[string]Entity
	odoo     odoo.Executor
	mappings mapping.Store
	guard    *dedup.Guard
	local    LocalStore
	logger   *slog.Logger
	now      func() time.Time
}

var _ Adapter = (*Generic)(nil)

// GenericOption configures a Generic adapter.
type GenericOption func(*Generic)

// WithEntity registers an entity type.
func WithEntity(e Entity) GenericOption {
	return func(g *Generic) { g.entities[e.Type] = e }
}

// WithLocalStore enables pulls.
func WithLocalStore(ls LocalStore) GenericOption {
	return func(g *Generic) { g.local = ls }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) GenericOption {
	return func(g *Generic) { g.logger = l }
}

// NewGeneric creates a Generic adapter named name.
func NewGeneric(name string, ex odoo.Executor, mappings mapping.Store, guard *dedup.Guard, opts ...GenericOption) *Generic {
	g := &Generic{
		name:     name,
		entities: make(map[string]Entity),
		odoo:     ex,
		mappings: mappings,
		guard:    guard,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name implements Adapter.
func (g *Generic) Name() string { return g.name }

// OdooModels implements Adapter.
func (g *Generic) OdooModels() map[string]string {
	out := make(map[string]string, len(g.entities))
	for t, e := range g.entities {
		out[t] = e.OdooModel
	}
	return out
}

func (g *Generic) entity(entityType string) (Entity, error) {
	e, ok := g.entities[entityType]
	if !ok {
		return Entity{}, fmt.Errorf("module %s: unknown entity type %q", g.name, entityType)
	}
	return e, nil
}

// ──────────────────────────────────────────────────
// Push
// ──────────────────────────────────────────────────

// PushToOdoo implements Adapter.
func (g *Generic) PushToOdoo(ctx context.Context, req Request) error {
	e, err := g.entity(req.EntityType)
	if err != nil {
		return err
	}

	existing, err := g.mappings.GetByWPID(ctx, g.name, e.Type, req.WPID)
	if err != nil && !errors.Is(err, odoosync.ErrMappingNotFound) {
		return fmt.Errorf("module %s: lookup mapping: %w", g.name, err)
	}
	if err != nil {
		existing = nil
	}

	if req.Action == job.ActionDelete {
		return g.pushDelete(ctx, e, req, existing)
	}

	if existing != nil && mapping.Unchanged(existing, req.Payload) {
		g.logger.Debug("push skipped, payload unchanged",
			slog.String("module", g.name),
			slog.String("entity_type", e.Type),
			slog.Int64("wp_id", req.WPID),
		)
		return nil
	}

	vals, err := g.toOdoo(e, req.Payload)
	if err != nil {
		return err
	}

	if existing == nil && req.OdooID == 0 {
		res, err := g.guard.CreateOnce(ctx, dedup.Target{
			Module:     g.name,
			EntityType: e.Type,
			WPID:       req.WPID,
			OdooModel:  e.OdooModel,
			Payload:    req.Payload,
		}, func(ctx context.Context) (int64, error) {
			return odoo.Create(ctx, g.odoo, e.OdooModel, vals)
		})
		if err != nil {
			return err
		}
		if res.Created {
			return nil
		}
		// A concurrent trigger created the record first; bring it up to date.
		existing = &mapping.Mapping{Module: g.name, EntityType: e.Type, WPID: req.WPID, OdooID: res.OdooID, OdooModel: e.OdooModel}
	}

	odooID := req.OdooID
	if existing != nil {
		odooID = existing.OdooID
	}
	if err := odoo.Write(ctx, g.odoo, e.OdooModel, []int64{odooID}, vals); err != nil {
		return err
	}
	return g.saveMapping(ctx, e, req.WPID, odooID, req.Payload)
}

func (g *Generic) pushDelete(ctx context.Context, e Entity, req Request, existing *mapping.Mapping) error {
	odooID := req.OdooID
	if existing != nil {
		odooID = existing.OdooID
	}
	if odooID == 0 {
		// Never synced; nothing to remove remotely.
		return nil
	}
	if err := odoo.Unlink(ctx, g.odoo, e.OdooModel, []int64{odooID}); err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	if err := g.mappings.DeleteMapping(ctx, g.name, e.Type, req.WPID); err != nil &&
		!errors.Is(err, odoosync.ErrMappingNotFound) {
		return fmt.Errorf("module %s: delete mapping: %w", g.name, err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Pull
// ──────────────────────────────────────────────────

// PullFromOdoo implements Adapter.
func (g *Generic) PullFromOdoo(ctx context.Context, req Request) error {
	e, err := g.entity(req.EntityType)
	if err != nil {
		return err
	}
	if g.local == nil {
		return fmt.Errorf("module %s: pull not supported: no local store", g.name)
	}
	ctx = odoosync.WithImporting(ctx)

	existing, err := g.mappings.GetByOdooID(ctx, g.name, e.Type, req.OdooID)
	if err != nil && !errors.Is(err, odoosync.ErrMappingNotFound) {
		return fmt.Errorf("module %s: lookup mapping: %w", g.name, err)
	}
	if err != nil {
		existing = nil
	}

	if req.Action == job.ActionDelete {
		if existing == nil {
			return nil
		}
		if err := g.local.Delete(ctx, e.Type, existing.WPID); err != nil {
			return fmt.Errorf("module %s: delete local %s %d: %w", g.name, e.Type, existing.WPID, err)
		}
		return g.mappings.DeleteMapping(ctx, g.name, e.Type, existing.WPID)
	}

	record := req.Payload
	if len(record) == 0 {
		recs, err := odoo.Read(ctx, g.odoo, e.OdooModel, []int64{req.OdooID}, e.Fields)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return fmt.Errorf("module %s: %s %d: missingerror: record not found", g.name, e.OdooModel, req.OdooID)
		}
		record = recs[0]
	}

	fields := record
	if e.FromOdoo != nil {
		if fields, err = e.FromOdoo(record); err != nil {
			return fmt.Errorf("module %s: map %s: %w", g.name, e.OdooModel, err)
		}
	}

	wpID := req.WPID
	if existing != nil {
		wpID = existing.WPID
	}
	wpID, err = g.local.Upsert(ctx, e.Type, wpID, fields)
	if err != nil {
		return fmt.Errorf("module %s: upsert local %s: %w", g.name, e.Type, err)
	}
	return g.saveMapping(ctx, e, wpID, req.OdooID, fields)
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (g *Generic) toOdoo(e Entity, payload map[string]any) (map[string]any, error) {
	if e.ToOdoo == nil {
		return payload, nil
	}
	vals, err := e.ToOdoo(payload)
	if err != nil {
		return nil, fmt.Errorf("module %s: map %s: %w", g.name, e.Type, err)
	}
	return vals, nil
}

func (g *Generic) saveMapping(ctx context.Context, e Entity, wpID, odooID int64, payload map[string]any) error {
	now := g.now()
	err := g.mappings.SaveMapping(ctx, &mapping.Mapping{
		Module:       g.name,
		EntityType:   e.Type,
		WPID:         wpID,
		OdooID:       odooID,
		OdooModel:    e.OdooModel,
		SyncHash:     mapping.Hash(payload),
		LastSyncedAt: &now,
	})
	if err != nil {
		return fmt.Errorf("module %s: save mapping: %w", g.name, err)
	}
	return nil
}
