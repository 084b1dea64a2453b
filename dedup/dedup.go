// Package dedup serializes the create path of push operations so that
// concurrent triggers for the same WordPress entity produce exactly one
// Odoo record.
//
// The guard takes the entity's push lock, re-checks the mapping store and
// only calls create when no mapping exists yet. The mapping is saved
// before the lock is released, so a waiter that gets the lock next sees it
// and skips the create. Update and delete paths do not use the guard.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/lock"
	"github.com/xraph/odoosync/mapping"
)

// DefaultTimeout bounds the wait for an entity's push lock.
const DefaultTimeout = 5 * time.Second

// Target names the entity whose remote record is being created.
type Target struct {
	Module     string
	EntityType string
	WPID       int64
	OdooModel  string
	// Payload is hashed into the saved mapping.
	Payload map[string]any
}

// Result reports the remote record for the target.
type Result struct {
	OdooID int64
	// Created is false when another trigger had already created the record.
	Created bool
}

// CreateFunc creates the remote record and returns its ID.
type CreateFunc func(ctx context.Context) (int64, error)

// Guard is the push dedup guard.
type Guard struct {
	locker   lock.Locker
	mappings mapping.Store
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithTimeout sets the lock wait.
func WithTimeout(d time.Duration) Option {
	return func(g *Guard) { g.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// NewGuard creates a guard over locker and mappings.
func NewGuard(locker lock.Locker, mappings mapping.Store, opts ...Option) *Guard {
	g := &Guard{
		locker:   locker,
		mappings: mappings,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CreateOnce runs create at most once per target across every caller
// sharing the locker. A lock timeout returns an error wrapping
// odoosync.ErrLockTimeout, which classifies as transient.
func (g *Guard) CreateOnce(ctx context.Context, t Target, create CreateFunc) (Result, error) {
	var res Result
	key := lock.PushKey(t.Module, t.EntityType, t.WPID)

	err := lock.With(ctx, g.locker, key, g.timeout, func(ctx context.Context) error {
		existing, err := g.mappings.GetByWPID(ctx, t.Module, t.EntityType, t.WPID)
		switch {
		case err == nil:
			g.logger.Debug("push create skipped, mapping exists",
				slog.String("module", t.Module),
				slog.String("entity_type", t.EntityType),
				slog.Int64("wp_id", t.WPID),
				slog.Int64("odoo_id", existing.OdooID),
			)
			res = Result{OdooID: existing.OdooID}
			return nil
		case !errors.Is(err, odoosync.ErrMappingNotFound):
			return fmt.Errorf("check mapping: %w", err)
		}

		odooID, err := create(ctx)
		if err != nil {
			return err
		}

		now := g.now()
		m := &mapping.Mapping{
			Module:       t.Module,
			EntityType:   t.EntityType,
			WPID:         t.WPID,
			OdooID:       odooID,
			OdooModel:    t.OdooModel,
			SyncHash:     mapping.Hash(t.Payload),
			LastSyncedAt: &now,
		}
		if err := g.mappings.SaveMapping(ctx, m); err != nil {
			return fmt.Errorf("save mapping for odoo id %d: %w", odooID, err)
		}
		res = Result{OdooID: odooID, Created: true}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("dedup %s/%s/%d: %w", t.Module, t.EntityType, t.WPID, err)
	}
	return res, nil
}
