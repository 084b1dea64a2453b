// Package mapping records which Odoo record corresponds to which
// WordPress entity.
//
// A mapping is keyed by (module, entity_type, wp_id); saving the same key
// again overwrites it. A secondary lookup by (module, entity_type,
// odoo_id) serves pulls. The stored SyncHash lets adapters skip pushes
// whose payload has not changed since the last successful sync.
package mapping

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/xraph/odoosync"
)

// Mapping is one local to remote correspondence.
type Mapping struct {
	odoosync.Entity

	Module       string     `json:"module"`
	EntityType   string     `json:"entity_type"`
	WPID         int64      `json:"wp_id"`
	OdooID       int64      `json:"odoo_id"`
	OdooModel    string     `json:"odoo_model,omitempty"`
	SyncHash     string     `json:"sync_hash,omitempty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

// Key identifies a mapping.
type Key struct {
	Module     string
	EntityType string
	WPID       int64
}

// Key returns the mapping's identity.
func (m *Mapping) Key() Key {
	return Key{Module: m.Module, EntityType: m.EntityType, WPID: m.WPID}
}

// Store defines the persistence contract for entity mappings.
type Store interface {
	// SaveMapping inserts m or overwrites the row with the same key.
	SaveMapping(ctx context.Context, m *Mapping) error

	// GetByWPID returns the mapping for a local entity.
	GetByWPID(ctx context.Context, module, entityType string, wpID int64) (*Mapping, error)

	// GetByOdooID returns the mapping for a remote record.
	GetByOdooID(ctx context.Context, module, entityType string, odooID int64) (*Mapping, error)

	// ListMappings returns every mapping of one entity type ordered by wp_id.
	ListMappings(ctx context.Context, module, entityType string) ([]*Mapping, error)

	// DeleteMapping removes the mapping for a local entity.
	DeleteMapping(ctx context.Context, module, entityType string, wpID int64) error
}

// Hash returns a stable digest of payload. encoding/json sorts map keys,
// so equal payloads always hash the same.
func Hash(payload map[string]any) string {
	if len(payload) == 0 {
		return ""
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Unchanged reports whether m was last synced with the same payload.
func Unchanged(m *Mapping, payload map[string]any) bool {
	if m == nil || m.SyncHash == "" {
		return false
	}
	return m.SyncHash == Hash(payload)
}
