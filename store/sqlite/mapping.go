package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/mapping"
)

const mappingColumns = `
	module, entity_type, wp_id, odoo_id, odoo_model, sync_hash,
	last_synced_at, created_at, updated_at`

// SaveMapping inserts or overwrites a mapping.
func (s *Store) SaveMapping(ctx context.Context, m *mapping.Mapping) error {
	now := toNanos(s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO odoosync_mappings (
			module, entity_type, wp_id, odoo_id, odoo_model, sync_hash,
			last_synced_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (module, entity_type, wp_id) DO UPDATE SET
			odoo_id = excluded.odoo_id,
			odoo_model = excluded.odoo_model,
			sync_hash = excluded.sync_hash,
			last_synced_at = excluded.last_synced_at,
			updated_at = excluded.updated_at`,
		m.Module, m.EntityType, m.WPID, m.OdooID, m.OdooModel, m.SyncHash,
		nullNanos(m.LastSyncedAt), now, now,
	)
	if err != nil {
		return fmt.Errorf("odoosync/sqlite: save mapping: %w", err)
	}
	return nil
}

// GetByWPID returns the mapping for a local entity.
func (s *Store) GetByWPID(ctx context.Context, module, entityType string, wpID int64) (*mapping.Mapping, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+mappingColumns+` FROM odoosync_mappings
		WHERE module = ? AND entity_type = ? AND wp_id = ?`,
		module, entityType, wpID,
	)
	return getMapping(row)
}

// GetByOdooID returns the mapping for a remote record.
func (s *Store) GetByOdooID(ctx context.Context, module, entityType string, odooID int64) (*mapping.Mapping, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+mappingColumns+` FROM odoosync_mappings
		WHERE module = ? AND entity_type = ? AND odoo_id = ?
		ORDER BY wp_id ASC
		LIMIT 1`,
		module, entityType, odooID,
	)
	return getMapping(row)
}

// ListMappings returns every mapping of one entity type ordered by wp_id.
func (s *Store) ListMappings(ctx context.Context, module, entityType string) ([]*mapping.Mapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+mappingColumns+` FROM odoosync_mappings
		WHERE module = ? AND entity_type = ?
		ORDER BY wp_id ASC`,
		module, entityType,
	)
	if err != nil {
		return nil, fmt.Errorf("odoosync/sqlite: list mappings: %w", err)
	}
	defer rows.Close()

	out := []*mapping.Mapping{}
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("odoosync/sqlite: scan mapping row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("odoosync/sqlite: iterate mapping rows: %w", err)
	}
	return out, nil
}

// DeleteMapping removes a mapping.
func (s *Store) DeleteMapping(ctx context.Context, module, entityType string, wpID int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM odoosync_mappings
		WHERE module = ? AND entity_type = ? AND wp_id = ?`,
		module, entityType, wpID,
	)
	if err != nil {
		return fmt.Errorf("odoosync/sqlite: delete mapping: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return odoosync.ErrMappingNotFound
	}
	return nil
}

func getMapping(row rowScanner) (*mapping.Mapping, error) {
	m, err := scanMapping(row)
	if err != nil {
		if isNoRows(err) {
			return nil, odoosync.ErrMappingNotFound
		}
		return nil, fmt.Errorf("odoosync/sqlite: get mapping: %w", err)
	}
	return m, nil
}

func scanMapping(row rowScanner) (*mapping.Mapping, error) {
	var (
		m                mapping.Mapping
		lastSynced       sql.NullInt64
		created, updated int64
	)
	err := row.Scan(
		&m.Module, &m.EntityType, &m.WPID, &m.OdooID, &m.OdooModel, &m.SyncHash,
		&lastSynced, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	m.LastSyncedAt = timePtr(lastSynced)
	m.CreatedAt = fromNanos(created)
	m.UpdatedAt = fromNanos(updated)
	return &m, nil
}
