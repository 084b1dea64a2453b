package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/mapping"
)

const mappingColumns = `
	module, entity_type, wp_id, odoo_id, odoo_model, sync_hash,
	last_synced_at, created_at, updated_at`

// SaveMapping inserts or overwrites a mapping.
func (s *Store) SaveMapping(ctx context.Context, m *mapping.Mapping) error {
	now := s.now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO odoosync_mappings (
			module, entity_type, wp_id, odoo_id, odoo_model, sync_hash,
			last_synced_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (module, entity_type, wp_id) DO UPDATE SET
			odoo_id = EXCLUDED.odoo_id,
			odoo_model = EXCLUDED.odoo_model,
			sync_hash = EXCLUDED.sync_hash,
			last_synced_at = EXCLUDED.last_synced_at,
			updated_at = EXCLUDED.updated_at`,
		m.Module, m.EntityType, m.WPID, m.OdooID, m.OdooModel, m.SyncHash,
		nullTime(m.LastSyncedAt), now,
	)
	if err != nil {
		return fmt.Errorf("odoosync/postgres: save mapping: %w", err)
	}
	return nil
}

// GetByWPID returns the mapping for a local entity.
func (s *Store) GetByWPID(ctx context.Context, module, entityType string, wpID int64) (*mapping.Mapping, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+mappingColumns+` FROM odoosync_mappings
		WHERE module = $1 AND entity_type = $2 AND wp_id = $3`,
		module, entityType, wpID,
	)
	return getMapping(row)
}

// GetByOdooID returns the mapping for a remote record.
func (s *Store) GetByOdooID(ctx context.Context, module, entityType string, odooID int64) (*mapping.Mapping, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+mappingColumns+` FROM odoosync_mappings
		WHERE module = $1 AND entity_type = $2 AND odoo_id = $3
		ORDER BY wp_id ASC
		LIMIT 1`,
		module, entityType, odooID,
	)
	return getMapping(row)
}

// ListMappings returns every mapping of one entity type ordered by wp_id.
func (s *Store) ListMappings(ctx context.Context, module, entityType string) ([]*mapping.Mapping, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+mappingColumns+` FROM odoosync_mappings
		WHERE module = $1 AND entity_type = $2
		ORDER BY wp_id ASC`,
		module, entityType,
	)
	if err != nil {
		return nil, fmt.Errorf("odoosync/postgres: list mappings: %w", err)
	}
	defer rows.Close()

	out := []*mapping.Mapping{}
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("odoosync/postgres: scan mapping row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("odoosync/postgres: iterate mapping rows: %w", err)
	}
	return out, nil
}

// DeleteMapping removes a mapping.
func (s *Store) DeleteMapping(ctx context.Context, module, entityType string, wpID int64) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM odoosync_mappings
		WHERE module = $1 AND entity_type = $2 AND wp_id = $3`,
		module, entityType, wpID,
	)
	if err != nil {
		return fmt.Errorf("odoosync/postgres: delete mapping: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return odoosync.ErrMappingNotFound
	}
	return nil
}

func getMapping(row pgx.Row) (*mapping.Mapping, error) {
	m, err := scanMapping(row)
	if err != nil {
		if isNoRows(err) {
			return nil, odoosync.ErrMappingNotFound
		}
		return nil, fmt.Errorf("odoosync/postgres: get mapping: %w", err)
	}
	return m, nil
}

func scanMapping(row pgx.Row) (*mapping.Mapping, error) {
	var m mapping.Mapping
	err := row.Scan(
		&m.Module, &m.EntityType, &m.WPID, &m.OdooID, &m.OdooModel, &m.SyncHash,
		&m.LastSyncedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
