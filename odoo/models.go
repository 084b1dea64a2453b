package odoo

import (
	"context"
	"encoding/json"
	"fmt"
)

// Domain is an Odoo search domain, e.g. Domain{{"email", "=", "a@b.c"}}.
type Domain [][]any

func (d Domain) args() []any {
	out := make([]any, 0, len(d))
	for _, term := range d {
		out = append(out, term)
	}
	return out
}

// InactiveContext returns kwargs that make searches include archived
// records.
func InactiveContext() map[string]any {
	return map[string]any{"context": map[string]any{"active_test": false}}
}

// Search returns the ids of model records matching domain.
func Search(ctx context.Context, ex Executor, model string, domain Domain, kwargs map[string]any) ([]int64, error) {
	raw, err := ex.ExecuteKW(ctx, model, "search", []any{domain.args()}, kwargs)
	if err != nil {
		return nil, err
	}
	var ids []int64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("odoo: decode %s.search: %w", model, err)
	}
	return ids, nil
}

// SearchRead returns matching records limited to fields. A zero limit
// returns all matches.
func SearchRead(ctx context.Context, ex Executor, model string, domain Domain, fields []string, limit int) ([]map[string]any, error) {
	kwargs := map[string]any{}
	if len(fields) > 0 {
		kwargs["fields"] = fields
	}
	if limit > 0 {
		kwargs["limit"] = limit
	}
	raw, err := ex.ExecuteKW(ctx, model, "search_read", []any{domain.args()}, kwargs)
	if err != nil {
		return nil, err
	}
	var recs []map[string]any
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("odoo: decode %s.search_read: %w", model, err)
	}
	return recs, nil
}

// Read returns the records with the given ids.
func Read(ctx context.Context, ex Executor, model string, ids []int64, fields []string) ([]map[string]any, error) {
	var kwargs map[string]any
	if len(fields) > 0 {
		kwargs = map[string]any{"fields": fields}
	}
	raw, err := ex.ExecuteKW(ctx, model, "read", []any{ids}, kwargs)
	if err != nil {
		return nil, err
	}
	var recs []map[string]any
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("odoo: decode %s.read: %w", model, err)
	}
	return recs, nil
}

// Create creates one record and returns its id.
func Create(ctx context.Context, ex Executor, model string, vals map[string]any) (int64, error) {
	raw, err := ex.ExecuteKW(ctx, model, "create", []any{vals}, nil)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		// Newer servers may answer a list for single creates.
		var ids []int64
		if err2 := json.Unmarshal(raw, &ids); err2 != nil || len(ids) != 1 {
			return 0, fmt.Errorf("odoo: decode %s.create: %w", model, err)
		}
		id = ids[0]
	}
	return id, nil
}

// Write updates the records with vals.
func Write(ctx context.Context, ex Executor, model string, ids []int64, vals map[string]any) error {
	_, err := ex.ExecuteKW(ctx, model, "write", []any{ids, vals}, nil)
	return err
}

// Unlink deletes the records.
func Unlink(ctx context.Context, ex Executor, model string, ids []int64) error {
	_, err := ex.ExecuteKW(ctx, model, "unlink", []any{ids}, nil)
	return err
}
