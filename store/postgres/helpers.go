package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// encodePayload turns a job payload into JSONB input. A nil map is stored
// as NULL.
func encodePayload(p map[string]any) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("odoosync/postgres: encode payload: %w", err)
	}
	return data, nil
}

func decodePayload(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var p map[string]any
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("odoosync/postgres: decode payload: %w", err)
	}
	return p, nil
}

// nullTime maps a zero time to NULL.
func nullTime(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.UTC()
	return &v
}
