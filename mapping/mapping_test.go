package mapping_test

import (
	"testing"

	"github.com/xraph/odoosync/mapping"
)

func TestHashStable(t *testing.T) {
	a := map[string]any{"name": "Ada", "email": "ada@example.com", "tags": []any{"x", "y"}}
	b := map[string]any{"tags": []any{"x", "y"}, "email": "ada@example.com", "name": "Ada"}

	if mapping.Hash(a) != mapping.Hash(b) {
		t.Error("hash should not depend on key order")
	}
	if mapping.Hash(a) == mapping.Hash(map[string]any{"name": "Bob"}) {
		t.Error("different payloads should hash differently")
	}
	if mapping.Hash(nil) != "" {
		t.Error("empty payload should hash to empty string")
	}
}

func TestUnchanged(t *testing.T) {
	p := map[string]any{"name": "Ada"}
	m := &mapping.Mapping{SyncHash: mapping.Hash(p)}

	if !mapping.Unchanged(m, p) {
		t.Error("same payload should be unchanged")
	}
	if mapping.Unchanged(m, map[string]any{"name": "Ada L."}) {
		t.Error("edited payload should be changed")
	}
	if mapping.Unchanged(nil, p) {
		t.Error("missing mapping should be changed")
	}
	if mapping.Unchanged(&mapping.Mapping{}, p) {
		t.Error("mapping without hash should be changed")
	}
}
