package wordpress_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/xraph/odoosync/failure"
	"github.com/xraph/odoosync/wordpress"
)

func TestCallback_Upsert(t *testing.T) {
	t.Parallel()
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"wp_id": 42}`))
	}))
	defer srv.Close()

	cb := wordpress.NewCallback(srv.URL, wordpress.WithToken("tok"))
	wpID, err := cb.Upsert(context.Background(), "contact", 0, map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatal(err)
	}
	if wpID != 42 {
		t.Errorf("wp_id = %d, want 42", wpID)
	}
	if got["action"] != "upsert" || got["entity_type"] != "contact" {
		t.Errorf("request = %v", got)
	}
	if _, ok := got["wp_id"]; ok {
		t.Error("zero wp_id should be omitted")
	}
}

func TestCallback_Delete(t *testing.T) {
	t.Parallel()
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := wordpress.NewCallback(srv.URL).Delete(context.Background(), "contact", 9); err != nil {
		t.Fatal(err)
	}
	if got["action"] != "delete" || got["wp_id"] != float64(9) {
		t.Errorf("request = %v", got)
	}
}

func TestCallback_ErrorsCarryStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		body   string
		kind   failure.Kind
	}{
		{"server error", http.StatusBadGateway, "upstream down", failure.Transient},
		{"rejected", http.StatusUnprocessableEntity, "validation failed: email", failure.Permanent},
		{"other client error", http.StatusNotFound, "no route", failure.Transient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := wordpress.NewCallback(srv.URL).Upsert(context.Background(), "contact", 1, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if code, ok := failure.StatusCode(err); !ok || code != tt.status {
				t.Errorf("StatusCode = %d, %v", code, ok)
			}
			if k := failure.Classify(err); k != tt.kind {
				t.Errorf("Classify = %v, want %v", k, tt.kind)
			}
		})
	}
}
