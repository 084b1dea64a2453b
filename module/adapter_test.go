package module_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/job"
	"github.com/xraph/odoosync/module"
)

type stubAdapter struct {
	name   string
	models map[string]string
}

func (s *stubAdapter) Name() string                                       { return s.name }
func (s *stubAdapter) PushToOdoo(context.Context, module.Request) error   { return nil }
func (s *stubAdapter) PullFromOdoo(context.Context, module.Request) error { return nil }
func (s *stubAdapter) OdooModels() map[string]string                      { return s.models }

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := module.NewRegistry()
	crm := &stubAdapter{name: "crm", models: map[string]string{"contact": "res.partner"}}
	woo := &stubAdapter{name: "woocommerce", models: map[string]string{"order": "sale.order"}}

	for _, a := range []module.Adapter{woo, crm} {
		if err := r.Register(a); err != nil {
			t.Fatalf("Register(%s): %v", a.Name(), err)
		}
	}
	if err := r.Register(&stubAdapter{name: "crm"}); !errors.Is(err, odoosync.ErrDuplicateModule) {
		t.Errorf("duplicate register: got %v, want ErrDuplicateModule", err)
	}

	if got := r.Names(); !reflect.DeepEqual(got, []string{"crm", "woocommerce"}) {
		t.Errorf("Names() = %v", got)
	}
	if a, ok := r.Get("crm"); !ok || a != crm {
		t.Error("Get(crm) did not return the registered adapter")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) should report false")
	}
	if m, ok := r.Model("woocommerce", "order"); !ok || m != "sale.order" {
		t.Errorf("Model = %q, %v", m, ok)
	}
	if _, ok := r.Model("crm", "invoice"); ok {
		t.Error("unknown entity type should not resolve")
	}
	if got := r.Models(); len(got) != 2 || got["crm"]["contact"] != "res.partner" {
		t.Errorf("Models() = %v", got)
	}
}

func TestRequestFor(t *testing.T) {
	t.Parallel()

	j := job.Pull("crm", "contact", job.ActionUpdate, 99, job.WithPayload(map[string]any{"name": "x"}))
	j.ID = 5
	j.WPID = 12

	req := module.RequestFor(j)
	if req.JobID != 5 || req.OdooID != 99 || req.WPID != 12 || req.EntityType != "contact" ||
		req.Action != job.ActionUpdate || req.Payload["name"] != "x" {
		t.Errorf("RequestFor = %+v", req)
	}
}
