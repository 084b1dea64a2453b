package reconcile_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/mapping"
	"github.com/xraph/odoosync/module"
	"github.com/xraph/odoosync/reconcile"
	"github.com/xraph/odoosync/store/memory"
)

// searchStub answers search with the ids in live and records each call.
type searchStub struct {
	live   map[int64]bool
	err    error
	calls  int
	kwargs map[string]any
	domain []any
}

func (s *searchStub) ExecuteKW(_ context.Context, _, method string, args []any, kwargs map[string]any) (json.RawMessage, error) {
	s.calls++
	if method != "search" {
		return nil, errors.New("unexpected method " + method)
	}
	if s.err != nil {
		return nil, s.err
	}
	s.kwargs = kwargs
	s.domain = args[0].([]any)
	term := s.domain[0].([]any)
	var out []int64
	for _, id := range term[2].([]int64) {
		if s.live[id] {
			out = append(out, id)
		}
	}
	return json.Marshal(out)
}

func seed(t *testing.T, pairs ...[2]int64) *memory.Store {
	t.Helper()
	st := memory.New()
	for _, p := range pairs {
		err := st.SaveMapping(context.Background(), &mapping.Mapping{
			Module: "crm", EntityType: "contact", WPID: p[0], OdooID: p[1], OdooModel: "res.partner",
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	return st
}

func TestReconcile_FindsAndFixesOrphans(t *testing.T) {
	t.Parallel()
	st := seed(t, [2]int64{1, 10}, [2]int64{2, 20}, [2]int64{3, 30})
	stub := &searchStub{live: map[int64]bool{10: true, 30: true}}
	rc := reconcile.New(stub, st)
	ctx := context.Background()

	report, err := rc.Reconcile(ctx, reconcile.Request{Module: "crm", EntityType: "contact", OdooModel: "res.partner"})
	if err != nil {
		t.Fatal(err)
	}
	if report.Checked != 3 || len(report.Orphaned) != 1 || report.Fixed != 0 {
		t.Fatalf("report = %+v", report)
	}
	if o := report.Orphaned[0]; o.WPID != 2 || o.OdooID != 20 {
		t.Errorf("orphan = %+v", o)
	}
	if _, err := st.GetByWPID(ctx, "crm", "contact", 2); err != nil {
		t.Error("report-only run must not delete mappings")
	}

	report, err = rc.Reconcile(ctx, reconcile.Request{Module: "crm", EntityType: "contact", OdooModel: "res.partner", Fix: true})
	if err != nil {
		t.Fatal(err)
	}
	if report.Fixed != 1 {
		t.Errorf("fixed = %d, want 1", report.Fixed)
	}
	if _, err := st.GetByWPID(ctx, "crm", "contact", 2); !errors.Is(err, odoosync.ErrMappingNotFound) {
		t.Errorf("orphaned mapping still present: %v", err)
	}
	for _, wpID := range []int64{1, 3} {
		if _, err := st.GetByWPID(ctx, "crm", "contact", wpID); err != nil {
			t.Errorf("live mapping %d removed: %v", wpID, err)
		}
	}
}

func TestReconcile_SingleSearchIncludingArchived(t *testing.T) {
	t.Parallel()
	st := seed(t, [2]int64{1, 10}, [2]int64{2, 20}, [2]int64{3, 30}, [2]int64{4, 40})
	stub := &searchStub{live: map[int64]bool{10: true, 20: true, 30: true, 40: true}}

	_, err := reconcile.New(stub, st).Reconcile(context.Background(),
		reconcile.Request{Module: "crm", EntityType: "contact", OdooModel: "res.partner"})
	if err != nil {
		t.Fatal(err)
	}
	if stub.calls != 1 {
		t.Errorf("remote calls = %d, want 1", stub.calls)
	}
	term := stub.domain[0].([]any)
	if term[0] != "id" || term[1] != "in" || len(term[2].([]int64)) != 4 {
		t.Errorf("domain = %v", stub.domain)
	}
	inner, _ := stub.kwargs["context"].(map[string]any)
	if inner["active_test"] != false {
		t.Errorf("kwargs = %v, want active_test=false", stub.kwargs)
	}
}

func TestReconcile_RemoteFailureReportsNothing(t *testing.T) {
	t.Parallel()
	st := seed(t, [2]int64{1, 10}, [2]int64{2, 20}, [2]int64{3, 30})
	stub := &searchStub{err: errors.New("connection refused")}

	report, err := reconcile.New(stub, st).Reconcile(context.Background(),
		reconcile.Request{Module: "crm", EntityType: "contact", OdooModel: "res.partner", Fix: true})
	if err != nil {
		t.Fatalf("remote failure must not be returned: %v", err)
	}
	if report.Checked != 3 || len(report.Orphaned) != 0 || report.Fixed != 0 || report.RemoteError == "" {
		t.Errorf("report = %+v", report)
	}
	rows, _ := st.ListMappings(context.Background(), "crm", "contact")
	if len(rows) != 3 {
		t.Errorf("mappings = %d, want all 3 kept", len(rows))
	}
}

func TestReconcile_EmptySkipsRemote(t *testing.T) {
	t.Parallel()
	stub := &searchStub{}
	report, err := reconcile.New(stub, memory.New()).Reconcile(context.Background(),
		reconcile.Request{Module: "crm", EntityType: "contact", OdooModel: "res.partner"})
	if err != nil || report.Checked != 0 || stub.calls != 0 {
		t.Errorf("report=%+v err=%v calls=%d", report, err, stub.calls)
	}
}

type modelsOnly struct{}

func (modelsOnly) Name() string                                       { return "crm" }
func (modelsOnly) PushToOdoo(context.Context, module.Request) error   { return nil }
func (modelsOnly) PullFromOdoo(context.Context, module.Request) error { return nil }
func (modelsOnly) OdooModels() map[string]string {
	return map[string]string{"contact": "res.partner", "lead": "crm.lead"}
}

func TestReconcile_ModelFromRegistry(t *testing.T) {
	t.Parallel()
	reg := module.NewRegistry()
	_ = reg.Register(modelsOnly{})
	st := seed(t, [2]int64{1, 10})
	stub := &searchStub{live: map[int64]bool{}}
	rc := reconcile.New(stub, st, reconcile.WithRegistry(reg))

	report, err := rc.Reconcile(context.Background(), reconcile.Request{Module: "crm", EntityType: "contact"})
	if err != nil {
		t.Fatal(err)
	}
	if report.OdooModel != "res.partner" || len(report.Orphaned) != 1 {
		t.Errorf("report = %+v", report)
	}

	if _, err := rc.Reconcile(context.Background(), reconcile.Request{Module: "shop", EntityType: "order"}); !errors.Is(err, odoosync.ErrAdapterNotFound) {
		t.Errorf("unknown module: got %v", err)
	}

	reports, err := rc.ReconcileAll(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 2 || reports[0].EntityType != "contact" || reports[1].EntityType != "lead" {
		t.Errorf("reports = %+v", reports)
	}
}
