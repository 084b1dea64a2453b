package audithook_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xraph/odoosync"
	ah "github.com/xraph/odoosync/audit_hook"
	"github.com/xraph/odoosync/engine"
	"github.com/xraph/odoosync/job"
	"github.com/xraph/odoosync/module"
	"github.com/xraph/odoosync/store/memory"
)

// ── Mock recorder ────────────────────────────────────

// mockRecorder captures audit events for verification.
type mockRecorder struct {
	mu     sync.Mutex
	events []*ah.AuditEvent
	err    error
}

func (m *mockRecorder) Record(_ context.Context, evt *ah.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return m.err
}

func (m *mockRecorder) last() *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return m.events[len(m.events)-1]
}

func (m *mockRecorder) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Action)
	}
	return out
}

// ── Test helpers ─────────────────────────────────────

func newTestJob() *job.Job {
	return &job.Job{
		ID:          42,
		Module:      "crm",
		Direction:   job.DirectionPush,
		EntityType:  "contact",
		Action:      job.ActionUpdate,
		WPID:        7,
		OdooID:      70,
		Priority:    5,
		Attempts:    1,
		MaxAttempts: 3,
	}
}

// ── Tests ────────────────────────────────────────────

func TestExtension_Name(t *testing.T) {
	if got := ah.New(&mockRecorder{}).Name(); got != "audit-hook" {
		t.Errorf("expected name %q, got %q", "audit-hook", got)
	}
}

func TestExtension_JobHooks(t *testing.T) {
	ctx := context.Background()
	next := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		fire     func(e *ah.Extension, j *job.Job) error
		action   string
		severity string
		outcome  string
		metaKey  string
		metaVal  any
	}{
		{
			name:     "enqueued",
			fire:     func(e *ah.Extension, j *job.Job) error { return e.OnJobEnqueued(ctx, j) },
			action:   ah.ActionJobEnqueued,
			severity: ah.SeverityInfo, outcome: ah.OutcomeSuccess,
			metaKey: "priority", metaVal: 5,
		},
		{
			name:     "started",
			fire:     func(e *ah.Extension, j *job.Job) error { return e.OnJobStarted(ctx, j) },
			action:   ah.ActionJobStarted,
			severity: ah.SeverityInfo, outcome: ah.OutcomeSuccess,
			metaKey: "attempt", metaVal: 2,
		},
		{
			name: "completed",
			fire: func(e *ah.Extension, j *job.Job) error {
				return e.OnJobCompleted(ctx, j, 150*time.Millisecond)
			},
			action:   ah.ActionJobCompleted,
			severity: ah.SeverityInfo, outcome: ah.OutcomeSuccess,
			metaKey: "elapsed_ms", metaVal: int64(150),
		},
		{
			name:     "retrying",
			fire:     func(e *ah.Extension, j *job.Job) error { return e.OnJobRetrying(ctx, j, 2, next) },
			action:   ah.ActionJobRetrying,
			severity: ah.SeverityWarning, outcome: ah.OutcomeFailure,
			metaKey: "next_run_at", metaVal: "2025-06-01T09:00:00Z",
		},
		{
			name: "failed",
			fire: func(e *ah.Extension, j *job.Job) error {
				return e.OnJobFailed(ctx, j, errors.New("ValidationError: email"))
			},
			action:   ah.ActionJobFailed,
			severity: ah.SeverityCritical, outcome: ah.OutcomeFailure,
			metaKey: "error", metaVal: "ValidationError: email",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &mockRecorder{}
			j := newTestJob()
			if err := tt.fire(ah.New(rec), j); err != nil {
				t.Fatal(err)
			}
			evt := rec.last()
			if evt == nil {
				t.Fatal("no event recorded")
			}
			if evt.Action != tt.action || evt.Severity != tt.severity || evt.Outcome != tt.outcome {
				t.Errorf("event = %s/%s/%s", evt.Action, evt.Severity, evt.Outcome)
			}
			if evt.Resource != ah.ResourceJob || evt.Category != ah.CategoryJob || evt.ResourceID != "42" {
				t.Errorf("resource = %s %s %s", evt.Resource, evt.Category, evt.ResourceID)
			}
			if evt.Metadata["module"] != "crm" || evt.Metadata["wp_id"] != int64(7) {
				t.Errorf("job metadata missing: %v", evt.Metadata)
			}
			if evt.Metadata[tt.metaKey] != tt.metaVal {
				t.Errorf("Metadata[%s] = %v (%T), want %v", tt.metaKey, evt.Metadata[tt.metaKey], evt.Metadata[tt.metaKey], tt.metaVal)
			}
		})
	}
}

func TestExtension_RunCompleted(t *testing.T) {
	tests := []struct {
		name     string
		res      odoosync.RunResult
		severity string
		outcome  string
	}{
		{"clean", odoosync.RunResult{Processed: 3, Succeeded: 3}, ah.SeverityInfo, ah.OutcomeSuccess},
		{"with failures", odoosync.RunResult{Processed: 3, Succeeded: 2, Failed: 1}, ah.SeverityWarning, ah.OutcomeFailure},
		{"skipped", odoosync.RunResult{Skipped: true}, ah.SeverityWarning, ah.OutcomeSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &mockRecorder{}
			res := tt.res
			if err := ah.New(rec).OnRunCompleted(context.Background(), &res); err != nil {
				t.Fatal(err)
			}
			evt := rec.last()
			if evt.Action != ah.ActionRunCompleted || evt.Resource != ah.ResourceRun {
				t.Errorf("event = %+v", evt)
			}
			if evt.Severity != tt.severity || evt.Outcome != tt.outcome {
				t.Errorf("severity/outcome = %s/%s, want %s/%s", evt.Severity, evt.Outcome, tt.severity, tt.outcome)
			}
			if evt.Metadata["processed"] != tt.res.Processed {
				t.Errorf("processed = %v", evt.Metadata["processed"])
			}
		})
	}
}

func TestExtension_WithActions(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec, ah.WithActions(ah.ActionJobFailed))
	ctx := context.Background()
	j := newTestJob()

	_ = e.OnJobEnqueued(ctx, j)
	_ = e.OnJobCompleted(ctx, j, time.Second)
	_ = e.OnJobFailed(ctx, j, errors.New("boom"))

	if got := rec.actions(); len(got) != 1 || got[0] != ah.ActionJobFailed {
		t.Errorf("actions = %v", got)
	}
}

func TestExtension_RecorderErrorSwallowed(t *testing.T) {
	rec := &mockRecorder{err: errors.New("backend down")}
	e := ah.New(rec, ah.WithLogger(slog.New(slog.DiscardHandler)))

	if err := e.OnJobEnqueued(context.Background(), newTestJob()); err != nil {
		t.Errorf("recorder errors must not propagate, got %v", err)
	}
}

func TestAllActions(t *testing.T) {
	seen := map[string]bool{}
	for _, a := range ah.AllActions() {
		if seen[a] {
			t.Errorf("duplicate action %q", a)
		}
		seen[a] = true
	}
	if len(seen) != 6 {
		t.Errorf("AllActions = %d, want 6", len(seen))
	}
}

func TestLogRecorder_LevelFromSeverity(t *testing.T) {
	var buf bytes.Buffer
	rec := ah.LogRecorder{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	e := ah.New(rec)
	ctx := context.Background()

	_ = e.OnJobRetrying(ctx, newTestJob(), 2, time.Now())
	_ = e.OnJobFailed(ctx, newTestJob(), errors.New("gone"))

	out := buf.String()
	if !strings.Contains(out, "level=WARN msg=job.retrying") {
		t.Errorf("retry not logged at warn:\n%s", out)
	}
	if !strings.Contains(out, "level=ERROR msg=job.failed") || !strings.Contains(out, "reason=gone") {
		t.Errorf("failure not logged at error:\n%s", out)
	}
	if !strings.Contains(out, "meta.module=crm") {
		t.Errorf("metadata group missing:\n%s", out)
	}
}

type okAdapter struct{}

func (okAdapter) Name() string                                       { return "crm" }
func (okAdapter) PushToOdoo(context.Context, module.Request) error   { return nil }
func (okAdapter) PullFromOdoo(context.Context, module.Request) error { return nil }
func (okAdapter) OdooModels() map[string]string {
	return map[string]string{"contact": "res.partner"}
}

func TestExtension_WiredIntoEngine(t *testing.T) {
	rec := &mockRecorder{}
	s, err := odoosync.New(
		odoosync.WithStore(memory.New()),
		odoosync.WithLogger(slog.New(slog.DiscardHandler)),
	)
	if err != nil {
		t.Fatal(err)
	}
	eng, err := engine.Build(s, engine.WithExtension(ah.New(rec)))
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Register(okAdapter{}); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if _, err := eng.Enqueue(ctx, newTestJob()); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.ProcessQueue(ctx); err != nil {
		t.Fatal(err)
	}

	want := []string{ah.ActionJobEnqueued, ah.ActionJobStarted, ah.ActionJobCompleted, ah.ActionRunCompleted}
	got := rec.actions()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("actions = %v, want %v", got, want)
	}
}
