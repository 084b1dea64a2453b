package worker_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/backoff"
	"github.com/xraph/odoosync/ext"
	"github.com/xraph/odoosync/failure"
	"github.com/xraph/odoosync/id"
	"github.com/xraph/odoosync/job"
	"github.com/xraph/odoosync/middleware"
	"github.com/xraph/odoosync/module"
	"github.com/xraph/odoosync/store/memory"
	"github.com/xraph/odoosync/worker"
)

// fakeAdapter returns err from every call and counts calls by direction.
type fakeAdapter struct {
	name  string
	err   error
	panic bool
	push  atomic.Int32
	pull  atomic.Int32
	last  module.Request
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) PushToOdoo(_ context.Context, req module.Request) error {
	a.push.Add(1)
	a.last = req
	if a.panic {
		panic("adapter exploded")
	}
	return a.err
}

func (a *fakeAdapter) PullFromOdoo(_ context.Context, req module.Request) error {
	a.pull.Add(1)
	a.last = req
	return a.err
}

func (a *fakeAdapter) OdooModels() map[string]string {
	return map[string]string{"contact": "res.partner"}
}

type fixture struct {
	store    *memory.Store
	adapter  *fakeAdapter
	exec     *worker.Executor
	now      time.Time
	recorder *recorderExt
}

// recorderExt records which lifecycle hooks fired.
type recorderExt struct {
	events []string
}

func (r *recorderExt) Name() string { return "recorder" }
func (r *recorderExt) OnJobStarted(context.Context, *job.Job) error {
	r.events = append(r.events, "started")
	return nil
}
func (r *recorderExt) OnJobCompleted(context.Context, *job.Job, time.Duration) error {
	r.events = append(r.events, "completed")
	return nil
}
func (r *recorderExt) OnJobRetrying(context.Context, *job.Job, int, time.Time) error {
	r.events = append(r.events, "retrying")
	return nil
}
func (r *recorderExt) OnJobFailed(context.Context, *job.Job, error) error {
	r.events = append(r.events, "failed")
	return nil
}

func newFixture(t *testing.T, adapterErr error, opts ...worker.Option) *fixture {
	t.Helper()
	f := &fixture{
		now:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		adapter:  &fakeAdapter{name: "crm", err: adapterErr},
		recorder: &recorderExt{},
	}
	f.store = memory.New(memory.WithClock(func() time.Time { return f.now }))

	reg := module.NewRegistry()
	if err := reg.Register(f.adapter); err != nil {
		t.Fatal(err)
	}
	exts := ext.NewRegistry(slog.Default())
	exts.Register(f.recorder)

	opts = append([]worker.Option{worker.WithClock(func() time.Time { return f.now })}, opts...)
	f.exec = worker.NewExecutor(reg, exts, f.store, backoff.DefaultStrategy(), slog.Default(), opts...)
	return f
}

func (f *fixture) enqueue(t *testing.T, j *job.Job) *job.Job {
	t.Helper()
	j.Normalize(f.now, job.DefaultMaxAttempts)
	jobID, err := f.store.EnqueueJob(context.Background(), j)
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.store.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func (f *fixture) reload(t *testing.T, jobID id.JobID) *job.Job {
	t.Helper()
	j, err := f.store.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatal(err)
	}
	return j
}

func TestExecute_Success(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	j := f.enqueue(t, job.Push("crm", "contact", job.ActionUpdate, 42,
		job.WithPayload(map[string]any{"email": "a@b.c"})))

	out := f.exec.Execute(context.Background(), j)
	if !out.Succeeded() || out.Status != job.StatusCompleted {
		t.Fatalf("outcome = %+v", out)
	}

	got := f.reload(t, j.ID)
	if got.Status != job.StatusCompleted || got.ProcessedAt == nil || got.ErrorMessage != "" {
		t.Errorf("job = %+v", got)
	}
	if f.adapter.push.Load() != 1 || f.adapter.last.WPID != 42 || f.adapter.last.Payload["email"] != "a@b.c" {
		t.Errorf("adapter call = %d %+v", f.adapter.push.Load(), f.adapter.last)
	}
	if strings.Join(f.recorder.events, ",") != "started,completed" {
		t.Errorf("events = %v", f.recorder.events)
	}
}

func TestExecute_PullDirection(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	j := f.enqueue(t, job.Pull("crm", "contact", job.ActionCreate, 900))

	if out := f.exec.Execute(context.Background(), j); !out.Succeeded() {
		t.Fatal(out.Err)
	}
	if f.adapter.pull.Load() != 1 || f.adapter.push.Load() != 0 {
		t.Errorf("push=%d pull=%d", f.adapter.push.Load(), f.adapter.pull.Load())
	}
	if f.adapter.last.OdooID != 900 {
		t.Errorf("odoo id = %d", f.adapter.last.OdooID)
	}
}

func TestExecute_RetryThenFail(t *testing.T) {
	t.Parallel()
	f := newFixture(t, errors.New("connection refused"))
	j := f.enqueue(t, job.Push("crm", "contact", job.ActionCreate, 1))
	ctx := context.Background()

	// Attempt 1: rescheduled 60s out.
	out := f.exec.Execute(ctx, j)
	if out.Status != job.StatusPending || out.Kind != failure.Transient {
		t.Fatalf("attempt 1 outcome = %+v", out)
	}
	got := f.reload(t, j.ID)
	if got.Attempts != 1 || !got.ScheduledAt.Equal(f.now.Add(time.Minute)) {
		t.Errorf("after attempt 1: attempts=%d scheduled_at=%v", got.Attempts, got.ScheduledAt)
	}
	if got.ProcessedAt != nil {
		t.Error("retrying job must not have processed_at")
	}

	// Attempt 2: 120s out.
	out = f.exec.Execute(ctx, got)
	got = f.reload(t, j.ID)
	if out.Status != job.StatusPending || got.Attempts != 2 || !got.ScheduledAt.Equal(f.now.Add(2*time.Minute)) {
		t.Errorf("after attempt 2: %+v", got)
	}

	// Attempt 3 reaches max_attempts.
	out = f.exec.Execute(ctx, got)
	got = f.reload(t, j.ID)
	if out.Status != job.StatusFailed || got.Status != job.StatusFailed || got.Attempts != 3 {
		t.Errorf("after attempt 3: outcome=%+v job=%+v", out, got)
	}
	if got.ProcessedAt == nil || got.ErrorMessage != "connection refused" {
		t.Errorf("failed job = %+v", got)
	}
	want := "started,retrying,started,retrying,started,failed"
	if s := strings.Join(f.recorder.events, ","); s != want {
		t.Errorf("events = %s, want %s", s, want)
	}
}

func TestExecute_PermanentErrorsStillRetry(t *testing.T) {
	t.Parallel()
	f := newFixture(t, errors.New("ValidationError: email is invalid"))
	j := f.enqueue(t, job.Push("crm", "contact", job.ActionCreate, 1))

	out := f.exec.Execute(context.Background(), j)
	if out.Kind != failure.Permanent {
		t.Errorf("kind = %v, want permanent", out.Kind)
	}
	if out.Status != job.StatusPending {
		t.Errorf("status = %s, permanent errors retry until max attempts", out.Status)
	}
}

func TestExecute_MissingAdapterIsAFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	j := f.enqueue(t, job.Push("woocommerce", "order", job.ActionCreate, 5, job.WithMaxAttempts(1)))

	out := f.exec.Execute(context.Background(), j)
	if !errors.Is(out.Err, odoosync.ErrAdapterNotFound) {
		t.Fatalf("err = %v, want ErrAdapterNotFound", out.Err)
	}
	got := f.reload(t, j.ID)
	if got.Status != job.StatusFailed || !strings.Contains(got.ErrorMessage, "woocommerce") {
		t.Errorf("job = %+v", got)
	}
}

func TestExecute_DryRun(t *testing.T) {
	t.Parallel()
	f := newFixture(t, errors.New("must not be called"), worker.WithDryRun(true))
	j := f.enqueue(t, job.Push("crm", "contact", job.ActionUpdate, 42))

	out := f.exec.Execute(context.Background(), j)
	if !out.Succeeded() {
		t.Fatal(out.Err)
	}
	if f.adapter.push.Load() != 0 {
		t.Error("dry run invoked the adapter")
	}
	got := f.reload(t, j.ID)
	if got.Status != job.StatusCompleted || !strings.HasPrefix(got.ErrorMessage, worker.DryRunPrefix) {
		t.Errorf("job = %+v", got)
	}
	if !strings.Contains(got.ErrorMessage, "crm/contact") {
		t.Errorf("annotation = %q", got.ErrorMessage)
	}
}

func TestExecute_ErrorMessageTruncated(t *testing.T) {
	t.Parallel()
	f := newFixture(t, errors.New(strings.Repeat("é", 1500)), worker.WithErrorLimit(1000))
	j := f.enqueue(t, job.Push("crm", "contact", job.ActionCreate, 1))

	_ = f.exec.Execute(context.Background(), j)
	got := f.reload(t, j.ID)
	if n := len([]rune(got.ErrorMessage)); n != 1000 {
		t.Errorf("stored message has %d runes, want 1000", n)
	}
}

func TestExecute_PanicRecoveredByMiddleware(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	f := newFixture(t, nil, worker.WithMiddleware(middleware.Recover(logger)))
	f.adapter.panic = true
	j := f.enqueue(t, job.Push("crm", "contact", job.ActionCreate, 1))

	out := f.exec.Execute(context.Background(), j)
	if out.Err == nil || !strings.Contains(out.Err.Error(), "panic") {
		t.Fatalf("err = %v, want recovered panic", out.Err)
	}
	if got := f.reload(t, j.ID); got.Status != job.StatusPending || got.Attempts != 1 {
		t.Errorf("job = %+v", got)
	}
}

func TestExecute_UnknownJob(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	out := f.exec.Execute(context.Background(), &job.Job{ID: 999, Module: "crm", Status: job.StatusPending})
	if !errors.Is(out.Err, odoosync.ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", out.Err)
	}
	if f.adapter.push.Load() != 0 {
		t.Error("adapter called for a job that could not be claimed")
	}
}
