// Package storetest is a conformance suite run against every store.Store
// backend. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/id"
	"github.com/xraph/odoosync/job"
	"github.com/xraph/odoosync/lock"
	"github.com/xraph/odoosync/mapping"
	"github.com/xraph/odoosync/store"
)

// Factory returns an empty, migrated store. It is called once per subtest.
type Factory func(t *testing.T) store.Store

// Run executes the whole suite.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("EnqueueAssignsAscendingIDs", func(t *testing.T) { testEnqueueIDs(t, newStore(t)) })
	t.Run("FetchDueOrderAndFilter", func(t *testing.T) { testFetchDue(t, newStore(t)) })
	t.Run("UpdateStatusMerges", func(t *testing.T) { testUpdateStatus(t, newStore(t)) })
	t.Run("CancelOnlyPending", func(t *testing.T) { testCancel(t, newStore(t)) })
	t.Run("StatsAndList", func(t *testing.T) { testStatsAndList(t, newStore(t)) })
	t.Run("RetryFailedResetsAttempts", func(t *testing.T) { testRetryFailed(t, newStore(t)) })
	t.Run("CleanupFinished", func(t *testing.T) { testCleanup(t, newStore(t)) })
	t.Run("ResetStale", func(t *testing.T) { testResetStale(t, newStore(t)) })
	t.Run("MappingUpsertAndLookup", func(t *testing.T) { testMappings(t, newStore(t)) })
	t.Run("LockExclusion", func(t *testing.T) { testLock(t, newStore(t)) })
}

func enqueue(t *testing.T, s store.Store, j *job.Job) id.JobID {
	t.Helper()
	j.Normalize(time.Now().UTC(), 3)
	jid, err := s.EnqueueJob(context.Background(), j)
	if err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	return jid
}

func testEnqueueIDs(t *testing.T, s store.Store) {
	ctx := context.Background()
	payload := map[string]any{"email": "ada@example.com", "tags": []any{"a", "b"}}

	first := enqueue(t, s, job.Push("crm", "contact", job.ActionCreate, 1, job.WithPayload(payload)))
	second := enqueue(t, s, job.Pull("crm", "contact", job.ActionUpdate, 20))
	if first.IsNil() || second <= first {
		t.Fatalf("ids not ascending: %d then %d", first, second)
	}

	got, err := s.GetJob(ctx, first)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Module != "crm" || got.EntityType != "contact" || got.Direction != job.DirectionPush {
		t.Errorf("unexpected job %+v", got)
	}
	if got.Status != job.StatusPending || got.Attempts != 0 || got.MaxAttempts != 3 {
		t.Errorf("unexpected state %s attempts=%d/%d", got.Status, got.Attempts, got.MaxAttempts)
	}
	if got.Payload["email"] != "ada@example.com" {
		t.Errorf("payload = %v", got.Payload)
	}
	if got.ScheduledAt.IsZero() || got.CreatedAt.IsZero() {
		t.Error("timestamps should be set")
	}

	if _, err := s.GetJob(ctx, id.JobID(999999)); !errors.Is(err, odoosync.ErrJobNotFound) {
		t.Errorf("GetJob(missing) error = %v", err)
	}
}

func testFetchDue(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()

	low := enqueue(t, s, job.Push("crm", "contact", job.ActionUpdate, 1, job.WithPriority(9), job.WithScheduledAt(now.Add(-3*time.Minute))))
	highLate := enqueue(t, s, job.Push("crm", "contact", job.ActionUpdate, 2, job.WithPriority(1), job.WithScheduledAt(now.Add(-time.Minute))))
	highEarly := enqueue(t, s, job.Push("crm", "contact", job.ActionUpdate, 3, job.WithPriority(1), job.WithScheduledAt(now.Add(-2*time.Minute))))
	future := enqueue(t, s, job.Push("crm", "contact", job.ActionUpdate, 4, job.WithPriority(1), job.WithScheduledAt(now.Add(time.Hour))))
	done := enqueue(t, s, job.Push("crm", "contact", job.ActionUpdate, 5, job.WithPriority(1), job.WithScheduledAt(now.Add(-time.Hour))))
	if err := s.UpdateStatus(ctx, done, job.StatusCompleted, job.Update{ProcessedAt: &now}); err != nil {
		t.Fatal(err)
	}

	due, err := s.FetchDue(ctx, 10, now)
	if err != nil {
		t.Fatalf("FetchDue: %v", err)
	}
	want := []id.JobID{highEarly, highLate, low}
	if len(due) != len(want) {
		t.Fatalf("FetchDue returned %d jobs, want %d", len(due), len(want))
	}
	for i, j := range due {
		if j.ID != want[i] {
			t.Errorf("due[%d] = %d, want %d", i, j.ID, want[i])
		}
		if j.ID == future || j.ID == done {
			t.Errorf("job %d should not be due", j.ID)
		}
		if j.Status != job.StatusPending || j.ScheduledAt.After(now) {
			t.Errorf("job %d is not due: %s at %v", j.ID, j.Status, j.ScheduledAt)
		}
	}

	limited, err := s.FetchDue(ctx, 2, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("limit ignored: got %d", len(limited))
	}
}

func testUpdateStatus(t *testing.T, s store.Store) {
	ctx := context.Background()
	jid := enqueue(t, s, job.Push("crm", "contact", job.ActionCreate, 1))
	next := time.Now().UTC().Add(time.Minute).Truncate(time.Millisecond)

	err := s.UpdateStatus(ctx, jid, job.StatusPending, job.Update{
		Attempts:     job.Ptr(1),
		ErrorMessage: job.Ptr("boom"),
		ScheduledAt:  &next,
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got, _ := s.GetJob(ctx, jid)
	if got.Attempts != 1 || got.ErrorMessage != "boom" {
		t.Errorf("attempts=%d error=%q", got.Attempts, got.ErrorMessage)
	}
	if d := got.ScheduledAt.Sub(next); d > time.Millisecond || d < -time.Millisecond {
		t.Errorf("ScheduledAt = %v, want %v", got.ScheduledAt, next)
	}

	// Status only: other fields untouched.
	if err := s.UpdateStatus(ctx, jid, job.StatusProcessing, job.Update{}); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetJob(ctx, jid)
	if got.Status != job.StatusProcessing || got.Attempts != 1 || got.ErrorMessage != "boom" {
		t.Errorf("partial update clobbered fields: %+v", got)
	}

	done := time.Now().UTC()
	if err := s.UpdateStatus(ctx, jid, job.StatusCompleted, job.Update{ErrorMessage: job.Ptr(""), ProcessedAt: &done}); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetJob(ctx, jid)
	if got.ErrorMessage != "" || got.ProcessedAt == nil {
		t.Errorf("completion not recorded: %+v", got)
	}

	if err := s.UpdateStatus(ctx, id.JobID(999999), job.StatusFailed, job.Update{}); !errors.Is(err, odoosync.ErrJobNotFound) {
		t.Errorf("UpdateStatus(missing) error = %v", err)
	}
}

func testCancel(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()

	pending := enqueue(t, s, job.Push("crm", "contact", job.ActionCreate, 1))
	ok, err := s.CancelJob(ctx, pending)
	if err != nil || !ok {
		t.Fatalf("CancelJob(pending) = %v, %v", ok, err)
	}
	if _, err := s.GetJob(ctx, pending); !errors.Is(err, odoosync.ErrJobNotFound) {
		t.Error("cancelled job should be gone")
	}

	for _, st := range []job.Status{job.StatusProcessing, job.StatusCompleted, job.StatusFailed} {
		jid := enqueue(t, s, job.Push("crm", "contact", job.ActionCreate, 2))
		_ = s.UpdateStatus(ctx, jid, st, job.Update{ProcessedAt: &now})
		ok, err := s.CancelJob(ctx, jid)
		if err != nil || ok {
			t.Errorf("CancelJob(%s) = %v, %v; want false", st, ok, err)
		}
	}

	ok, err = s.CancelJob(ctx, id.JobID(999999))
	if err != nil || ok {
		t.Errorf("CancelJob(missing) = %v, %v", ok, err)
	}
}

func testStatsAndList(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()

	var ids []id.JobID
	for i := 0; i < 5; i++ {
		module := "crm"
		if i%2 == 1 {
			module = "sales"
		}
		ids = append(ids, enqueue(t, s, job.Push(module, "contact", job.ActionCreate, int64(i+1))))
	}
	earlier := now.Add(-time.Hour)
	_ = s.UpdateStatus(ctx, ids[0], job.StatusCompleted, job.Update{ProcessedAt: &earlier})
	_ = s.UpdateStatus(ctx, ids[1], job.StatusCompleted, job.Update{ProcessedAt: &now})
	_ = s.UpdateStatus(ctx, ids[2], job.StatusFailed, job.Update{ProcessedAt: &now})
	_ = s.UpdateStatus(ctx, ids[3], job.StatusProcessing, job.Update{})

	st, err := s.JobStats(ctx)
	if err != nil {
		t.Fatalf("JobStats: %v", err)
	}
	if st.Pending != 1 || st.Processing != 1 || st.Completed != 2 || st.Failed != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.Total() != 5 {
		t.Errorf("Total = %d", st.Total())
	}
	if st.LastCompletedAt == nil || st.LastCompletedAt.Sub(now) > time.Second || now.Sub(*st.LastCompletedAt) > time.Second {
		t.Errorf("LastCompletedAt = %v, want ≈ %v", st.LastCompletedAt, now)
	}

	all, err := s.ListJobs(ctx, job.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 || all[0].ID != ids[4] {
		t.Errorf("ListJobs should return newest first, got %d jobs", len(all))
	}

	completed, _ := s.ListJobs(ctx, job.ListOpts{Status: job.StatusCompleted})
	if len(completed) != 2 {
		t.Errorf("completed = %d, want 2", len(completed))
	}
	sales, _ := s.ListJobs(ctx, job.ListOpts{Module: "sales"})
	if len(sales) != 2 {
		t.Errorf("sales = %d, want 2", len(sales))
	}
	page, _ := s.ListJobs(ctx, job.ListOpts{Limit: 2, Offset: 1})
	if len(page) != 2 || page[0].ID != ids[3] {
		t.Errorf("page = %v", page)
	}
}

func testRetryFailed(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()

	failed := enqueue(t, s, job.Push("crm", "contact", job.ActionCreate, 1))
	_ = s.UpdateStatus(ctx, failed, job.StatusFailed, job.Update{
		Attempts:     job.Ptr(3),
		ErrorMessage: job.Ptr("ValidationError"),
		ProcessedAt:  &now,
	})
	other := enqueue(t, s, job.Push("crm", "contact", job.ActionCreate, 2))

	n, err := s.RetryFailed(ctx)
	if err != nil || n != 1 {
		t.Fatalf("RetryFailed = %d, %v; want 1", n, err)
	}
	got, _ := s.GetJob(ctx, failed)
	if got.Status != job.StatusPending || got.Attempts != 0 || got.ErrorMessage != "" || got.ProcessedAt != nil {
		t.Errorf("retried job = %+v", got)
	}
	if !got.Due(time.Now().UTC().Add(time.Second)) {
		t.Error("retried job should be due immediately")
	}
	untouched, _ := s.GetJob(ctx, other)
	if untouched.Status != job.StatusPending {
		t.Error("pending job should be untouched")
	}
}

func testCleanup(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	old := now.Add(-48 * time.Hour)

	oldDone := enqueue(t, s, job.Push("crm", "contact", job.ActionCreate, 1))
	_ = s.UpdateStatus(ctx, oldDone, job.StatusCompleted, job.Update{ProcessedAt: &old})
	oldFailed := enqueue(t, s, job.Push("crm", "contact", job.ActionCreate, 2))
	_ = s.UpdateStatus(ctx, oldFailed, job.StatusFailed, job.Update{ProcessedAt: &old})
	recent := enqueue(t, s, job.Push("crm", "contact", job.ActionCreate, 3))
	_ = s.UpdateStatus(ctx, recent, job.StatusCompleted, job.Update{ProcessedAt: &now})
	pending := enqueue(t, s, job.Push("crm", "contact", job.ActionCreate, 4))

	n, err := s.CleanupJobs(ctx, 24*time.Hour)
	if err != nil || n != 2 {
		t.Fatalf("CleanupJobs = %d, %v; want 2", n, err)
	}
	for _, jid := range []id.JobID{recent, pending} {
		if _, err := s.GetJob(ctx, jid); err != nil {
			t.Errorf("job %d should survive cleanup: %v", jid, err)
		}
	}
}

func testResetStale(t *testing.T, s store.Store) {
	ctx := context.Background()

	stale := enqueue(t, s, job.Push("crm", "contact", job.ActionCreate, 1))
	_ = s.UpdateStatus(ctx, stale, job.StatusProcessing, job.Update{})
	time.Sleep(50 * time.Millisecond)
	fresh := enqueue(t, s, job.Push("crm", "contact", job.ActionCreate, 2))
	_ = s.UpdateStatus(ctx, fresh, job.StatusProcessing, job.Update{})

	n, err := s.ResetStale(ctx, 25*time.Millisecond)
	if err != nil || n != 1 {
		t.Fatalf("ResetStale = %d, %v; want 1", n, err)
	}
	got, _ := s.GetJob(ctx, stale)
	if got.Status != job.StatusPending {
		t.Errorf("stale job status = %s", got.Status)
	}
	got, _ = s.GetJob(ctx, fresh)
	if got.Status != job.StatusProcessing {
		t.Errorf("fresh job status = %s", got.Status)
	}
}

func testMappings(t *testing.T, s store.Store) {
	ctx := context.Background()

	m := &mapping.Mapping{Module: "crm", EntityType: "contact", WPID: 1, OdooID: 10, OdooModel: "res.partner", SyncHash: "h1"}
	if err := s.SaveMapping(ctx, m); err != nil {
		t.Fatalf("SaveMapping: %v", err)
	}
	m2 := &mapping.Mapping{Module: "crm", EntityType: "contact", WPID: 1, OdooID: 11, OdooModel: "res.partner", SyncHash: "h2"}
	if err := s.SaveMapping(ctx, m2); err != nil {
		t.Fatalf("SaveMapping overwrite: %v", err)
	}
	_ = s.SaveMapping(ctx, &mapping.Mapping{Module: "crm", EntityType: "contact", WPID: 2, OdooID: 20})
	_ = s.SaveMapping(ctx, &mapping.Mapping{Module: "crm", EntityType: "company", WPID: 1, OdooID: 30})

	got, err := s.GetByWPID(ctx, "crm", "contact", 1)
	if err != nil {
		t.Fatalf("GetByWPID: %v", err)
	}
	if got.OdooID != 11 || got.SyncHash != "h2" {
		t.Errorf("mapping not overwritten: %+v", got)
	}

	byOdoo, err := s.GetByOdooID(ctx, "crm", "contact", 20)
	if err != nil || byOdoo.WPID != 2 {
		t.Errorf("GetByOdooID = %+v, %v", byOdoo, err)
	}
	if _, err := s.GetByOdooID(ctx, "crm", "contact", 10); !errors.Is(err, odoosync.ErrMappingNotFound) {
		t.Errorf("stale odoo id should be gone: %v", err)
	}

	list, err := s.ListMappings(ctx, "crm", "contact")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].WPID != 1 || list[1].WPID != 2 {
		t.Errorf("ListMappings = %v", list)
	}

	if err := s.DeleteMapping(ctx, "crm", "contact", 2); err != nil {
		t.Fatalf("DeleteMapping: %v", err)
	}
	if _, err := s.GetByWPID(ctx, "crm", "contact", 2); !errors.Is(err, odoosync.ErrMappingNotFound) {
		t.Errorf("deleted mapping still present: %v", err)
	}
	if err := s.DeleteMapping(ctx, "crm", "contact", 2); !errors.Is(err, odoosync.ErrMappingNotFound) {
		t.Errorf("DeleteMapping(missing) error = %v", err)
	}
}

func testLock(t *testing.T, s store.Store) {
	ctx := context.Background()
	key := lock.PushKey("crm", "contact", 7)

	ok, err := s.Acquire(ctx, key, 0)
	if err != nil || !ok {
		t.Fatalf("Acquire = %v, %v", ok, err)
	}
	ok, err = s.Acquire(ctx, key, 100*time.Millisecond)
	if err != nil || ok {
		t.Fatalf("second Acquire = %v, %v; want false", ok, err)
	}
	if err := s.Release(ctx, key); err != nil {
		t.Fatalf("Release: %v", err)
	}

	var holders, maxHolders int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := lock.With(ctx, s, key, 5*time.Second, func(context.Context) error {
				n := atomic.AddInt32(&holders, 1)
				if n > atomic.LoadInt32(&maxHolders) {
					atomic.StoreInt32(&maxHolders, n)
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&holders, -1)
				return nil
			})
			if err != nil {
				t.Errorf("With: %v", err)
			}
		}()
	}
	wg.Wait()
	if maxHolders != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxHolders)
	}
}
