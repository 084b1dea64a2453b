package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/id"
	"github.com/xraph/odoosync/job"
	"github.com/xraph/odoosync/lock"
	"github.com/xraph/odoosync/mapping"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ job.Store     = (*Store)(nil)
	_ mapping.Store = (*Store)(nil)
	_ lock.Locker   = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	*lock.Memory

	mu sync.RWMutex

	nextID   id.JobID
	jobs     map[id.JobID]*job.Job
	mappings map[mapping.Key]*mapping.Mapping

	now func() time.Time
}

// Option configures the memory store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps and due checks.
func WithClock(now func() time.Time) Option {
	return func(m *Store) { m.now = now }
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	m := &Store{
		Memory:   lock.NewMemory(),
		jobs:     make(map[id.JobID]*job.Job),
		mappings: make(map[mapping.Key]*mapping.Mapping),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

func copyJob(j *job.Job) *job.Job {
	cp := *j
	if j.Payload != nil {
		cp.Payload = make(map[string]any, len(j.Payload))
		for k, v := range j.Payload {
			cp.Payload[k] = v
		}
	}
	if j.ProcessedAt != nil {
		t := *j.ProcessedAt
		cp.ProcessedAt = &t
	}
	return &cp
}

// EnqueueJob persists a new pending job and assigns its ID.
func (m *Store) EnqueueJob(_ context.Context, j *job.Job) (id.JobID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	cp := copyJob(j)
	cp.ID = m.nextID
	now := m.now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	if cp.ScheduledAt.IsZero() {
		cp.ScheduledAt = now
	}
	if cp.Status == "" {
		cp.Status = job.StatusPending
	}
	m.jobs[cp.ID] = cp
	j.ID = cp.ID
	return cp.ID, nil
}

// FetchDue returns up to limit due pending jobs in dispatch order.
func (m *Store) FetchDue(_ context.Context, limit int, now time.Time) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.Due(now) {
			candidates = append(candidates, j)
		}
	}
	sort.Slice(candidates, func(i, k int) bool {
		return job.Less(candidates[i], candidates[k])
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*job.Job, len(candidates))
	for i, j := range candidates {
		// Return a copy so callers can mutate without racing with the store.
		result[i] = copyJob(j)
	}
	return result, nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return nil, odoosync.ErrJobNotFound
	}
	return copyJob(j), nil
}

// ListJobs returns jobs newest first.
func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.Module != "" && j.Module != opts.Module {
			continue
		}
		result = append(result, j)
	}
	sort.Slice(result, func(i, k int) bool { return result[i].ID > result[k].ID })

	return paginate(result, opts.Offset, opts.Limit), nil
}

func paginate(jobs []*job.Job, offset, limit int) []*job.Job {
	if offset > 0 {
		if offset >= len(jobs) {
			return []*job.Job{}
		}
		jobs = jobs[offset:]
	}
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	out := make([]*job.Job, len(jobs))
	for i, j := range jobs {
		out[i] = copyJob(j)
	}
	return out
}

// UpdateStatus sets the status and merges the non-nil fields of u.
func (m *Store) UpdateStatus(_ context.Context, jobID id.JobID, status job.Status, u job.Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return odoosync.ErrJobNotFound
	}
	j.Status = status
	if u.Attempts != nil {
		j.Attempts = *u.Attempts
	}
	if u.ErrorMessage != nil {
		j.ErrorMessage = *u.ErrorMessage
	}
	if u.ScheduledAt != nil {
		j.ScheduledAt = *u.ScheduledAt
	}
	if u.ProcessedAt != nil {
		if u.ProcessedAt.IsZero() {
			j.ProcessedAt = nil
		} else {
			t := *u.ProcessedAt
			j.ProcessedAt = &t
		}
	}
	j.UpdatedAt = m.now()
	return nil
}

// CancelJob deletes a job that is still pending.
func (m *Store) CancelJob(_ context.Context, jobID id.JobID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || j.Status != job.StatusPending {
		return false, nil
	}
	delete(m.jobs, jobID)
	return true, nil
}

// JobStats returns counts by status and the latest completion time.
func (m *Store) JobStats(_ context.Context) (*job.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := &job.Stats{}
	for _, j := range m.jobs {
		switch j.Status {
		case job.StatusPending:
			s.Pending++
		case job.StatusProcessing:
			s.Processing++
		case job.StatusCompleted:
			s.Completed++
			if j.ProcessedAt != nil && (s.LastCompletedAt == nil || j.ProcessedAt.After(*s.LastCompletedAt)) {
				t := *j.ProcessedAt
				s.LastCompletedAt = &t
			}
		case job.StatusFailed:
			s.Failed++
		}
	}
	return s, nil
}

// RetryFailed moves failed jobs back to pending with attempts reset.
func (m *Store) RetryFailed(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var n int64
	for _, j := range m.jobs {
		if j.Status != job.StatusFailed {
			continue
		}
		j.Status = job.StatusPending
		j.Attempts = 0
		j.ErrorMessage = ""
		j.ScheduledAt = now
		j.ProcessedAt = nil
		j.UpdatedAt = now
		n++
	}
	return n, nil
}

// CleanupJobs deletes finished jobs processed before now-olderThan.
func (m *Store) CleanupJobs(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-olderThan)
	var n int64
	for jid, j := range m.jobs {
		if !j.Status.Terminal() || j.ProcessedAt == nil {
			continue
		}
		if j.ProcessedAt.Before(cutoff) {
			delete(m.jobs, jid)
			n++
		}
	}
	return n, nil
}

// ResetStale returns long-running processing jobs to pending.
func (m *Store) ResetStale(_ context.Context, timeout time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-timeout)
	var n int64
	for _, j := range m.jobs {
		if j.Status != job.StatusProcessing || !j.UpdatedAt.Before(cutoff) {
			continue
		}
		j.Status = job.StatusPending
		j.UpdatedAt = now
		n++
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Mapping Store
// ──────────────────────────────────────────────────

func copyMapping(mp *mapping.Mapping) *mapping.Mapping {
	cp := *mp
	if mp.LastSyncedAt != nil {
		t := *mp.LastSyncedAt
		cp.LastSyncedAt = &t
	}
	return &cp
}

// SaveMapping inserts or overwrites a mapping.
func (m *Store) SaveMapping(_ context.Context, mp *mapping.Mapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cp := copyMapping(mp)
	if prev, ok := m.mappings[mp.Key()]; ok {
		cp.CreatedAt = prev.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	m.mappings[mp.Key()] = cp
	return nil
}

// GetByWPID returns the mapping for a local entity.
func (m *Store) GetByWPID(_ context.Context, module, entityType string, wpID int64) (*mapping.Mapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mp, ok := m.mappings[mapping.Key{Module: module, EntityType: entityType, WPID: wpID}]
	if !ok {
		return nil, odoosync.ErrMappingNotFound
	}
	return copyMapping(mp), nil
}

// GetByOdooID returns the mapping for a remote record.
func (m *Store) GetByOdooID(_ context.Context, module, entityType string, odooID int64) (*mapping.Mapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, mp := range m.mappings {
		if mp.Module == module && mp.EntityType == entityType && mp.OdooID == odooID {
			return copyMapping(mp), nil
		}
	}
	return nil, odoosync.ErrMappingNotFound
}

// ListMappings returns every mapping of one entity type ordered by wp_id.
func (m *Store) ListMappings(_ context.Context, module, entityType string) ([]*mapping.Mapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*mapping.Mapping, 0)
	for _, mp := range m.mappings {
		if mp.Module == module && mp.EntityType == entityType {
			out = append(out, copyMapping(mp))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].WPID < out[k].WPID })
	return out, nil
}

// DeleteMapping removes a mapping.
func (m *Store) DeleteMapping(_ context.Context, module, entityType string, wpID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := mapping.Key{Module: module, EntityType: entityType, WPID: wpID}
	if _, ok := m.mappings[key]; !ok {
		return odoosync.ErrMappingNotFound
	}
	delete(m.mappings, key)
	return nil
}
