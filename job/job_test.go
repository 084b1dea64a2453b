package job_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/job"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		j       *job.Job
		wantErr bool
	}{
		{"push ok", job.Push("crm", "contact", job.ActionCreate, 1), false},
		{"pull ok", job.Pull("crm", "contact", job.ActionUpdate, 10), false},
		{"missing module", job.Push("", "contact", job.ActionCreate, 1), true},
		{"missing entity", job.Push("crm", "", job.ActionCreate, 1), true},
		{"bad action", job.Push("crm", "contact", "upsert", 1), true},
		{"bad direction", &job.Job{Module: "crm", EntityType: "contact", Action: job.ActionCreate, Direction: "sideways"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.j.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, odoosync.ErrInvalidJob) {
				t.Errorf("error %v does not wrap ErrInvalidJob", err)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	j := job.Push("crm", "contact", job.ActionCreate, 1)
	j.Attempts = 7
	j.Status = job.StatusFailed
	j.ErrorMessage = "old"
	j.Normalize(now, 0)

	if j.Status != job.StatusPending {
		t.Errorf("Status = %q, want pending", j.Status)
	}
	if j.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", j.Attempts)
	}
	if j.MaxAttempts != job.DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", j.MaxAttempts, job.DefaultMaxAttempts)
	}
	if j.Priority != job.DefaultPriority {
		t.Errorf("Priority = %d, want %d", j.Priority, job.DefaultPriority)
	}
	if !j.ScheduledAt.Equal(now) {
		t.Errorf("ScheduledAt = %v, want %v", j.ScheduledAt, now)
	}
	if j.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want empty", j.ErrorMessage)
	}

	later := now.Add(time.Hour)
	k := job.Push("crm", "contact", job.ActionCreate, 1, job.WithScheduledAt(later), job.WithMaxAttempts(5))
	k.Normalize(now, 3)
	if !k.ScheduledAt.Equal(later) {
		t.Errorf("ScheduledAt = %v, want %v", k.ScheduledAt, later)
	}
	if k.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", k.MaxAttempts)
	}
}

func TestClampPriority(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, job.DefaultPriority},
		{-4, job.MinPriority},
		{1, 1},
		{10, 10},
		{99, job.MaxPriority},
	}
	for _, tt := range tests {
		if got := job.ClampPriority(tt.in); got != tt.want {
			t.Errorf("ClampPriority(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestTruncateError(t *testing.T) {
	long := strings.Repeat("é", 20)
	if got := job.TruncateError(long, 5); got != strings.Repeat("é", 5) {
		t.Errorf("TruncateError = %q", got)
	}
	if got := job.TruncateError("short", 100); got != "short" {
		t.Errorf("TruncateError = %q", got)
	}
	if got := job.TruncateError(long, 0); got != long {
		t.Error("non-positive limit should disable truncation")
	}
}

func TestDueAndLess(t *testing.T) {
	now := time.Now().UTC()

	j := &job.Job{Status: job.StatusPending, ScheduledAt: now}
	if !j.Due(now) {
		t.Error("job scheduled at now should be due")
	}
	j.ScheduledAt = now.Add(time.Second)
	if j.Due(now) {
		t.Error("future job should not be due")
	}
	j.ScheduledAt = now
	j.Status = job.StatusProcessing
	if j.Due(now) {
		t.Error("processing job should not be due")
	}

	a := &job.Job{ID: 2, Priority: 1, ScheduledAt: now.Add(time.Minute)}
	b := &job.Job{ID: 1, Priority: 5, ScheduledAt: now}
	if !job.Less(a, b) {
		t.Error("lower priority value should sort first")
	}
	c := &job.Job{ID: 3, Priority: 5, ScheduledAt: now.Add(-time.Minute)}
	if !job.Less(c, b) {
		t.Error("earlier schedule should sort first within a priority")
	}
	d := &job.Job{ID: 9, Priority: 5, ScheduledAt: now}
	if !job.Less(b, d) {
		t.Error("lower id should break ties")
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []job.Status{job.StatusCompleted, job.StatusFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []job.Status{job.StatusPending, job.StatusProcessing} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	if job.Status("bogus").Valid() {
		t.Error("bogus status should be invalid")
	}
}
