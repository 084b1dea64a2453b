package odoosync

import (
	"time"

	"github.com/xraph/odoosync/id"
)

// RunResult summarizes one queue processor run.
type RunResult struct {
	// Skipped is true when another processor held the run lock. No job
	// was fetched.
	Skipped bool `json:"skipped"`
	// DryRun is true when adapters were not invoked.
	DryRun bool `json:"dry_run"`

	Fetched   int `json:"fetched"`
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`

	// MaxConsecutiveFailures is the longest run of failed jobs without an
	// intervening success.
	MaxConsecutiveFailures int `json:"max_consecutive_failures"`

	// BudgetExhausted is true when fetched jobs were left pending because
	// the wall-clock budget ran out.
	BudgetExhausted bool `json:"budget_exhausted"`

	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`

	// Failures lists the jobs that failed during the run.
	Failures []RunFailure `json:"failures,omitempty"`
}

// RunFailure describes one failed dispatch within a run.
type RunFailure struct {
	JobID    id.JobID `json:"job_id"`
	Module   string   `json:"module"`
	Kind     string   `json:"kind"`
	Terminal bool     `json:"terminal"`
	Message  string   `json:"message"`
}
