package odoosync

import "time"

// Config holds configuration for the Syncer.
type Config struct {
	// BatchSize is the maximum number of due jobs fetched per run.
	BatchSize int `mapstructure:"batch_size"`

	// TimeBudget is the wall-clock ceiling of a single run. No new job is
	// started once it has elapsed.
	TimeBudget time.Duration `mapstructure:"time_budget"`

	// RunLockTimeout bounds how long a run waits for the run-wide lock.
	RunLockTimeout time.Duration `mapstructure:"run_lock_timeout"`

	// PushLockTimeout bounds how long a push create waits for its entity lock.
	PushLockTimeout time.Duration `mapstructure:"push_lock_timeout"`

	// DefaultMaxAttempts applies to jobs enqueued without MaxAttempts.
	DefaultMaxAttempts int `mapstructure:"default_max_attempts"`

	// BackoffUnit is the per-attempt delay unit of the retry schedule.
	BackoffUnit time.Duration `mapstructure:"backoff_unit"`

	// BackoffStrategy names the retry schedule: linear, constant,
	// exponential or exponential_jitter.
	BackoffStrategy string `mapstructure:"backoff_strategy"`

	// StaleTimeout is how long a job may stay processing before the
	// reaper returns it to pending.
	StaleTimeout time.Duration `mapstructure:"stale_timeout"`

	// DryRun completes jobs without invoking adapters.
	DryRun bool `mapstructure:"dry_run"`

	// ErrorMessageMax bounds the stored error message, in runes.
	ErrorMessageMax int `mapstructure:"error_message_max"`

	// CleanupAfter is the default age past which finished jobs are removed.
	CleanupAfter time.Duration `mapstructure:"cleanup_after"`

	// Breaker configures the Odoo circuit breaker.
	Breaker BreakerConfig `mapstructure:"breaker"`

	// Notify configures the batch failure notification policy.
	Notify NotifyConfig `mapstructure:"notify"`
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the circuit.
	Threshold int `mapstructure:"threshold"`
	// RecoveryDelay is how long the circuit stays open before probing.
	RecoveryDelay time.Duration `mapstructure:"recovery_delay"`
}

// NotifyConfig holds the failure notification policy.
type NotifyConfig struct {
	// FailureThreshold is the number of consecutive failures in one run
	// that triggers a notification.
	FailureThreshold int `mapstructure:"failure_threshold"`
	// Cooldown is the minimum gap between two notifications.
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:          50,
		TimeBudget:         55 * time.Second,
		RunLockTimeout:     1 * time.Second,
		PushLockTimeout:    5 * time.Second,
		DefaultMaxAttempts: 3,
		BackoffUnit:        60 * time.Second,
		BackoffStrategy:    "linear",
		StaleTimeout:       10 * time.Minute,
		ErrorMessageMax:    1000,
		CleanupAfter:       30 * 24 * time.Hour,
		Breaker: BreakerConfig{
			Threshold:     3,
			RecoveryDelay: 300 * time.Second,
		},
		Notify: NotifyConfig{
			FailureThreshold: 5,
			Cooldown:         time.Hour,
		},
	}
}
