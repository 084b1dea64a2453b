// Package id defines identity types for odoosync entities.
//
// Jobs are identified by an ascending integer assigned by the store at
// enqueue time, so ordering by ID matches creation order. Lock holders are
// identified by a random owner token so a release can never drop a lock
// taken by another process.
package id

import (
	"database/sql/driver"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// JobID is the store-assigned, ascending identifier of a sync job.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receiver for Scan.
type JobID int64

// Nil is the zero-value JobID. Stores never assign it.
const Nil JobID = 0

// ParseJobID parses a decimal job ID. Zero and negative values are rejected.
func ParseJobID(s string) (JobID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	if n <= 0 {
		return Nil, fmt.Errorf("id: parse %q: must be positive", s)
	}
	return JobID(n), nil
}

// MustParseJobID is like ParseJobID but panics on error. Use for hardcoded values.
func MustParseJobID(s string) JobID {
	parsed, err := ParseJobID(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}
	return parsed
}

// String returns the decimal representation.
func (i JobID) String() string { return strconv.FormatInt(int64(i), 10) }

// IsNil reports whether the ID is the zero value.
func (i JobID) IsNil() bool { return i == Nil }

// Int64 returns the raw integer value.
func (i JobID) Int64() int64 { return int64(i) }

// Value implements driver.Valuer.
func (i JobID) Value() (driver.Value, error) { return int64(i), nil }

// Scan implements sql.Scanner.
func (i *JobID) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		*i = JobID(v)
	case int32:
		*i = JobID(v)
	case []byte:
		parsed, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return fmt.Errorf("id: scan %q: %w", v, err)
		}
		*i = JobID(parsed)
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("id: scan %q: %w", v, err)
		}
		*i = JobID(parsed)
	case nil:
		*i = Nil
	default:
		return fmt.Errorf("id: cannot scan %T into JobID", src)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Lock owners
// ──────────────────────────────────────────────────

// Owner identifies the holder of a named lock.
type Owner string

// NewOwner generates a random owner token.
func NewOwner() Owner { return Owner(uuid.NewString()) }

// String returns the token.
func (o Owner) String() string { return string(o) }
