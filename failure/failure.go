// Package failure classifies sync errors as transient or permanent.
//
// Classification drives operator-facing severity and alerting. It does not
// decide whether a job is retried: every failure is retried until the job
// runs out of attempts.
package failure

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/xraph/odoosync"
)

// Kind is the classification of a failure.
type Kind int

const (
	// Transient failures are expected to succeed on a later attempt.
	Transient Kind = iota
	// Permanent failures are business-rule rejections that a retry cannot fix.
	Permanent
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "transient"
}

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// Business-rule rejections from Odoo. These win over the status code
// because Odoo reports them inside HTTP 500 responses.
var businessPatterns = []string{
	"accesserror",
	"access error",
	"access denied",
	"access rights",
	"validationerror",
	"validation error",
	"validation failed",
	"missing required",
	"required field",
	"missingerror",
	"constraint",
	"integrityerror",
	"unique violation",
	"usererror",
}

var networkPatterns = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"could not resolve",
	"no such host",
	"name resolution",
	"dns",
	"http error",
	"broken pipe",
	"unexpected eof",
}

// Classify maps err to a Kind. Rules, first match wins, text compared
// case-insensitively:
//
//  1. business-rule text → Permanent, whatever the status code
//  2. status 429 or 503 → Transient
//  3. any other 5xx → Transient
//  4. network failure text → Transient
//  5. everything else → Transient
//
// Lock contention and an open circuit are always Transient.
func Classify(err error) Kind {
	if err == nil {
		return Transient
	}
	if errors.Is(err, odoosync.ErrLockTimeout) || errors.Is(err, odoosync.ErrCircuitOpen) {
		return Transient
	}

	msg := strings.ToLower(err.Error())
	if containsAny(msg, businessPatterns) {
		return Permanent
	}

	if code, ok := StatusCode(err); ok {
		if code == 429 || code == 503 {
			return Transient
		}
		if code >= 500 && code <= 599 {
			return Transient
		}
	}

	if containsAny(msg, networkPatterns) {
		return Transient
	}
	return Transient
}

// StatusCode extracts the status code carried anywhere in err's chain.
func StatusCode(err error) (int, bool) {
	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		return code, code > 0
	}
	return 0, false
}

// IsNetwork reports whether err's text matches a known network failure.
func IsNetwork(err error) bool {
	return err != nil && containsAny(strings.ToLower(err.Error()), networkPatterns)
}

// Severity maps a kind to the log level used to report it.
func Severity(k Kind) slog.Level {
	if k == Permanent {
		return slog.LevelError
	}
	return slog.LevelWarn
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
