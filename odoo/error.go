package odoo

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorData is the "data" member of an Odoo JSON-RPC error.
type ErrorData struct {
	Name      string `json:"name"`
	Message   string `json:"message"`
	Debug     string `json:"debug,omitempty"`
	Arguments []any  `json:"arguments,omitempty"`
}

// Error is a failure reported by the Odoo server, either at the HTTP level
// (Code is zero) or inside a JSON-RPC error envelope.
type Error struct {
	// HTTPStatus is the HTTP response status. Application errors travel
	// in 200 responses and are reported as 500.
	HTTPStatus int
	Code       int
	Message    string
	Data       ErrorData
}

// Error implements error. The exception name is included so text-based
// classification sees e.g. "ValidationError".
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("odoo: ")
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		fmt.Fprintf(&b, "http %d", e.HTTPStatus)
	}
	if e.Data.Name != "" {
		b.WriteString(": ")
		b.WriteString(e.Data.Name)
	}
	if e.Data.Message != "" && e.Data.Message != e.Message {
		b.WriteString(": ")
		b.WriteString(e.Data.Message)
	}
	return b.String()
}

// StatusCode reports the HTTP status for the failure classifier.
func (e *Error) StatusCode() int { return e.HTTPStatus }

// Application reports whether the server answered and rejected the call,
// as opposed to failing at the HTTP level.
func (e *Error) Application() bool { return e.Code != 0 }

// countsAsOutage reports whether err indicates the server is unreachable
// or unhealthy. Only such failures feed the circuit breaker.
func countsAsOutage(err error) bool {
	var oe *Error
	if !errors.As(err, &oe) {
		return true
	}
	if oe.Application() {
		return false
	}
	return oe.HTTPStatus >= 500 || oe.HTTPStatus == 429
}
