// Package errz defines the CEE error taxonomy. Each kind is a distinct
// sentinel-wrapped type so callers can branch with errors.As/errors.Is
// instead of inspecting strings.
package errz

import "fmt"

// Kind identifies one of the taxonomy's error categories.
type Kind string

const (
	KindConfig       Kind = "config"
	KindPlanDrift    Kind = "plan_drift"
	KindTransientHTTP Kind = "transient_http"
	KindPermanentHTTP Kind = "permanent_http"
	KindParse        Kind = "parse"
	KindStorage      Kind = "storage"
	KindCircuitOpen  Kind = "circuit_open"
	KindCancelled    Kind = "cancelled"
)

// Error is the common shape for every tagged CEE error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// ConfigError wraps a malformed endpoint config or CLI argument failure.
func ConfigError(op, format string, args ...interface{}) *Error {
	return newf(KindConfig, op, format, args...)
}

// PlanDriftError wraps a disagreement between a persisted plan fingerprint
// and the fingerprint computed for the current run.
func PlanDriftError(op, format string, args ...interface{}) *Error {
	return newf(KindPlanDrift, op, format, args...)
}

// TransientHTTPError wraps a connect timeout, read timeout, 429, or 5xx.
func TransientHTTPError(op string, err error) *Error {
	return &Error{Kind: KindTransientHTTP, Op: op, Err: err}
}

// PermanentHTTPError wraps a non-retryable 4xx response (other than 429).
func PermanentHTTPError(op string, status int) *Error {
	return &Error{Kind: KindPermanentHTTP, Op: op, Err: fmt.Errorf("http status %d", status)}
}

// ParseError wraps a response body that could not be decoded for
// pagination metadata.
func ParseError(op string, err error) *Error {
	return &Error{Kind: KindParse, Op: op, Err: err}
}

// StorageError wraps a DB write/read failure.
func StorageError(op string, err error) *Error {
	return &Error{Kind: KindStorage, Op: op, Err: err}
}

// CircuitOpenError indicates a per-endpoint breaker is open and is
// rejecting requests fast.
func CircuitOpenError(endpoint string) *Error {
	return &Error{Kind: KindCircuitOpen, Op: "httpclient", Err: fmt.Errorf("circuit open for endpoint %q", endpoint)}
}

// Cancelled wraps cooperative cancellation; it is a non-error termination
// signal but is still routed through the taxonomy so the Coordinator can
// distinguish it from a fatal failure.
func Cancelled(op string) *Error {
	return &Error{Kind: KindCancelled, Op: op, Err: fmt.Errorf("cancelled")}
}

// Is lets errors.Is match on Kind when the target is also an *Error with
// the same Kind; Op and the wrapped error are not compared.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the Kind from err, walking wrapped errors, returning ""
// if err is not (or does not wrap) a tagged *Error.
func KindOf(err error) Kind {
	var e *Error
	for err != nil {
		if as, ok := err.(*Error); ok {
			e = as
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return ""
	}
	return e.Kind
}

// Fatal reports whether a Kind is one of the four that propagate to the
// Coordinator: ConfigError, PlanDriftError, StorageError (exhausted), and
// Cancelled.
func Fatal(kind Kind) bool {
	switch kind {
	case KindConfig, KindPlanDrift, KindStorage, KindCancelled:
		return true
	default:
		return false
	}
}
