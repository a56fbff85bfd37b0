package types

import "errors"

// ErrorClass categorizes failures at component boundaries so callers can
// decide between retrying, degrading, and proceeding with partial data.
type ErrorClass string

const (
	ErrTransient   ErrorClass = "Transient"         // network/API hiccup, retry within budget
	ErrAuth        ErrorClass = "AuthFailure"       // non-retryable, cluster degraded until next cycle
	ErrMalformed   ErrorClass = "MalformedResponse" // non-retryable, treat as absent data
	ErrRateLimited ErrorClass = "RateLimited"       // back off, skip if budget exhausted
)

// ClassifiedError wraps an error with its class. Components convert raw
// I/O failures into classified errors at the call boundary; nothing past
// that boundary inspects the raw error.
type ClassifiedError struct {
	Class ErrorClass
	Err   error
}

func (e *ClassifiedError) Error() string { return string(e.Class) + ": " + e.Err.Error() }
func (e *ClassifiedError) Unwrap() error { return e.Err }

// Classify wraps err with the given class. Returns nil for a nil err.
func Classify(class ErrorClass, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: class, Err: err}
}

// ClassOf extracts the class of err, defaulting to Transient for
// unclassified errors (connection refused, DNS, context deadline).
func ClassOf(err error) ErrorClass {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	return ErrTransient
}

// Retryable reports whether err is worth retrying.
func Retryable(err error) bool {
	switch ClassOf(err) {
	case ErrTransient, ErrRateLimited:
		return true
	default:
		return false
	}
}
