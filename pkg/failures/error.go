package failures

import (
	"errors"
	"fmt"
)

// Error pairs a taxonomy code with its diagnostic cause. Error() returns only
// the user-safe message; the cause is reachable through Unwrap and Diagnostic.
type Error struct {
	Code  Code
	Cause error
}

// Wrap resolves code against t and attaches cause. An unknown code resolves
// to InternalInvariant so that a wrapping mistake never produces an empty or
// unsafe message.
func (t *Taxonomy) Wrap(code string, cause error) *Error {
	c, ok := t.Resolve(code)
	if !ok {
		c, _ = t.Resolve(InternalInvariant)
		if cause == nil {
			cause = fmt.Errorf("unknown failure code %q", code)
		} else {
			cause = fmt.Errorf("unknown failure code %q: %w", code, cause)
		}
	}
	return &Error{Code: c, Cause: cause}
}

func (e *Error) Error() string {
	if e.Code.UserMessage == "" {
		return "Something went wrong. Please try again."
	}
	return e.Code.UserMessage
}

func (e *Error) Unwrap() error { return e.Cause }

// Diagnostic returns the full internal description for logs.
func (e *Error) Diagnostic() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code.Code, e.Code.Diagnostic)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code.Code, e.Code.Diagnostic, e.Cause)
}

// CodeOf extracts the failure code from err, if any.
func CodeOf(err error) (string, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code.Code, true
	}
	return "", false
}
