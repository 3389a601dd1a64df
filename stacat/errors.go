package stacat

import (
	"fmt"
	"strings"
)

// TypeMismatchError reports a STAC object that does not match the node kind
// it was opened as.
type TypeMismatchError struct {
	Want Kind
	Got  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("stacat: expected %s, got %s", e.Want, e.Got)
}

// Unwrap returns ErrTypeMismatch.
func (e *TypeMismatchError) Unwrap() error { return ErrTypeMismatch }

// ResolutionError reports a band specification that matched neither an
// asset key nor a common name. Valid lists the accepted values, sorted and
// deduplicated.
type ResolutionError struct {
	Spec  string
	Item  string
	Valid []string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("stacat: %q not found in assets or eo:bands of item %q; valid values: %s",
		e.Spec, e.Item, strings.Join(e.Valid, ", "))
}

// Unwrap returns ErrResolution.
func (e *ResolutionError) Unwrap() error { return ErrResolution }

// StackError reports members that cannot be combined. Values lists the
// conflicting measurements.
type StackError struct {
	Reason string
	Values []string
}

func (e *StackError) Error() string {
	if len(e.Values) == 0 {
		return "stacat: " + e.Reason
	}
	return fmt.Sprintf("stacat: %s: %s", e.Reason, strings.Join(e.Values, ", "))
}

// Unwrap returns ErrIncompatibleStack.
func (e *StackError) Unwrap() error { return ErrIncompatibleStack }

// LookupError reports an unknown child or asset name.
type LookupError struct {
	Name  string
	Valid []string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("stacat: %q not found; available: %s", e.Name, strings.Join(e.Valid, ", "))
}

// Unwrap returns ErrNotFound.
func (e *LookupError) Unwrap() error { return ErrNotFound }

// BackendError reports a strategy with no registered backend, together with
// how to make one available.
type BackendError struct {
	Strategy    Strategy
	Remediation string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("stacat: no backend for strategy %q: %s", e.Strategy, e.Remediation)
}

// Unwrap returns ErrBackendUnavailable.
func (e *BackendError) Unwrap() error { return ErrBackendUnavailable }
