package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind categorizes component failures for the host
type ErrorKind string

const (
	ErrorKindConfiguration ErrorKind = "configuration" // Missing or invalid definition key
	ErrorKindReadiness     ErrorKind = "readiness"     // Resource or hardware unavailable
	ErrorKindRecovery      ErrorKind = "recovery"      // Raw data file could not be trusted
	ErrorKindTrial         ErrorKind = "trial"         // Failure while a trial was executing
	ErrorKindState         ErrorKind = "state"         // Operation not allowed in current state
)

var (
	// ErrInvalidTransition is wrapped by ValidateTransition failures
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNoCompletedRuns is returned when the branch index is queried before any trial completed
	ErrNoCompletedRuns = errors.New("no completed runs")
	// ErrCorruptRawData is wrapped when the raw data file cannot be parsed
	ErrCorruptRawData = errors.New("corrupt raw data")
)

// ComponentError wraps a failure with context and categorization
type ComponentError struct {
	Kind      ErrorKind
	Op        string // "configure", "begin", "recover", ...
	Message   string
	Err       error
	Timestamp time.Time
}

// Error implements error interface
func (e *ComponentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Kind, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Kind, e.Op, e.Message)
}

// Unwrap implements error unwrapping
func (e *ComponentError) Unwrap() error {
	return e.Err
}

// NewComponentError creates a new component error
func NewComponentError(kind ErrorKind, op, message string, err error) *ComponentError {
	return &ComponentError{
		Kind:      kind,
		Op:        op,
		Message:   message,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// KindOf returns the kind of the first ComponentError in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var ce *ComponentError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}
