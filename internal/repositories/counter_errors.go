package repositories

import (
	"errors"
	"fmt"
)

// ErrInvalidCounter marks counter calls that were rejected before reaching storage.
var ErrInvalidCounter = errors.New("counter: invalid input")

// CounterError describes a rejected counter call. It matches ErrInvalidCounter under errors.Is.
type CounterError struct {
	CounterID string
	Reason    string
}

func (e *CounterError) Error() string {
	if e.CounterID == "" {
		return "counter: " + e.Reason
	}
	return fmt.Sprintf("counter %s: %s", e.CounterID, e.Reason)
}

func (e *CounterError) Is(target error) bool { return target == ErrInvalidCounter }

// InvalidCounter builds a CounterError with a formatted reason.
func InvalidCounter(counterID, format string, args ...any) *CounterError {
	return &CounterError{CounterID: counterID, Reason: fmt.Sprintf(format, args...)}
}
