package scan

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned by Start when a session is active. Stop it first.
	ErrAlreadyRunning = errors.New("scheduler is already running")

	// ErrInvalidList is returned when the frequency list is empty or not strictly increasing
	ErrInvalidList = errors.New("invalid frequency list")

	// ErrInvalidDelay is returned when the step delay is not positive
	ErrInvalidDelay = errors.New("invalid delay")
)

// StartError describes scheduling parameters rejected by Start.
type StartError struct {
	Reason error // ErrInvalidList or ErrInvalidDelay
	Err    error // underlying validation error, if any
}

func (e *StartError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scan: %s: %s", e.Reason, e.Err)
	}
	return fmt.Sprintf("scan: %s", e.Reason)
}

func (e *StartError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Reason, e.Err}
	}
	return []error{e.Reason}
}
