package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned by Send when no runtime exists and no
	// credential source is configured for lazy initialization.
	ErrNotInitialized = errors.New("agent not initialized")
	// ErrAgentBusy is returned when a turn is already in flight.
	ErrAgentBusy = errors.New("agent is processing a turn")
	// ErrTerminated is returned by every mutating call after Terminate.
	ErrTerminated = errors.New("agent terminated")
	// ErrAgentNotFound is returned by Manager lookups.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrNotWorker is returned when a worker-only operation targets another role.
	ErrNotWorker = errors.New("agent is not a worker")
	// ErrCancelled is returned by runtimes that stop at a cancellation check point.
	ErrCancelled = errors.New("cancelled")
)

// InitializationError wraps a credential or configuration failure raised
// while building a runtime. The instance state is left unchanged.
type InitializationError struct {
	Cause error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("agent initialization failed: %v", e.Cause)
}

func (e *InitializationError) Unwrap() error { return e.Cause }

// ExecutionError is a failed turn as seen by a waiting caller.
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string { return e.Message }
