package container

import (
	"errors"
	"fmt"
)

// Lifecycle misuse sentinels.
var (
	// ErrAlreadyInitialized reports a second Initialize on a container
	// that is initializing or initialized. There is no safe way to merge
	// two engine states, so this is an error rather than a no-op.
	ErrAlreadyInitialized = errors.New("container: already initialized")

	// ErrNotReady reports an operation that requires the Ready state.
	ErrNotReady = errors.New("container: not ready")

	// ErrReleased reports an operation on a released container.
	ErrReleased = errors.New("container: released")
)

// InitializationError wraps a failure during Initialize. The container
// stays non-operational; a fresh Initialize may be attempted.
type InitializationError struct {
	Stage string // "storage", "load-state", "engine", "observe"
	Err   error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("container: initialize %s: %v", e.Stage, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// StorageError wraps a DataStorage failure surfaced by a lifecycle
// operation. Per-event storage failures are logged, not propagated.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("container: storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// EngineError wraps a LearningEngine failure surfaced by a lifecycle
// operation.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("container: engine %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// ObservationError wraps a terminal DataSource stream failure. The
// observation task ends; the container does not restart it on its own.
type ObservationError struct {
	Err error
}

func (e *ObservationError) Error() string {
	return fmt.Sprintf("container: observation: %v", e.Err)
}

func (e *ObservationError) Unwrap() error { return e.Err }
