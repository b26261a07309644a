package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	// ErrStoreNil is returned when a nil record store is provided.
	ErrStoreNil = errors.New("record store cannot be nil")

	// ErrExecutorNil is returned when a queue is built without an executor.
	ErrExecutorNil = errors.New("executor cannot be nil")

	// ErrStrategyNil is returned when a queue is built without a strategy.
	ErrStrategyNil = errors.New("execution strategy cannot be nil")

	// ErrTaskNil is returned when attempting to enqueue a nil task.
	ErrTaskNil = errors.New("task cannot be nil")

	// ErrRecordNotFound is returned when a record uid does not exist.
	ErrRecordNotFound = errors.New("queued task record not found")

	// ErrMissingDedupKey is returned by Verify when the queue requires
	// unique message ids but the message id or producer is empty.
	ErrMissingDedupKey = errors.New("message id and producer are required for duplicate detection")

	// ErrCommandNotAllowed is returned when a CLI command matches none of
	// the configured allow-list patterns.
	ErrCommandNotAllowed = errors.New("command does not match any allowed pattern")
)

// StateError indicates a reserve attempt on a record that is not in the
// received or queued status. It always signals an ordering bug in the
// caller, never a recoverable condition.
type StateError struct {
	RecordUID uuid.UUID
	Status    Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot reserve task %s: illegal status %q (want %q or %q)",
		e.RecordUID, e.Status, StatusReceived, StatusQueued)
}

// DuplicateError indicates Verify found a non-superseded record with the
// same message id and producer on the same queue. It is always absorbed
// into a message result, never propagated as a hard failure.
type DuplicateError struct {
	RecordUID  uuid.UUID // the most recent duplicate
	EnqueuedAt time.Time
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("task already enqueued as %s on %s", e.RecordUID, e.EnqueuedAt.Format(time.RFC3339))
}

// RuntimeError wraps any failure raised by the external executor or by the
// persistence layer during a run. The terminal state of the attempt.
type RuntimeError struct {
	Op    string
	Cause error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("queue runtime error in %s: %v", e.Op, e.Cause)
}

func (e *RuntimeError) Unwrap() error { return e.Cause }

func runtimeErr(op string, cause error) *RuntimeError {
	var rt *RuntimeError
	if errors.As(cause, &rt) {
		return rt
	}
	return &RuntimeError{Op: op, Cause: cause}
}
