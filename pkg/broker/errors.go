package broker

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors
var (
	// ErrRegistryNil is returned when a broker is built without a registry.
	ErrRegistryNil = errors.New("queue registry cannot be nil")

	// ErrDefinitionStoreNil is returned when a registry is built without a
	// definition store.
	ErrDefinitionStoreNil = errors.New("definition store cannot be nil")

	// ErrQueueNotFound is returned by Run when no loaded queue has the
	// given uid.
	ErrQueueNotFound = errors.New("no queue registered with this uid")
)

// UnknownPrototypeError is returned at registry load time when a
// definition names a prototype no factory is registered for.
type UnknownPrototypeError struct {
	Prototype  string
	QueueAlias string
}

func (e *UnknownPrototypeError) Error() string {
	return fmt.Sprintf("queue %q uses unknown prototype %q", e.QueueAlias, e.Prototype)
}

// RoutingError indicates the broker could not hand a task to any queue:
// either nothing matched (and no fallback exists), or several queues
// matched and one of them forbids multi-queue handling. The task is
// persisted as orphaned when possible.
type RoutingError struct {
	// QueueAlias names the queue that forbids multi-queue handling. Empty
	// when no queue matched at all.
	QueueAlias string
	Topics     []string
}

func (e *RoutingError) Error() string {
	if e.QueueAlias != "" {
		return fmt.Sprintf("task matches multiple queues but queue %q does not allow multi-queue handling", e.QueueAlias)
	}
	return fmt.Sprintf("no queue found for task with topics [%s]", strings.Join(e.Topics, ", "))
}
