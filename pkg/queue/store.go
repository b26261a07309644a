package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RecordStore is the persistence contract the engine operates on. One
// logical entity type: the queued task record. Implementations must provide
// equality and less-than filtering on the fields used below; everything
// else is plain CRUD.
type RecordStore interface {
	// Create appends a new record. Never checks for duplicates.
	Create(ctx context.Context, rec *Record) error

	// Get reads a record by uid. Returns ErrRecordNotFound when missing.
	Get(ctx context.Context, uid uuid.UUID) (*Record, error)

	// Update persists the mutable fields of an existing record.
	Update(ctx context.Context, rec *Record) error

	// Reserve atomically transitions a record from received or queued to
	// in_progress and stamps the owning queue. Two concurrent reservers
	// must not both succeed: implementations use a conditional update with
	// affected-row verification or an equivalent per-record lock. On a
	// record in any other status it fails with *StateError carrying the
	// current status.
	Reserve(ctx context.Context, uid, queueUID uuid.UUID) (*Record, error)

	// FindDuplicates returns records with the same message id, producer,
	// and owning queue whose status is not superseded, newest first,
	// excluding the record identified by exclude.
	FindDuplicates(ctx context.Context, exclude uuid.UUID, messageID, producer string, queueUID uuid.UUID) ([]*Record, error)

	// FindInFlight returns non-terminal records for the given producer and
	// task name, used by the silent strategy's skip-if-already-running
	// policy.
	FindInFlight(ctx context.Context, producer, taskName string) ([]*Record, error)

	// DeleteOlderThan bulk-deletes this queue's records enqueued before the
	// cutoff and reports how many were removed. Zero matches is not an
	// error.
	DeleteOlderThan(ctx context.Context, queueUID uuid.UUID, cutoff time.Time) (int64, error)
}
