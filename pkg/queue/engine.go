package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultRetention is how long finished records are kept before CleanUp
// removes them, unless the queue configures its own window.
const DefaultRetention = 30 * 24 * time.Hour

// Engine provides the lifecycle primitives shared by every queue type:
// enqueue, reserve, verify, save result, save error, and clean up. It
// operates purely on a RecordStore and owns the status state machine; it
// decides nothing about when a task actually runs.
type Engine struct {
	store    RecordStore
	queueUID uuid.UUID

	alias     string
	uniqueIDs bool
	retention time.Duration
	logger    *slog.Logger
}

// NewEngine creates the lifecycle engine for one queue.
func NewEngine(store RecordStore, queueUID uuid.UUID, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, ErrStoreNil
	}

	options := &engineOptions{
		uniqueMessageIDs: true,
		retention:        DefaultRetention,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Engine{
		store:     store,
		queueUID:  queueUID,
		alias:     options.alias,
		uniqueIDs: options.uniqueMessageIDs,
		retention: options.retention,
		logger:    options.logger,
	}, nil
}

// QueueUID returns the uid of the queue this engine belongs to.
func (e *Engine) QueueUID() uuid.UUID { return e.queueUID }

// Store exposes the underlying record store to strategies that need raw
// queries, such as the silent strategy's in-flight scan.
func (e *Engine) Store() RecordStore { return e.store }

// RequiresUniqueMessageIDs reports whether Verify enforces the
// message-id-per-producer uniqueness contract on this queue.
func (e *Engine) RequiresUniqueMessageIDs() bool { return e.uniqueIDs }

// Enqueue creates a record in the queued status, snapshotting the task
// payload, owner, and scheduling time. A pure append: duplicate detection
// is a separate step and enqueueing never fails because of one.
func (e *Engine) Enqueue(ctx context.Context, task *Task, meta Meta) (*Record, error) {
	if task == nil {
		return nil, ErrTaskNil
	}

	now := time.Now()
	assigned := task.AssignedAt
	if assigned.IsZero() {
		assigned = now
	}

	rec := &Record{
		UID:          uuid.New(),
		Status:       StatusQueued,
		TaskName:     task.Name,
		Payload:      task.Payload,
		Owner:        task.Owner,
		Producer:     meta.Producer,
		MessageID:    meta.MessageID,
		Topics:       meta.Topics,
		Channel:      meta.Channel,
		QueueUID:     e.queueUID,
		SchedulerUID: task.SchedulerUID,
		AssignedAt:   assigned,
		EnqueuedAt:   now,
	}

	if err := e.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to enqueue task on queue %q: %w", e.alias, err)
	}

	e.logger.DebugContext(ctx, "task enqueued",
		slog.String("queue", e.alias),
		slog.String("record_uid", rec.UID.String()),
		slog.String("producer", meta.Producer),
		slog.String("message_id", meta.MessageID))

	return rec, nil
}

// Reserve transitions a record from received or queued to in_progress,
// stamping this queue as the owner, and returns the updated record. The
// one-way gate of the state machine: a second reservation of the same
// record fails with *StateError naming the current status.
func (e *Engine) Reserve(ctx context.Context, recordUID uuid.UUID) (*Record, error) {
	rec, err := e.store.Reserve(ctx, recordUID, e.queueUID)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Verify runs duplicate detection for a record. It is a no-op on queues
// that do not require unique message ids. A non-superseded record with the
// same message id and producer fails the check with *DuplicateError
// carrying the most recent duplicate's enqueue time.
func (e *Engine) Verify(ctx context.Context, recordUID uuid.UUID, messageID, producer string) error {
	if !e.uniqueIDs {
		return nil
	}
	if messageID == "" || producer == "" {
		return ErrMissingDedupKey
	}

	dups, err := e.store.FindDuplicates(ctx, recordUID, messageID, producer, e.queueUID)
	if err != nil {
		return runtimeErr("verify", err)
	}
	if len(dups) == 0 {
		return nil
	}

	return &DuplicateError{RecordUID: dups[0].UID, EnqueuedAt: dups[0].EnqueuedAt}
}

// SaveResult marks a record done with the executor's result.
func (e *Engine) SaveResult(ctx context.Context, rec *Record, res Result, duration time.Duration) (*Record, error) {
	now := time.Now()
	rec.Status = StatusDone
	rec.ResultCode = res.Code()
	rec.ResultMessage = res.Message()
	rec.ProcessedAt = &now
	rec.Duration = duration

	if err := e.store.Update(ctx, rec); err != nil {
		return nil, runtimeErr("save result", err)
	}

	return rec, nil
}

// SaveError marks a record with a terminal failure status (error by
// default; verify failures pass duplicate) and the failure details. When
// the cause is a runtime wrapper, the inner message is stored so operators
// see the original failure, not the wrapping.
func (e *Engine) SaveError(ctx context.Context, rec *Record, cause error, status Status, duration time.Duration) (*Record, error) {
	if status == "" {
		status = StatusError
	}

	msg := cause.Error()
	var rt *RuntimeError
	if errors.As(cause, &rt) && rt.Cause != nil {
		msg = rt.Cause.Error()
	}

	now := time.Now()
	rec.Status = status
	rec.ErrorMessage = msg
	rec.ErrorLogID = uuid.NewString()
	rec.ProcessedAt = &now
	rec.Duration = duration

	if err := e.store.Update(ctx, rec); err != nil {
		return nil, runtimeErr("save error", err)
	}

	return rec, nil
}

// CleanUp deletes this queue's records older than the retention window and
// returns an operator-readable summary. Removing nothing is not an error.
func (e *Engine) CleanUp(ctx context.Context) (string, error) {
	cutoff := time.Now().Add(-e.retention)

	removed, err := e.store.DeleteOlderThan(ctx, e.queueUID, cutoff)
	if err != nil {
		return "", runtimeErr("clean up", err)
	}

	summary := fmt.Sprintf("removed %d queued task(s) older than %s from queue %q",
		removed, cutoff.Format(time.RFC3339), e.alias)

	e.logger.InfoContext(ctx, "queue cleanup finished",
		slog.String("queue", e.alias),
		slog.Int64("removed", removed))

	return summary, nil
}
