package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/queueworks/taskbroker/pkg/topics"
)

// Queue combines the lifecycle engine with an execution strategy and the
// external executor. The strategy decides when the executor is invoked and
// how failures are classified; the engine owns persistence.
type Queue struct {
	uid      uuid.UUID
	alias    string
	engine   *Engine
	strategy Strategy
	exec     Executor

	rule       *topics.Rule
	allowMulti bool

	logger     *slog.Logger
	errorLevel slog.Level
}

// New builds a queue from a store, an executor, and a strategy.
func New(uid uuid.UUID, store RecordStore, exec Executor, strategy Strategy, opts ...Option) (*Queue, error) {
	if exec == nil {
		return nil, ErrExecutorNil
	}
	if strategy == nil {
		return nil, ErrStrategyNil
	}

	options := &queueOptions{
		uniqueMessageIDs: true,
		retention:        DefaultRetention,
		logger:           slog.Default(),
		errorLevel:       slog.LevelError,
	}
	for _, opt := range opts {
		opt(options)
	}

	engine, err := NewEngine(store, uid,
		WithAlias(options.alias),
		WithUniqueMessageIDs(options.uniqueMessageIDs),
		WithRetention(options.retention),
		WithEngineLogger(options.logger),
	)
	if err != nil {
		return nil, err
	}

	return &Queue{
		uid:        uid,
		alias:      options.alias,
		engine:     engine,
		strategy:   strategy,
		exec:       exec,
		rule:       options.rule,
		allowMulti: options.allowMulti,
		logger:     options.logger,
		errorLevel: options.errorLevel,
	}, nil
}

// UID returns the queue's unique identifier.
func (q *Queue) UID() uuid.UUID { return q.uid }

// Alias returns the queue's configured alias.
func (q *Queue) Alias() string { return q.alias }

// Engine exposes the lifecycle primitives, mainly for administrative
// callers running CleanUp or for tests.
func (q *Queue) Engine() *Engine { return q.engine }

// Matches reports whether the queue's topic rule matches the given task
// topics. A queue without a rule matches nothing; it is a fallback target.
func (q *Queue) Matches(taskTopics []string) bool {
	if q.rule == nil {
		return false
	}
	return q.rule.Matches(taskTopics)
}

// Fallback reports whether the queue has no topic rule and therefore only
// handles tasks no topic-specific queue claimed.
func (q *Queue) Fallback() bool { return q.rule == nil }

// AllowsMultiHandling reports whether the queue accepts tasks that are
// simultaneously routed to other queues.
func (q *Queue) AllowsMultiHandling() bool { return q.allowMulti }

// Handle submits a task to this queue through its execution strategy.
func (q *Queue) Handle(ctx context.Context, task *Task, meta Meta) (Result, error) {
	if task == nil {
		return nil, ErrTaskNil
	}
	return q.strategy.Handle(ctx, q, task, meta)
}

// Run executes one previously enqueued record: reserve, verify, execute,
// save. A detected duplicate is absorbed into a message result and a
// duplicate terminal status; any other failure becomes a *RuntimeError,
// logged once at the queue's configured severity and saved on the record.
func (q *Queue) Run(ctx context.Context, recordUID uuid.UUID) (Result, error) {
	start := time.Now()

	rec, err := q.engine.Reserve(ctx, recordUID)
	if err != nil {
		q.logError(ctx, recordUID.String(), err)
		return NewErrorResult(err.Error(), 500), err
	}

	if err := q.engine.Verify(ctx, rec.UID, rec.MessageID, rec.Producer); err != nil {
		var dup *DuplicateError
		if errors.As(err, &dup) {
			return q.absorbDuplicate(ctx, rec, dup, time.Since(start))
		}
		return q.fail(ctx, rec, err, time.Since(start))
	}

	res, err := q.exec.Execute(ctx, rec.TaskOf())
	if err != nil {
		return q.fail(ctx, rec, runtimeErr("execute", err), time.Since(start))
	}

	// A lazy result must be fully materialized before it counts as done, so
	// a deferred failure is captured as a queue error instead of being lost.
	if stream, ok := res.(StreamResult); ok {
		if err := stream.Materialize(ctx); err != nil {
			return q.fail(ctx, rec, runtimeErr("materialize result", err), time.Since(start))
		}
	}

	if _, err := q.engine.SaveResult(ctx, rec, res, time.Since(start)); err != nil {
		return q.fail(ctx, rec, err, time.Since(start))
	}

	q.logger.InfoContext(ctx, "task completed",
		slog.String("queue", q.alias),
		slog.String("record_uid", rec.UID.String()),
		slog.Duration("duration", time.Since(start)))

	return res, nil
}

// absorbDuplicate converts a verify failure into a duplicate terminal
// status and a user-visible message result. Never a hard failure.
func (q *Queue) absorbDuplicate(ctx context.Context, rec *Record, dup *DuplicateError, elapsed time.Duration) (Result, error) {
	if _, err := q.engine.SaveError(ctx, rec, dup, StatusDuplicate, elapsed); err != nil {
		q.logError(ctx, rec.UID.String(), err)
	}

	q.logger.InfoContext(ctx, "duplicate task ignored",
		slog.String("queue", q.alias),
		slog.String("record_uid", rec.UID.String()),
		slog.String("duplicate_of", dup.RecordUID.String()))

	msg := fmt.Sprintf("task with message id %q already enqueued on %s, ignoring",
		rec.MessageID, dup.EnqueuedAt.Format(time.RFC3339))
	return NewResult(msg, 0), nil
}

// fail records a terminal error state for the attempt and surfaces it as
// an error result.
func (q *Queue) fail(ctx context.Context, rec *Record, cause error, elapsed time.Duration) (Result, error) {
	rt := runtimeErr("run", cause)

	if _, err := q.engine.SaveError(ctx, rec, rt, StatusError, elapsed); err != nil {
		q.logError(ctx, rec.UID.String(), err)
	}

	// The error log id ties this line to the persisted record.
	q.logger.Log(ctx, q.errorLevel, "queued task failed",
		slog.String("queue", q.alias),
		slog.String("record_uid", rec.UID.String()),
		slog.String("error_log_id", rec.ErrorLogID),
		slog.String("error", rt.Error()))

	return NewErrorResult(rt.Error(), 500), rt
}

func (q *Queue) logError(ctx context.Context, recordUID string, err error) {
	q.logger.Log(ctx, q.errorLevel, "queued task failed",
		slog.String("queue", q.alias),
		slog.String("record_uid", recordUID),
		slog.String("error", err.Error()))
}
