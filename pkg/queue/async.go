package queue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AsyncStrategy enqueues the task and returns immediately. Duplicate
// detection still happens inline, before the producer gets its answer;
// execution happens later, when an external trigger calls Run for the
// specific record.
type AsyncStrategy struct{}

func (AsyncStrategy) Handle(ctx context.Context, q *Queue, task *Task, meta Meta) (Result, error) {
	rec, err := q.engine.Enqueue(ctx, task, meta)
	if err != nil {
		return nil, runtimeErr("enqueue", err)
	}

	if err := q.engine.Verify(ctx, rec.UID, meta.MessageID, meta.Producer); err != nil {
		var dup *DuplicateError
		if errors.As(err, &dup) {
			if _, serr := q.engine.SaveError(ctx, rec, dup, StatusDuplicate, 0); serr != nil {
				q.logError(ctx, rec.UID.String(), serr)
			}
			msg := fmt.Sprintf("task with message id %q already enqueued on %s, ignoring",
				meta.MessageID, dup.EnqueuedAt.Format(time.RFC3339))
			return NewResult(msg, 0), nil
		}
		return q.fail(ctx, rec, err, 0)
	}

	return QueuedResult{RecordUID: rec.UID.String()}, nil
}
