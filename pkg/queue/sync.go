package queue

import "context"

// SyncStrategy enqueues the task and runs it inline, in the same logical
// request scope as the submission. The producer gets the executor's actual
// result.
type SyncStrategy struct{}

func (SyncStrategy) Handle(ctx context.Context, q *Queue, task *Task, meta Meta) (Result, error) {
	rec, err := q.engine.Enqueue(ctx, task, meta)
	if err != nil {
		return nil, runtimeErr("enqueue", err)
	}

	return q.Run(ctx, rec.UID)
}
