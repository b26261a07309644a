package queue

import (
	"context"
	"log/slog"
	"time"
)

// SilentStrategy executes the task immediately, without persisting
// anything on the happy path. Only a failure leaves a trace: the task is
// retroactively enqueued and marked with the error, so there is an audit
// record. With SkipIfRunning enabled the strategy first checks for other
// in-flight records of the same producer and task shape and skips
// execution when one exists.
type SilentStrategy struct {
	// SkipIfRunning suppresses execution while another record of the same
	// producer and task name is queued or in progress.
	SkipIfRunning bool
}

func (s SilentStrategy) Handle(ctx context.Context, q *Queue, task *Task, meta Meta) (Result, error) {
	start := time.Now()

	if s.SkipIfRunning {
		running, err := q.engine.Store().FindInFlight(ctx, meta.Producer, task.Name)
		if err != nil {
			return nil, runtimeErr("in-flight check", err)
		}
		if len(running) > 0 {
			q.logger.InfoContext(ctx, "task skipped, already running",
				slog.String("queue", q.alias),
				slog.String("producer", meta.Producer),
				slog.String("task_name", task.Name))
			return NewResult("task skipped: an equal task is already being processed", 0), nil
		}
	}

	res, err := q.exec.Execute(ctx, task)
	if err == nil {
		if stream, ok := res.(StreamResult); ok {
			if merr := stream.Materialize(ctx); merr != nil {
				err = merr
			}
		}
	}
	if err == nil {
		return res, nil
	}

	// Fire-and-forget only holds for success. The failure is written back
	// as a regular errored record so operators can see what happened.
	rt := runtimeErr("execute", err)
	rec, enqErr := q.engine.Enqueue(ctx, task, meta)
	if enqErr != nil {
		q.logError(ctx, "", enqErr)
		return NewErrorResult(rt.Error(), 500), rt
	}

	return q.fail(ctx, rec, rt, time.Since(start))
}
