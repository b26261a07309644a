package queue

import "context"

// Result is what the external executor produces for a completed task.
type Result interface {
	// Success reports whether the task succeeded.
	Success() bool
	// Message is a human-readable outcome description.
	Message() string
	// Code is a numeric response code saved on the record.
	Code() int
}

// StreamResult is a Result whose content is produced lazily. Materialize
// forces the full content so that deferred failures surface before the
// result is persisted as done.
type StreamResult interface {
	Result

	Materialize(ctx context.Context) error
}

// Executor is the external engine that runs a task and produces a result.
// Implementations may block until the task completes; there is no mid-run
// cancellation beyond the context.
type Executor interface {
	Execute(ctx context.Context, task *Task) (Result, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task *Task) (Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, task *Task) (Result, error) {
	return f(ctx, task)
}

type taskResult struct {
	ok   bool
	msg  string
	code int
}

func (r taskResult) Success() bool   { return r.ok }
func (r taskResult) Message() string { return r.msg }
func (r taskResult) Code() int       { return r.code }

// NewResult builds a successful result with the given message and code.
func NewResult(msg string, code int) Result {
	return taskResult{ok: true, msg: msg, code: code}
}

// NewErrorResult builds a failed result with the given message and code.
func NewErrorResult(msg string, code int) Result {
	return taskResult{ok: false, msg: msg, code: code}
}

// QueuedResult is returned by the async strategy: the task was accepted and
// persisted, and will be executed later by an external trigger.
type QueuedResult struct {
	RecordUID string
}

func (r QueuedResult) Success() bool { return true }
func (r QueuedResult) Code() int     { return 0 }

func (r QueuedResult) Message() string {
	return "task queued as " + r.RecordUID
}
