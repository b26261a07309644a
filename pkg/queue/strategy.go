package queue

import "context"

// Strategy decides when a submitted task is executed and how its failures
// are classified. Strategies build exclusively on the engine's primitives;
// they hold no state of their own.
type Strategy interface {
	Handle(ctx context.Context, q *Queue, task *Task, meta Meta) (Result, error)
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc func(ctx context.Context, q *Queue, task *Task, meta Meta) (Result, error)

func (f StrategyFunc) Handle(ctx context.Context, q *Queue, task *Task, meta Meta) (Result, error) {
	return f(ctx, q, task, meta)
}
