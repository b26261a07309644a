package broker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/queueworks/taskbroker/pkg/queue"
)

// Broker is the producer-facing entry point. It resolves which queues are
// responsible for an incoming task by topic match (with fallback queues
// for unmatched tasks), enforces the multi-queue-handling contract, and
// records tasks nobody claims as orphaned.
type Broker struct {
	registry *Registry
	store    queue.RecordStore
	logger   *slog.Logger
}

// New creates a broker over a loaded registry. The record store is used
// only to persist orphaned tasks.
func New(registry *Registry, store queue.RecordStore, opts ...BrokerOption) (*Broker, error) {
	if registry == nil {
		return nil, ErrRegistryNil
	}
	if store == nil {
		return nil, queue.ErrStoreNil
	}

	options := &brokerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}

	return &Broker{
		registry: registry,
		store:    store,
		logger:   options.logger,
	}, nil
}

// Handle routes a task to the responsible queue(s) and returns the
// execution result.
//
// When several queues match, every one of them must allow multi-queue
// handling; the task is then handed to each in order and the LAST queue's
// result is returned, discarding the others. That is a known sharp edge
// preserved for compatibility with existing callers, not a recommendation.
//
// Routing failures persist the task as an orphaned record. That write is
// best-effort: its own failure is only logged.
func (b *Broker) Handle(ctx context.Context, task *queue.Task, opts ...HandleOption) (queue.Result, error) {
	if task == nil {
		return nil, queue.ErrTaskNil
	}

	var meta queue.Meta
	for _, opt := range opts {
		opt(&meta)
	}

	var candidates, fallbacks []*queue.Queue
	for _, q := range b.registry.Queues() {
		switch {
		case q.Matches(meta.Topics):
			candidates = append(candidates, q)
		case q.Fallback():
			fallbacks = append(fallbacks, q)
		}
	}

	// Fallback queues only answer for tasks no topic-specific queue claimed.
	if len(candidates) == 0 {
		candidates = fallbacks
	}

	if len(candidates) == 0 {
		err := &RoutingError{Topics: meta.Topics}
		b.orphan(ctx, task, meta, err)
		return queue.NewErrorResult(err.Error(), 404), err
	}

	if len(candidates) > 1 {
		for _, q := range candidates {
			if !q.AllowsMultiHandling() {
				err := &RoutingError{QueueAlias: q.Alias(), Topics: meta.Topics}
				b.orphan(ctx, task, meta, err)
				return queue.NewErrorResult(err.Error(), 409), err
			}
		}
	}

	var (
		res     queue.Result
		lastErr error
	)
	for _, q := range candidates {
		r, err := q.Handle(ctx, task, meta)
		if err != nil {
			lastErr = err
		}
		if r != nil {
			res = r
		}
	}

	return res, lastErr
}

// Run executes one previously enqueued record on the queue that owns it.
// This is the administrative trigger behind deferred (async) execution: an
// external scheduler calls it with the queue and record uids it was handed
// at enqueue time, and exactly one queue answers.
func (b *Broker) Run(ctx context.Context, queueUID, recordUID uuid.UUID) (queue.Result, error) {
	q, ok := b.registry.Queue(queueUID)
	if !ok {
		return nil, ErrQueueNotFound
	}

	return q.Run(ctx, recordUID)
}

// orphan persists a task no queue was responsible for. Best-effort by
// contract: a failure here is logged, never re-thrown, so the producer
// still gets the routing error rather than a storage error.
func (b *Broker) orphan(ctx context.Context, task *queue.Task, meta queue.Meta, cause error) {
	now := time.Now()
	assigned := task.AssignedAt
	if assigned.IsZero() {
		assigned = now
	}

	rec := &queue.Record{
		UID:          uuid.New(),
		Status:       queue.StatusOrphaned,
		TaskName:     task.Name,
		Payload:      task.Payload,
		Owner:        task.Owner,
		Producer:     meta.Producer,
		MessageID:    meta.MessageID,
		Topics:       meta.Topics,
		Channel:      meta.Channel,
		SchedulerUID: task.SchedulerUID,
		AssignedAt:   assigned,
		EnqueuedAt:   now,
		ErrorMessage: cause.Error(),
	}

	if err := b.store.Create(ctx, rec); err != nil {
		b.logger.ErrorContext(ctx, "failed to persist orphaned task",
			slog.String("producer", meta.Producer),
			slog.String("message_id", meta.MessageID),
			slog.String("error", err.Error()))
		return
	}

	b.logger.WarnContext(ctx, "task orphaned",
		slog.String("record_uid", rec.UID.String()),
		slog.String("producer", meta.Producer),
		slog.Any("topics", meta.Topics),
		slog.String("reason", cause.Error()))
}
