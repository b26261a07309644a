package broker_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queueworks/taskbroker/pkg/broker"
	"github.com/queueworks/taskbroker/pkg/queue"
	"github.com/queueworks/taskbroker/pkg/topics"
)

func oneOf(values ...string) []topics.Rule {
	return []topics.Rule{{Operator: topics.OneOf, Values: values}}
}

func testTask() *queue.Task {
	return &queue.Task{
		Name:    "report.nightly",
		Payload: json.RawMessage(`{"report":"nightly"}`),
		Owner:   "admin",
	}
}

func countingExecutor() (queue.Executor, *atomic.Int64) {
	var calls atomic.Int64
	exec := queue.ExecutorFunc(func(context.Context, *queue.Task) (queue.Result, error) {
		n := calls.Add(1)
		return queue.NewResult(fmt.Sprintf("call-%d", n), 200), nil
	})
	return exec, &calls
}

func newTestBroker(t *testing.T, store queue.RecordStore, exec queue.Executor, defs ...broker.Definition) *broker.Broker {
	t.Helper()

	registry, err := broker.NewRegistry(context.Background(), broker.StaticDefinitions(defs), broker.Deps{
		Store:    store,
		Executor: exec,
	})
	require.NoError(t, err)

	b, err := broker.New(registry, store)
	require.NoError(t, err)

	return b
}

func TestBroker_Handle_Routing(t *testing.T) {
	t.Parallel()

	t.Run("topic match picks the right queue", func(t *testing.T) {
		t.Parallel()

		store := queue.NewMemoryStore()
		exec, calls := countingExecutor()

		nightlyUID, hourlyUID := uuid.New(), uuid.New()
		b := newTestBroker(t, store, exec,
			broker.Definition{UID: nightlyUID, Alias: "nightly", Prototype: broker.PrototypeSync, Topics: oneOf("nightly")},
			broker.Definition{UID: hourlyUID, Alias: "hourly", Prototype: broker.PrototypeSync, Topics: oneOf("hourly")},
		)

		res, err := b.Handle(context.Background(), testTask(),
			broker.WithTopics("nightly"),
			broker.WithProducer("scheduler"),
			broker.WithMessageID("job-42"),
		)
		require.NoError(t, err)
		assert.True(t, res.Success())
		assert.Equal(t, int64(1), calls.Load())

		recs, err := store.FindDuplicates(context.Background(), uuid.Nil, "job-42", "scheduler", nightlyUID)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, queue.StatusDone, recs[0].Status)

		recs, err = store.FindDuplicates(context.Background(), uuid.Nil, "job-42", "scheduler", hourlyUID)
		require.NoError(t, err)
		assert.Empty(t, recs, "the non-matching queue never sees the task")
	})

	t.Run("fallback queue answers for unmatched topics", func(t *testing.T) {
		t.Parallel()

		store := queue.NewMemoryStore()
		exec, calls := countingExecutor()

		fallbackUID := uuid.New()
		b := newTestBroker(t, store, exec,
			broker.Definition{UID: uuid.New(), Alias: "nightly", Prototype: broker.PrototypeSync, Topics: oneOf("nightly")},
			broker.Definition{UID: fallbackUID, Alias: "catch-all", Prototype: broker.PrototypeSync},
		)

		_, err := b.Handle(context.Background(), testTask(),
			broker.WithTopics("weekly"),
			broker.WithProducer("scheduler"),
			broker.WithMessageID("job-43"),
		)
		require.NoError(t, err)
		assert.Equal(t, int64(1), calls.Load())

		recs, err := store.FindDuplicates(context.Background(), uuid.Nil, "job-43", "scheduler", fallbackUID)
		require.NoError(t, err)
		require.Len(t, recs, 1)
	})

	t.Run("fallback is skipped when a topic queue matches", func(t *testing.T) {
		t.Parallel()

		store := queue.NewMemoryStore()
		exec, _ := countingExecutor()

		nightlyUID, fallbackUID := uuid.New(), uuid.New()
		b := newTestBroker(t, store, exec,
			broker.Definition{UID: nightlyUID, Alias: "nightly", Prototype: broker.PrototypeSync, Topics: oneOf("nightly")},
			broker.Definition{UID: fallbackUID, Alias: "catch-all", Prototype: broker.PrototypeSync},
		)

		_, err := b.Handle(context.Background(), testTask(),
			broker.WithTopics("nightly"),
			broker.WithProducer("scheduler"),
			broker.WithMessageID("job-44"),
		)
		require.NoError(t, err)

		recs, err := store.FindDuplicates(context.Background(), uuid.Nil, "job-44", "scheduler", fallbackUID)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("nil task rejected", func(t *testing.T) {
		t.Parallel()

		store := queue.NewMemoryStore()
		exec, _ := countingExecutor()
		b := newTestBroker(t, store, exec)

		_, err := b.Handle(context.Background(), nil)
		assert.ErrorIs(t, err, queue.ErrTaskNil)
	})
}

func TestBroker_Handle_Orphans(t *testing.T) {
	t.Parallel()

	t.Run("unroutable task is persisted as orphaned", func(t *testing.T) {
		t.Parallel()

		store := queue.NewMemoryStore()
		exec, calls := countingExecutor()
		b := newTestBroker(t, store, exec,
			broker.Definition{UID: uuid.New(), Alias: "nightly", Prototype: broker.PrototypeSync, Topics: oneOf("nightly")},
		)

		res, err := b.Handle(context.Background(), testTask(), broker.WithTopics("weekly"), broker.WithProducer("crm"))
		var routingErr *broker.RoutingError
		require.ErrorAs(t, err, &routingErr)
		assert.Empty(t, routingErr.QueueAlias)
		assert.False(t, res.Success())
		assert.Equal(t, 404, res.Code())
		assert.Equal(t, int64(0), calls.Load())

		orphans, err := store.FindInFlight(context.Background(), "crm", "report.nightly")
		require.NoError(t, err)
		assert.Empty(t, orphans, "orphaned is a terminal status, not in flight")

		// The orphan record has no owning queue, so it is only reachable by
		// scanning; the zero queue uid marks it.
		found, err := store.DeleteOlderThan(context.Background(), uuid.Nil, timeNowPlusHour())
		require.NoError(t, err)
		assert.Equal(t, int64(1), found)
	})

	t.Run("orphan write failure still returns the routing error", func(t *testing.T) {
		t.Parallel()

		store := &failingCreateStore{RecordStore: queue.NewMemoryStore()}
		exec, _ := countingExecutor()

		registry, err := broker.NewRegistry(context.Background(), broker.StaticDefinitions(nil), broker.Deps{
			Store:    queue.NewMemoryStore(),
			Executor: exec,
		})
		require.NoError(t, err)
		b, err := broker.New(registry, store)
		require.NoError(t, err)

		_, err = b.Handle(context.Background(), testTask(), broker.WithTopics("weekly"))
		var routingErr *broker.RoutingError
		assert.ErrorAs(t, err, &routingErr)
	})
}

func TestBroker_Handle_MultiQueue(t *testing.T) {
	t.Parallel()

	t.Run("one refusing queue blocks the whole submission", func(t *testing.T) {
		t.Parallel()

		store := queue.NewMemoryStore()
		exec, calls := countingExecutor()
		b := newTestBroker(t, store, exec,
			broker.Definition{UID: uuid.New(), Alias: "audit", Prototype: broker.PrototypeSync, Topics: oneOf("orders"), AllowMultiHandling: true},
			broker.Definition{UID: uuid.New(), Alias: "billing", Prototype: broker.PrototypeSync, Topics: oneOf("orders")},
		)

		res, err := b.Handle(context.Background(), testTask(), broker.WithTopics("orders"))
		var routingErr *broker.RoutingError
		require.ErrorAs(t, err, &routingErr)
		assert.Equal(t, "billing", routingErr.QueueAlias)
		assert.Equal(t, 409, res.Code())
		assert.Equal(t, int64(0), calls.Load(), "neither queue may run the task")
	})

	t.Run("consenting queues each handle the task", func(t *testing.T) {
		t.Parallel()

		store := queue.NewMemoryStore()
		exec, calls := countingExecutor()

		auditUID, billingUID := uuid.New(), uuid.New()
		b := newTestBroker(t, store, exec,
			broker.Definition{UID: auditUID, Alias: "audit", Prototype: broker.PrototypeSync, Topics: oneOf("orders"), AllowMultiHandling: true},
			broker.Definition{UID: billingUID, Alias: "billing", Prototype: broker.PrototypeSync, Topics: oneOf("orders"), AllowMultiHandling: true},
		)

		res, err := b.Handle(context.Background(), testTask(),
			broker.WithTopics("orders"),
			broker.WithProducer("shop"),
			broker.WithMessageID("order-9"),
		)
		require.NoError(t, err)
		assert.Equal(t, int64(2), calls.Load())
		// Only the last queue's result survives.
		assert.Equal(t, "call-2", res.Message())

		for _, queueUID := range []uuid.UUID{auditUID, billingUID} {
			recs, err := store.FindDuplicates(context.Background(), uuid.Nil, "order-9", "shop", queueUID)
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, queue.StatusDone, recs[0].Status)
		}
	})
}

func TestBroker_Run(t *testing.T) {
	t.Parallel()

	t.Run("executes a deferred record", func(t *testing.T) {
		t.Parallel()

		store := queue.NewMemoryStore()
		exec, calls := countingExecutor()

		queueUID := uuid.New()
		b := newTestBroker(t, store, exec,
			broker.Definition{UID: queueUID, Alias: "imports", Prototype: broker.PrototypeAsync, Topics: oneOf("imports")},
		)

		res, err := b.Handle(context.Background(), testTask(),
			broker.WithTopics("imports"),
			broker.WithProducer("crm"),
			broker.WithMessageID("batch-1"),
		)
		require.NoError(t, err)

		queued, ok := res.(queue.QueuedResult)
		require.True(t, ok)
		assert.Equal(t, int64(0), calls.Load())

		recordUID := uuid.MustParse(queued.RecordUID)
		runRes, err := b.Run(context.Background(), queueUID, recordUID)
		require.NoError(t, err)
		assert.True(t, runRes.Success())
		assert.Equal(t, int64(1), calls.Load())
	})

	t.Run("unknown queue", func(t *testing.T) {
		t.Parallel()

		store := queue.NewMemoryStore()
		exec, _ := countingExecutor()
		b := newTestBroker(t, store, exec)

		_, err := b.Run(context.Background(), uuid.New(), uuid.New())
		assert.ErrorIs(t, err, broker.ErrQueueNotFound)
	})
}

// The end-to-end scenario: a scheduler submits a nightly report task with
// an idempotency key, gets a result, and a retried submission of the same
// key is absorbed instead of re-executed.
func TestBroker_EndToEnd(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStore()
	exec, calls := countingExecutor()

	queueUID := uuid.New()
	b := newTestBroker(t, store, exec,
		broker.Definition{UID: queueUID, Alias: "reports", Prototype: broker.PrototypeSync, Topics: oneOf("nightly")},
	)

	submit := func() (queue.Result, error) {
		return b.Handle(context.Background(), testTask(),
			broker.WithTopics("nightly"),
			broker.WithProducer("scheduler"),
			broker.WithMessageID("job-42"),
			broker.WithChannel("internal"),
		)
	}

	res, err := submit()
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, "call-1", res.Message())

	res, err = submit()
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Contains(t, res.Message(), "already enqueued")
	assert.Equal(t, int64(1), calls.Load(), "the retry must not execute again")

	recs, err := store.FindDuplicates(context.Background(), uuid.Nil, "job-42", "scheduler", queueUID)
	require.NoError(t, err)
	require.Len(t, recs, 1, "the duplicate record is superseded, only the original claims the key")
	assert.Equal(t, queue.StatusDone, recs[0].Status)
	assert.Equal(t, "internal", recs[0].Channel)
}

func TestNewBroker(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStore()
	exec, _ := countingExecutor()
	registry, err := broker.NewRegistry(context.Background(), broker.StaticDefinitions(nil), broker.Deps{
		Store:    store,
		Executor: exec,
	})
	require.NoError(t, err)

	t.Run("nil registry rejected", func(t *testing.T) {
		t.Parallel()

		_, err := broker.New(nil, store)
		assert.ErrorIs(t, err, broker.ErrRegistryNil)
	})

	t.Run("nil store rejected", func(t *testing.T) {
		t.Parallel()

		_, err := broker.New(registry, nil)
		assert.ErrorIs(t, err, queue.ErrStoreNil)
	})
}

func timeNowPlusHour() time.Time { return time.Now().Add(time.Hour) }

// failingCreateStore rejects every Create, to exercise the best-effort
// orphan write.
type failingCreateStore struct {
	queue.RecordStore
}

func (s *failingCreateStore) Create(context.Context, *queue.Record) error {
	return errors.New("storage unavailable")
}
