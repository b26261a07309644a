package queue_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queueworks/taskbroker/pkg/queue"
)

func newStoredRecord(t *testing.T, store *queue.MemoryStore, mutate func(*queue.Record)) *queue.Record {
	t.Helper()

	rec := &queue.Record{
		UID:        uuid.New(),
		Status:     queue.StatusQueued,
		TaskName:   "report.nightly",
		Producer:   "scheduler",
		MessageID:  "job-42",
		QueueUID:   uuid.New(),
		AssignedAt: time.Now(),
		EnqueuedAt: time.Now(),
	}
	if mutate != nil {
		mutate(rec)
	}
	require.NoError(t, store.Create(context.Background(), rec))

	return rec
}

func TestMemoryStore_CRUD(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStore()
	rec := newStoredRecord(t, store, nil)

	got, err := store.Get(context.Background(), rec.UID)
	require.NoError(t, err)
	assert.Equal(t, rec.UID, got.UID)

	// Mutating the returned copy must not leak into the store.
	got.Status = queue.StatusError
	again, err := store.Get(context.Background(), rec.UID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusQueued, again.Status)

	again.Status = queue.StatusDone
	require.NoError(t, store.Update(context.Background(), again))
	updated, err := store.Get(context.Background(), rec.UID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusDone, updated.Status)

	_, err = store.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, queue.ErrRecordNotFound)

	err = store.Update(context.Background(), &queue.Record{UID: uuid.New()})
	assert.ErrorIs(t, err, queue.ErrRecordNotFound)
}

func TestMemoryStore_Reserve_Concurrent(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStore()
	rec := newStoredRecord(t, store, nil)
	queueUID := uuid.New()

	const workers = 16

	var wins atomic.Int64
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Reserve(context.Background(), rec.UID, queueUID); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins.Load(), "exactly one reserver may win")

	got, err := store.Get(context.Background(), rec.UID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusInProgress, got.Status)
	assert.Equal(t, queueUID, got.QueueUID)
}

func TestMemoryStore_FindDuplicates(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStore()
	queueUID := uuid.New()

	older := newStoredRecord(t, store, func(r *queue.Record) {
		r.QueueUID = queueUID
		r.EnqueuedAt = time.Now().Add(-time.Hour)
	})
	newer := newStoredRecord(t, store, func(r *queue.Record) {
		r.QueueUID = queueUID
	})
	self := newStoredRecord(t, store, func(r *queue.Record) {
		r.QueueUID = queueUID
	})
	newStoredRecord(t, store, func(r *queue.Record) {
		r.QueueUID = queueUID
		r.Status = queue.StatusCanceled
	})
	newStoredRecord(t, store, func(r *queue.Record) {
		r.QueueUID = queueUID
		r.MessageID = "job-43"
	})

	dups, err := store.FindDuplicates(context.Background(), self.UID, "job-42", "scheduler", queueUID)
	require.NoError(t, err)
	require.Len(t, dups, 2)
	assert.Equal(t, newer.UID, dups[0].UID, "newest first")
	assert.Equal(t, older.UID, dups[1].UID)
}

func TestMemoryStore_FindInFlight(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStore()

	queued := newStoredRecord(t, store, nil)
	running := newStoredRecord(t, store, func(r *queue.Record) { r.Status = queue.StatusInProgress })
	newStoredRecord(t, store, func(r *queue.Record) { r.Status = queue.StatusDone })
	newStoredRecord(t, store, func(r *queue.Record) { r.TaskName = "import.users" })

	found, err := store.FindInFlight(context.Background(), "scheduler", "report.nightly")
	require.NoError(t, err)
	require.Len(t, found, 2)

	uids := []uuid.UUID{found[0].UID, found[1].UID}
	assert.Contains(t, uids, queued.UID)
	assert.Contains(t, uids, running.UID)
}

func TestMemoryStore_DeleteOlderThan(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStore()
	queueUID := uuid.New()
	cutoff := time.Now().Add(-24 * time.Hour)

	old := newStoredRecord(t, store, func(r *queue.Record) {
		r.QueueUID = queueUID
		r.EnqueuedAt = cutoff.Add(-time.Minute)
	})
	fresh := newStoredRecord(t, store, func(r *queue.Record) {
		r.QueueUID = queueUID
	})
	foreign := newStoredRecord(t, store, func(r *queue.Record) {
		r.EnqueuedAt = cutoff.Add(-time.Minute)
	})

	removed, err := store.DeleteOlderThan(context.Background(), queueUID, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = store.Get(context.Background(), old.UID)
	assert.ErrorIs(t, err, queue.ErrRecordNotFound)
	_, err = store.Get(context.Background(), fresh.UID)
	assert.NoError(t, err)
	_, err = store.Get(context.Background(), foreign.UID)
	assert.NoError(t, err)
}
