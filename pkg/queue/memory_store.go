package queue

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements RecordStore for tests and local development. All
// operations run under a single mutex, which also makes Reserve a correct
// compare-and-set.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Record

	// byStatus keeps scans over dedup and in-flight queries cheap.
	byStatus map[Status][]uuid.UUID
}

// NewMemoryStore creates an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[uuid.UUID]*Record),
		byStatus: make(map[Status][]uuid.UUID),
	}
}

func (ms *MemoryStore) Create(ctx context.Context, rec *Record) error {
	if rec == nil {
		return ErrTaskNil
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	// Clone to prevent external modifications after Create returns.
	cp := *rec
	ms.records[rec.UID] = &cp
	ms.byStatus[rec.Status] = append(ms.byStatus[rec.Status], rec.UID)

	return nil
}

func (ms *MemoryStore) Get(ctx context.Context, uid uuid.UUID) (*Record, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	rec, ok := ms.records[uid]
	if !ok {
		return nil, ErrRecordNotFound
	}

	cp := *rec
	return &cp, nil
}

func (ms *MemoryStore) Update(ctx context.Context, rec *Record) error {
	if rec == nil {
		return ErrTaskNil
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	old, ok := ms.records[rec.UID]
	if !ok {
		return ErrRecordNotFound
	}

	if old.Status != rec.Status {
		ms.removeFromStatusIndex(rec.UID, old.Status)
		ms.byStatus[rec.Status] = append(ms.byStatus[rec.Status], rec.UID)
	}

	cp := *rec
	ms.records[rec.UID] = &cp

	return nil
}

func (ms *MemoryStore) Reserve(ctx context.Context, uid, queueUID uuid.UUID) (*Record, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	rec, ok := ms.records[uid]
	if !ok {
		return nil, ErrRecordNotFound
	}

	if rec.Status != StatusReceived && rec.Status != StatusQueued {
		return nil, &StateError{RecordUID: uid, Status: rec.Status}
	}

	ms.removeFromStatusIndex(uid, rec.Status)
	rec.Status = StatusInProgress
	rec.QueueUID = queueUID
	ms.byStatus[StatusInProgress] = append(ms.byStatus[StatusInProgress], uid)

	cp := *rec
	return &cp, nil
}

func (ms *MemoryStore) FindDuplicates(ctx context.Context, exclude uuid.UUID, messageID, producer string, queueUID uuid.UUID) ([]*Record, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var dups []*Record
	for _, rec := range ms.records {
		if rec.UID == exclude {
			continue
		}
		if rec.Status.Superseded() {
			continue
		}
		if rec.MessageID != messageID || rec.Producer != producer || rec.QueueUID != queueUID {
			continue
		}
		cp := *rec
		dups = append(dups, &cp)
	}

	// Newest first, so callers can report the most recent duplicate.
	slices.SortFunc(dups, func(a, b *Record) int {
		return b.EnqueuedAt.Compare(a.EnqueuedAt)
	})

	return dups, nil
}

func (ms *MemoryStore) FindInFlight(ctx context.Context, producer, taskName string) ([]*Record, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var found []*Record
	for _, rec := range ms.records {
		if rec.Status.Terminal() {
			continue
		}
		if rec.Producer != producer || rec.TaskName != taskName {
			continue
		}
		cp := *rec
		found = append(found, &cp)
	}

	return found, nil
}

func (ms *MemoryStore) DeleteOlderThan(ctx context.Context, queueUID uuid.UUID, cutoff time.Time) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var removed int64
	for uid, rec := range ms.records {
		if rec.QueueUID != queueUID || !rec.EnqueuedAt.Before(cutoff) {
			continue
		}
		ms.removeFromStatusIndex(uid, rec.Status)
		delete(ms.records, uid)
		removed++
	}

	return removed, nil
}

func (ms *MemoryStore) removeFromStatusIndex(uid uuid.UUID, status Status) {
	ms.byStatus[status] = slices.DeleteFunc(ms.byStatus[status], func(id uuid.UUID) bool {
		return id == uid
	})
}
