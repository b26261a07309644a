package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/queueworks/taskbroker/pkg/queue"
)

// Registry holds the loaded queue instances. It is constructed once at
// broker startup and refreshed only through an explicit Reload; queue
// configuration never changes behind the broker's back.
type Registry struct {
	defs   DefinitionStore
	protos map[string]Factory
	deps   Deps

	mu     sync.RWMutex
	queues []*queue.Queue
	byUID  map[uuid.UUID]*queue.Queue
}

// NewRegistry loads all queue definitions and instantiates their queues.
// Unknown prototype identifiers and invalid config blobs fail here, at
// startup, not at first use.
func NewRegistry(ctx context.Context, defs DefinitionStore, deps Deps, opts ...RegistryOption) (*Registry, error) {
	if defs == nil {
		return nil, ErrDefinitionStoreNil
	}
	if deps.Store == nil {
		return nil, queue.ErrStoreNil
	}
	if deps.Executor == nil {
		return nil, queue.ErrExecutorNil
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	protos := Prototypes()
	for _, opt := range opts {
		opt(protos)
	}

	r := &Registry{
		defs:   defs,
		protos: protos,
		deps:   deps,
	}

	if err := r.Reload(ctx); err != nil {
		return nil, err
	}

	return r, nil
}

// Reload re-reads the definitions and rebuilds every queue. The previous
// set stays in effect until the new one is complete.
func (r *Registry) Reload(ctx context.Context) error {
	defs, err := r.defs.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load queue definitions: %w", err)
	}

	queues := make([]*queue.Queue, 0, len(defs))
	byUID := make(map[uuid.UUID]*queue.Queue, len(defs))

	for _, def := range defs {
		factory, ok := r.protos[def.Prototype]
		if !ok {
			return &UnknownPrototypeError{Prototype: def.Prototype, QueueAlias: def.Alias}
		}

		q, err := factory(def, r.deps)
		if err != nil {
			return fmt.Errorf("failed to build queue %q: %w", def.Alias, err)
		}

		queues = append(queues, q)
		byUID[q.UID()] = q
	}

	r.mu.Lock()
	r.queues = queues
	r.byUID = byUID
	r.mu.Unlock()

	r.deps.Logger.InfoContext(ctx, "queue registry loaded", slog.Int("queues", len(queues)))

	return nil
}

// Queues returns the loaded queues in definition order.
func (r *Registry) Queues() []*queue.Queue {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*queue.Queue, len(r.queues))
	copy(out, r.queues)
	return out
}

// Queue looks a queue up by uid.
func (r *Registry) Queue(uid uuid.UUID) (*queue.Queue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q, ok := r.byUID[uid]
	return q, ok
}

// RegistryOption customises the prototype map before loading.
type RegistryOption func(map[string]Factory)

// WithPrototype registers an additional (or replacement) queue factory
// under the given identifier.
func WithPrototype(name string, factory Factory) RegistryOption {
	return func(protos map[string]Factory) {
		if name != "" && factory != nil {
			protos[name] = factory
		}
	}
}
