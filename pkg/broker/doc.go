// Package broker routes incoming tasks to the queues responsible for them.
//
// Queues are described by persisted Definitions: an alias, a prototype
// identifier, a strategy-specific config blob, and a topic rule. At
// startup a Registry resolves every definition through a prototype factory
// map and instantiates the queues; unknown prototypes fail there, not at
// first use. The registry is refreshed only through an explicit Reload.
//
// Broker.Handle computes the responsible queues by topic match. Queues
// without a rule are fallback targets used only when nothing matched.
// A task nobody claims is persisted as an orphaned record (best-effort)
// and reported back as a routing error. When several queues match, each
// must allow multi-queue handling, and the last queue's result wins.
//
// Broker.Run is the administrative trigger behind async queues: an
// external scheduler invokes it per record to drive the deferred
// reserve/verify/execute/save cycle.
package broker
