// Package queue implements the persisted task lifecycle shared by every
// queue type and the execution strategies built on top of it.
//
// The package is organised around three pieces:
//
//   - Engine   — the lifecycle primitives: Enqueue, Reserve, Verify,
//     SaveResult, SaveError, CleanUp. It operates purely on a RecordStore
//     and owns the status state machine.
//   - Strategy — decides when the external Executor is invoked: SyncStrategy
//     runs inline, AsyncStrategy defers to an external trigger,
//     SilentStrategy skips persistence on success, and SyncStrategy paired
//     with a CommandRunner executes allow-listed shell commands.
//   - Queue    — the composition of an Engine, a Strategy, and an Executor,
//     plus the queue's topic rule and logging configuration.
//
// # State machine
//
//	received/queued --Reserve--> in_progress --SaveResult--> done
//	in_progress --SaveError--> error | duplicate
//	(administrative) --> canceled | replaced
//
// Reserve is the only operation needing compare-and-set correctness: two
// concurrent reservers must not both succeed. RecordStore implementations
// provide that through a conditional update with affected-row verification
// (postgres), an atomic find-and-modify (mongo), or a mutex (memory).
//
// Duplicate detection is best-effort: Verify scans for non-superseded
// records sharing the task's message id and producer on the same queue.
// A found duplicate is never a hard failure; it becomes a message result
// and a duplicate terminal status on the record.
package queue
