// Package postgres backs the queue engine and the broker registry with
// PostgreSQL through the pgx/v5 driver.
//
// It provides three cooperating pieces:
//
//   - Connect/Healthcheck/Migrate — pool setup with retry, a health probe,
//     and goose-driven schema migrations embedded in the package.
//   - RecordStore — the queue.RecordStore implementation. Reserve is a
//     single conditional UPDATE with affected-row verification, which makes
//     the queued-to-in-progress transition safe across concurrent
//     processes.
//   - DefinitionStore — reads the persisted queue configuration rows the
//     broker registry instantiates queues from.
//
// A partial index on (message_id, producer, queue_uid) over non-superseded
// statuses keeps the duplicate scan cheap; installations that want strict
// rather than best-effort dedup can make it UNIQUE.
package postgres
