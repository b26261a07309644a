package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/queueworks/taskbroker/pkg/queue"
)

const recordColumns = `uid, status, task_name, payload, owner, producer, message_id, topics,
	channel, queue_uid, scheduler_uid, assigned_at, enqueued_at, result_code,
	result_message, error_message, error_log_id, processed_at, duration_ms`

// RecordStore implements queue.RecordStore on a PostgreSQL pool. Reserve is
// a single conditional UPDATE, so the compare-and-set holds across
// concurrent processes, not only within one.
type RecordStore struct {
	pool *pgxpool.Pool
}

// NewRecordStore creates a record store over the given pool.
func NewRecordStore(pool *pgxpool.Pool) (*RecordStore, error) {
	if pool == nil {
		return nil, queue.ErrStoreNil
	}
	return &RecordStore{pool: pool}, nil
}

func (s *RecordStore) Create(ctx context.Context, rec *queue.Record) error {
	if rec == nil {
		return queue.ErrTaskNil
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO queued_tasks (
			uid, status, task_name, payload, owner, producer, message_id, topics,
			channel, queue_uid, scheduler_uid, assigned_at, enqueued_at, result_code,
			result_message, error_message, error_log_id, processed_at, duration_ms
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		rec.UID, rec.Status, rec.TaskName, rec.Payload, rec.Owner, rec.Producer,
		rec.MessageID, rec.Topics, rec.Channel, nullableUID(rec.QueueUID),
		nullableUID(rec.SchedulerUID), rec.AssignedAt, rec.EnqueuedAt, rec.ResultCode,
		rec.ResultMessage, rec.ErrorMessage, rec.ErrorLogID, rec.ProcessedAt,
		rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to insert queued task: %w", err)
	}

	return nil
}

func (s *RecordStore) Get(ctx context.Context, uid uuid.UUID) (*queue.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM queued_tasks WHERE uid = $1`, uid)

	return scanRecord(row)
}

func (s *RecordStore) Update(ctx context.Context, rec *queue.Record) error {
	if rec == nil {
		return queue.ErrTaskNil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE queued_tasks SET
			status = $2, queue_uid = $3, result_code = $4, result_message = $5,
			error_message = $6, error_log_id = $7, processed_at = $8, duration_ms = $9
		WHERE uid = $1`,
		rec.UID, rec.Status, nullableUID(rec.QueueUID), rec.ResultCode,
		rec.ResultMessage, rec.ErrorMessage, rec.ErrorLogID, rec.ProcessedAt,
		rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to update queued task %s: %w", rec.UID, err)
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrRecordNotFound
	}

	return nil
}

func (s *RecordStore) Reserve(ctx context.Context, uid, queueUID uuid.UUID) (*queue.Record, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE queued_tasks SET status = $3, queue_uid = $2
		WHERE uid = $1 AND status IN ($4, $5)
		RETURNING `+recordColumns,
		uid, queueUID, queue.StatusInProgress, queue.StatusReceived, queue.StatusQueued)

	rec, err := scanRecord(row)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, queue.ErrRecordNotFound) {
		return nil, err
	}

	// The conditional update matched nothing: either the record is gone or
	// another reserver won. Re-read the status to say which.
	var status queue.Status
	if err := s.pool.QueryRow(ctx,
		`SELECT status FROM queued_tasks WHERE uid = $1`, uid).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to read queued task %s: %w", uid, err)
	}

	return nil, &queue.StateError{RecordUID: uid, Status: status}
}

func (s *RecordStore) FindDuplicates(ctx context.Context, exclude uuid.UUID, messageID, producer string, queueUID uuid.UUID) ([]*queue.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+` FROM queued_tasks
		WHERE message_id = $1 AND producer = $2 AND queue_uid = $3 AND uid <> $4
		  AND status NOT IN ($5, $6, $7)
		ORDER BY enqueued_at DESC`,
		messageID, producer, queueUID, exclude,
		queue.StatusCanceled, queue.StatusReplaced, queue.StatusDuplicate)
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicates: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (s *RecordStore) FindInFlight(ctx context.Context, producer, taskName string) ([]*queue.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+` FROM queued_tasks
		WHERE producer = $1 AND task_name = $2 AND status IN ($3, $4, $5)`,
		producer, taskName, queue.StatusReceived, queue.StatusQueued, queue.StatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to query in-flight tasks: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (s *RecordStore) DeleteOlderThan(ctx context.Context, queueUID uuid.UUID, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM queued_tasks WHERE queue_uid = $1 AND enqueued_at < $2`,
		queueUID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tasks: %w", err)
	}

	return tag.RowsAffected(), nil
}

func scanRecord(row pgx.Row) (*queue.Record, error) {
	var (
		rec          queue.Record
		queueUID     *uuid.UUID
		schedulerUID *uuid.UUID
		durationMS   int64
	)

	err := row.Scan(&rec.UID, &rec.Status, &rec.TaskName, &rec.Payload, &rec.Owner,
		&rec.Producer, &rec.MessageID, &rec.Topics, &rec.Channel, &queueUID,
		&schedulerUID, &rec.AssignedAt, &rec.EnqueuedAt, &rec.ResultCode,
		&rec.ResultMessage, &rec.ErrorMessage, &rec.ErrorLogID, &rec.ProcessedAt,
		&durationMS)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to scan queued task: %w", err)
	}

	if queueUID != nil {
		rec.QueueUID = *queueUID
	}
	if schedulerUID != nil {
		rec.SchedulerUID = *schedulerUID
	}
	rec.Duration = time.Duration(durationMS) * time.Millisecond

	return &rec, nil
}

func scanRecords(rows pgx.Rows) ([]*queue.Record, error) {
	var recs []*queue.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read queued tasks: %w", err)
	}

	return recs, nil
}

// nullableUID maps the zero uuid to NULL so orphans and unscheduled tasks
// do not reference a phantom row.
func nullableUID(uid uuid.UUID) *uuid.UUID {
	if uid == uuid.Nil {
		return nil
	}
	return &uid
}
