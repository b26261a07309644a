package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a queued task record.
type Status string

const (
	// StatusReceived marks a record created by an external producer that has
	// not yet been accepted by a queue. Enqueue never produces it, but
	// Reserve accepts it as a legal starting state.
	StatusReceived Status = "received"
	// StatusQueued marks a record accepted by a queue and waiting to run.
	StatusQueued Status = "queued"
	// StatusInProgress marks a record reserved for execution.
	StatusInProgress Status = "in_progress"
	// StatusDone marks a successfully completed record.
	StatusDone Status = "done"
	// StatusError marks a record whose execution failed.
	StatusError Status = "error"
	// StatusDuplicate marks a record rejected as a repeated delivery.
	StatusDuplicate Status = "duplicate"
	// StatusCanceled marks a record canceled by an administrative action.
	StatusCanceled Status = "canceled"
	// StatusReplaced marks a record superseded by a newer delivery through
	// an administrative action.
	StatusReplaced Status = "replaced"
	// StatusOrphaned marks a record no queue was responsible for. Orphans
	// carry no queue reference and are never executed.
	StatusOrphaned Status = "orphaned"
)

// Superseded reports whether the status excludes a record from duplicate
// detection: a canceled, replaced, or duplicate record no longer claims its
// message id.
func (s Status) Superseded() bool {
	return s == StatusCanceled || s == StatusReplaced || s == StatusDuplicate
}

// Terminal reports whether the status is final for this subsystem.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusError, StatusDuplicate, StatusCanceled, StatusReplaced, StatusOrphaned:
		return true
	}
	return false
}

// Task is the opaque unit of work submitted to the broker. The payload is a
// serialized snapshot sufficient for the external executor to reconstruct
// and run the task; this package never interprets it.
type Task struct {
	// Name identifies the task shape, e.g. for the silent strategy's
	// skip-if-already-running scan. Optional.
	Name string `json:"name,omitempty"`
	// Payload is the serialized task. Round-trip stable by contract.
	Payload json.RawMessage `json:"payload"`
	// Owner is the authenticated identity submitting the task.
	Owner string `json:"owner,omitempty"`
	// AssignedAt is the logical scheduling time. Zero means "now".
	AssignedAt time.Time `json:"assigned_at,omitzero"`
	// SchedulerUID links the task to the scheduled trigger that produced
	// it, when there is one.
	SchedulerUID uuid.UUID `json:"scheduler_uid,omitzero"`
}

// Meta carries the delivery metadata a producer attaches to a task.
type Meta struct {
	Topics    []string
	Producer  string
	MessageID string
	Channel   string
}

// Record is the persisted queued task.
type Record struct {
	UID          uuid.UUID       `json:"uid"`
	Status       Status          `json:"status"`
	TaskName     string          `json:"task_name,omitempty"`
	Payload      json.RawMessage `json:"payload"`
	Owner        string          `json:"owner,omitempty"`
	Producer     string          `json:"producer,omitempty"`
	MessageID    string          `json:"message_id,omitempty"`
	Topics       []string        `json:"topics,omitempty"`
	Channel      string          `json:"channel,omitempty"`
	QueueUID     uuid.UUID       `json:"queue_uid,omitzero"`
	SchedulerUID uuid.UUID       `json:"scheduler_uid,omitzero"`
	AssignedAt   time.Time       `json:"assigned_at"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`

	ResultCode    int           `json:"result_code,omitempty"`
	ResultMessage string        `json:"result_message,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	ErrorLogID    string        `json:"error_log_id,omitempty"`
	ProcessedAt   *time.Time    `json:"processed_at,omitempty"`
	Duration      time.Duration `json:"duration,omitempty"`
}

// TaskOf reconstructs the task snapshot stored on a record, for handing to
// the executor during a deferred run.
func (r *Record) TaskOf() *Task {
	return &Task{
		Name:         r.TaskName,
		Payload:      r.Payload,
		Owner:        r.Owner,
		AssignedAt:   r.AssignedAt,
		SchedulerUID: r.SchedulerUID,
	}
}
