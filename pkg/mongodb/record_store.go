package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/queueworks/taskbroker/pkg/queue"
)

// CollectionName is where queued task records live.
const CollectionName = "queued_tasks"

// RecordStore implements queue.RecordStore on a MongoDB collection.
// Reserve uses findOneAndUpdate, which MongoDB executes atomically per
// document, so the compare-and-set holds across processes.
type RecordStore struct {
	coll *mongo.Collection
}

// NewRecordStore creates a record store over the configured database.
func NewRecordStore(client *mongo.Client, database string) (*RecordStore, error) {
	if client == nil {
		return nil, queue.ErrStoreNil
	}
	return &RecordStore{coll: client.Database(database).Collection(CollectionName)}, nil
}

// recordDoc is the BSON shape of a queue.Record. UUIDs are stored as
// strings to keep documents readable in administrative tooling.
type recordDoc struct {
	UID           string     `bson:"_id"`
	Status        string     `bson:"status"`
	TaskName      string     `bson:"task_name,omitempty"`
	Payload       []byte     `bson:"payload,omitempty"`
	Owner         string     `bson:"owner,omitempty"`
	Producer      string     `bson:"producer,omitempty"`
	MessageID     string     `bson:"message_id,omitempty"`
	Topics        []string   `bson:"topics,omitempty"`
	Channel       string     `bson:"channel,omitempty"`
	QueueUID      string     `bson:"queue_uid,omitempty"`
	SchedulerUID  string     `bson:"scheduler_uid,omitempty"`
	AssignedAt    time.Time  `bson:"assigned_at"`
	EnqueuedAt    time.Time  `bson:"enqueued_at"`
	ResultCode    int        `bson:"result_code,omitempty"`
	ResultMessage string     `bson:"result_message,omitempty"`
	ErrorMessage  string     `bson:"error_message,omitempty"`
	ErrorLogID    string     `bson:"error_log_id,omitempty"`
	ProcessedAt   *time.Time `bson:"processed_at,omitempty"`
	DurationMS    int64      `bson:"duration_ms,omitempty"`
}

func toDoc(rec *queue.Record) recordDoc {
	doc := recordDoc{
		UID:           rec.UID.String(),
		Status:        string(rec.Status),
		TaskName:      rec.TaskName,
		Payload:       rec.Payload,
		Owner:         rec.Owner,
		Producer:      rec.Producer,
		MessageID:     rec.MessageID,
		Topics:        rec.Topics,
		Channel:       rec.Channel,
		AssignedAt:    rec.AssignedAt,
		EnqueuedAt:    rec.EnqueuedAt,
		ResultCode:    rec.ResultCode,
		ResultMessage: rec.ResultMessage,
		ErrorMessage:  rec.ErrorMessage,
		ErrorLogID:    rec.ErrorLogID,
		ProcessedAt:   rec.ProcessedAt,
		DurationMS:    rec.Duration.Milliseconds(),
	}
	if rec.QueueUID != uuid.Nil {
		doc.QueueUID = rec.QueueUID.String()
	}
	if rec.SchedulerUID != uuid.Nil {
		doc.SchedulerUID = rec.SchedulerUID.String()
	}
	return doc
}

func (d recordDoc) toRecord() (*queue.Record, error) {
	uid, err := uuid.Parse(d.UID)
	if err != nil {
		return nil, fmt.Errorf("invalid record uid %q: %w", d.UID, err)
	}

	rec := &queue.Record{
		UID:           uid,
		Status:        queue.Status(d.Status),
		TaskName:      d.TaskName,
		Payload:       json.RawMessage(d.Payload),
		Owner:         d.Owner,
		Producer:      d.Producer,
		MessageID:     d.MessageID,
		Topics:        d.Topics,
		Channel:       d.Channel,
		AssignedAt:    d.AssignedAt,
		EnqueuedAt:    d.EnqueuedAt,
		ResultCode:    d.ResultCode,
		ResultMessage: d.ResultMessage,
		ErrorMessage:  d.ErrorMessage,
		ErrorLogID:    d.ErrorLogID,
		ProcessedAt:   d.ProcessedAt,
		Duration:      time.Duration(d.DurationMS) * time.Millisecond,
	}

	if d.QueueUID != "" {
		if rec.QueueUID, err = uuid.Parse(d.QueueUID); err != nil {
			return nil, fmt.Errorf("invalid queue uid %q: %w", d.QueueUID, err)
		}
	}
	if d.SchedulerUID != "" {
		if rec.SchedulerUID, err = uuid.Parse(d.SchedulerUID); err != nil {
			return nil, fmt.Errorf("invalid scheduler uid %q: %w", d.SchedulerUID, err)
		}
	}

	return rec, nil
}

func (s *RecordStore) Create(ctx context.Context, rec *queue.Record) error {
	if rec == nil {
		return queue.ErrTaskNil
	}

	if _, err := s.coll.InsertOne(ctx, toDoc(rec)); err != nil {
		return fmt.Errorf("failed to insert queued task: %w", err)
	}
	return nil
}

func (s *RecordStore) Get(ctx context.Context, uid uuid.UUID) (*queue.Record, error) {
	var doc recordDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": uid.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, queue.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to read queued task %s: %w", uid, err)
	}

	return doc.toRecord()
}

func (s *RecordStore) Update(ctx context.Context, rec *queue.Record) error {
	if rec == nil {
		return queue.ErrTaskNil
	}

	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": rec.UID.String()}, toDoc(rec))
	if err != nil {
		return fmt.Errorf("failed to update queued task %s: %w", rec.UID, err)
	}
	if res.MatchedCount == 0 {
		return queue.ErrRecordNotFound
	}
	return nil
}

func (s *RecordStore) Reserve(ctx context.Context, uid, queueUID uuid.UUID) (*queue.Record, error) {
	filter := bson.M{
		"_id":    uid.String(),
		"status": bson.M{"$in": []string{string(queue.StatusReceived), string(queue.StatusQueued)}},
	}
	update := bson.M{"$set": bson.M{
		"status":    string(queue.StatusInProgress),
		"queue_uid": queueUID.String(),
	}}

	var doc recordDoc
	err := s.coll.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err == nil {
		return doc.toRecord()
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to reserve queued task %s: %w", uid, err)
	}

	// Nothing matched: the record is gone or another reserver won.
	rec, err := s.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	return nil, &queue.StateError{RecordUID: uid, Status: rec.Status}
}

func (s *RecordStore) FindDuplicates(ctx context.Context, exclude uuid.UUID, messageID, producer string, queueUID uuid.UUID) ([]*queue.Record, error) {
	superseded := []string{
		string(queue.StatusCanceled), string(queue.StatusReplaced), string(queue.StatusDuplicate),
	}
	filter := bson.M{
		"_id":        bson.M{"$ne": exclude.String()},
		"message_id": messageID,
		"producer":   producer,
		"queue_uid":  queueUID.String(),
		"status":     bson.M{"$nin": superseded},
	}

	cursor, err := s.coll.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "enqueued_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicates: %w", err)
	}

	return decodeAll(ctx, cursor)
}

func (s *RecordStore) FindInFlight(ctx context.Context, producer, taskName string) ([]*queue.Record, error) {
	filter := bson.M{
		"producer":  producer,
		"task_name": taskName,
		"status": bson.M{"$in": []string{
			string(queue.StatusReceived),
			string(queue.StatusQueued),
			string(queue.StatusInProgress),
		}},
	}

	cursor, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query in-flight tasks: %w", err)
	}

	return decodeAll(ctx, cursor)
}

func (s *RecordStore) DeleteOlderThan(ctx context.Context, queueUID uuid.UUID, cutoff time.Time) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{
		"queue_uid":   queueUID.String(),
		"enqueued_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tasks: %w", err)
	}

	return res.DeletedCount, nil
}

func decodeAll(ctx context.Context, cursor *mongo.Cursor) ([]*queue.Record, error) {
	defer cursor.Close(ctx)

	var recs []*queue.Record
	for cursor.Next(ctx) {
		var doc recordDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode queued task: %w", err)
		}
		rec, err := doc.toRecord()
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to read queued tasks: %w", err)
	}

	return recs, nil
}
