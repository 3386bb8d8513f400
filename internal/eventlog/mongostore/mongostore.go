// Package mongostore persists an internal/eventlog.Log's events to
// MongoDB for later inspection (spec §6 "Persisted state": the event log
// "may be serialised to JSON for later inspection but is not a durable
// workflow-restart format" — this sink is that serialization target).
// Grounded on the teacher's features/runlog/mongo package: a thin Store
// wrapping an injected driver client, document shape mirrored from its
// eventDocument, adapted from mongo-driver's v1 API to v2
// (go.mongodb.org/mongo-driver/v2).
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/nikahq/nika/internal/eventlog"
)

const (
	defaultCollection = "nika_run_events"
	defaultTimeout    = 5 * time.Second
)

type eventDocument struct {
	ID          bson.ObjectID  `bson:"_id,omitempty"`
	RunID       string         `bson:"run_id"`
	EventID     uint64         `bson:"event_id"`
	TimestampMs uint64         `bson:"timestamp_ms"`
	Type        string         `bson:"type"`
	Payload     map[string]any `bson:"payload"`
	StoredAt    time.Time      `bson:"stored_at"`
}

// Options configures the Store.
type Options struct {
	// Client is a connected Mongo client. Required.
	Client *mongo.Client
	// Database is the database events are written to. Required.
	Database string
	// Collection defaults to "nika_run_events".
	Collection string
	// Timeout bounds each Mongo operation; defaults to 5s.
	Timeout time.Duration
}

// Store persists workflow run events to a Mongo collection, one document
// per event.
type Store struct {
	coll    *mongo.Collection
	timeout time.Duration
}

// New builds a Mongo-backed Store and ensures the unique (run_id, event_id)
// index used by List exists.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongostore: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongostore: database name is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	coll := opts.Client.Database(opts.Database).Collection(collection)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	idx := mongo.IndexModel{
		Keys: bson.D{{Key: "run_id", Value: 1}, {Key: "event_id", Value: 1}},
	}
	if _, err := coll.Indexes().CreateOne(ctx, idx, options.Index().SetUnique(true)); err != nil {
		return nil, fmt.Errorf("mongostore: ensure index: %w", err)
	}

	return &Store{coll: coll, timeout: timeout}, nil
}

// Append persists a single event under runID.
func (s *Store) Append(ctx context.Context, runID string, ev eventlog.Event) error {
	if runID == "" {
		return errors.New("mongostore: run id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.coll.InsertOne(ctx, toDocument(runID, ev))
	return err
}

func toDocument(runID string, ev eventlog.Event) eventDocument {
	return eventDocument{
		RunID:       runID,
		EventID:     ev.ID,
		TimestampMs: ev.TimestampMs,
		Type:        string(ev.Kind),
		Payload:     ev.Payload,
		StoredAt:    time.Now().UTC(),
	}
}

func fromDocument(doc eventDocument) eventlog.Event {
	return eventlog.Event{
		ID:          doc.EventID,
		TimestampMs: doc.TimestampMs,
		Kind:        eventlog.Kind(doc.Type),
		Payload:     doc.Payload,
	}
}

// Run drains log's subscriber channel, persisting each event under runID
// until ctx is cancelled or the log closes the channel (via Unsubscribe).
func (s *Store) Run(ctx context.Context, runID string, log *eventlog.Log) error {
	backlog, ch := log.Subscribe(128)
	defer log.Unsubscribe(ch)

	for _, ev := range backlog {
		if err := s.Append(ctx, runID, ev); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := s.Append(ctx, runID, ev); err != nil {
				return err
			}
		}
	}
}

// List returns the events persisted for runID, ordered by event id,
// starting after afterEventID (0 to list from the beginning), bounded by
// limit.
func (s *Store) List(ctx context.Context, runID string, afterEventID uint64, limit int) ([]eventlog.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	op := "$gt"
	if afterEventID == 0 {
		op = "$gte"
	}
	filter := bson.D{{Key: "run_id", Value: runID}, {Key: "event_id", Value: bson.D{{Key: op, Value: afterEventID}}}}
	findOpts := options.Find().SetSort(bson.D{{Key: "event_id", Value: 1}})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}
	cursor, err := s.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: find: %w", err)
	}
	defer cursor.Close(ctx)

	var out []eventlog.Event
	for cursor.Next(ctx) {
		var doc eventDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongostore: decode: %w", err)
		}
		out = append(out, fromDocument(doc))
	}
	return out, cursor.Err()
}
