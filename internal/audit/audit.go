// Package audit keeps a write-only trail of order lifecycle events. Writes are
// best-effort: a failing sink is logged and never blocks checkout.
package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type Entry struct {
	Service   string    `bson:"service"`
	Action    string    `bson:"action"`
	EntityID  string    `bson:"entity_id"`
	Actor     string    `bson:"actor,omitempty"`
	Data      bson.M    `bson:"data,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
}

const (
	ActionOrderCreated   = "order.created"
	ActionStatusChanged  = "order.status_changed"
	ActionWebhookIgnored = "webhook.ignored"
)

type Sink interface {
	Record(ctx context.Context, e Entry) error
}

// Recorder wraps a Sink and swallows its errors.
type Recorder struct {
	sink    Sink
	service string
	log     *zap.Logger
}

func NewRecorder(sink Sink, service string, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{sink: sink, service: service, log: log}
}

func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.sink == nil {
		return
	}
	if e.Service == "" {
		e.Service = r.service
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := r.sink.Record(ctx, e); err != nil {
		r.log.Warn("audit write failed",
			zap.String("action", e.Action),
			zap.String("entity_id", e.EntityID),
			zap.Error(err))
	}
}

type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoSink(ctx context.Context, uri, database, collection string) (*MongoSink, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return &MongoSink{client: client, collection: client.Database(database).Collection(collection)}, nil
}

func (m *MongoSink) Record(ctx context.Context, e Entry) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := m.collection.InsertOne(ctx, e)
	return err
}

func (m *MongoSink) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// LogSink writes entries to the application log.
type LogSink struct{ log *zap.Logger }

func NewLogSink(log *zap.Logger) *LogSink { return &LogSink{log: log.Named("audit")} }

func (s *LogSink) Record(_ context.Context, e Entry) error {
	s.log.Info(e.Action,
		zap.String("service", e.Service),
		zap.String("entity_id", e.EntityID),
		zap.String("actor", e.Actor),
		zap.Any("data", e.Data),
		zap.Time("at", e.CreatedAt))
	return nil
}
