package inbox

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "chat_inbox"

// Store remembers which broker events a consumer already applied.
type Store struct {
	col      *mongo.Collection
	consumer string
}

// NewStore scopes records to consumer. Records expire after ttl so per-process
// consumers do not accumulate.
func NewStore(ctx context.Context, db *mongo.Database, consumer string, ttl time.Duration) (*Store, error) {
	col := db.Collection(collectionName)
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "event_id", Value: 1}, {Key: "consumer", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "received_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(ttl / time.Second)),
		},
	}
	if _, err := col.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, err
	}
	return &Store{col: col, consumer: consumer}, nil
}

// Seen records eventID for this consumer and reports whether it was recorded
// before.
func (s *Store) Seen(ctx context.Context, eventID string) (bool, error) {
	doc := bson.M{"event_id": eventID, "consumer": s.consumer, "received_at": time.Now().UTC()}
	_, err := s.col.InsertOne(ctx, doc)
	if err == nil {
		return false, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return true, nil
	}
	return false, err
}
