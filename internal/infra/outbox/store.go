package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"marketchat/internal/app/chat"
)

const (
	stateNew     = "NEW"
	stateClaimed = "CLAIMED"
	stateSent    = "SENT"
	stateFailed  = "FAILED"

	collectionName = "chat_notification_outbox"
	defaultLease   = time.Minute
)

// Entry is a claimed notification waiting to be published.
type Entry struct {
	ID           string
	Notification chat.Notification
	Attempts     int
}

// Store persists offline notifications in Mongo until a worker publishes them.
type Store struct {
	col   *mongo.Collection
	lease time.Duration
	now   func() time.Time
}

func NewStore(ctx context.Context, db *mongo.Database) (*Store, error) {
	col := db.Collection(collectionName)
	idx := mongo.IndexModel{Keys: bson.D{{Key: "state", Value: 1}, {Key: "next_attempt_at", Value: 1}}}
	if _, err := col.Indexes().CreateOne(ctx, idx); err != nil {
		return nil, err
	}
	return &Store{col: col, lease: defaultLease, now: time.Now}, nil
}

func (s *Store) Add(ctx context.Context, n chat.Notification) error {
	now := s.now().UTC()
	doc := document{
		ID:           uuid.NewString(),
		Notification: newNotificationDocument(n),
		State:        stateNew,
		NextAttempt:  now,
		CreatedAt:    now,
	}
	_, err := s.col.InsertOne(ctx, doc)
	return err
}

// Claim takes the oldest due entry. Entries claimed by a worker that stopped
// before finishing become claimable again after the lease.
func (s *Store) Claim(ctx context.Context, workerID string) (*Entry, error) {
	now := s.now().UTC()
	filter := bson.M{"$or": bson.A{
		bson.M{"state": bson.M{"$in": bson.A{stateNew, stateFailed}}, "next_attempt_at": bson.M{"$lte": now}},
		bson.M{"state": stateClaimed, "claimed_at": bson.M{"$lte": now.Add(-s.lease)}},
	}}
	update := bson.M{"$set": bson.M{"state": stateClaimed, "claimed_by": workerID, "claimed_at": now}}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(bson.D{{Key: "next_attempt_at", Value: 1}})
	var doc document
	if err := s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &Entry{ID: doc.ID, Notification: doc.Notification.toNotification(), Attempts: doc.Attempts}, nil
}

func (s *Store) MarkSent(ctx context.Context, id string) error {
	_, err := s.col.UpdateByID(ctx, id, bson.M{"$set": bson.M{"state": stateSent, "sent_at": s.now().UTC()}})
	return err
}

func (s *Store) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	update := bson.M{
		"$set": bson.M{
			"state":           stateFailed,
			"next_attempt_at": next.UTC(),
			"last_error":      errMsg,
		},
		"$inc": bson.M{"attempts": 1},
	}
	_, err := s.col.UpdateByID(ctx, id, update)
	return err
}

type document struct {
	ID           string               `bson:"_id"`
	Notification notificationDocument `bson:"notification"`
	State        string               `bson:"state"`
	Attempts     int                  `bson:"attempts"`
	NextAttempt  time.Time            `bson:"next_attempt_at"`
	CreatedAt    time.Time            `bson:"created_at"`
	ClaimedBy    string               `bson:"claimed_by,omitempty"`
	ClaimedAt    time.Time            `bson:"claimed_at,omitempty"`
	SentAt       time.Time            `bson:"sent_at,omitempty"`
	LastError    string               `bson:"last_error,omitempty"`
}

type notificationDocument struct {
	Type        string    `bson:"type"`
	RecipientID string    `bson:"recipient_id"`
	SenderID    string    `bson:"sender_id"`
	SenderName  string    `bson:"sender_name,omitempty"`
	MessageID   string    `bson:"message_id"`
	Preview     string    `bson:"preview"`
	ListingRef  string    `bson:"listing_ref,omitempty"`
	OccurredAt  time.Time `bson:"occurred_at"`
}

func newNotificationDocument(n chat.Notification) notificationDocument {
	return notificationDocument{
		Type:        n.Type,
		RecipientID: n.RecipientID,
		SenderID:    n.SenderID,
		SenderName:  n.SenderName,
		MessageID:   n.MessageID,
		Preview:     n.Preview,
		ListingRef:  n.ListingRef,
		OccurredAt:  n.OccurredAt.UTC(),
	}
}

func (d notificationDocument) toNotification() chat.Notification {
	return chat.Notification{
		Type:        d.Type,
		RecipientID: d.RecipientID,
		SenderID:    d.SenderID,
		SenderName:  d.SenderName,
		MessageID:   d.MessageID,
		Preview:     d.Preview,
		ListingRef:  d.ListingRef,
		OccurredAt:  d.OccurredAt.UTC(),
	}
}
