package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"marketchat/internal/domain/messaging"
)

var errDuplicateMessage = errors.New("mongo: message id already exists")

type MessageRepository struct {
	col *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{col: db.Collection(messagesCollection)}
}

var _ messaging.Repository = (*MessageRepository)(nil)

func (r *MessageRepository) Create(ctx context.Context, msg *messaging.Message) error {
	if _, err := r.col.InsertOne(ctx, newMessageDocument(msg)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errDuplicateMessage
		}
		return err
	}
	return nil
}

func (r *MessageRepository) ByID(ctx context.Context, id messaging.MessageID) (*messaging.Message, error) {
	var doc messageDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, messaging.ErrNotFound
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

// MarkRead flips the flag with a single conditional update so concurrent
// readers agree on which call changed it.
func (r *MessageRepository) MarkRead(ctx context.Context, id messaging.MessageID, readerID string, at time.Time) (*messaging.Message, bool, error) {
	ts := timeToTimestamp(at.UTC())
	filter := bson.M{"_id": string(id), "receiver_id": readerID, "is_read": false}
	update := bson.M{"$set": bson.M{"is_read": true, "read_at": ts, "updated_at": ts}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc messageDocument
	err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return doc.toDomain(), true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, err
	}
	current, err := r.ByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if current.ReceiverID != readerID {
		return nil, false, messaging.ErrNotReceiver
	}
	return current, false, nil
}

func (r *MessageRepository) MarkAllRead(ctx context.Context, receiverID, senderID string, at time.Time) (int64, error) {
	ts := timeToTimestamp(at.UTC())
	res, err := r.col.UpdateMany(ctx,
		bson.M{"receiver_id": receiverID, "sender_id": senderID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": ts, "updated_at": ts}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *MessageRepository) SoftDelete(ctx context.Context, id messaging.MessageID, requesterID string, at time.Time) (*messaging.Message, error) {
	msg, err := r.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	wasDeleted := msg.Deleted
	if err := msg.SoftDelete(requesterID, at); err != nil {
		return nil, err
	}
	if wasDeleted {
		return msg, nil
	}
	_, err = r.col.UpdateOne(ctx,
		bson.M{"_id": string(id), "sender_id": requesterID},
		bson.M{
			"$set": bson.M{
				"deleted":    true,
				"content":    msg.Content,
				"updated_at": timeToTimestamp(msg.UpdatedAt),
			},
			"$unset": bson.M{"attachment_url": "", "location": ""},
		},
	)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *MessageRepository) ListBetween(ctx context.Context, userA, userB string, page messaging.Page) ([]messaging.Message, error) {
	page = page.Normalized()
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.Size))
	msgs, err := r.find(ctx, bson.M{"pair": messaging.PairKey(userA, userB)}, opts)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *MessageRepository) ListForUser(ctx context.Context, userID string) ([]messaging.Message, error) {
	filter := bson.M{"$or": bson.A{bson.M{"sender_id": userID}, bson.M{"receiver_id": userID}}}
	return r.find(ctx, filter, creationOrder())
}

func (r *MessageRepository) ListUnread(ctx context.Context, receiverID string) ([]messaging.Message, error) {
	return r.find(ctx, bson.M{"receiver_id": receiverID, "is_read": false}, creationOrder())
}

func (r *MessageRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]messaging.Message, error) {
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []messageDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decode messages: %w", err)
	}
	out := make([]messaging.Message, 0, len(docs))
	for _, doc := range docs {
		out = append(out, *doc.toDomain())
	}
	return out, nil
}

func creationOrder() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
}

type messageDocument struct {
	ID            string            `bson:"_id"`
	Pair          string            `bson:"pair"`
	SenderID      string            `bson:"sender_id"`
	ReceiverID    string            `bson:"receiver_id"`
	Content       string            `bson:"content"`
	ListingRef    string            `bson:"listing_ref,omitempty"`
	AttachmentURL string            `bson:"attachment_url,omitempty"`
	Location      *locationDocument `bson:"location,omitempty"`
	IsRead        bool              `bson:"is_read"`
	ReadAt        int64             `bson:"read_at,omitempty"`
	Deleted       bool              `bson:"deleted"`
	CreatedAt     int64             `bson:"created_at"`
	UpdatedAt     int64             `bson:"updated_at"`
}

type locationDocument struct {
	Lat     float64 `bson:"lat"`
	Lng     float64 `bson:"lng"`
	Address string  `bson:"address,omitempty"`
}

func newMessageDocument(msg *messaging.Message) messageDocument {
	doc := messageDocument{
		ID:            string(msg.ID),
		Pair:          messaging.PairKey(msg.SenderID, msg.ReceiverID),
		SenderID:      msg.SenderID,
		ReceiverID:    msg.ReceiverID,
		Content:       msg.Content,
		ListingRef:    msg.ListingRef,
		AttachmentURL: msg.AttachmentURL,
		IsRead:        msg.IsRead,
		ReadAt:        timeToTimestamp(msg.ReadAt),
		Deleted:       msg.Deleted,
		CreatedAt:     timeToTimestamp(msg.CreatedAt),
		UpdatedAt:     timeToTimestamp(msg.UpdatedAt),
	}
	if msg.Location != nil {
		doc.Location = &locationDocument{Lat: msg.Location.Lat, Lng: msg.Location.Lng, Address: msg.Location.Address}
	}
	return doc
}

func (d messageDocument) toDomain() *messaging.Message {
	msg := &messaging.Message{
		ID:            messaging.MessageID(d.ID),
		SenderID:      d.SenderID,
		ReceiverID:    d.ReceiverID,
		Content:       d.Content,
		ListingRef:    d.ListingRef,
		AttachmentURL: d.AttachmentURL,
		IsRead:        d.IsRead,
		ReadAt:        timestampToTime(d.ReadAt),
		Deleted:       d.Deleted,
		CreatedAt:     timestampToTime(d.CreatedAt),
		UpdatedAt:     timestampToTime(d.UpdatedAt),
	}
	if d.Location != nil {
		msg.Location = &messaging.Location{Lat: d.Location.Lat, Lng: d.Location.Lng, Address: d.Location.Address}
	}
	return msg
}
