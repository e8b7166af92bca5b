package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	messagesCollection = "chat_messages"
	blocksCollection   = "chat_blocks"
	usersCollection    = "users"
)

type Client struct {
	DB *mongo.Database
}

func New(ctx context.Context, uri, database string) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	opts := options.Client().ApplyURI(uri).SetRetryWrites(true)
	m, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Client{DB: m.Database(database)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.Client().Ping(ctx, nil)
}

func (c *Client) Close(ctx context.Context) error {
	return c.DB.Client().Disconnect(ctx)
}

// EnsureIndexes creates the indexes the chat queries rely on. It is idempotent.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	messageIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "pair", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "is_read", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "created_at", Value: 1}}},
	}
	if _, err := c.DB.Collection(messagesCollection).Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return fmt.Errorf("mongo: message indexes: %w", err)
	}
	blockIndex := mongo.IndexModel{Keys: bson.D{{Key: "blocker_id", Value: 1}, {Key: "created_at", Value: 1}}}
	if _, err := c.DB.Collection(blocksCollection).Indexes().CreateOne(ctx, blockIndex); err != nil {
		return fmt.Errorf("mongo: block indexes: %w", err)
	}
	return nil
}

func timestampToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func timeToTimestamp(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
