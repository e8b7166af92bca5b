package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"marketchat/internal/domain/blocks"
)

type BlockRepository struct {
	col *mongo.Collection
}

func NewBlockRepository(db *mongo.Database) *BlockRepository {
	return &BlockRepository{col: db.Collection(blocksCollection)}
}

var _ blocks.Repository = (*BlockRepository)(nil)

func (r *BlockRepository) IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error) {
	key := blocks.Relation{BlockerID: blockerID, BlockedID: blockedID}.Key()
	n, err := r.col.CountDocuments(ctx, bson.M{"_id": key}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Block upserts the pair keeping the original creation time.
func (r *BlockRepository) Block(ctx context.Context, relation blocks.Relation) error {
	doc := blockDocument{
		ID:        relation.Key(),
		BlockerID: relation.BlockerID,
		BlockedID: relation.BlockedID,
		CreatedAt: timeToTimestamp(relation.CreatedAt),
	}
	_, err := r.col.UpdateByID(ctx, doc.ID, bson.M{"$setOnInsert": doc}, options.Update().SetUpsert(true))
	return err
}

func (r *BlockRepository) Unblock(ctx context.Context, blockerID, blockedID string) error {
	key := blocks.Relation{BlockerID: blockerID, BlockedID: blockedID}.Key()
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return blocks.ErrNotFound
	}
	return nil
}

func (r *BlockRepository) ListBlocked(ctx context.Context, blockerID string) ([]blocks.Relation, error) {
	cur, err := r.col.Find(ctx, bson.M{"blocker_id": blockerID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []blockDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decode blocks: %w", err)
	}
	out := make([]blocks.Relation, 0, len(docs))
	for _, d := range docs {
		out = append(out, blocks.Relation{BlockerID: d.BlockerID, BlockedID: d.BlockedID, CreatedAt: timestampToTime(d.CreatedAt)})
	}
	return out, nil
}

type blockDocument struct {
	ID        string `bson:"_id"`
	BlockerID string `bson:"blocker_id"`
	BlockedID string `bson:"blocked_id"`
	CreatedAt int64  `bson:"created_at"`
}
