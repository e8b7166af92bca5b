package scylla

import (
	"context"
	"errors"
	"slices"

	"github.com/gocql/gocql"

	"marketchat/internal/domain/blocks"
)

type BlockStore struct {
	session *gocql.Session
}

func NewBlockStore(session *gocql.Session) *BlockStore {
	return &BlockStore{session: session}
}

var _ blocks.Repository = (*BlockStore)(nil)

func (s *BlockStore) IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error) {
	if s.session == nil {
		return false, errSessionNotInitialized
	}
	var id string
	err := s.session.Query(`SELECT blocked_id FROM blocks WHERE blocker_id = ? AND blocked_id = ?`, blockerID, blockedID).
		WithContext(ctx).
		Scan(&id)
	if errors.Is(err, gocql.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Block inserts only when absent so a repeated block keeps its first timestamp.
func (s *BlockStore) Block(ctx context.Context, relation blocks.Relation) error {
	if s.session == nil {
		return errSessionNotInitialized
	}
	_, err := s.session.Query(
		`INSERT INTO blocks (blocker_id, blocked_id, created_at) VALUES (?, ?, ?) IF NOT EXISTS`,
		relation.BlockerID, relation.BlockedID, relation.CreatedAt.UTC(),
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	return err
}

func (s *BlockStore) Unblock(ctx context.Context, blockerID, blockedID string) error {
	if s.session == nil {
		return errSessionNotInitialized
	}
	applied, err := s.session.Query(`DELETE FROM blocks WHERE blocker_id = ? AND blocked_id = ? IF EXISTS`, blockerID, blockedID).
		WithContext(ctx).
		MapScanCAS(map[string]interface{}{})
	if err != nil {
		return err
	}
	if !applied {
		return blocks.ErrNotFound
	}
	return nil
}

func (s *BlockStore) ListBlocked(ctx context.Context, blockerID string) ([]blocks.Relation, error) {
	if s.session == nil {
		return nil, errSessionNotInitialized
	}
	iter := s.session.Query(`SELECT blocked_id, created_at FROM blocks WHERE blocker_id = ?`, blockerID).WithContext(ctx).Iter()
	out := make([]blocks.Relation, 0)
	var rel blocks.Relation
	for iter.Scan(&rel.BlockedID, &rel.CreatedAt) {
		out = append(out, blocks.Relation{BlockerID: blockerID, BlockedID: rel.BlockedID, CreatedAt: fromTimestamp(rel.CreatedAt)})
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	sortRelations(out)
	return out, nil
}

func sortRelations(items []blocks.Relation) {
	slices.SortStableFunc(items, func(a, b blocks.Relation) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}
