package memory

import (
	"context"
	"sort"
	"sync"

	"marketchat/internal/domain/blocks"
)

// BlockRepository keeps block relations in memory.
type BlockRepository struct {
	mu    sync.RWMutex
	items map[string]blocks.Relation
}

func NewBlockRepository() *BlockRepository {
	return &BlockRepository{items: make(map[string]blocks.Relation)}
}

func (r *BlockRepository) IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[blocks.Relation{BlockerID: blockerID, BlockedID: blockedID}.Key()]
	return ok, nil
}

func (r *BlockRepository) Block(ctx context.Context, relation blocks.Relation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[relation.Key()]; exists {
		return nil
	}
	r.items[relation.Key()] = relation
	return nil
}

func (r *BlockRepository) Unblock(ctx context.Context, blockerID, blockedID string) error {
	key := blocks.Relation{BlockerID: blockerID, BlockedID: blockedID}.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[key]; !exists {
		return blocks.ErrNotFound
	}
	delete(r.items, key)
	return nil
}

func (r *BlockRepository) ListBlocked(ctx context.Context, blockerID string) ([]blocks.Relation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]blocks.Relation, 0)
	for _, rel := range r.items {
		if rel.BlockerID == blockerID {
			out = append(out, rel)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

var _ blocks.Repository = (*BlockRepository)(nil)
