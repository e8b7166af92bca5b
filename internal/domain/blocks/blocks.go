package blocks

import (
	"context"
	"strings"
	"time"

	"marketchat/internal/domain/shared/failure"
)

var (
	ErrUserRequired = failure.New(failure.KindValidation, "blocks: blocker and blocked users are required")
	ErrSelfBlock    = failure.New(failure.KindValidation, "blocks: cannot block yourself")
	ErrNotFound     = failure.New(failure.KindNotFound, "blocks: relation not found")
)

// Relation forbids messages from BlockedID to BlockerID. It is checked at send
// time only; history persisted before the block is unaffected.
type Relation struct {
	BlockerID string
	BlockedID string
	CreatedAt time.Time
}

func NewRelation(blockerID, blockedID string, now time.Time) (Relation, error) {
	blockerID = strings.TrimSpace(blockerID)
	blockedID = strings.TrimSpace(blockedID)
	if blockerID == "" || blockedID == "" {
		return Relation{}, ErrUserRequired
	}
	if blockerID == blockedID {
		return Relation{}, ErrSelfBlock
	}
	if now.IsZero() {
		now = time.Now()
	}
	return Relation{BlockerID: blockerID, BlockedID: blockedID, CreatedAt: now.UTC()}, nil
}

// Key is a stable identifier of the ordered pair.
func (r Relation) Key() string {
	return r.BlockerID + ":" + r.BlockedID
}

type Repository interface {
	IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error)
	// Block is idempotent: blocking an existing pair succeeds without change.
	Block(ctx context.Context, relation Relation) error
	// Unblock returns ErrNotFound when the pair is not blocked.
	Unblock(ctx context.Context, blockerID, blockedID string) error
	ListBlocked(ctx context.Context, blockerID string) ([]Relation, error)
}
