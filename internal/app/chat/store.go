package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"marketchat/internal/domain/messaging"
)

// MessageStore is the durable message store: a repository plus the reference
// checks creation must pass.
type MessageStore struct {
	Repo    messaging.Repository
	Catalog Catalog
}

// Create persists msg. It fails with ErrSelfMessage or ErrInvalidReference
// before touching the repository.
func (s MessageStore) Create(ctx context.Context, msg *messaging.Message) error {
	if msg == nil {
		return messaging.ErrIDRequired
	}
	if msg.SenderID == msg.ReceiverID {
		return messaging.ErrSelfMessage
	}
	if err := s.ResolveListing(ctx, msg.ListingRef); err != nil {
		return err
	}
	return s.Repo.Create(ctx, msg)
}

// ResolveListing succeeds for an empty reference or one the catalog knows.
func (s MessageStore) ResolveListing(ctx context.Context, listingRef string) error {
	listingRef = strings.TrimSpace(listingRef)
	if listingRef == "" {
		return nil
	}
	if s.Catalog == nil {
		return errors.New("chat: listing catalog not configured")
	}
	ok, err := s.Catalog.ListingExists(ctx, listingRef)
	if err != nil {
		return err
	}
	if !ok {
		return messaging.ErrInvalidReference
	}
	return nil
}

func (s MessageStore) MarkRead(ctx context.Context, id messaging.MessageID, requesterID string, at time.Time) (*messaging.Message, bool, error) {
	return s.Repo.MarkRead(ctx, id, requesterID, at)
}

func (s MessageStore) MarkAllRead(ctx context.Context, receiverID, senderID string, at time.Time) (int64, error) {
	return s.Repo.MarkAllRead(ctx, receiverID, senderID, at)
}

func (s MessageStore) SoftDelete(ctx context.Context, id messaging.MessageID, requesterID string, at time.Time) (*messaging.Message, error) {
	return s.Repo.SoftDelete(ctx, id, requesterID, at)
}

func (s MessageStore) ListBetween(ctx context.Context, userA, userB string, page messaging.Page) ([]messaging.Message, error) {
	return s.Repo.ListBetween(ctx, userA, userB, page.Normalized())
}

func (s MessageStore) ListForUser(ctx context.Context, userID string) ([]messaging.Message, error) {
	return s.Repo.ListForUser(ctx, userID)
}

func (s MessageStore) ListUnread(ctx context.Context, receiverID string) ([]messaging.Message, error) {
	return s.Repo.ListUnread(ctx, receiverID)
}
