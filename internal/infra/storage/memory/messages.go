package memory

import (
	"context"
	"sync"
	"time"

	"marketchat/internal/domain/messaging"
)

// MessageRepository keeps messages in insertion order. Not suitable for production.
type MessageRepository struct {
	mu    sync.RWMutex
	order []messaging.MessageID
	items map[messaging.MessageID]*messaging.Message
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{
		items: make(map[messaging.MessageID]*messaging.Message),
	}
}

func (r *MessageRepository) Create(ctx context.Context, msg *messaging.Message) error {
	if msg == nil || msg.ID == "" {
		return messaging.ErrIDRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[msg.ID]; exists {
		return errDuplicateID
	}
	r.items[msg.ID] = msg.Clone()
	r.order = append(r.order, msg.ID)
	return nil
}

func (r *MessageRepository) ByID(ctx context.Context, id messaging.MessageID) (*messaging.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msg, ok := r.items[id]
	if !ok {
		return nil, messaging.ErrNotFound
	}
	return msg.Clone(), nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, id messaging.MessageID, readerID string, at time.Time) (*messaging.Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.items[id]
	if !ok {
		return nil, false, messaging.ErrNotFound
	}
	changed, err := msg.MarkRead(readerID, at)
	if err != nil {
		return nil, false, err
	}
	return msg.Clone(), changed, nil
}

func (r *MessageRepository) MarkAllRead(ctx context.Context, receiverID, senderID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, id := range r.order {
		msg := r.items[id]
		if msg.ReceiverID != receiverID || msg.SenderID != senderID {
			continue
		}
		changed, err := msg.MarkRead(receiverID, at)
		if err != nil {
			return count, err
		}
		if changed {
			count++
		}
	}
	return count, nil
}

func (r *MessageRepository) SoftDelete(ctx context.Context, id messaging.MessageID, requesterID string, at time.Time) (*messaging.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.items[id]
	if !ok {
		return nil, messaging.ErrNotFound
	}
	if err := msg.SoftDelete(requesterID, at); err != nil {
		return nil, err
	}
	return msg.Clone(), nil
}

func (r *MessageRepository) ListBetween(ctx context.Context, userA, userB string, page messaging.Page) ([]messaging.Message, error) {
	page = page.Normalized()
	r.mu.RLock()
	defer r.mu.RUnlock()

	// walk newest first, then flip the window back to creation order
	window := make([]messaging.Message, 0, page.Size)
	skip := page.Offset()
	for i := len(r.order) - 1; i >= 0 && len(window) < page.Size; i-- {
		msg := r.items[r.order[i]]
		if !betweenPair(msg, userA, userB) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		window = append(window, *msg.Clone())
	}
	reverse(window)
	return window, nil
}

func (r *MessageRepository) ListForUser(ctx context.Context, userID string) ([]messaging.Message, error) {
	return r.filter(ctx, func(m *messaging.Message) bool { return m.Involves(userID) })
}

func (r *MessageRepository) ListUnread(ctx context.Context, receiverID string) ([]messaging.Message, error) {
	return r.filter(ctx, func(m *messaging.Message) bool { return m.ReceiverID == receiverID && !m.IsRead })
}

func (r *MessageRepository) filter(ctx context.Context, keep func(*messaging.Message) bool) ([]messaging.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]messaging.Message, 0)
	for _, id := range r.order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msg := r.items[id]
		if keep(msg) {
			out = append(out, *msg.Clone())
		}
	}
	return out, nil
}

func betweenPair(m *messaging.Message, userA, userB string) bool {
	return (m.SenderID == userA && m.ReceiverID == userB) || (m.SenderID == userB && m.ReceiverID == userA)
}

func reverse(items []messaging.Message) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}

var _ messaging.Repository = (*MessageRepository)(nil)
