package chat

import (
	"context"
	"time"

	"marketchat/internal/app/events"
)

// Catalog answers whether a listing referenced by a message exists.
type Catalog interface {
	ListingExists(ctx context.Context, listingID string) (bool, error)
}

// Presence is the slice of the presence registry the chat service needs.
type Presence interface {
	Push(userID string, evt events.Outbound) bool
	ListOnline() []string
}

// Notifier hands payloads to the outbound email/push pipeline. Notify must not
// block and never reports failure to the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

const NotificationMessageCreated = "chat.message.created"

// Notification is the structured payload for offline recipients.
type Notification struct {
	Type        string    `json:"type"`
	RecipientID string    `json:"recipient_id"`
	SenderID    string    `json:"sender_id"`
	SenderName  string    `json:"sender_name,omitempty"`
	MessageID   string    `json:"message_id"`
	Preview     string    `json:"preview"`
	ListingRef  string    `json:"listing_ref,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NopNotifier drops notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) {}

var _ Notifier = NopNotifier{}
