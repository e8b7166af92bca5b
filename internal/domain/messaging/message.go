package messaging

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"marketchat/internal/domain/shared/failure"
)

// DeletedPlaceholder replaces the content of a soft-deleted message.
const DeletedPlaceholder = "This message was deleted"

// MaxContentLength bounds message text in runes.
const MaxContentLength = 5000

var (
	ErrIDRequired       = failure.New(failure.KindValidation, "messaging: id is required")
	ErrSenderRequired   = failure.New(failure.KindValidation, "messaging: sender is required")
	ErrReceiverRequired = failure.New(failure.KindValidation, "messaging: receiver is required")
	ErrSelfMessage      = failure.New(failure.KindValidation, "messaging: cannot send a message to yourself")
	ErrEmptyMessage     = failure.New(failure.KindValidation, "messaging: content, attachment or location is required")
	ErrContentTooLong   = failure.New(failure.KindValidation, "messaging: content is too long")
	ErrInvalidLocation  = failure.New(failure.KindValidation, "messaging: location coordinates out of range")
	ErrInvalidReference = failure.New(failure.KindNotFound, "messaging: listing reference not found")
	ErrReceiverNotFound = failure.New(failure.KindNotFound, "messaging: receiver not found")
	ErrNotFound         = failure.New(failure.KindNotFound, "messaging: message not found")
	ErrNotReceiver      = failure.New(failure.KindForbidden, "messaging: only the receiver can mark a message as read")
	ErrNotSender        = failure.New(failure.KindForbidden, "messaging: only the sender can delete a message")
	ErrBlocked          = failure.New(failure.KindForbidden, "messaging: receiver does not accept messages from sender")
)

type MessageID string

// Location is an optional place shared in a message.
type Location struct {
	Lat     float64
	Lng     float64
	Address string
}

// Message is the only durable state of the chat subsystem. Sender, receiver and
// CreatedAt never change after creation; IsRead only moves from false to true.
type Message struct {
	ID            MessageID
	SenderID      string
	ReceiverID    string
	Content       string
	ListingRef    string
	AttachmentURL string
	Location      *Location
	IsRead        bool
	ReadAt        time.Time
	Deleted       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type CreateParams struct {
	ID            MessageID
	SenderID      string
	ReceiverID    string
	Content       string
	ListingRef    string
	AttachmentURL string
	Location      *Location
	Now           time.Time
}

func NewMessage(params CreateParams) (*Message, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, ErrIDRequired
	}
	sender := strings.TrimSpace(params.SenderID)
	if sender == "" {
		return nil, ErrSenderRequired
	}
	receiver := strings.TrimSpace(params.ReceiverID)
	if receiver == "" {
		return nil, ErrReceiverRequired
	}
	if sender == receiver {
		return nil, ErrSelfMessage
	}
	content := strings.TrimSpace(params.Content)
	attachment := strings.TrimSpace(params.AttachmentURL)
	if content == "" && attachment == "" && params.Location == nil {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, ErrContentTooLong
	}
	var location *Location
	if params.Location != nil {
		if !validCoordinates(params.Location.Lat, params.Location.Lng) {
			return nil, ErrInvalidLocation
		}
		loc := *params.Location
		loc.Address = strings.TrimSpace(loc.Address)
		location = &loc
	}
	now := normalizeNow(params.Now)
	return &Message{
		ID:            params.ID,
		SenderID:      sender,
		ReceiverID:    receiver,
		Content:       content,
		ListingRef:    strings.TrimSpace(params.ListingRef),
		AttachmentURL: attachment,
		Location:      location,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// MarkRead flips the read flag. It reports whether the message changed.
func (m *Message) MarkRead(readerID string, now time.Time) (bool, error) {
	if readerID != m.ReceiverID {
		return false, ErrNotReceiver
	}
	if m.IsRead {
		return false, nil
	}
	now = normalizeNow(now)
	m.IsRead = true
	m.ReadAt = now
	m.UpdatedAt = now
	return true, nil
}

// SoftDelete redacts the content while keeping the row and its identity.
func (m *Message) SoftDelete(requesterID string, now time.Time) error {
	if requesterID != m.SenderID {
		return ErrNotSender
	}
	if m.Deleted {
		return nil
	}
	m.Deleted = true
	m.Content = DeletedPlaceholder
	m.AttachmentURL = ""
	m.Location = nil
	m.UpdatedAt = normalizeNow(now)
	return nil
}

// Involves reports whether userID is the sender or the receiver.
func (m *Message) Involves(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// Counterparty returns the other participant from userID's point of view.
func (m *Message) Counterparty(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	if m.Location != nil {
		loc := *m.Location
		out.Location = &loc
	}
	return &out
}

// Page selects a window of a conversation, newest first. Number starts at 1.
type Page struct {
	Number int
	Size   int
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

func (p Page) Normalized() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size <= 0 || p.Size > MaxPageSize {
		p.Size = DefaultPageSize
	}
	return p
}

func (p Page) Offset() int {
	n := p.Normalized()
	return (n.Number - 1) * n.Size
}

// Repository persists messages. Implementations provide row level atomicity for
// the read and delete transitions.
type Repository interface {
	Create(ctx context.Context, msg *Message) error
	ByID(ctx context.Context, id MessageID) (*Message, error)
	// MarkRead returns the stored message and whether this call flipped the flag.
	MarkRead(ctx context.Context, id MessageID, readerID string, at time.Time) (*Message, bool, error)
	MarkAllRead(ctx context.Context, receiverID, senderID string, at time.Time) (int64, error)
	SoftDelete(ctx context.Context, id MessageID, requesterID string, at time.Time) (*Message, error)
	// ListBetween returns one page of the pair's history in creation order.
	ListBetween(ctx context.Context, userA, userB string, page Page) ([]Message, error)
	// ListForUser returns every message involving userID in creation order.
	ListForUser(ctx context.Context, userID string) ([]Message, error)
	ListUnread(ctx context.Context, receiverID string) ([]Message, error)
}

// PairKey identifies the conversation between two users independent of direction.
// The first id is length prefixed so ids containing the separator cannot make
// two pairs share a key.
func PairKey(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return strconv.Itoa(len(userA)) + ":" + userA + "|" + userB
}

func validCoordinates(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// normalizeNow truncates to milliseconds, the precision the durable stores keep.
func normalizeNow(now time.Time) time.Time {
	if now.IsZero() {
		now = time.Now()
	}
	return now.UTC().Truncate(time.Millisecond)
}
