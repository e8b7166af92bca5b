package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"marketchat/internal/app/events"
	"marketchat/internal/domain/blocks"
	"marketchat/internal/domain/messaging"
	"marketchat/internal/domain/shared/failure"
	domainuser "marketchat/internal/domain/user"
)

const (
	StatusDelivered = "delivered"
	StatusSent      = "sent"

	defaultOperationTimeout = 5 * time.Second
	previewLength           = 140
)

var ErrTypingTargetRequired = failure.New(failure.KindValidation, "chat: typing target is required")

// Service runs every chat operation shared by the realtime gateway and the
// REST surface.
type Service struct {
	Store            MessageStore
	Blocks           blocks.Repository
	Users            domainuser.Directory
	Presence         Presence
	Notifier         Notifier
	Logger           *slog.Logger
	OperationTimeout time.Duration
	Now              func() time.Time
	NewID            func() (messaging.MessageID, error)
}

type SendParams struct {
	SenderID      string
	ReceiverID    string
	Content       string
	ListingRef    string
	AttachmentURL string
	Location      *messaging.Location
}

type SendResult struct {
	Message *messaging.Message
	Status  string
}

// BlockStatus describes the block relation between two users in both directions.
type BlockStatus struct {
	Blocked   bool
	BlockedBy bool
}

// Send validates, persists and delivers a message. Nothing is persisted when
// validation fails and nothing is delivered when persistence fails.
func (s *Service) Send(ctx context.Context, params SendParams) (*SendResult, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	msg, sender, err := s.validateSend(ctx, params)
	if err != nil {
		s.logger().Debug("message rejected", "sender_id", params.SenderID, "receiver_id", params.ReceiverID, "error", err)
		return nil, classify("chat: validate message", err)
	}
	if err := s.Store.Create(ctx, msg); err != nil {
		return nil, classify("chat: persist message", err)
	}

	status := StatusSent
	if s.Presence.Push(msg.ReceiverID, receivedEvent(msg, sender)) {
		status = StatusDelivered
	}
	s.Presence.Push(msg.SenderID, events.MessageSentEvent{
		ID:        string(msg.ID),
		Timestamp: msg.CreatedAt,
		Status:    status,
	})
	if status == StatusSent {
		s.notifier().Notify(context.WithoutCancel(ctx), offlineNotification(msg, sender))
	}
	s.logger().Info("message sent",
		"message_id", msg.ID,
		"sender_id", msg.SenderID,
		"receiver_id", msg.ReceiverID,
		"status", status,
	)
	return &SendResult{Message: msg, Status: status}, nil
}

func (s *Service) validateSend(ctx context.Context, params SendParams) (*messaging.Message, domainuser.Profile, error) {
	id, err := s.newID()
	if err != nil {
		return nil, domainuser.Profile{}, err
	}
	msg, err := messaging.NewMessage(messaging.CreateParams{
		ID:            id,
		SenderID:      params.SenderID,
		ReceiverID:    params.ReceiverID,
		Content:       params.Content,
		ListingRef:    params.ListingRef,
		AttachmentURL: params.AttachmentURL,
		Location:      params.Location,
		Now:           s.now(),
	})
	if err != nil {
		return nil, domainuser.Profile{}, err
	}
	if _, err := s.Users.ByID(ctx, domainuser.ID(msg.ReceiverID)); err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			return nil, domainuser.Profile{}, messaging.ErrReceiverNotFound
		}
		return nil, domainuser.Profile{}, err
	}
	blocked, err := s.Blocks.IsBlocked(ctx, msg.ReceiverID, msg.SenderID)
	if err != nil {
		return nil, domainuser.Profile{}, err
	}
	if blocked {
		return nil, domainuser.Profile{}, messaging.ErrBlocked
	}
	if err := s.Store.ResolveListing(ctx, msg.ListingRef); err != nil {
		return nil, domainuser.Profile{}, err
	}
	return msg, s.senderProfile(ctx, msg.SenderID), nil
}

// senderProfile falls back to a bare id when the directory cannot resolve the
// sender; the message itself is already valid at this point.
func (s *Service) senderProfile(ctx context.Context, senderID string) domainuser.Profile {
	profile, err := s.Users.ByID(ctx, domainuser.ID(senderID))
	if err != nil {
		s.logger().Warn("sender profile unavailable", "sender_id", senderID, "error", err)
		return domainuser.Profile{ID: domainuser.ID(senderID)}
	}
	return profile
}

// MarkRead marks one message read by its receiver. The original sender is
// notified only on the first transition.
func (s *Service) MarkRead(ctx context.Context, messageID messaging.MessageID, readerID string) (*messaging.Message, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	msg, changed, err := s.Store.MarkRead(ctx, messageID, readerID, s.now())
	if err != nil {
		return nil, classify("chat: mark read", err)
	}
	if changed {
		s.Presence.Push(msg.SenderID, events.MessageReadEvent{
			MessageID: string(msg.ID),
			ReadBy:    readerID,
			ReadAt:    msg.ReadAt,
		})
		s.logger().Debug("message read", "message_id", msg.ID, "reader_id", readerID)
	}
	return msg, nil
}

// MarkConversationRead marks every unread message from counterpartyID to
// readerID as read and returns how many changed.
func (s *Service) MarkConversationRead(ctx context.Context, readerID, counterpartyID string) (int64, error) {
	if err := s.ensureDependencies(); err != nil {
		return 0, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	count, err := s.Store.MarkAllRead(ctx, readerID, counterpartyID, s.now())
	if err != nil {
		return 0, classify("chat: mark conversation read", err)
	}
	return count, nil
}

// Delete soft-deletes a message owned by requesterID.
func (s *Service) Delete(ctx context.Context, messageID messaging.MessageID, requesterID string) (*messaging.Message, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	msg, err := s.Store.SoftDelete(ctx, messageID, requesterID, s.now())
	if err != nil {
		return nil, classify("chat: delete message", err)
	}
	s.logger().Info("message deleted", "message_id", msg.ID, "sender_id", requesterID)
	return msg, nil
}

// Typing relays a typing indicator to receiverID when online. Offline or
// unknown receivers are dropped silently.
func (s *Service) Typing(senderID, receiverID string, active bool) error {
	if err := s.ensureDependencies(); err != nil {
		return err
	}
	receiverID = strings.TrimSpace(receiverID)
	if receiverID == "" || receiverID == senderID {
		return ErrTypingTargetRequired
	}
	var evt events.Outbound = events.UserStoppedTypingEvent{UserID: senderID}
	if active {
		evt = events.UserTypingEvent{UserID: senderID, Timestamp: s.now()}
	}
	s.Presence.Push(receiverID, evt)
	return nil
}

type ConversationParams struct {
	UserID         string
	CounterpartyID string
	Page           messaging.Page
	MarkRead       bool
}

// Conversation returns one page of the thread between two users in creation
// order. With MarkRead the caller's unread messages in the thread are marked
// read afterwards; the returned page reflects the state before marking.
func (s *Service) Conversation(ctx context.Context, params ConversationParams) ([]messaging.Message, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	counterparty := strings.TrimSpace(params.CounterpartyID)
	if counterparty == "" {
		return nil, messaging.ErrReceiverRequired
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	msgs, err := s.Store.ListBetween(ctx, params.UserID, counterparty, params.Page)
	if err != nil {
		return nil, classify("chat: list conversation", err)
	}
	if params.MarkRead {
		if _, err := s.Store.MarkAllRead(ctx, params.UserID, counterparty, s.now()); err != nil {
			s.logger().Warn("conversation mark read failed", "user_id", params.UserID, "counterparty_id", counterparty, "error", err)
		}
	}
	return msgs, nil
}

// Conversations lists userID's conversation summaries, most recent first.
func (s *Service) Conversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	msgs, err := s.Store.ListForUser(ctx, userID)
	if err != nil {
		return nil, classify("chat: list conversations", err)
	}
	return Summarize(userID, msgs), nil
}

// Unread lists messages addressed to userID that are still unread.
func (s *Service) Unread(ctx context.Context, userID string) ([]messaging.Message, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	msgs, err := s.Store.ListUnread(ctx, userID)
	if err != nil {
		return nil, classify("chat: list unread", err)
	}
	return msgs, nil
}

func (s *Service) Block(ctx context.Context, blockerID, blockedID string) error {
	if err := s.ensureDependencies(); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	relation, err := blocks.NewRelation(blockerID, blockedID, s.now())
	if err != nil {
		return err
	}
	if _, err := s.Users.ByID(ctx, domainuser.ID(relation.BlockedID)); err != nil {
		return classify("chat: resolve blocked user", err)
	}
	if err := s.Blocks.Block(ctx, relation); err != nil {
		return classify("chat: block user", err)
	}
	s.logger().Info("user blocked", "blocker_id", relation.BlockerID, "blocked_id", relation.BlockedID)
	return nil
}

func (s *Service) Unblock(ctx context.Context, blockerID, blockedID string) error {
	if err := s.ensureDependencies(); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.Blocks.Unblock(ctx, strings.TrimSpace(blockerID), strings.TrimSpace(blockedID)); err != nil {
		return classify("chat: unblock user", err)
	}
	s.logger().Info("user unblocked", "blocker_id", blockerID, "blocked_id", blockedID)
	return nil
}

// BlockStatus reports whether userID blocked otherID and whether otherID
// blocked userID.
func (s *Service) BlockStatus(ctx context.Context, userID, otherID string) (BlockStatus, error) {
	if err := s.ensureDependencies(); err != nil {
		return BlockStatus{}, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	blocked, err := s.Blocks.IsBlocked(ctx, userID, otherID)
	if err != nil {
		return BlockStatus{}, classify("chat: block status", err)
	}
	blockedBy, err := s.Blocks.IsBlocked(ctx, otherID, userID)
	if err != nil {
		return BlockStatus{}, classify("chat: block status", err)
	}
	return BlockStatus{Blocked: blocked, BlockedBy: blockedBy}, nil
}

func (s *Service) ListBlocked(ctx context.Context, blockerID string) ([]blocks.Relation, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	relations, err := s.Blocks.ListBlocked(ctx, blockerID)
	if err != nil {
		return nil, classify("chat: list blocked", err)
	}
	return relations, nil
}

func (s *Service) OnlineUsers() []string {
	if s.Presence == nil {
		return []string{}
	}
	return s.Presence.ListOnline()
}

func receivedEvent(msg *messaging.Message, sender domainuser.Profile) events.MessageReceivedEvent {
	evt := events.MessageReceivedEvent{
		ID:         string(msg.ID),
		SenderID:   msg.SenderID,
		Content:    msg.Content,
		ListingRef: msg.ListingRef,
		Sender: events.SenderProfile{
			ID:        string(sender.ID),
			FirstName: sender.FirstName,
			LastName:  sender.LastName,
			Avatar:    sender.AvatarURL,
		},
		Timestamp:     msg.CreatedAt,
		AttachmentURL: msg.AttachmentURL,
	}
	if msg.Location != nil {
		evt.Location = &events.Location{Lat: msg.Location.Lat, Lng: msg.Location.Lng, Address: msg.Location.Address}
	}
	return evt
}

func offlineNotification(msg *messaging.Message, sender domainuser.Profile) Notification {
	return Notification{
		Type:        NotificationMessageCreated,
		RecipientID: msg.ReceiverID,
		SenderID:    msg.SenderID,
		SenderName:  sender.DisplayName(),
		MessageID:   string(msg.ID),
		Preview:     preview(msg.Content),
		ListingRef:  msg.ListingRef,
		OccurredAt:  msg.CreatedAt,
	}
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewLength]) + "…"
}

// classify keeps domain errors as they are and marks everything else as
// transient infrastructure failure.
func classify(action string, err error) error {
	if err == nil || failure.KindOf(err) != "" {
		return err
	}
	return failure.Transient(action, err)
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.OperationTimeout
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *Service) newID() (messaging.MessageID, error) {
	if s.NewID != nil {
		return s.NewID()
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return messaging.MessageID(id.String()), nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) notifier() Notifier {
	if s.Notifier == nil {
		return NopNotifier{}
	}
	return s.Notifier
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Service) ensureDependencies() error {
	switch {
	case s.Store.Repo == nil:
		return errors.New("chat: message repository required")
	case s.Blocks == nil:
		return errors.New("chat: block repository required")
	case s.Users == nil:
		return errors.New("chat: user directory required")
	case s.Presence == nil:
		return errors.New("chat: presence registry required")
	default:
		return nil
	}
}
