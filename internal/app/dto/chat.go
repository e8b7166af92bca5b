package dto

import (
	"time"

	"marketchat/internal/app/chat"
	"marketchat/internal/domain/blocks"
	"marketchat/internal/domain/messaging"
)

type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// ChatMessage contains a single message payload.
type ChatMessage struct {
	ID            string     `json:"id"`
	SenderID      string     `json:"sender_id"`
	ReceiverID    string     `json:"receiver_id"`
	Content       string     `json:"content"`
	ListingRef    string     `json:"listing_ref,omitempty"`
	AttachmentURL string     `json:"attachment_url,omitempty"`
	Location      *Location  `json:"location,omitempty"`
	IsRead        bool       `json:"is_read"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
	Deleted       bool       `json:"deleted,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ChatMessageList is a page of messages in display order.
type ChatMessageList struct {
	Items    []ChatMessage `json:"items"`
	Page     int           `json:"page,omitempty"`
	PageSize int           `json:"page_size,omitempty"`
}

type SentMessage struct {
	Message ChatMessage `json:"message"`
	Status  string      `json:"status"`
}

// Conversation is the per-counterparty summary.
type Conversation struct {
	CounterpartyID      string    `json:"counterparty_id"`
	LastMessageID       string    `json:"last_message_id"`
	LastMessageContent  string    `json:"last_message_content"`
	LastMessageSenderID string    `json:"last_message_sender_id"`
	LastMessageAt       time.Time `json:"last_message_at"`
	ListingRef          string    `json:"listing_ref,omitempty"`
	UnreadCount         int       `json:"unread_count"`
}

type ConversationList struct {
	Items []Conversation `json:"items"`
}

type BlockStatus struct {
	UserID    string `json:"user_id"`
	Blocked   bool   `json:"blocked"`
	BlockedBy bool   `json:"blocked_by"`
}

type BlockedUser struct {
	UserID    string    `json:"user_id"`
	BlockedAt time.Time `json:"blocked_at"`
}

type BlockedUserList struct {
	Items []BlockedUser `json:"items"`
}

type OnlineUsers struct {
	Users []string `json:"users"`
}

type Attachment struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

func MapChatMessage(msg messaging.Message) ChatMessage {
	out := ChatMessage{
		ID:            string(msg.ID),
		SenderID:      msg.SenderID,
		ReceiverID:    msg.ReceiverID,
		Content:       msg.Content,
		ListingRef:    msg.ListingRef,
		AttachmentURL: msg.AttachmentURL,
		IsRead:        msg.IsRead,
		Deleted:       msg.Deleted,
		CreatedAt:     msg.CreatedAt,
		UpdatedAt:     msg.UpdatedAt,
	}
	if msg.Location != nil {
		out.Location = &Location{Lat: msg.Location.Lat, Lng: msg.Location.Lng, Address: msg.Location.Address}
	}
	if !msg.ReadAt.IsZero() {
		readAt := msg.ReadAt
		out.ReadAt = &readAt
	}
	return out
}

func MapChatMessages(msgs []messaging.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, MapChatMessage(msg))
	}
	return out
}

func MapConversations(summaries []chat.ConversationSummary) ConversationList {
	list := ConversationList{Items: make([]Conversation, 0, len(summaries))}
	for _, s := range summaries {
		list.Items = append(list.Items, Conversation{
			CounterpartyID:      s.CounterpartyID,
			LastMessageID:       string(s.LastMessageID),
			LastMessageContent:  s.LastMessageContent,
			LastMessageSenderID: s.LastMessageSenderID,
			LastMessageAt:       s.LastMessageTime,
			ListingRef:          s.ListingRef,
			UnreadCount:         s.UnreadCount,
		})
	}
	return list
}

func MapBlockedUsers(relations []blocks.Relation) BlockedUserList {
	list := BlockedUserList{Items: make([]BlockedUser, 0, len(relations))}
	for _, r := range relations {
		list.Items = append(list.Items, BlockedUser{UserID: r.BlockedID, BlockedAt: r.CreatedAt})
	}
	return list
}
