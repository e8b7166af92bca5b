package events

import "time"

// Name is the wire name of a realtime event.
type Name string

const (
	MessageReceived         Name = "message-received"
	MessageSent             Name = "message-sent"
	MessageReadNotification Name = "message-read-notification"
	UserOnline              Name = "user-online"
	UserOffline             Name = "user-offline"
	OnlineUsersList         Name = "online-users-list"
	UserTyping              Name = "user-typing"
	UserStoppedTyping       Name = "user-stopped-typing"
	Pong                    Name = "pong"
	Error                   Name = "error"
)

// Outbound is implemented by every server to client event.
type Outbound interface {
	EventName() Name
}

type Location struct {
	Lat     float64 `json:"lat" validate:"min=-90,max=90"`
	Lng     float64 `json:"lng" validate:"min=-180,max=180"`
	Address string  `json:"address,omitempty" validate:"max=500"`
}

type SenderProfile struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Avatar    string `json:"avatar,omitempty"`
}

type MessageReceivedEvent struct {
	ID            string        `json:"id"`
	SenderID      string        `json:"senderId"`
	Content       string        `json:"content"`
	ListingRef    string        `json:"listingRef,omitempty"`
	Sender        SenderProfile `json:"sender"`
	Timestamp     time.Time     `json:"timestamp"`
	Location      *Location     `json:"location,omitempty"`
	AttachmentURL string        `json:"attachmentUrl,omitempty"`
}

type MessageSentEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}

type MessageReadEvent struct {
	MessageID string    `json:"messageId"`
	ReadBy    string    `json:"readBy"`
	ReadAt    time.Time `json:"readAt"`
}

type UserOnlineEvent struct {
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

type UserOfflineEvent struct {
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

type OnlineUsersEvent struct {
	Users []string `json:"users"`
}

type UserTypingEvent struct {
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

type UserStoppedTypingEvent struct {
	UserID string `json:"userId"`
}

type PongEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

func (MessageReceivedEvent) EventName() Name   { return MessageReceived }
func (MessageSentEvent) EventName() Name       { return MessageSent }
func (MessageReadEvent) EventName() Name       { return MessageReadNotification }
func (UserOnlineEvent) EventName() Name        { return UserOnline }
func (UserOfflineEvent) EventName() Name       { return UserOffline }
func (OnlineUsersEvent) EventName() Name       { return OnlineUsersList }
func (UserTypingEvent) EventName() Name        { return UserTyping }
func (UserStoppedTypingEvent) EventName() Name { return UserStoppedTyping }
func (PongEvent) EventName() Name              { return Pong }
func (ErrorEvent) EventName() Name             { return Error }
