package events

const (
	SendMessage    Name = "send-message"
	MarkRead       Name = "mark-read"
	Typing         Name = "typing"
	StopTyping     Name = "stop-typing"
	GetOnlineUsers Name = "get-online-users"
	Ping           Name = "ping"
)

// Inbound is implemented by every client to server command. The set is closed:
// only this package declares implementations.
type Inbound interface {
	CommandName() Name
	inbound()
}

type SendMessageCommand struct {
	ReceiverID    string    `json:"receiverId" validate:"required,max=128"`
	Content       string    `json:"content" validate:"required_without_all=AttachmentURL Location,max=5000"`
	ListingRef    string    `json:"listingRef,omitempty" validate:"max=128"`
	Location      *Location `json:"location,omitempty"`
	AttachmentURL string    `json:"attachmentUrl,omitempty" validate:"omitempty,url,max=2048"`
}

type MarkReadCommand struct {
	MessageID string `json:"messageId" validate:"required,max=128"`
}

type TypingCommand struct {
	ReceiverID string `json:"receiverId" validate:"required,max=128"`
}

type StopTypingCommand struct {
	ReceiverID string `json:"receiverId" validate:"required,max=128"`
}

type GetOnlineUsersCommand struct{}

type PingCommand struct{}

func (SendMessageCommand) CommandName() Name    { return SendMessage }
func (MarkReadCommand) CommandName() Name       { return MarkRead }
func (TypingCommand) CommandName() Name         { return Typing }
func (StopTypingCommand) CommandName() Name     { return StopTyping }
func (GetOnlineUsersCommand) CommandName() Name { return GetOnlineUsers }
func (PingCommand) CommandName() Name           { return Ping }

func (SendMessageCommand) inbound()    {}
func (MarkReadCommand) inbound()       {}
func (TypingCommand) inbound()         {}
func (StopTypingCommand) inbound()     {}
func (GetOnlineUsersCommand) inbound() {}
func (PingCommand) inbound()           {}
