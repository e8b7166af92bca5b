package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"marketchat/internal/app/chat"
	"marketchat/internal/app/events"
	"marketchat/internal/app/presence"
	"marketchat/internal/domain/messaging"
	"marketchat/internal/domain/shared/failure"
)

// Chat is the part of the chat service reachable from a realtime connection.
type Chat interface {
	Send(ctx context.Context, params chat.SendParams) (*chat.SendResult, error)
	MarkRead(ctx context.Context, messageID messaging.MessageID, readerID string) (*messaging.Message, error)
	Typing(senderID, receiverID string, active bool) error
	OnlineUsers() []string
}

// Gateway binds authenticated realtime connections to chat operations.
type Gateway struct {
	Chat     Chat
	Presence *presence.Registry
	Logger   *slog.Logger
	Now      func() time.Time
}

var _ Chat = (*chat.Service)(nil)

// Connect registers conn as userID's current connection.
func (g *Gateway) Connect(userID string, conn presence.Conn) {
	g.Presence.Admit(userID, conn)
}

// Disconnect drops conn. A connection already replaced by a newer one leaves
// the user online.
func (g *Gateway) Disconnect(conn presence.Conn) {
	g.Presence.Evict(conn)
}

// HandleFrame decodes one client frame and dispatches it. Failures are
// reported back on conn as error events; the connection stays open.
func (g *Gateway) HandleFrame(ctx context.Context, userID string, conn presence.Conn, raw []byte) {
	cmd, err := events.Decode(raw)
	if err != nil {
		g.reply(conn, userID, errorEvent(err))
		return
	}
	if err := g.Dispatch(ctx, userID, conn, cmd); err != nil {
		g.logger().Debug("realtime command failed", "user_id", userID, "event", cmd.CommandName(), "error", err)
		g.reply(conn, userID, errorEvent(err))
	}
}

// Dispatch runs a decoded command on behalf of userID.
func (g *Gateway) Dispatch(ctx context.Context, userID string, conn presence.Conn, cmd events.Inbound) error {
	switch c := cmd.(type) {
	case events.SendMessageCommand:
		params := chat.SendParams{
			SenderID:      userID,
			ReceiverID:    c.ReceiverID,
			Content:       c.Content,
			ListingRef:    c.ListingRef,
			AttachmentURL: c.AttachmentURL,
		}
		if c.Location != nil {
			params.Location = &messaging.Location{Lat: c.Location.Lat, Lng: c.Location.Lng, Address: c.Location.Address}
		}
		_, err := g.Chat.Send(ctx, params)
		return err
	case events.MarkReadCommand:
		_, err := g.Chat.MarkRead(ctx, messaging.MessageID(c.MessageID), userID)
		return err
	case events.TypingCommand:
		return g.Chat.Typing(userID, c.ReceiverID, true)
	case events.StopTypingCommand:
		return g.Chat.Typing(userID, c.ReceiverID, false)
	case events.GetOnlineUsersCommand:
		g.reply(conn, userID, events.OnlineUsersEvent{Users: g.Chat.OnlineUsers()})
		return nil
	case events.PingCommand:
		g.reply(conn, userID, events.PongEvent{Timestamp: g.now()})
		return nil
	default:
		return events.ErrUnknownEvent
	}
}

func (g *Gateway) reply(conn presence.Conn, userID string, evt events.Outbound) {
	if err := conn.Send(evt); err != nil {
		g.logger().Debug("realtime reply dropped", "user_id", userID, "event", evt.EventName(), "error", err)
	}
}

// errorEvent renders err for the client. Infrastructure details never leave
// the process.
func errorEvent(err error) events.ErrorEvent {
	var classified *failure.Error
	if !errors.As(err, &classified) {
		return events.ErrorEvent{Message: "internal error"}
	}
	if classified.Kind == failure.KindTransient {
		return events.ErrorEvent{Message: "service temporarily unavailable, retry later"}
	}
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 {
		msg = msg[i+2:]
	}
	return events.ErrorEvent{Message: msg}
}

func (g *Gateway) now() time.Time {
	if g.Now != nil {
		return g.Now().UTC()
	}
	return time.Now().UTC()
}

func (g *Gateway) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}
