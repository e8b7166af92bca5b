package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"marketchat/internal/app/chat"
	"marketchat/internal/app/dto"
	"marketchat/internal/domain/messaging"
)

// ChatHTTP exposes the REST side of messaging.
type ChatHTTP interface {
	SendMessage(c *gin.Context)
	ListConversations(c *gin.Context)
	ListMessages(c *gin.Context)
	MarkConversationRead(c *gin.Context)
	ListUnread(c *gin.Context)
	MarkRead(c *gin.Context)
	DeleteMessage(c *gin.Context)
}

type ChatHandler struct {
	Chat   *chat.Service
	Logger *slog.Logger
}

type sendMessageRequest struct {
	ReceiverID    string        `json:"receiver_id" binding:"required,max=128"`
	Content       string        `json:"content" binding:"max=20000"`
	ListingRef    string        `json:"listing_ref" binding:"max=128"`
	AttachmentURL string        `json:"attachment_url" binding:"omitempty,url,max=2048"`
	Location      *dto.Location `json:"location"`
}

// SendMessage runs the same delivery pipeline as the realtime send-message event.
func (h ChatHandler) SendMessage(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	params := chat.SendParams{
		SenderID:      p.ID,
		ReceiverID:    req.ReceiverID,
		Content:       req.Content,
		ListingRef:    req.ListingRef,
		AttachmentURL: req.AttachmentURL,
	}
	if req.Location != nil {
		params.Location = &messaging.Location{Lat: req.Location.Lat, Lng: req.Location.Lng, Address: req.Location.Address}
	}
	result, err := h.Chat.Send(c.Request.Context(), params)
	if err != nil {
		respondError(c, h.Logger, err, "send message", "user_id", p.ID, "receiver_id", req.ReceiverID)
		return
	}
	c.JSON(http.StatusCreated, dto.SentMessage{
		Message: dto.MapChatMessage(*result.Message),
		Status:  result.Status,
	})
}

func (h ChatHandler) ListConversations(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	summaries, err := h.Chat.Conversations(c.Request.Context(), p.ID)
	if err != nil {
		respondError(c, h.Logger, err, "list conversations", "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MapConversations(summaries))
}

// ListMessages returns a page of the thread with :userId. Unless mark_read=false
// the caller's unread messages in the thread are marked read.
func (h ChatHandler) ListMessages(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	counterparty := strings.TrimSpace(c.Param("userId"))
	page := messaging.Page{
		Number: parsePositiveInt(c.Query("page"), 1),
		Size:   parsePositiveInt(c.Query("page_size"), messaging.DefaultPageSize),
	}.Normalized()
	msgs, err := h.Chat.Conversation(c.Request.Context(), chat.ConversationParams{
		UserID:         p.ID,
		CounterpartyID: counterparty,
		Page:           page,
		MarkRead:       parseBoolDefault(c.Query("mark_read"), true),
	})
	if err != nil {
		respondError(c, h.Logger, err, "list messages", "user_id", p.ID, "counterparty_id", counterparty)
		return
	}
	c.JSON(http.StatusOK, dto.ChatMessageList{
		Items:    dto.MapChatMessages(msgs),
		Page:     page.Number,
		PageSize: page.Size,
	})
}

func (h ChatHandler) MarkConversationRead(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	counterparty := strings.TrimSpace(c.Param("userId"))
	count, err := h.Chat.MarkConversationRead(c.Request.Context(), p.ID, counterparty)
	if err != nil {
		respondError(c, h.Logger, err, "mark conversation read", "user_id", p.ID, "counterparty_id", counterparty)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": count})
}

func (h ChatHandler) ListUnread(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	msgs, err := h.Chat.Unread(c.Request.Context(), p.ID)
	if err != nil {
		respondError(c, h.Logger, err, "list unread", "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, dto.ChatMessageList{Items: dto.MapChatMessages(msgs)})
}

func (h ChatHandler) MarkRead(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	id := messaging.MessageID(strings.TrimSpace(c.Param("id")))
	msg, err := h.Chat.MarkRead(c.Request.Context(), id, p.ID)
	if err != nil {
		respondError(c, h.Logger, err, "mark read", "user_id", p.ID, "message_id", id)
		return
	}
	c.JSON(http.StatusOK, dto.MapChatMessage(*msg))
}

func (h ChatHandler) DeleteMessage(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	id := messaging.MessageID(strings.TrimSpace(c.Param("id")))
	msg, err := h.Chat.Delete(c.Request.Context(), id, p.ID)
	if err != nil {
		respondError(c, h.Logger, err, "delete message", "user_id", p.ID, "message_id", id)
		return
	}
	c.JSON(http.StatusOK, dto.MapChatMessage(*msg))
}

var _ ChatHTTP = (*ChatHandler)(nil)
