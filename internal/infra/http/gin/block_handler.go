package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"marketchat/internal/app/chat"
	"marketchat/internal/app/dto"
)

type BlockHTTP interface {
	Block(c *gin.Context)
	Unblock(c *gin.Context)
	Status(c *gin.Context)
	List(c *gin.Context)
}

type BlockHandler struct {
	Chat   *chat.Service
	Logger *slog.Logger
}

func (h BlockHandler) Block(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	target := strings.TrimSpace(c.Param("userId"))
	if err := h.Chat.Block(c.Request.Context(), p.ID, target); err != nil {
		respondError(c, h.Logger, err, "block user", "user_id", p.ID, "blocked_id", target)
		return
	}
	c.JSON(http.StatusOK, dto.BlockStatus{UserID: target, Blocked: true})
}

func (h BlockHandler) Unblock(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	target := strings.TrimSpace(c.Param("userId"))
	if err := h.Chat.Unblock(c.Request.Context(), p.ID, target); err != nil {
		respondError(c, h.Logger, err, "unblock user", "user_id", p.ID, "blocked_id", target)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h BlockHandler) Status(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	target := strings.TrimSpace(c.Param("userId"))
	status, err := h.Chat.BlockStatus(c.Request.Context(), p.ID, target)
	if err != nil {
		respondError(c, h.Logger, err, "block status", "user_id", p.ID, "other_id", target)
		return
	}
	c.JSON(http.StatusOK, dto.BlockStatus{UserID: target, Blocked: status.Blocked, BlockedBy: status.BlockedBy})
}

func (h BlockHandler) List(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	relations, err := h.Chat.ListBlocked(c.Request.Context(), p.ID)
	if err != nil {
		respondError(c, h.Logger, err, "list blocked", "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MapBlockedUsers(relations))
}

var _ BlockHTTP = (*BlockHandler)(nil)
