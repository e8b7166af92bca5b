package ginserver

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"marketchat/internal/app/dto"
	"marketchat/internal/infra/http/ws"
)

type RealtimeHTTP interface {
	Connect(c *gin.Context)
	Online(c *gin.Context)
}

// OnlineLister reports who currently holds a realtime connection.
type OnlineLister interface {
	ListOnline() []string
}

// RealtimeHandler upgrades authenticated requests to websocket sessions.
type RealtimeHandler struct {
	Dispatcher ws.Dispatcher
	Presence   OnlineLister
	Upgrader   *websocket.Upgrader
	Options    ws.Options
	// BaseContext outlives the HTTP request; sessions end with it.
	BaseContext context.Context
	Logger      *slog.Logger
}

// Connect admits the caller only when the userId query parameter matches the
// authenticated principal.
func (h RealtimeHandler) Connect(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	claimed := strings.TrimSpace(c.Query("userId"))
	if claimed == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}
	if claimed != p.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "userId does not match credentials"})
		return
	}
	upgrader := h.Upgrader
	if upgrader == nil {
		upgrader = ws.NewUpgrader(nil)
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Debug("websocket upgrade failed", "user_id", p.ID, "error", err)
		}
		return
	}
	ctx := h.BaseContext
	if ctx == nil {
		ctx = context.Background()
	}
	go ws.NewClient(conn, p.ID, h.Options, h.Logger).Run(ctx, h.Dispatcher)
}

func (h RealtimeHandler) Online(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}
	users := []string{}
	if h.Presence != nil {
		users = h.Presence.ListOnline()
	}
	c.JSON(http.StatusOK, dto.OnlineUsers{Users: users})
}

var _ RealtimeHTTP = (*RealtimeHandler)(nil)
