package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"marketchat/internal/infra/config"
	"marketchat/internal/infra/obs"
)

type Handlers struct {
	Chat           ChatHTTP
	Blocks         BlockHTTP
	Realtime       RealtimeHTTP
	Attachments    AttachmentHTTP
	AuthMiddleware gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(cfg, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func NewRouter(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(corsMiddleware(cfg.CORSAllowedOrigins))
	if h.AuthMiddleware != nil {
		router.Use(h.AuthMiddleware)
	}
	router.Use(obsMW.AccessLog())

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	if h.Realtime != nil {
		router.GET("/ws", h.Realtime.Connect)
	}

	api := router.Group("/api/v1")
	if h.Chat != nil {
		api.POST("/messages", h.Chat.SendMessage)
		api.GET("/messages/unread", h.Chat.ListUnread)
		api.POST("/messages/:id/read", h.Chat.MarkRead)
		api.DELETE("/messages/:id", h.Chat.DeleteMessage)
		api.GET("/conversations", h.Chat.ListConversations)
		api.GET("/conversations/:userId/messages", h.Chat.ListMessages)
		api.POST("/conversations/:userId/read", h.Chat.MarkConversationRead)
	}
	if h.Blocks != nil {
		api.GET("/blocks", h.Blocks.List)
		api.GET("/blocks/:userId", h.Blocks.Status)
		api.POST("/blocks/:userId", h.Blocks.Block)
		api.DELETE("/blocks/:userId", h.Blocks.Unblock)
	}
	if h.Realtime != nil {
		api.GET("/presence/online", h.Realtime.Online)
	}
	if h.Attachments != nil {
		api.POST("/attachments", h.Attachments.Upload)
	}
	return router
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", obs.RequestIDHeader},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			obs.RequestIDHeader,
		},
		MaxAge: 12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug", "dev", "local":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
