package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"marketchat/internal/app/services/auth"
	domainuser "marketchat/internal/domain/user"
	"marketchat/internal/infra/obs"
)

const principalContextKey = "marketchat.principal"

type principal struct {
	ID      string
	Profile domainuser.Profile
}

type AuthMiddleware struct {
	Service *auth.Service
	Logger  *slog.Logger
}

// Handle resolves the bearer credential when one is present. Routes decide on
// their own whether a principal is required.
func (m AuthMiddleware) Handle(c *gin.Context) {
	token := requestToken(c)
	if token == "" || m.Service == nil {
		c.Next()
		return
	}
	resolved, err := m.Service.ResolveToken(c.Request.Context(), token)
	if err != nil {
		if !errors.Is(err, auth.ErrUnauthorized) && m.Logger != nil {
			m.Logger.Warn("token resolution failed", "error", err)
		}
		c.Next()
		return
	}
	c.Set(principalContextKey, principal{ID: resolved.UserID, Profile: resolved.Profile})
	c.Set(obs.UserIDKey, resolved.UserID)
	c.Next()
}

func currentPrincipal(c *gin.Context) (principal, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return principal{}, false
	}
	p, ok := val.(principal)
	return p, ok
}

func requireUser(c *gin.Context) (principal, bool) {
	p, ok := currentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return principal{}, false
	}
	return p, true
}

// requestToken reads the Authorization header. Browsers cannot set headers on
// a websocket handshake, so upgrades may pass the token as a query parameter.
func requestToken(c *gin.Context) string {
	if token := extractBearerToken(c.GetHeader("Authorization")); token != "" {
		return token
	}
	if websocket.IsWebSocketUpgrade(c.Request) {
		return strings.TrimSpace(c.Query("token"))
	}
	return ""
}

func extractBearerToken(header string) string {
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
