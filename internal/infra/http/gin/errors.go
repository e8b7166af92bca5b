package ginserver

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	gin "github.com/gin-gonic/gin"

	"marketchat/internal/domain/shared/failure"
)

func statusFor(err error) int {
	switch failure.KindOf(err) {
	case failure.KindValidation:
		return http.StatusBadRequest
	case failure.KindNotFound:
		return http.StatusNotFound
	case failure.KindForbidden:
		return http.StatusForbidden
	case failure.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the JSON error body for err. Only classified client
// errors expose their message.
func respondError(c *gin.Context, logger *slog.Logger, err error, action string, attrs ...any) {
	status := statusFor(err)
	message := err.Error()
	switch {
	case status == http.StatusServiceUnavailable:
		message = "service temporarily unavailable"
	case status >= http.StatusInternalServerError:
		message = "internal error"
	default:
		if i := strings.Index(message, ": "); i >= 0 {
			message = message[i+2:]
		}
	}
	if logger != nil {
		fields := append([]any{"action", action, "status", status, "error", err}, attrs...)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", fields...)
		} else {
			logger.Debug("request rejected", fields...)
		}
	}
	c.JSON(status, gin.H{"error": message})
}

func parsePositiveInt(raw string, def int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return def
	}
	return value
}

func parseBoolDefault(raw string, def bool) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return value
}
