package ginserver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	gin "github.com/gin-gonic/gin"

	"marketchat/internal/app/dto"
	"marketchat/internal/infra/storage/s3"
)

const defaultAttachmentMaxBytes = 10 << 20

var allowedAttachmentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"image/gif":       true,
	"application/pdf": true,
}

type AttachmentHTTP interface {
	Upload(c *gin.Context)
}

type AttachmentHandler struct {
	Store    s3.AttachmentStore
	MaxBytes int64
	Logger   *slog.Logger
}

// Upload stores a multipart "file" and returns the URL to put in a message's
// attachment field.
func (h AttachmentHandler) Upload(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	if h.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "attachments unavailable"})
		return
	}
	maxBytes := h.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultAttachmentMaxBytes
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if fileHeader.Size > maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file too large (max %d bytes)", maxBytes)})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot open file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}
	if len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is empty"})
		return
	}
	if int64(len(data)) > maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file too large (max %d bytes)", maxBytes)})
		return
	}
	mtype := mimetype.Detect(data)
	contentType := strings.SplitN(mtype.String(), ";", 2)[0]
	if !allowedAttachmentTypes[contentType] {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported content type: " + contentType})
		return
	}

	url, err := h.Store.Put(c.Request.Context(), p.ID, data, contentType, mtype.Extension())
	if err != nil {
		if errors.Is(err, s3.ErrNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "attachments unavailable"})
			return
		}
		if h.Logger != nil {
			h.Logger.Error("attachment upload failed", "user_id", p.ID, "error", err)
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "attachment storage unavailable"})
		return
	}
	c.JSON(http.StatusCreated, dto.Attachment{URL: url, ContentType: contentType, Size: int64(len(data))})
}

var _ AttachmentHTTP = (*AttachmentHandler)(nil)
