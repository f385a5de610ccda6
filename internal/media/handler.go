package media

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Opener reads stored files back.
type Opener interface {
	Open(ctx context.Context, id string) (*File, error)
}

// Handler serves GET /media/:id.
type Handler struct {
	files  Opener
	logger *zap.Logger
}

func NewHandler(files Opener, logger *zap.Logger) *Handler {
	return &Handler{files: files, logger: logger}
}

func (h *Handler) Get(c *gin.Context) {
	f, err := h.files.Open(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "media not found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to open media", zap.String("id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load media"})
		return
	}
	defer f.Close()

	c.Header("Content-Type", f.ContentType)
	c.Header("Content-Length", strconv.FormatInt(f.Size, 10))
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Status(http.StatusOK)

	if _, err := io.Copy(c.Writer, f); err != nil {
		h.logger.Warn("media stream interrupted", zap.String("id", c.Param("id")), zap.Error(err))
	}
}
