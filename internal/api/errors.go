package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sinchita-code/quickchat/internal/auth"
	"github.com/sinchita-code/quickchat/internal/chat"
	"github.com/sinchita-code/quickchat/internal/media"
	"github.com/sinchita-code/quickchat/internal/repository"
	"go.uber.org/zap"
)

// respondError maps a service error onto a status code. Client mistakes get
// the error text back; server-side failures are logged and answered with a
// generic message naming the operation.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	switch {
	case errors.Is(err, auth.ErrAuth):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
	case errors.Is(err, chat.ErrValidation), errors.Is(err, media.ErrInvalidObject):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, repository.ErrDuplicateEmail):
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
	case errors.Is(err, chat.ErrUpload):
		logger.Error(op+" failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
	default:
		logger.Error(op+" failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": op + " failed"})
	}
}

// pathID parses the :id route parameter, answering 400 when it is malformed.
func pathID(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + what + " ID"})
		return uuid.Nil, false
	}
	return id, true
}
