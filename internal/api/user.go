package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sinchita-code/quickchat/internal/chat"
	"github.com/sinchita-code/quickchat/internal/media"
	"github.com/sinchita-code/quickchat/internal/middleware"
	"github.com/sinchita-code/quickchat/internal/repository"
	"go.uber.org/zap"
)

// UserHandler handles profiles and the roster.
type UserHandler struct {
	repo          repository.UserRepository
	chat          *chat.Service
	media         media.Store
	maxImageBytes int64
	logger        *zap.Logger
}

func NewUserHandler(
	repo repository.UserRepository,
	chatService *chat.Service,
	store media.Store,
	maxImageBytes int64,
	logger *zap.Logger,
) *UserHandler {
	return &UserHandler{
		repo:          repo,
		chat:          chatService,
		media:         store,
		maxImageBytes: maxImageBytes,
		logger:        logger,
	}
}

// GetMe handles GET /v1/users/me
func (h *UserHandler) GetMe(c *gin.Context) {
	user, err := h.repo.GetByID(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "get user", err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

type updateProfileRequest struct {
	FullName   *string `json:"full_name"`
	Bio        *string `json:"bio"`
	ProfilePic string  `json:"profile_pic"` // base64 data URI, uploaded
}

// UpdateProfile handles PUT /v1/users/me
//
// Omitted fields keep their value. A profile_pic is uploaded to the media
// store and the resulting URL is stored, never the raw bytes.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)

	current, err := h.repo.GetByID(ctx, userID)
	if err != nil {
		respondError(c, h.logger, "update profile", err)
		return
	}
	if current == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	fullName, bio := current.FullName, current.Bio
	if req.FullName != nil {
		fullName = strings.TrimSpace(*req.FullName)
		if fullName == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "full_name cannot be empty"})
			return
		}
	}
	if req.Bio != nil {
		bio = *req.Bio
	}

	var picURL *string
	if req.ProfilePic != "" {
		url, err := h.uploadAvatar(c, req.ProfilePic)
		if err != nil {
			respondError(c, h.logger, "update profile", err)
			return
		}
		picURL = &url
	}

	user, err := h.repo.UpdateProfile(ctx, userID, fullName, bio, picURL)
	if err != nil {
		respondError(c, h.logger, "update profile", err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) uploadAvatar(c *gin.Context, dataURI string) (string, error) {
	obj, err := media.DecodeDataURI(dataURI)
	if err != nil {
		return "", err
	}
	if !obj.IsImage() {
		return "", fmt.Errorf("%w: profile_pic must be an image", chat.ErrValidation)
	}
	if int64(len(obj.Data)) > h.maxImageBytes {
		return "", fmt.Errorf("%w: profile_pic larger than %d bytes", chat.ErrValidation, h.maxImageBytes)
	}
	obj.Filename = "avatar"
	obj.UploadedBy = middleware.GetUserID(c).String()

	url, err := h.media.Upload(c.Request.Context(), obj)
	if err != nil {
		return "", fmt.Errorf("%w: %w", chat.ErrUpload, err)
	}
	return url, nil
}

// List handles GET /v1/users?q=
//
// Everyone except the caller, with online flags and the caller's unseen
// counts per sender.
func (h *UserHandler) List(c *gin.Context) {
	roster, err := h.chat.Roster(c.Request.Context(), middleware.GetUserID(c), c.Query("q"))
	if err != nil {
		respondError(c, h.logger, "list users", err)
		return
	}
	c.JSON(http.StatusOK, roster)
}
