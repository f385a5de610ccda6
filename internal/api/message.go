package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sinchita-code/quickchat/internal/chat"
	"github.com/sinchita-code/quickchat/internal/media"
	"github.com/sinchita-code/quickchat/internal/middleware"
	"go.uber.org/zap"
)

type MessageHandler struct {
	chat          *chat.Service
	maxImageBytes int64
	logger        *zap.Logger
}

func NewMessageHandler(chatService *chat.Service, maxImageBytes int64, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{chat: chatService, maxImageBytes: maxImageBytes, logger: logger}
}

// History handles GET /v1/messages/:id
//
// Reading a conversation marks everything the peer sent the caller as seen
// and notifies the peer.
func (h *MessageHandler) History(c *gin.Context) {
	peerID, ok := pathID(c, "user")
	if !ok {
		return
	}

	views, err := h.chat.History(c.Request.Context(), middleware.GetUserID(c), peerID)
	if err != nil {
		respondError(c, h.logger, "get messages", err)
		return
	}
	c.JSON(http.StatusOK, views)
}

type sendMessageJSON struct {
	Text  string `json:"text"`
	Image string `json:"image"` // base64 data URI
}

// Send handles POST /v1/messages/:id
//
// Accepts multipart/form-data with a "text" field and an "image" file, or a
// JSON body whose image is a data URI.
func (h *MessageHandler) Send(c *gin.Context) {
	receiverID, ok := pathID(c, "user")
	if !ok {
		return
	}

	in := chat.SendInput{SenderID: middleware.GetUserID(c), ReceiverID: receiverID}

	var err error
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		in.Text = c.PostForm("text")
		in.Image, err = h.formImage(c)
	} else {
		var req sendMessageJSON
		if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": bindErr.Error()})
			return
		}
		in.Text = req.Text
		if req.Image != "" {
			var obj media.Object
			obj, err = media.DecodeDataURI(req.Image)
			in.Image = &obj
		}
	}
	if err != nil {
		respondError(c, h.logger, "send message", err)
		return
	}

	view, err := h.chat.Send(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, "send message", err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// formImage reads the optional "image" part. A missing part is not an error.
func (h *MessageHandler) formImage(c *gin.Context) (*media.Object, error) {
	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", chat.ErrValidation, err)
	}
	if fh.Size > h.maxImageBytes {
		return nil, fmt.Errorf("%w: image larger than %d bytes", chat.ErrValidation, h.maxImageBytes)
	}

	data, err := readPart(fh, h.maxImageBytes)
	if err != nil {
		return nil, err
	}
	return &media.Object{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func readPart(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open image part: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read image part: %w", err)
	}
	return data, nil
}

// MarkSeen handles PUT /v1/messages/:id/seen
func (h *MessageHandler) MarkSeen(c *gin.Context) {
	messageID, ok := pathID(c, "message")
	if !ok {
		return
	}

	updated, err := h.chat.MarkSeen(c.Request.Context(), middleware.GetUserID(c), messageID)
	if err != nil {
		respondError(c, h.logger, "mark seen", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// MarkAllSeen handles PUT /v1/conversations/:id/seen
func (h *MessageHandler) MarkAllSeen(c *gin.Context) {
	peerID, ok := pathID(c, "user")
	if !ok {
		return
	}

	n, err := h.chat.MarkAllSeen(c.Request.Context(), middleware.GetUserID(c), peerID)
	if err != nil {
		respondError(c, h.logger, "mark conversation seen", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}
