package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sinchita-code/quickchat/internal/auth"
	"github.com/sinchita-code/quickchat/internal/metrics"
	"github.com/sinchita-code/quickchat/internal/middleware"
	"go.uber.org/zap"
)

// Handler serves GET /v1/ws.
type Handler struct {
	hub      *Hub
	verifier auth.Verifier
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHandler(hub *Hub, verifier auth.Verifier, logger *zap.Logger) *Handler {
	return &Handler{
		hub:      hub,
		verifier: verifier,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Browsers authenticate with the token, not cookies, so the
			// origin carries no ambient credentials.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve authenticates before upgrading. A bad token gets a plain 401 and
// the socket is never opened.
func (h *Handler) Serve(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token, _ = middleware.BearerToken(c.GetHeader("Authorization"))
	}

	claims, err := h.verifier.ParseToken(token)
	if err != nil {
		metrics.WebsocketConnections.WithLabelValues("unauthorized").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	socket, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		metrics.WebsocketConnections.WithLabelValues("upgrade_failed").Inc()
		h.logger.Warn("websocket upgrade failed", zap.String("user_id", claims.UserID.String()), zap.Error(err))
		return
	}
	metrics.WebsocketConnections.WithLabelValues("accepted").Inc()

	h.hub.Run(newConn(socket, claims.UserID, h.logger))
}
