package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sinchita-code/quickchat/internal/auth"
	"github.com/sinchita-code/quickchat/internal/chat"
	"github.com/sinchita-code/quickchat/internal/media"
	"github.com/sinchita-code/quickchat/internal/middleware"
	"github.com/sinchita-code/quickchat/internal/repository"
	"github.com/sinchita-code/quickchat/internal/ws"
	"go.uber.org/zap"
)

// Deps is everything the HTTP surface needs.
type Deps struct {
	Users         repository.UserRepository
	Chat          *chat.Service
	Tokens        *auth.Tokens
	Media         media.Store
	Files         media.Opener
	Hub           *ws.Hub
	MaxImageBytes int64
	Logger        *zap.Logger

	// Health reports storage reachability. Nil means always healthy.
	Health func(ctx context.Context) error
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Metrics(), middleware.RequestLogger(d.Logger), gin.Recovery())

	// The multipart parser spills to disk past this; images are capped at
	// MaxImageBytes anyway.
	r.MaxMultipartMemory = d.MaxImageBytes + 1<<20

	authHandler := NewAuthHandler(d.Users, d.Tokens, d.Logger)
	userHandler := NewUserHandler(d.Users, d.Chat, d.Media, d.MaxImageBytes, d.Logger)
	messageHandler := NewMessageHandler(d.Chat, d.MaxImageBytes, d.Logger)
	wsHandler := ws.NewHandler(d.Hub, d.Tokens, d.Logger)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if d.Files != nil {
		r.GET("/media/:id", media.NewHandler(d.Files, d.Logger).Get)
	}

	// Public routes
	v1 := r.Group("/v1")
	v1.GET("/health", func(c *gin.Context) {
		if d.Health != nil {
			if err := d.Health(c.Request.Context()); err != nil {
				d.Logger.Warn("health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	v1.POST("/auth/signup", authHandler.Signup)
	v1.POST("/auth/login", authHandler.Login)

	// The websocket authenticates itself so it can take ?token=.
	v1.GET("/ws", wsHandler.Serve)

	// Authenticated routes
	authed := v1.Group("")
	authed.Use(middleware.AuthMiddleware(d.Tokens))

	authed.GET("/auth/check", authHandler.Check)

	authed.GET("/users", userHandler.List)
	authed.GET("/users/me", userHandler.GetMe)
	authed.PUT("/users/me", userHandler.UpdateProfile)

	authed.GET("/messages/:id", messageHandler.History)
	authed.POST("/messages/:id", messageHandler.Send)
	authed.PUT("/messages/:id/seen", messageHandler.MarkSeen)
	authed.PUT("/conversations/:id/seen", messageHandler.MarkAllSeen)

	return r
}
