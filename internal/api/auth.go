package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sinchita-code/quickchat/internal/auth"
	"github.com/sinchita-code/quickchat/internal/middleware"
	"github.com/sinchita-code/quickchat/internal/models"
	"github.com/sinchita-code/quickchat/internal/repository"
	"go.uber.org/zap"
)

// AuthHandler handles signup and login, the only public endpoints, plus
// the authenticated session check.
type AuthHandler struct {
	userRepo repository.UserRepository
	tokens   *auth.Tokens
	logger   *zap.Logger
}

func NewAuthHandler(userRepo repository.UserRepository, tokens *auth.Tokens, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{userRepo: userRepo, tokens: tokens, logger: logger}
}

type signupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"full_name" binding:"required"`
	Bio      string `json:"bio"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// authResponse is what both signup and login return. The client sends the
// token back as "Authorization: Bearer <token>" and as ?token= on the
// websocket.
type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Signup handles POST /v1/auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Password) < auth.MinPasswordLength {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength),
		})
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(c, h.logger, "signup", err)
		return
	}

	// The unique index decides races between two signups for one email.
	user, err := h.userRepo.Create(c.Request.Context(), email, strings.TrimSpace(req.FullName), req.Bio, hash)
	if err != nil {
		respondError(c, h.logger, "signup", err)
		return
	}

	h.issue(c, http.StatusCreated, user, "signup")
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.userRepo.GetByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		respondError(c, h.logger, "login", err)
		return
	}

	// Same answer for unknown email and wrong password, so the endpoint
	// can't be used to probe which emails are registered.
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		respondError(c, h.logger, "login", err)
		return
	}

	h.issue(c, http.StatusOK, user, "login")
}

// Check handles GET /v1/auth/check. The middleware already validated the
// token; this confirms the account still exists.
func (h *AuthHandler) Check(c *gin.Context) {
	user, err := h.userRepo.GetByID(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "check auth", err)
		return
	}
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account no longer exists"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) issue(c *gin.Context, status int, user *models.User, op string) {
	token, err := h.tokens.GenerateToken(user.ID, user.Email)
	if err != nil {
		respondError(c, h.logger, op, err)
		return
	}
	c.JSON(status, authResponse{Token: token, User: user})
}
