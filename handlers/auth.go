package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/paperdesk/paperdesk/internal/config"
	paperhandler "github.com/paperdesk/paperdesk/internal/paper/handler"
	"github.com/paperdesk/paperdesk/internal/paper/service"
	"github.com/paperdesk/paperdesk/internal/sessions"
	"github.com/paperdesk/paperdesk/internal/tokens"
	"github.com/paperdesk/paperdesk/internal/users"
	"github.com/paperdesk/paperdesk/pkg/logger"
	"github.com/paperdesk/paperdesk/pkg/middleware"
)

// LoginRequest is the password login body.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ReviewerRequest creates a reviewer account assigned to one paper.
type ReviewerRequest struct {
	Username string `json:"username" binding:"required"`
	Name     string `json:"name"`
	Password string `json:"password" binding:"required"`
	PaperID  int64  `json:"paperId" binding:"required"`
}

// ReviewerCreator is satisfied by the paper service, which checks that the
// paper exists before the account is created.
type ReviewerCreator interface {
	AddReviewer(ctx context.Context, actor service.Actor, id int64, username, name, password string) (*users.User, error)
}

// AuthHandler holds dependencies
type AuthHandler struct {
	cfg         *config.Config
	usersSvc    *users.Service
	revocations sessions.Revocations
	reviewers   ReviewerCreator
}

func NewAuthHandler(cfg *config.Config, u *users.Service, r sessions.Revocations, rc ReviewerCreator) *AuthHandler {
	return &AuthHandler{cfg: cfg, usersSvc: u, revocations: r, reviewers: rc}
}

// Register routes under /auth. authMW guards the routes that need a caller.
func (h *AuthHandler) Register(rg gin.IRouter, authMW gin.HandlerFunc) {
	a := rg.Group("/auth")
	a.POST("/login", h.Login)
	a.POST("/logout", authMW, h.Logout)
	a.GET("/me", authMW, h.Me)
	a.POST("/reviewers", authMW, middleware.RequireRole(string(users.RoleAdmin)), h.AddReviewer)
	a.GET("/users", authMW, middleware.RequireRole(string(users.RoleAdmin)), h.ListUsers)
}

// Login checks the password and returns a signed access token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := h.usersSvc.Authenticate(c.Request.Context(), req.Username, req.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}
	if err != nil {
		logger.Errorf("login %s: %v", req.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authentication failed"})
		return
	}
	ttl := h.cfg.JWT.AccessTokenTTL
	access, err := tokens.GenerateAccessToken(h.cfg, u, ttl)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return
	}
	logger.Infof("login: %s (%s)", u.Username, u.Role)
	c.JSON(http.StatusOK, gin.H{"accessToken": access, "tokenType": "Bearer", "expiresIn": int(ttl.Seconds()), "user": u})
}

// Logout revokes the presented access token for the rest of its lifetime.
func (h *AuthHandler) Logout(c *gin.Context) {
	raw := middleware.RawToken(c)
	if err := h.revocations.Revoke(c.Request.Context(), raw, tokens.RemainingTTL(raw)); err != nil {
		logger.Errorf("revoke token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke access token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the caller's account, or the token identity when the account
// no longer exists.
func (h *AuthHandler) Me(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	u, err := h.usersSvc.GetByUsername(c.Request.Context(), id.Subject)
	if err != nil {
		logger.Errorf("lookup %s: %v", id.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
		return
	}
	if u == nil {
		c.JSON(http.StatusOK, gin.H{"username": id.Subject, "name": id.Name, "role": id.Role})
		return
	}
	c.JSON(http.StatusOK, u)
}

// AddReviewer creates a reviewer account for a paper. Admin only.
func (h *AuthHandler) AddReviewer(c *gin.Context) {
	var req ReviewerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, _ := middleware.IdentityFrom(c)
	actor := service.Actor{Username: id.Subject, Role: users.Role(id.Role)}
	u, err := h.reviewers.AddReviewer(c.Request.Context(), actor, req.PaperID, req.Username, req.Name, req.Password)
	if err != nil {
		c.JSON(paperhandler.StatusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, u)
}

// ListUsers returns every account. Admin only.
func (h *AuthHandler) ListUsers(c *gin.Context) {
	list, err := h.usersSvc.List(c.Request.Context())
	if err != nil {
		logger.Errorf("list users: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
		return
	}
	c.JSON(http.StatusOK, list)
}
