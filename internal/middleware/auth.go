package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dhanjayarya01/cinemasync-backend/internal/models"
	"github.com/dhanjayarya01/cinemasync-backend/internal/pkg/response"
)

const (
	ContextKeyUserID = "user_id"
	ContextKeyUser   = "user"
)

// TokenVerifier resolves a bearer token to a user record.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*models.UserModel, error)
}

// Auth returns a middleware that enforces bearer token authentication.
func Auth(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Unauthorized(c)
			return
		}
		user, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			response.Unauthorized(c)
			return
		}
		c.Set(ContextKeyUserID, user.ID)
		c.Set(ContextKeyUser, user)
		c.Next()
	}
}

// OptionalAuth sets the user if a valid token is present, but does not block the request.
func OptionalAuth(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := extractToken(c); token != "" {
			if user, err := v.Verify(c.Request.Context(), token); err == nil {
				c.Set(ContextKeyUserID, user.ID)
				c.Set(ContextKeyUser, user)
			}
		}
		c.Next()
	}
}

// CurrentUserID extracts the authenticated user ID from context.
func CurrentUserID(c *gin.Context) string {
	v, _ := c.Get(ContextKeyUserID)
	id, _ := v.(string)
	return id
}

// CurrentUser returns the authenticated user or nil.
func CurrentUser(c *gin.Context) *models.UserModel {
	v, _ := c.Get(ContextKeyUser)
	u, _ := v.(*models.UserModel)
	return u
}

// IsAuthenticated returns true if the request has a valid auth token.
func IsAuthenticated(c *gin.Context) bool {
	return CurrentUserID(c) != ""
}

func extractToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth != "" {
		return NormalizeToken(auth)
	}
	return NormalizeToken(c.Query("token"))
}

// NormalizeToken trims spaces and strips optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
