package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const userIDKey = "userID"

// authMiddleware requires a valid Bearer token and stores the user id on
// the context.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		userID, err := s.svc.Identities.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// optionalAuthMiddleware stores the user id when a valid token is present
// and lets anonymous requests through.
func (s *Server) optionalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			if userID, err := s.svc.Identities.ValidateToken(token); err == nil {
				c.Set(userIDKey, userID)
			}
		}
		c.Next()
	}
}

// adminMiddleware requires the authenticated user to hold the admin role.
// Must run after authMiddleware.
func (s *Server) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := currentUserID(c)
		ok, err := s.svc.Identities.IsAdmin(c.Request.Context(), userID)
		if err != nil {
			s.logger.Error("Admin check failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// currentUserID returns the authenticated user id. Only valid behind
// authMiddleware.
func currentUserID(c *gin.Context) uuid.UUID {
	id, _ := c.Get(userIDKey)
	userID, _ := id.(uuid.UUID)
	return userID
}

// optionalUserID returns the viewer's id when authenticated, else nil.
func optionalUserID(c *gin.Context) *uuid.UUID {
	id, ok := c.Get(userIDKey)
	if !ok {
		return nil
	}
	userID, ok := id.(uuid.UUID)
	if !ok {
		return nil
	}
	return &userID
}
