package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/skilllink/skilllink/pkg/apperrors"
)

// writeError maps the domain error taxonomy onto HTTP responses. Insufficient
// credits surface the shortfall so clients can prompt a top-up.
func (s *Server) writeError(c *gin.Context, err error) {
	var credits *apperrors.InsufficientCreditsError
	var transition *apperrors.InvalidTransitionError
	var validation *apperrors.ValidationError

	switch {
	case errors.As(err, &credits):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":     "insufficient credits",
			"required":  credits.Required,
			"available": credits.Available,
		})
	case errors.Is(err, apperrors.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized"})
	case apperrors.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &transition):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
			"from":  transition.From,
			"to":    transition.To,
		})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Message})
	case errors.Is(err, apperrors.ErrInsufficientBalance):
		c.JSON(http.StatusBadRequest, gin.H{"error": "insufficient balance"})
	default:
		s.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// bindJSON decodes and validates the request body. Returns false after
// writing the 400 response.
func (s *Server) bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	if err := s.validator.Struct(dest); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}
