package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skilllink/skilllink/internal/identities"
)

type sendOTPRequest struct {
	Phone string `json:"phone" validate:"required,e164"`
}

func (s *Server) sendOTP(c *gin.Context) {
	var req sendOTPRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if err := s.svc.Identities.SendOTP(c.Request.Context(), req.Phone); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "OTP sent"})
}

func (s *Server) verifyOTP(c *gin.Context) {
	var req identities.VerifyOTPRequest
	if !s.bindJSON(c, &req) {
		return
	}
	user, token, err := s.svc.Identities.VerifyOTP(c.Request.Context(), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "token": token})
}

func (s *Server) googleLogin(c *gin.Context) {
	s.oauthLogin(c, "google")
}

func (s *Server) appleLogin(c *gin.Context) {
	s.oauthLogin(c, "apple")
}

func (s *Server) oauthLogin(c *gin.Context, provider string) {
	var req identities.OAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	req.Provider = provider
	if err := s.validator.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, token, err := s.svc.Identities.OAuthLogin(c.Request.Context(), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "token": token})
}

func (s *Server) me(c *gin.Context) {
	user, err := s.svc.Identities.Me(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (s *Server) updateProfile(c *gin.Context) {
	var req identities.UpdateProfileRequest
	if !s.bindJSON(c, &req) {
		return
	}
	user, err := s.svc.Identities.UpdateProfile(c.Request.Context(), currentUserID(c), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
