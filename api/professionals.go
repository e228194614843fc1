package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/skilllink/skilllink/internal/professional"
)

func (s *Server) searchProfessionals(c *gin.Context) {
	page, limit := pageParams(c)
	req := &professional.SearchRequest{
		Query: c.Query("q"),
		City:  c.Query("city"),
		Page:  page,
		Limit: limit,
	}
	if raw := c.Query("category_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category_id"})
			return
		}
		req.CategoryID = &id
	}
	views, total, err := s.svc.Professionals.Search(c.Request.Context(), optionalUserID(c), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"professionals": views, "total": total})
}

func (s *Server) getProfessional(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	view, err := s.svc.Professionals.GetByID(c.Request.Context(), optionalUserID(c), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"professional": view})
}

func (s *Server) registerProfessional(c *gin.Context) {
	var req professional.RegisterRequest
	if !s.bindJSON(c, &req) {
		return
	}
	pro, err := s.svc.Professionals.Register(c.Request.Context(), currentUserID(c), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"professional": pro})
}

func (s *Server) submitKYC(c *gin.Context) {
	var req professional.KYCRequest
	if !s.bindJSON(c, &req) {
		return
	}
	pro, err := s.svc.Professionals.SubmitKYC(c.Request.Context(), currentUserID(c), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"professional": pro})
}

func (s *Server) unlockProfessional(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	result, err := s.svc.Professionals.Unlock(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"professional":      result.View,
		"remaining_credits": result.RemainingCredits,
	})
}

func (s *Server) professionalDashboard(c *gin.Context) {
	stats, err := s.svc.Professionals.Dashboard(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (s *Server) jobLeads(c *gin.Context) {
	page, limit := pageParams(c)
	leads, total, err := s.svc.Professionals.JobLeads(c.Request.Context(), currentUserID(c), page, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leads": leads, "total": total})
}
