package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/skilllink/skilllink/internal/catalog"
)

func (s *Server) listCategories(c *gin.Context) {
	categories, err := s.svc.Catalog.ListCategories(c.Request.Context(), false)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (s *Server) listServices(c *gin.Context) {
	var categoryID *uuid.UUID
	if raw := c.Query("category_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category_id"})
			return
		}
		categoryID = &id
	}
	services, err := s.svc.Catalog.ListServices(c.Request.Context(), categoryID, false)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"services": services})
}

func (s *Server) createCategory(c *gin.Context) {
	var req catalog.CategoryRequest
	if !s.bindJSON(c, &req) {
		return
	}
	cat, err := s.svc.Catalog.CreateCategory(c.Request.Context(), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"category": cat})
}

func (s *Server) updateCategory(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req catalog.CategoryRequest
	if !s.bindJSON(c, &req) {
		return
	}
	cat, err := s.svc.Catalog.UpdateCategory(c.Request.Context(), id, &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": cat})
}

func (s *Server) createService(c *gin.Context) {
	var req catalog.ServiceRequest
	if !s.bindJSON(c, &req) {
		return
	}
	svc, err := s.svc.Catalog.CreateService(c.Request.Context(), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"service": svc})
}

func (s *Server) updateService(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req catalog.ServiceRequest
	if !s.bindJSON(c, &req) {
		return
	}
	svc, err := s.svc.Catalog.UpdateService(c.Request.Context(), id, &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"service": svc})
}
