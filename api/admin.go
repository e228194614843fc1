package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skilllink/skilllink/internal/admin"
)

func (s *Server) adminDashboard(c *gin.Context) {
	stats, err := s.svc.Admin.Dashboard(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (s *Server) pendingKYC(c *gin.Context) {
	page, limit := pageParams(c)
	pros, total, err := s.svc.Admin.PendingKYC(c.Request.Context(), page, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"professionals": pros, "total": total})
}

func (s *Server) approveKYC(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	pro, err := s.svc.Admin.ApproveKYC(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"professional": pro})
}

type rejectKYCRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

func (s *Server) rejectKYC(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req rejectKYCRequest
	_ = c.ShouldBindJSON(&req)
	pro, err := s.svc.Admin.RejectKYC(c.Request.Context(), currentUserID(c), id, req.Reason)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"professional": pro})
}

func (s *Server) adminListUsers(c *gin.Context) {
	filter := listFilter(c)
	users, total, err := s.svc.Admin.ListUsers(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "total": total})
}

func (s *Server) adminListProfessionals(c *gin.Context) {
	filter := listFilter(c)
	pros, total, err := s.svc.Admin.ListProfessionals(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"professionals": pros, "total": total})
}

func (s *Server) adminListBookings(c *gin.Context) {
	filter := listFilter(c)
	bookings, total, err := s.svc.Admin.ListBookings(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "total": total})
}

type setActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func (s *Server) setUserActive(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req setActiveRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if err := s.svc.Admin.SetUserActive(c.Request.Context(), id, *req.Active); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

func (s *Server) createCoupon(c *gin.Context) {
	var req admin.CouponRequest
	if !s.bindJSON(c, &req) {
		return
	}
	coupon, err := s.svc.Admin.CreateCoupon(c.Request.Context(), currentUserID(c), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"coupon": coupon})
}

func (s *Server) revenueAnalytics(c *gin.Context) {
	points, err := s.svc.Admin.RevenueAnalytics(c.Request.Context(), c.Query("period"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revenue": points})
}

func listFilter(c *gin.Context) *admin.ListFilter {
	page, limit := pageParams(c)
	return &admin.ListFilter{
		Status: c.Query("status"),
		Role:   c.Query("role"),
		Search: c.Query("search"),
		Page:   page,
		Limit:  limit,
	}
}
