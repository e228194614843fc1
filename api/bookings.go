package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/skilllink/skilllink/internal/booking"
)

func (s *Server) createBooking(c *gin.Context) {
	var req booking.CreateRequest
	if !s.bindJSON(c, &req) {
		return
	}
	b, err := s.svc.Bookings.Create(c.Request.Context(), currentUserID(c), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"booking": b})
}

func (s *Server) listBookings(c *gin.Context) {
	page, limit := pageParams(c)
	status := c.Query("status")
	bookings, total, err := s.svc.Bookings.ListForUser(c.Request.Context(), currentUserID(c), status, page, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "total": total})
}

func (s *Server) professionalBookings(c *gin.Context) {
	pro, err := s.svc.Professionals.GetByUserID(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	page, limit := pageParams(c)
	status := c.Query("status")
	bookings, total, err := s.svc.Bookings.ListForProfessional(c.Request.Context(), pro.ID, status, page, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "total": total})
}

func (s *Server) getBooking(c *gin.Context) {
	bookingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	userID := currentUserID(c)
	isAdmin, err := s.svc.Identities.IsAdmin(c.Request.Context(), userID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	b, err := s.svc.Bookings.Get(c.Request.Context(), bookingID, userID, isAdmin)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b})
}

func (s *Server) acceptBooking(c *gin.Context) {
	bookingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	b, err := s.svc.Bookings.Accept(c.Request.Context(), bookingID, currentUserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b})
}

func (s *Server) rejectBooking(c *gin.Context) {
	bookingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	b, err := s.svc.Bookings.Reject(c.Request.Context(), bookingID, currentUserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b})
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=on_the_way in_progress completed"`
}

func (s *Server) updateBookingStatus(c *gin.Context) {
	bookingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req updateStatusRequest
	if !s.bindJSON(c, &req) {
		return
	}
	b, err := s.svc.Bookings.UpdateStatus(c.Request.Context(), bookingID, currentUserID(c), req.Status)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b})
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

func (s *Server) cancelBooking(c *gin.Context) {
	bookingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	// Reason is optional and the body may be empty.
	var req cancelRequest
	_ = c.ShouldBindJSON(&req)
	b, err := s.svc.Bookings.Cancel(c.Request.Context(), bookingID, currentUserID(c), req.Reason)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b})
}

// pathUUID parses a UUID path parameter, writing the 400 response on
// failure.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}
