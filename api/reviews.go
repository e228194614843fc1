package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skilllink/skilllink/internal/review"
)

func (s *Server) createReview(c *gin.Context) {
	var req review.CreateRequest
	if !s.bindJSON(c, &req) {
		return
	}
	r, err := s.svc.Reviews.Create(c.Request.Context(), currentUserID(c), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"review": r})
}

func (s *Server) listReviews(c *gin.Context) {
	professionalID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	page, limit := pageParams(c)
	reviews, total, err := s.svc.Reviews.ListForProfessional(c.Request.Context(), professionalID, page, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": reviews, "total": total})
}

type applyReferralRequest struct {
	Code string `json:"code" validate:"required,max=30"`
}

func (s *Server) applyReferral(c *gin.Context) {
	var req applyReferralRequest
	if !s.bindJSON(c, &req) {
		return
	}
	ref, err := s.svc.Referrals.Apply(c.Request.Context(), currentUserID(c), req.Code)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"referral": ref})
}

func (s *Server) myReferrals(c *gin.Context) {
	summary, err := s.svc.Referrals.MyReferrals(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
