// Package review handles post-completion feedback and keeps each
// professional's rating aggregate current.
package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/skilllink/skilllink/pkg/apperrors"
	"github.com/skilllink/skilllink/pkg/models"
)

// CreateRequest carries a new review for a completed booking.
type CreateRequest struct {
	BookingID uuid.UUID `json:"booking_id" validate:"required,uuid"`
	Rating    int       `json:"rating" validate:"required,min=1,max=5"`
	Comment   string    `json:"comment" validate:"omitempty,max=2000"`
	Photos    []string  `json:"photos" validate:"omitempty,max=5,dive,url"`
}

// ReviewService defines review operations.
type ReviewService interface {
	Start() error
	Stop() error
	Create(ctx context.Context, userID uuid.UUID, req *CreateRequest) (*models.Review, error)
	ListForProfessional(ctx context.Context, professionalID uuid.UUID, page, limit int) ([]*models.Review, int64, error)
}

// Service implements ReviewService.
type Service struct {
	logger    *zap.Logger
	db        *gorm.DB
	sanitizer *bluemonday.Policy
}

// NewService creates a new ReviewService.
func NewService(logger *zap.Logger, db *gorm.DB) (*Service, error) {
	return &Service{logger: logger, db: db, sanitizer: bluemonday.StrictPolicy()}, nil
}

// Start starts the review service.
func (s *Service) Start() error {
	s.logger.Info("Review service started")
	return nil
}

// Stop stops the review service.
func (s *Service) Stop() error {
	s.logger.Info("Review service stopped")
	return nil
}

// Create records the customer's review of a completed booking. One review
// per booking, by the booking's customer only. The professional's rating
// aggregate is recomputed in the same transaction.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, req *CreateRequest) (*models.Review, error) {
	var booking models.Booking
	err := s.db.WithContext(ctx).Where("id = ?", req.BookingID).First(&booking).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("booking")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking.UserID != userID {
		return nil, apperrors.ErrNotAuthorized
	}
	if booking.Status != models.BookingCompleted {
		return nil, apperrors.NewValidation("only completed bookings can be reviewed")
	}
	if booking.ReviewID != nil {
		return nil, apperrors.NewValidation("booking already reviewed")
	}

	now := time.Now()
	review := &models.Review{
		ID:             uuid.New(),
		BookingID:      booking.ID,
		UserID:         userID,
		ProfessionalID: booking.ProfessionalID,
		Rating:         req.Rating,
		Comment:        s.sanitizer.Sanitize(req.Comment),
		Photos:         req.Photos,
		IsVerified:     true,
		IsVisible:      true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(review).Error; err != nil {
			return fmt.Errorf("failed to create review: %w", err)
		}
		res := tx.Model(&models.Booking{}).
			Where("id = ? AND review_id IS NULL", booking.ID).
			Update("review_id", review.ID)
		if res.Error != nil {
			return fmt.Errorf("failed to link review: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.NewValidation("booking already reviewed")
		}
		return s.recomputeRating(tx, booking.ProfessionalID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Review created",
		zap.String("review_id", review.ID.String()),
		zap.String("booking_id", booking.ID.String()),
		zap.Int("rating", review.Rating))
	return review, nil
}

// ListForProfessional returns visible reviews for a professional, newest
// first.
func (s *Service) ListForProfessional(ctx context.Context, professionalID uuid.UUID, page, limit int) ([]*models.Review, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	q := s.db.WithContext(ctx).Model(&models.Review{}).
		Where("professional_id = ? AND is_visible = ?", professionalID, true)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count reviews: %w", err)
	}
	var reviews []*models.Review
	err := q.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&reviews).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, total, nil
}

// recomputeRating refreshes the professional's average and count from the
// visible reviews.
func (s *Service) recomputeRating(tx *gorm.DB, professionalID uuid.UUID) error {
	var agg struct {
		Avg   float64
		Count int64
	}
	err := tx.Model(&models.Review{}).
		Select("COALESCE(AVG(rating), 0) AS avg, COUNT(*) AS count").
		Where("professional_id = ? AND is_visible = ?", professionalID, true).
		Scan(&agg).Error
	if err != nil {
		return fmt.Errorf("failed to aggregate ratings: %w", err)
	}
	return tx.Model(&models.Professional{}).
		Where("id = ?", professionalID).
		Updates(map[string]interface{}{
			"rating_average": agg.Avg,
			"rating_count":   agg.Count,
		}).Error
}
