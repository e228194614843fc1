// Package booking implements the service-request lifecycle: a fixed state
// machine coupled to the wallet ledger for credit consumption and refunds.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/skilllink/skilllink/internal/config"
	"github.com/skilllink/skilllink/internal/wallet"
	"github.com/skilllink/skilllink/pkg/apperrors"
	"github.com/skilllink/skilllink/pkg/metrics"
	"github.com/skilllink/skilllink/pkg/models"
)

// transitions is the complete legal transition table. Absence means the
// transition is rejected with InvalidTransitionError and no mutation.
var transitions = map[string][]string{
	models.BookingPending:    {models.BookingAccepted, models.BookingRejected, models.BookingCancelled},
	models.BookingAccepted:   {models.BookingOnTheWay, models.BookingCancelled},
	models.BookingOnTheWay:   {models.BookingInProgress, models.BookingCancelled},
	models.BookingInProgress: {models.BookingCompleted, models.BookingCancelled},
	models.BookingCompleted:  {},
	models.BookingRejected:   {},
	models.BookingCancelled:  {},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CompletionListener is notified after a booking commits its completed
// transition. Listeners run outside the booking's own business rules
// (referral rewards, notifications); their failures are logged, not
// propagated.
type CompletionListener interface {
	BookingCompleted(ctx context.Context, b *models.Booking)
}

// CreateRequest carries the caller-supplied fields of a new booking.
type CreateRequest struct {
	ProfessionalID    uuid.UUID       `json:"professional_id" validate:"required"`
	ServiceID         uuid.UUID       `json:"service_id" validate:"required"`
	CategoryID        uuid.UUID       `json:"category_id" validate:"required"`
	ServiceDate       time.Time       `json:"service_date" validate:"required"`
	ServiceTime       string          `json:"service_time" validate:"required"`
	Address           models.Address  `json:"address"`
	Description       string          `json:"description" validate:"omitempty,max=2000"`
	AdditionalCharges decimal.Decimal `json:"additional_charges"`
	Discount          decimal.Decimal `json:"discount"`
}

// BookingService drives a booking through its lifecycle.
type BookingService interface {
	Start() error
	Stop() error
	Create(ctx context.Context, userID uuid.UUID, req *CreateRequest) (*models.Booking, error)
	Accept(ctx context.Context, bookingID, actorID uuid.UUID) (*models.Booking, error)
	Reject(ctx context.Context, bookingID, actorID uuid.UUID) (*models.Booking, error)
	UpdateStatus(ctx context.Context, bookingID, actorID uuid.UUID, status string) (*models.Booking, error)
	Cancel(ctx context.Context, bookingID, actorID uuid.UUID, reason string) (*models.Booking, error)
	Get(ctx context.Context, bookingID, actorID uuid.UUID, isAdmin bool) (*models.Booking, error)
	ListForUser(ctx context.Context, userID uuid.UUID, status string, page, limit int) ([]*models.Booking, int64, error)
	ListForProfessional(ctx context.Context, professionalID uuid.UUID, status string, page, limit int) ([]*models.Booking, int64, error)
	AddCompletionListener(l CompletionListener)
}

const commitRetries = 5

var errStaleBooking = errors.New("booking version changed")

// Service implements BookingService.
type Service struct {
	logger    *zap.Logger
	db        *gorm.DB
	wallets   wallet.WalletService
	credits   config.CreditsConfig
	listeners []CompletionListener
}

// NewService creates a new BookingService.
func NewService(logger *zap.Logger, db *gorm.DB, wallets wallet.WalletService, credits config.CreditsConfig) (*Service, error) {
	return &Service{logger: logger, db: db, wallets: wallets, credits: credits}, nil
}

// Start starts the booking service.
func (s *Service) Start() error {
	s.logger.Info("Booking service started")
	return nil
}

// Stop stops the booking service.
func (s *Service) Stop() error {
	s.logger.Info("Booking service stopped")
	return nil
}

// AddCompletionListener registers a completion listener. Not safe for
// concurrent use; call during wiring, before Start.
func (s *Service) AddCompletionListener(l CompletionListener) {
	s.listeners = append(s.listeners, l)
}

// Create books a professional. The requester pays the configured booking
// cost in credits up front; if the booking record cannot be created the
// deduction is compensated, so no credit is lost and no orphaned booking
// exists.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, req *CreateRequest) (*models.Booking, error) {
	var prof models.Professional
	if err := s.db.WithContext(ctx).Where("id = ?", req.ProfessionalID).First(&prof).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("professional")
		}
		return nil, fmt.Errorf("failed to find professional: %w", err)
	}
	if !prof.IsActive || prof.KYC.Status != models.KYCApproved {
		return nil, apperrors.NewNotFound("professional")
	}

	basePrice := prof.Pricing.BasePrice
	total := basePrice.Add(req.AdditionalCharges).Sub(req.Discount)

	id := uuid.New()
	now := time.Now()
	booking := &models.Booking{
		ID:             id,
		UserID:         userID,
		ProfessionalID: prof.ID,
		ServiceID:      req.ServiceID,
		CategoryID:     req.CategoryID,
		Status:         models.BookingPending,
		ServiceDate:    req.ServiceDate,
		ServiceTime:    req.ServiceTime,
		Address:        req.Address,
		Description:    req.Description,
		Pricing: models.BookingPricing{
			BasePrice:         basePrice,
			AdditionalCharges: req.AdditionalCharges,
			Discount:          req.Discount,
			TotalAmount:       total,
			PaidAmount:        decimal.Zero,
			CreditsUsed:       s.credits.BookingCost,
		},
		ChatRoomID: fmt.Sprintf("room_%s", id),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// Ledger first: the credit spend must land before the booking exists.
	if _, err := s.wallets.DeductCredits(ctx, userID, s.credits.BookingCost, "Booking created", id.String()); err != nil {
		return nil, err
	}
	metrics.CreditsSpent.WithLabelValues("booking").Add(float64(s.credits.BookingCost))

	if err := s.db.WithContext(ctx).Create(booking).Error; err != nil {
		// Compensate the spend so the requester is made whole.
		refund := s.credits.CreditValue.Mul(decimal.NewFromInt(int64(s.credits.BookingCost)))
		if _, rerr := s.wallets.AddFunds(ctx, userID, refund, "Refund for failed booking", id.String()); rerr != nil {
			s.logger.Error("Failed to compensate booking credit",
				zap.String("userID", userID.String()), zap.Error(rerr))
		}
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	metrics.BookingsCreated.Inc()
	return booking, nil
}

// Accept moves a pending booking to accepted. Only the assigned
// professional may accept; AcceptedAt is stamped exactly once.
func (s *Service) Accept(ctx context.Context, bookingID, actorID uuid.UUID) (*models.Booking, error) {
	booking, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.requireProfessional(ctx, booking, actorID); err != nil {
		return nil, err
	}
	if !CanTransition(booking.Status, models.BookingAccepted) {
		return nil, &apperrors.InvalidTransitionError{From: booking.Status, To: models.BookingAccepted}
	}

	now := time.Now()
	return s.commit(ctx, booking, func(b *models.Booking) {
		b.Status = models.BookingAccepted
		if b.AcceptedAt == nil {
			b.AcceptedAt = &now
		}
	})
}

// Reject declines a pending booking and refunds the credits the requester
// spent at creation. The refund is attempted first; the status change only
// commits once the requester's wallet is made whole.
func (s *Service) Reject(ctx context.Context, bookingID, actorID uuid.UUID) (*models.Booking, error) {
	booking, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.requireProfessional(ctx, booking, actorID); err != nil {
		return nil, err
	}
	if !CanTransition(booking.Status, models.BookingRejected) {
		return nil, &apperrors.InvalidTransitionError{From: booking.Status, To: models.BookingRejected}
	}

	if booking.Pricing.CreditsUsed > 0 {
		refund := s.credits.CreditValue.Mul(decimal.NewFromInt(int64(booking.Pricing.CreditsUsed)))
		if _, err := s.wallets.AddFunds(ctx, booking.UserID, refund, "Refund for rejected booking", booking.ID.String()); err != nil {
			return nil, fmt.Errorf("failed to refund booking credits: %w", err)
		}
	}

	updated, err := s.commit(ctx, booking, func(b *models.Booking) {
		b.Status = models.BookingRejected
	})
	if err != nil {
		// Roll the refund back; the booking is still pending.
		if booking.Pricing.CreditsUsed > 0 {
			if _, derr := s.wallets.DeductCredits(ctx, booking.UserID, booking.Pricing.CreditsUsed, "Reversal of rejected-booking refund", booking.ID.String()); derr != nil {
				s.logger.Error("Failed to reverse booking refund",
					zap.String("bookingID", booking.ID.String()), zap.Error(derr))
			}
		}
		return nil, err
	}
	return updated, nil
}

// UpdateStatus advances a booking to on_the_way, in_progress or completed.
// Either party may advance, subject to the transition table. Completion
// stamps CompletedAt once and notifies completion listeners.
func (s *Service) UpdateStatus(ctx context.Context, bookingID, actorID uuid.UUID, status string) (*models.Booking, error) {
	switch status {
	case models.BookingOnTheWay, models.BookingInProgress, models.BookingCompleted:
	default:
		return nil, apperrors.NewValidation("status must be one of on_the_way, in_progress, completed")
	}

	booking, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParty(ctx, booking, actorID); err != nil {
		return nil, err
	}
	if !CanTransition(booking.Status, status) {
		return nil, &apperrors.InvalidTransitionError{From: booking.Status, To: status}
	}

	now := time.Now()
	updated, err := s.commit(ctx, booking, func(b *models.Booking) {
		b.Status = status
		if status == models.BookingCompleted && b.CompletedAt == nil {
			b.CompletedAt = &now
		}
	})
	if err != nil {
		return nil, err
	}

	if status == models.BookingCompleted {
		for _, l := range s.listeners {
			l.BookingCompleted(ctx, updated)
		}
	}
	return updated, nil
}

// Cancel ends a booking from any cancellable state. An in-progress
// cancellation charges the configured fee rate on the total; everything
// else refunds in full. The refund lands in the requester's wallet before
// the status change commits.
func (s *Service) Cancel(ctx context.Context, bookingID, actorID uuid.UUID, reason string) (*models.Booking, error) {
	if reason == "" {
		return nil, apperrors.NewValidation("cancellation reason is required")
	}

	booking, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	isProfessional, err := s.isAssignedProfessional(ctx, booking, actorID)
	if err != nil {
		return nil, err
	}
	if !isProfessional && booking.UserID != actorID {
		return nil, apperrors.ErrNotAuthorized
	}
	if !CanTransition(booking.Status, models.BookingCancelled) {
		return nil, &apperrors.InvalidTransitionError{From: booking.Status, To: models.BookingCancelled}
	}

	fee := decimal.Zero
	if booking.Status == models.BookingInProgress {
		fee = booking.Pricing.TotalAmount.Mul(s.credits.CancellationFeeRate)
	}
	refund := booking.Pricing.TotalAmount.Sub(fee)

	if refund.IsPositive() {
		if _, err := s.wallets.AddFunds(ctx, booking.UserID, refund, "Refund for cancelled booking", booking.ID.String()); err != nil {
			return nil, fmt.Errorf("failed to refund cancellation: %w", err)
		}
	}

	cancelledBy := "user"
	if isProfessional {
		cancelledBy = "professional"
	}
	now := time.Now()
	updated, err := s.commit(ctx, booking, func(b *models.Booking) {
		b.Status = models.BookingCancelled
		b.Cancellation = models.BookingCancellation{
			CancelledBy:     cancelledBy,
			CancelledAt:     &now,
			Reason:          reason,
			RefundAmount:    refund,
			CancellationFee: fee,
		}
	})
	if err != nil {
		if refund.IsPositive() {
			if _, derr := s.wallets.ReverseFunds(ctx, booking.UserID, refund, "Reversal of cancellation refund", booking.ID.String()); derr != nil {
				s.logger.Error("Failed to reverse cancellation refund",
					zap.String("bookingID", booking.ID.String()), zap.Error(derr))
			}
		}
		return nil, err
	}
	return updated, nil
}

// Get returns a booking to one of its parties or an admin.
func (s *Service) Get(ctx context.Context, bookingID, actorID uuid.UUID, isAdmin bool) (*models.Booking, error) {
	booking, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if isAdmin {
		return booking, nil
	}
	isProfessional, err := s.isAssignedProfessional(ctx, booking, actorID)
	if err != nil {
		return nil, err
	}
	if !isProfessional && booking.UserID != actorID {
		return nil, apperrors.ErrNotAuthorized
	}
	return booking, nil
}

// ListForUser returns a user's bookings, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, status string, page, limit int) ([]*models.Booking, int64, error) {
	return s.list(ctx, "user_id", userID, status, page, limit)
}

// ListForProfessional returns a professional's job leads, newest first.
func (s *Service) ListForProfessional(ctx context.Context, professionalID uuid.UUID, status string, page, limit int) ([]*models.Booking, int64, error) {
	return s.list(ctx, "professional_id", professionalID, status, page, limit)
}

func (s *Service) list(ctx context.Context, column string, id uuid.UUID, status string, page, limit int) ([]*models.Booking, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	query := s.db.WithContext(ctx).Model(&models.Booking{}).Where(column+" = ?", id)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	var bookings []*models.Booking
	if err := query.Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&bookings).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to find bookings: %w", err)
	}
	return bookings, total, nil
}

func (s *Service) load(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	if err := s.db.WithContext(ctx).Where("id = ?", bookingID).First(&booking).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("booking")
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return &booking, nil
}

// isAssignedProfessional reports whether actorID is the user behind the
// booking's assigned professional.
func (s *Service) isAssignedProfessional(ctx context.Context, b *models.Booking, actorID uuid.UUID) (bool, error) {
	var prof models.Professional
	err := s.db.WithContext(ctx).Where("user_id = ?", actorID).First(&prof).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to find professional: %w", err)
	}
	return prof.ID == b.ProfessionalID, nil
}

func (s *Service) requireProfessional(ctx context.Context, b *models.Booking, actorID uuid.UUID) error {
	ok, err := s.isAssignedProfessional(ctx, b, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.ErrNotAuthorized
	}
	return nil
}

func (s *Service) requireParty(ctx context.Context, b *models.Booking, actorID uuid.UUID) error {
	if b.UserID == actorID {
		return nil
	}
	return s.requireProfessional(ctx, b, actorID)
}

// commit persists a mutation under the booking's version guard so two
// racing transitions (simultaneous accept and reject, say) cannot both
// win. On version conflict the caller's view was stale; the mutation is
// re-validated against the fresh row before retrying.
func (s *Service) commit(ctx context.Context, booking *models.Booking, mutate func(b *models.Booking)) (*models.Booking, error) {
	from := booking.Status
	for attempt := 0; attempt < commitRetries; attempt++ {
		b := *booking
		mutate(&b)
		prev := b.Version
		b.Version++
		b.UpdatedAt = time.Now()

		res := s.db.WithContext(ctx).Model(&models.Booking{}).
			Where("id = ? AND version = ?", b.ID, prev).
			Select("*").Omit("id", "created_at").
			Updates(&b)
		if res.Error != nil {
			return nil, fmt.Errorf("failed to update booking: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			metrics.BookingTransitions.WithLabelValues(b.Status).Inc()
			return &b, nil
		}

		// Stale view: reload and re-check the transition before retrying.
		fresh, err := s.load(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		target := b.Status
		if fresh.Status != from {
			return nil, &apperrors.InvalidTransitionError{From: fresh.Status, To: target}
		}
		booking = fresh
	}
	return nil, errStaleBooking
}
