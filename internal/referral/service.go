// Package referral pays out invite rewards. A referral is recorded when a
// new user applies someone's code, and both sides are rewarded after the
// referred user's first completed booking.
package referral

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
	"github.com/skilllink/skilllink/pkg/models"
)

// Summary is the referrer-facing view of their invites.
type Summary struct {
	ReferralCode   string             `json:"referral_code"`
	TotalReferred  int                `json:"total_referred"`
	TotalCompleted int                `json:"total_completed"`
	EarnedCredits  int                `json:"earned_credits"`
	Referrals      []*models.Referral `json:"referrals"`
}

// ReferralService defines referral operations.
type ReferralService interface {
	Start() error
	Stop() error
	Apply(ctx context.Context, userID uuid.UUID, code string) (*models.Referral, error)
	MyReferrals(ctx context.Context, userID uuid.UUID) (*Summary, error)
	BookingCompleted(ctx context.Context, b *models.Booking)
}

// Service implements ReferralService.
type Service struct {
	logger  *zap.Logger
	db      *gorm.DB
	wallets wallet.WalletService
	credits config.CreditsConfig
}

// NewService creates a new ReferralService.
func NewService(logger *zap.Logger, db *gorm.DB, wallets wallet.WalletService, credits config.CreditsConfig) (*Service, error) {
	return &Service{logger: logger, db: db, wallets: wallets, credits: credits}, nil
}

// Start starts the referral service.
func (s *Service) Start() error {
	s.logger.Info("Referral service started")
	return nil
}

// Stop stops the referral service.
func (s *Service) Stop() error {
	s.logger.Info("Referral service stopped")
	return nil
}

// Apply records that the user joined via someone's code. A user can apply
// a code once, and never their own.
func (s *Service) Apply(ctx context.Context, userID uuid.UUID, code string) (*models.Referral, error) {
	var referrer models.User
	err := s.db.WithContext(ctx).Where("referral_code = ?", code).First(&referrer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewValidation("invalid referral code")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up referral code: %w", err)
	}
	if referrer.ID == userID {
		return nil, apperrors.NewValidation("cannot apply your own referral code")
	}

	var existing models.Referral
	err = s.db.WithContext(ctx).Where("referred_id = ?", userID).First(&existing).Error
	if err == nil {
		return nil, apperrors.NewValidation("referral code already applied")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing referral: %w", err)
	}

	referredType := "user"
	var referred models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&referred).Error; err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if referred.Role == "professional" {
		referredType = "professional"
	}

	ref := &models.Referral{
		ID:            uuid.New(),
		ReferrerID:    referrer.ID,
		ReferredID:    userID,
		ReferralCode:  code,
		Type:          referredType,
		Status:        models.ReferralPending,
		RewardCredits: s.credits.ReferralRewardCredits,
		RewardAmount:  s.rewardAmount(),
		CreatedAt:     time.Now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ref).Error; err != nil {
			return fmt.Errorf("failed to create referral: %w", err)
		}
		return tx.Model(&models.User{}).Where("id = ?", userID).
			Update("referred_by", referrer.ID).Error
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Referral applied",
		zap.String("referrer_id", referrer.ID.String()),
		zap.String("referred_id", userID.String()))
	return ref, nil
}

// MyReferrals returns the user's code and the state of everyone they
// invited.
func (s *Service) MyReferrals(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("user")
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	var refs []*models.Referral
	err := s.db.WithContext(ctx).
		Where("referrer_id = ?", userID).
		Order("created_at DESC").
		Find(&refs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list referrals: %w", err)
	}

	summary := &Summary{
		ReferralCode:  user.ReferralCode,
		TotalReferred: len(refs),
		Referrals:     refs,
	}
	for _, r := range refs {
		if r.Status == models.ReferralCompleted {
			summary.TotalCompleted++
			summary.EarnedCredits += r.RewardCredits
		}
	}
	return summary, nil
}

// BookingCompleted pays out the pending referral for the booking's
// customer, if any, crediting both sides. Invoked by the booking service
// after a completion commits.
func (s *Service) BookingCompleted(ctx context.Context, b *models.Booking) {
	var ref models.Referral
	err := s.db.WithContext(ctx).
		Where("referred_id = ? AND status = ?", b.UserID, models.ReferralPending).
		First(&ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return
	}
	if err != nil {
		s.logger.Error("Failed to look up referral for completed booking",
			zap.String("booking_id", b.ID.String()), zap.Error(err))
		return
	}

	amount := decimal.NewFromInt(int64(ref.RewardCredits)).Mul(s.wallets.CreditValue())
	if ref.RewardAmount.IsPositive() {
		amount = ref.RewardAmount
	}

	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.Referral{}).
		Where("id = ? AND status = ?", ref.ID, models.ReferralPending).
		Updates(map[string]interface{}{"status": models.ReferralCompleted, "completed_at": now})
	if res.Error != nil {
		s.logger.Error("Failed to complete referral",
			zap.String("referral_id", ref.ID.String()), zap.Error(res.Error))
		return
	}
	if res.RowsAffected == 0 {
		// Another completion already paid it out.
		return
	}

	for _, userID := range []uuid.UUID{ref.ReferrerID, ref.ReferredID} {
		if _, err := s.wallets.AddFunds(ctx, userID, amount, "Referral reward", ref.ID.String()); err != nil {
			s.logger.Error("Failed to pay referral reward",
				zap.String("referral_id", ref.ID.String()),
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
	}
	s.logger.Info("Referral reward paid out",
		zap.String("referral_id", ref.ID.String()),
		zap.String("booking_id", b.ID.String()))
}

func (s *Service) rewardAmount() decimal.Decimal {
	return decimal.NewFromInt(int64(s.credits.ReferralRewardCredits)).Mul(s.credits.CreditValue)
}
