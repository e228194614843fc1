// Package admin exposes the moderation surface: platform stats, the KYC
// review queue, listings, coupon issuance and revenue analytics.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/skilllink/skilllink/pkg/apperrors"
	"github.com/skilllink/skilllink/pkg/models"
)

// DashboardStats is the platform-wide summary shown on the admin home.
type DashboardStats struct {
	TotalUsers         int64           `json:"total_users"`
	TotalProfessionals int64           `json:"total_professionals"`
	PendingKYC         int64           `json:"pending_kyc"`
	TotalBookings      int64           `json:"total_bookings"`
	CompletedBookings  int64           `json:"completed_bookings"`
	ActiveBookings     int64           `json:"active_bookings"`
	Revenue            decimal.Decimal `json:"revenue"`
	WalletTopUps       decimal.Decimal `json:"wallet_top_ups"`
}

// RevenuePoint is one bucket of the revenue analytics series.
type RevenuePoint struct {
	Period   string          `json:"period"`
	Revenue  decimal.Decimal `json:"revenue"`
	Bookings int64           `json:"bookings"`
}

// ListFilter narrows the admin listings.
type ListFilter struct {
	Status string `json:"status"`
	Role   string `json:"role"`
	Search string `json:"search"`
	Page   int    `json:"page"`
	Limit  int    `json:"limit"`
}

// CouponRequest creates a discount code.
type CouponRequest struct {
	Code        string          `json:"code" validate:"required,max=30"`
	Type        string          `json:"type" validate:"required,oneof=percentage fixed"`
	Value       decimal.Decimal `json:"value" validate:"required"`
	MinPurchase decimal.Decimal `json:"min_purchase"`
	MaxDiscount decimal.Decimal `json:"max_discount"`
	ValidFrom   time.Time       `json:"valid_from" validate:"required"`
	ValidUntil  time.Time       `json:"valid_until" validate:"required"`
	UsageLimit  int             `json:"usage_limit" validate:"min=0"`
}

// AdminService defines moderation operations.
type AdminService interface {
	Start() error
	Stop() error
	Dashboard(ctx context.Context) (*DashboardStats, error)
	PendingKYC(ctx context.Context, page, limit int) ([]*models.Professional, int64, error)
	ApproveKYC(ctx context.Context, adminID, professionalID uuid.UUID) (*models.Professional, error)
	RejectKYC(ctx context.Context, adminID, professionalID uuid.UUID, reason string) (*models.Professional, error)
	ListUsers(ctx context.Context, filter *ListFilter) ([]*models.User, int64, error)
	ListProfessionals(ctx context.Context, filter *ListFilter) ([]*models.Professional, int64, error)
	ListBookings(ctx context.Context, filter *ListFilter) ([]*models.Booking, int64, error)
	SetUserActive(ctx context.Context, userID uuid.UUID, active bool) error
	CreateCoupon(ctx context.Context, adminID uuid.UUID, req *CouponRequest) (*models.Coupon, error)
	RevenueAnalytics(ctx context.Context, period string) ([]*RevenuePoint, error)
}

// Service implements AdminService.
type Service struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewService creates a new AdminService.
func NewService(logger *zap.Logger, db *gorm.DB) (*Service, error) {
	return &Service{logger: logger, db: db}, nil
}

// Start starts the admin service.
func (s *Service) Start() error {
	s.logger.Info("Admin service started")
	return nil
}

// Stop stops the admin service.
func (s *Service) Stop() error {
	s.logger.Info("Admin service stopped")
	return nil
}

// Dashboard aggregates the platform counters and money totals.
func (s *Service) Dashboard(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{}
	db := s.db.WithContext(ctx)

	counts := []struct {
		dest  *int64
		query *gorm.DB
	}{
		{&stats.TotalUsers, db.Model(&models.User{})},
		{&stats.TotalProfessionals, db.Model(&models.Professional{})},
		{&stats.PendingKYC, db.Model(&models.Professional{}).Where("kyc_status = ?", models.KYCPending)},
		{&stats.TotalBookings, db.Model(&models.Booking{})},
		{&stats.CompletedBookings, db.Model(&models.Booking{}).Where("status = ?", models.BookingCompleted)},
		{&stats.ActiveBookings, db.Model(&models.Booking{}).Where("status IN ?",
			[]string{models.BookingAccepted, models.BookingOnTheWay, models.BookingInProgress})},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("failed to count: %w", err)
		}
	}

	var revenue struct{ Total decimal.Decimal }
	err := db.Model(&models.Booking{}).
		Select("COALESCE(SUM(pricing_total_amount), 0) AS total").
		Where("status = ?", models.BookingCompleted).
		Scan(&revenue).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}
	stats.Revenue = revenue.Total

	var topUps struct{ Total decimal.Decimal }
	err = db.Model(&models.WalletTransaction{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("type = ? AND status = ?", models.TxCredit, models.TxStatusCompleted).
		Scan(&topUps).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum top-ups: %w", err)
	}
	stats.WalletTopUps = topUps.Total
	return stats, nil
}

// PendingKYC returns the review queue, oldest submission first.
func (s *Service) PendingKYC(ctx context.Context, page, limit int) ([]*models.Professional, int64, error) {
	page, limit = normalizePage(page, limit)
	q := s.db.WithContext(ctx).Model(&models.Professional{}).
		Where("kyc_status = ? AND kyc_id_number <> ''", models.KYCPending)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count pending KYC: %w", err)
	}
	var pros []*models.Professional
	err := q.Order("updated_at ASC").Offset((page - 1) * limit).Limit(limit).Find(&pros).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list pending KYC: %w", err)
	}
	return pros, total, nil
}

// ApproveKYC marks the documents verified and activates the professional,
// making them visible in search.
func (s *Service) ApproveKYC(ctx context.Context, adminID, professionalID uuid.UUID) (*models.Professional, error) {
	return s.reviewKYC(ctx, adminID, professionalID, models.KYCApproved)
}

// RejectKYC declines the documents. The professional stays inactive and
// may resubmit.
func (s *Service) RejectKYC(ctx context.Context, adminID, professionalID uuid.UUID, reason string) (*models.Professional, error) {
	pro, err := s.reviewKYC(ctx, adminID, professionalID, models.KYCRejected)
	if err != nil {
		return nil, err
	}
	s.logger.Info("KYC rejected",
		zap.String("professional_id", professionalID.String()),
		zap.String("reason", reason))
	return pro, nil
}

func (s *Service) reviewKYC(ctx context.Context, adminID, professionalID uuid.UUID, status string) (*models.Professional, error) {
	var pro models.Professional
	err := s.db.WithContext(ctx).Where("id = ?", professionalID).First(&pro).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("professional")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load professional: %w", err)
	}
	if pro.KYC.Status != models.KYCPending {
		return nil, apperrors.NewValidation("KYC is not pending review")
	}

	now := time.Now()
	pro.KYC.Status = status
	pro.KYC.VerifiedAt = &now
	pro.KYC.VerifiedBy = &adminID
	approved := status == models.KYCApproved
	pro.IsVerified = approved
	pro.IsActive = approved
	pro.UpdatedAt = now
	if err := s.db.WithContext(ctx).Save(&pro).Error; err != nil {
		return nil, fmt.Errorf("failed to save KYC review: %w", err)
	}
	s.logger.Info("KYC reviewed",
		zap.String("professional_id", professionalID.String()),
		zap.String("status", status),
		zap.String("admin_id", adminID.String()))
	return &pro, nil
}

// ListUsers returns users matching the filter, newest first.
func (s *Service) ListUsers(ctx context.Context, filter *ListFilter) ([]*models.User, int64, error) {
	filter.Page, filter.Limit = normalizePage(filter.Page, filter.Limit)
	q := s.db.WithContext(ctx).Model(&models.User{})
	if filter.Role != "" {
		q = q.Where("role = ?", filter.Role)
	}
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		q = q.Where("LOWER(name) LIKE ? OR phone LIKE ? OR LOWER(email) LIKE ?", like, like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}
	var users []*models.User
	err := q.Order("created_at DESC").
		Offset((filter.Page - 1) * filter.Limit).Limit(filter.Limit).
		Find(&users).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

// ListProfessionals returns provider profiles matching the filter.
func (s *Service) ListProfessionals(ctx context.Context, filter *ListFilter) ([]*models.Professional, int64, error) {
	filter.Page, filter.Limit = normalizePage(filter.Page, filter.Limit)
	q := s.db.WithContext(ctx).Model(&models.Professional{})
	if filter.Status != "" {
		q = q.Where("kyc_status = ?", filter.Status)
	}
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		q = q.Where("LOWER(profession) LIKE ?", like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count professionals: %w", err)
	}
	var pros []*models.Professional
	err := q.Order("created_at DESC").
		Offset((filter.Page - 1) * filter.Limit).Limit(filter.Limit).
		Find(&pros).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list professionals: %w", err)
	}
	return pros, total, nil
}

// ListBookings returns bookings matching the filter, newest first.
func (s *Service) ListBookings(ctx context.Context, filter *ListFilter) ([]*models.Booking, int64, error) {
	filter.Page, filter.Limit = normalizePage(filter.Page, filter.Limit)
	q := s.db.WithContext(ctx).Model(&models.Booking{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	var bookings []*models.Booking
	err := q.Order("created_at DESC").
		Offset((filter.Page - 1) * filter.Limit).Limit(filter.Limit).
		Find(&bookings).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, total, nil
}

// SetUserActive enables or disables an account. Disabled accounts cannot
// log in.
func (s *Service) SetUserActive(ctx context.Context, userID uuid.UUID, active bool) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{"is_active": active, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("failed to update user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NewNotFound("user")
	}
	return nil
}

// CreateCoupon issues a discount code.
func (s *Service) CreateCoupon(ctx context.Context, adminID uuid.UUID, req *CouponRequest) (*models.Coupon, error) {
	if !req.ValidUntil.After(req.ValidFrom) {
		return nil, apperrors.NewValidation("valid_until must be after valid_from")
	}
	if req.Type == "percentage" && req.Value.GreaterThan(decimal.NewFromInt(100)) {
		return nil, apperrors.NewValidation("percentage value cannot exceed 100")
	}
	now := time.Now()
	coupon := &models.Coupon{
		ID:          uuid.New(),
		Code:        strings.ToUpper(req.Code),
		Type:        req.Type,
		Value:       req.Value,
		MinPurchase: req.MinPurchase,
		MaxDiscount: req.MaxDiscount,
		ValidFrom:   req.ValidFrom,
		ValidUntil:  req.ValidUntil,
		UsageLimit:  req.UsageLimit,
		IsActive:    true,
		CreatedBy:   adminID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(coupon).Error; err != nil {
		return nil, fmt.Errorf("failed to create coupon: %w", err)
	}
	s.logger.Info("Coupon created",
		zap.String("code", coupon.Code),
		zap.String("admin_id", adminID.String()))
	return coupon, nil
}

// RevenueAnalytics buckets completed-booking revenue by period: day, week,
// month or year.
func (s *Service) RevenueAnalytics(ctx context.Context, period string) ([]*RevenuePoint, error) {
	switch period {
	case "":
		period = "month"
	case "day", "week", "month", "year":
	default:
		return nil, apperrors.NewValidation("period must be one of day, week, month, year")
	}

	// Date bucketing differs between postgres and sqlite, so group in memory.
	var bookings []*models.Booking
	err := s.db.WithContext(ctx).
		Where("status = ?", models.BookingCompleted).
		Order("completed_at ASC").
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load completed bookings: %w", err)
	}

	buckets := make(map[string]*RevenuePoint)
	var order []string
	for _, b := range bookings {
		at := b.UpdatedAt
		if b.CompletedAt != nil {
			at = *b.CompletedAt
		}
		key := bucketKey(at, period)
		point, ok := buckets[key]
		if !ok {
			point = &RevenuePoint{Period: key, Revenue: decimal.Zero}
			buckets[key] = point
			order = append(order, key)
		}
		point.Revenue = point.Revenue.Add(b.Pricing.TotalAmount)
		point.Bookings++
	}

	points := make([]*RevenuePoint, 0, len(order))
	for _, key := range order {
		points = append(points, buckets[key])
	}
	return points, nil
}

func bucketKey(t time.Time, period string) string {
	switch period {
	case "day":
		return t.Format("2006-01-02")
	case "week":
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case "month":
		return t.Format("2006-01")
	default:
		return t.Format("2006")
	}
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
