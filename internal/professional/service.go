// Package professional manages provider profiles: registration, KYC
// submission, discovery with phrase-similarity ranking, and the paid
// contact unlock flow.
package professional

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/skilllink/skilllink/internal/access"
	"github.com/skilllink/skilllink/internal/config"
	"github.com/skilllink/skilllink/internal/wallet"
	"github.com/skilllink/skilllink/pkg/apperrors"
	"github.com/skilllink/skilllink/pkg/metrics"
	"github.com/skilllink/skilllink/pkg/models"
)

// RegisterRequest creates a provider profile for an existing user.
type RegisterRequest struct {
	Profession   string                     `json:"profession" validate:"required,max=100"`
	CategoryID   uuid.UUID                  `json:"category_id" validate:"required,uuid"`
	Experience   int                        `json:"experience" validate:"min=0,max=60"`
	Bio          string                     `json:"bio" validate:"omitempty,max=2000"`
	Skills       []string                   `json:"skills" validate:"omitempty,max=20,dive,max=50"`
	Pricing      models.ProfessionalPricing `json:"pricing"`
	WorkRadiusKm int                        `json:"work_radius_km" validate:"omitempty,min=1,max=100"`
	Location     models.Address             `json:"location"`
}

// KYCRequest carries the identity documents for verification.
type KYCRequest struct {
	IDType       string `json:"id_type" validate:"required,oneof=aadhar pan driving_license passport"`
	IDNumber     string `json:"id_number" validate:"required,max=50"`
	IDFront      string `json:"id_front" validate:"required,url"`
	IDBack       string `json:"id_back" validate:"omitempty,url"`
	AddressProof string `json:"address_proof" validate:"omitempty,url"`
	Photo        string `json:"photo" validate:"omitempty,url"`
}

// SearchRequest filters and ranks the provider listing.
type SearchRequest struct {
	Query      string     `json:"query"`
	CategoryID *uuid.UUID `json:"category_id"`
	City       string     `json:"city"`
	Page       int        `json:"page"`
	Limit      int        `json:"limit"`
}

// View is the public shape of a provider. Contact fields come masked
// unless the viewer has paid access.
type View struct {
	Professional *models.Professional  `json:"professional"`
	Name         string                `json:"name"`
	Contact      access.ContactDetails `json:"contact"`
}

// UnlockResult is the full provider view plus the viewer's remaining
// credits after the deduction.
type UnlockResult struct {
	View             *View `json:"professional"`
	RemainingCredits int   `json:"remaining_credits"`
}

// DashboardStats summarises a provider's activity.
type DashboardStats struct {
	TotalBookings     int64   `json:"total_bookings"`
	PendingBookings   int64   `json:"pending_bookings"`
	CompletedBookings int64   `json:"completed_bookings"`
	RatingAverage     float64 `json:"rating_average"`
	RatingCount       int     `json:"rating_count"`
	JobLeadsUsed      int     `json:"job_leads_used"`
	JobLeadsLimit     int     `json:"job_leads_limit"`
}

// JobLead is an open booking request in the provider's category. The
// customer's contact stays masked until the provider is assigned and the
// booking moves past pending.
type JobLead struct {
	Booking      *models.Booking       `json:"booking"`
	CustomerName string                `json:"customer_name"`
	Contact      access.ContactDetails `json:"contact"`
}

// ProfessionalService defines provider profile operations.
type ProfessionalService interface {
	Start() error
	Stop() error
	Register(ctx context.Context, userID uuid.UUID, req *RegisterRequest) (*models.Professional, error)
	SubmitKYC(ctx context.Context, userID uuid.UUID, req *KYCRequest) (*models.Professional, error)
	Search(ctx context.Context, viewerID *uuid.UUID, req *SearchRequest) ([]*View, int64, error)
	GetByID(ctx context.Context, viewerID *uuid.UUID, professionalID uuid.UUID) (*View, error)
	Unlock(ctx context.Context, viewerID, professionalID uuid.UUID) (*UnlockResult, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Professional, error)
	Dashboard(ctx context.Context, userID uuid.UUID) (*DashboardStats, error)
	JobLeads(ctx context.Context, userID uuid.UUID, page, limit int) ([]*JobLead, int64, error)
}

// Service implements ProfessionalService.
type Service struct {
	logger  *zap.Logger
	db      *gorm.DB
	wallets wallet.WalletService
	gate    *access.Gate
	credits config.CreditsConfig
}

// NewService creates a new ProfessionalService.
func NewService(logger *zap.Logger, db *gorm.DB, wallets wallet.WalletService, gate *access.Gate, credits config.CreditsConfig) (*Service, error) {
	return &Service{logger: logger, db: db, wallets: wallets, gate: gate, credits: credits}, nil
}

// Start starts the professional service.
func (s *Service) Start() error {
	s.logger.Info("Professional service started")
	return nil
}

// Stop stops the professional service.
func (s *Service) Stop() error {
	s.logger.Info("Professional service stopped")
	return nil
}

// Register creates the provider profile in pending-KYC state and promotes
// the user's role. The profile stays inactive and unlisted until an admin
// approves the KYC.
func (s *Service) Register(ctx context.Context, userID uuid.UUID, req *RegisterRequest) (*models.Professional, error) {
	var existing models.Professional
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&existing).Error
	if err == nil {
		return nil, apperrors.NewValidation("professional profile already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing profile: %w", err)
	}

	if req.WorkRadiusKm == 0 {
		req.WorkRadiusKm = 10
	}
	now := time.Now()
	pro := &models.Professional{
		ID:           uuid.New(),
		UserID:       userID,
		Profession:   req.Profession,
		CategoryID:   req.CategoryID,
		Experience:   req.Experience,
		Bio:          req.Bio,
		Skills:       req.Skills,
		KYC:          models.KYC{Status: models.KYCPending},
		Pricing:      req.Pricing,
		WorkRadiusKm: req.WorkRadiusKm,
		Plan:         "free",
		JobLeadsLimit: 10,
		Location:     req.Location,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(pro).Error; err != nil {
			return fmt.Errorf("failed to create profile: %w", err)
		}
		res := tx.Model(&models.User{}).
			Where("id = ? AND role = ?", userID, "user").
			Update("role", "professional")
		return res.Error
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Professional registered",
		zap.String("professional_id", pro.ID.String()),
		zap.String("user_id", userID.String()))
	return pro, nil
}

// SubmitKYC stores the documents and resets the status to pending review.
func (s *Service) SubmitKYC(ctx context.Context, userID uuid.UUID, req *KYCRequest) (*models.Professional, error) {
	pro, err := s.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if pro.KYC.Status == models.KYCApproved {
		return nil, apperrors.NewValidation("KYC already approved")
	}
	pro.KYC = models.KYC{
		IDType:       req.IDType,
		IDNumber:     req.IDNumber,
		IDFront:      req.IDFront,
		IDBack:       req.IDBack,
		AddressProof: req.AddressProof,
		Photo:        req.Photo,
		Status:       models.KYCPending,
	}
	pro.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(pro).Error; err != nil {
		return nil, fmt.Errorf("failed to save KYC: %w", err)
	}
	return pro, nil
}

// Search lists active, KYC-approved providers. With a query, results are
// ranked by edit distance of the query against profession and skills; with
// no query they come rating-first.
func (s *Service) Search(ctx context.Context, viewerID *uuid.UUID, req *SearchRequest) ([]*View, int64, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 || req.Limit > 100 {
		req.Limit = 20
	}

	q := s.db.WithContext(ctx).Model(&models.Professional{}).
		Where("is_active = ? AND kyc_status = ?", true, models.KYCApproved)
	if req.CategoryID != nil {
		q = q.Where("category_id = ?", *req.CategoryID)
	}
	if req.City != "" {
		q = q.Where("location_city = ?", req.City)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count professionals: %w", err)
	}

	var pros []*models.Professional
	if req.Query == "" {
		err := q.Order("rating_average DESC, rating_count DESC").
			Offset((req.Page - 1) * req.Limit).Limit(req.Limit).
			Find(&pros).Error
		if err != nil {
			return nil, 0, fmt.Errorf("failed to list professionals: %w", err)
		}
	} else {
		// Similarity ranking happens in memory, so fetch the filtered set
		// and paginate after sorting.
		if err := q.Find(&pros).Error; err != nil {
			return nil, 0, fmt.Errorf("failed to list professionals: %w", err)
		}
		rankByQuery(pros, req.Query)
		start := (req.Page - 1) * req.Limit
		if start >= len(pros) {
			pros = nil
		} else {
			end := start + req.Limit
			if end > len(pros) {
				end = len(pros)
			}
			pros = pros[start:end]
		}
	}

	full := s.gate.HasAccess(ctx, viewerID)
	views := make([]*View, 0, len(pros))
	for _, p := range pros {
		v, err := s.buildView(ctx, p, full)
		if err != nil {
			return nil, 0, err
		}
		views = append(views, v)
	}
	return views, total, nil
}

// rankByQuery orders professionals by the smallest edit distance between
// the query and any of profession, skills, or bio words.
func rankByQuery(pros []*models.Professional, query string) {
	query = strings.ToLower(strings.TrimSpace(query))
	score := func(p *models.Professional) int {
		best := levenshtein.ComputeDistance(query, strings.ToLower(p.Profession))
		for _, skill := range p.Skills {
			if d := levenshtein.ComputeDistance(query, strings.ToLower(skill)); d < best {
				best = d
			}
		}
		// Substring matches beat pure edit distance.
		if strings.Contains(strings.ToLower(p.Profession), query) {
			best = 0
		}
		return best
	}
	sort.SliceStable(pros, func(i, j int) bool {
		si, sj := score(pros[i]), score(pros[j])
		if si != sj {
			return si < sj
		}
		return pros[i].RatingAverage > pros[j].RatingAverage
	})
}

// GetByID returns one provider, redacted according to the viewer's access.
func (s *Service) GetByID(ctx context.Context, viewerID *uuid.UUID, professionalID uuid.UUID) (*View, error) {
	pro, err := s.load(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	if !pro.IsActive || pro.KYC.Status != models.KYCApproved {
		return nil, apperrors.NewNotFound("professional")
	}
	full := s.gate.HasAccess(ctx, viewerID)
	return s.buildView(ctx, pro, full)
}

// Unlock deducts the unlock cost from the viewer's wallet and returns the
// provider with contact details visible.
func (s *Service) Unlock(ctx context.Context, viewerID, professionalID uuid.UUID) (*UnlockResult, error) {
	pro, err := s.load(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	if !pro.IsActive || pro.KYC.Status != models.KYCApproved {
		return nil, apperrors.NewNotFound("professional")
	}

	w, err := s.wallets.DeductCredits(ctx, viewerID, s.credits.UnlockCost,
		fmt.Sprintf("Unlocked contact for %s", pro.Profession), pro.ID.String())
	if err != nil {
		return nil, err
	}
	metrics.CreditsSpent.WithLabelValues("unlock").Add(float64(s.credits.UnlockCost))

	view, err := s.buildView(ctx, pro, true)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Professional unlocked",
		zap.String("professional_id", pro.ID.String()),
		zap.String("viewer_id", viewerID.String()))
	return &UnlockResult{View: view, RemainingCredits: w.Credits}, nil
}

// GetByUserID returns the provider profile owned by the user.
func (s *Service) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Professional, error) {
	var pro models.Professional
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&pro).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("professional")
		}
		return nil, fmt.Errorf("failed to find professional: %w", err)
	}
	return &pro, nil
}

// Dashboard returns the provider's booking and rating summary.
func (s *Service) Dashboard(ctx context.Context, userID uuid.UUID) (*DashboardStats, error) {
	pro, err := s.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats := &DashboardStats{
		RatingAverage: pro.RatingAverage,
		RatingCount:   pro.RatingCount,
		JobLeadsUsed:  pro.JobLeadsUsed,
		JobLeadsLimit: pro.JobLeadsLimit,
	}
	base := s.db.WithContext(ctx).Model(&models.Booking{}).Where("professional_id = ?", pro.ID)
	if err := base.Count(&stats.TotalBookings).Error; err != nil {
		return nil, fmt.Errorf("failed to count bookings: %w", err)
	}
	if err := base.Where("status = ?", models.BookingPending).Count(&stats.PendingBookings).Error; err != nil {
		return nil, fmt.Errorf("failed to count pending bookings: %w", err)
	}
	err = s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("professional_id = ? AND status = ?", pro.ID, models.BookingCompleted).
		Count(&stats.CompletedBookings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count completed bookings: %w", err)
	}
	return stats, nil
}

// JobLeads lists the provider's incoming booking requests, newest first.
// Customer contact on a pending lead is gated on the professional's own
// credit balance; once a booking is past pending the counterpart exception
// reveals it regardless.
func (s *Service) JobLeads(ctx context.Context, userID uuid.UUID, page, limit int) ([]*JobLead, int64, error) {
	pro, err := s.GetByUserID(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	q := s.db.WithContext(ctx).Model(&models.Booking{}).Where("professional_id = ?", pro.ID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count leads: %w", err)
	}
	var bookings []*models.Booking
	err = q.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&bookings).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list leads: %w", err)
	}

	full := s.gate.HasAccess(ctx, &pro.UserID)

	leads := make([]*JobLead, 0, len(bookings))
	for _, b := range bookings {
		var customer models.User
		if err := s.db.WithContext(ctx).Where("id = ?", b.UserID).First(&customer).Error; err != nil {
			return nil, 0, fmt.Errorf("failed to load customer: %w", err)
		}
		leads = append(leads, &JobLead{
			Booking:      b,
			CustomerName: customer.Name,
			Contact:      access.Redact(&customer, full || access.CounterpartVisible(b)),
		})
	}
	return leads, total, nil
}

func (s *Service) load(ctx context.Context, professionalID uuid.UUID) (*models.Professional, error) {
	var pro models.Professional
	if err := s.db.WithContext(ctx).Where("id = ?", professionalID).First(&pro).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("professional")
		}
		return nil, fmt.Errorf("failed to find professional: %w", err)
	}
	return &pro, nil
}

func (s *Service) buildView(ctx context.Context, pro *models.Professional, full bool) (*View, error) {
	var owner models.User
	if err := s.db.WithContext(ctx).Where("id = ?", pro.UserID).First(&owner).Error; err != nil {
		return nil, fmt.Errorf("failed to load professional user: %w", err)
	}
	return &View{
		Professional: pro,
		Name:         owner.Name,
		Contact:      access.Redact(&owner, full),
	}, nil
}
