// Package identities owns users and authentication: OTP login over phone,
// Google/Apple OAuth linkage, and JWT issuing. New users get their wallet
// created lazily on first registration.
package identities

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/skilllink/skilllink/internal/wallet"
	"github.com/skilllink/skilllink/pkg/apperrors"
	"github.com/skilllink/skilllink/pkg/metrics"
	"github.com/skilllink/skilllink/pkg/models"
)

// IdentityService defines user identity operations.
type IdentityService interface {
	Start() error
	Stop() error
	SendOTP(ctx context.Context, phone string) error
	VerifyOTP(ctx context.Context, req *VerifyOTPRequest) (*models.User, string, error)
	OAuthLogin(ctx context.Context, req *OAuthRequest) (*models.User, string, error)
	Me(ctx context.Context, userID uuid.UUID) (*models.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, req *UpdateProfileRequest) (*models.User, error)
	ValidateToken(token string) (uuid.UUID, error)
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
}

// VerifyOTPRequest carries a login/registration attempt. Name, email and
// role are required only when the phone is new.
type VerifyOTPRequest struct {
	Phone string `json:"phone" validate:"required,e164"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
	Name  string `json:"name" validate:"omitempty,max=100"`
	Email string `json:"email" validate:"omitempty,email"`
	Role  string `json:"role" validate:"omitempty,oneof=user professional"`
}

// OAuthRequest carries an externally verified Google or Apple identity.
type OAuthRequest struct {
	Provider     string `json:"provider" validate:"required,oneof=google apple"`
	ProviderID   string `json:"provider_id" validate:"required"`
	Email        string `json:"email" validate:"omitempty,email"`
	Name         string `json:"name" validate:"required,max=100"`
	ProfileImage string `json:"profile_image"`
}

// UpdateProfileRequest carries mutable profile fields.
type UpdateProfileRequest struct {
	Name         string          `json:"name" validate:"omitempty,max=100"`
	Email        string          `json:"email" validate:"omitempty,email"`
	ProfileImage string          `json:"profile_image"`
	Language     string          `json:"language" validate:"omitempty,oneof=en te hi ta kn"`
	Address      *models.Address `json:"address"`
}

// Service implements IdentityService.
type Service struct {
	logger         *zap.Logger
	db             *gorm.DB
	wallets        wallet.WalletService
	otps           OTPStore
	otpTTL         time.Duration
	otpMaxAttempts int
	jwtSecret      []byte
	jwtExpiry      time.Duration
}

// NewService creates a new IdentityService.
func NewService(logger *zap.Logger, db *gorm.DB, wallets wallet.WalletService, otps OTPStore, otpTTL time.Duration, otpMaxAttempts int, jwtSecret string, jwtExpiryHours int) (*Service, error) {
	if jwtSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if otpTTL <= 0 {
		otpTTL = 10 * time.Minute
	}
	if otpMaxAttempts <= 0 {
		otpMaxAttempts = 5
	}
	if jwtExpiryHours <= 0 {
		jwtExpiryHours = 24
	}
	return &Service{
		logger:         logger,
		db:             db,
		wallets:        wallets,
		otps:           otps,
		otpTTL:         otpTTL,
		otpMaxAttempts: otpMaxAttempts,
		jwtSecret:      []byte(jwtSecret),
		jwtExpiry:      time.Duration(jwtExpiryHours) * time.Hour,
	}, nil
}

// Start starts the identities service.
func (s *Service) Start() error {
	s.logger.Info("Identities service started")
	return nil
}

// Stop stops the identities service.
func (s *Service) Stop() error {
	s.logger.Info("Identities service stopped")
	return nil
}

// SendOTP issues a 6-digit code for the phone. Delivery is handed to an
// external SMS gateway; here the code is logged at debug level for
// development.
func (s *Service) SendOTP(ctx context.Context, phone string) error {
	code, err := generateOTP()
	if err != nil {
		return fmt.Errorf("failed to generate otp: %w", err)
	}
	if err := s.otps.Save(ctx, phone, code, s.otpTTL); err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}
	metrics.OTPRequests.Inc()
	s.logger.Debug("OTP issued", zap.String("phone", phone), zap.String("code", code))
	return nil
}

// VerifyOTP checks a code and logs the user in, registering them first if
// the phone is unknown. Registration requires name, email and role, and
// creates the user's wallet.
func (s *Service) VerifyOTP(ctx context.Context, req *VerifyOTPRequest) (*models.User, string, error) {
	code, attempts, err := s.otps.Lookup(ctx, req.Phone)
	if errors.Is(err, ErrOTPNotFound) {
		return nil, "", apperrors.NewValidation("OTP not found or expired")
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to look up otp: %w", err)
	}
	if attempts >= s.otpMaxAttempts {
		if derr := s.otps.Delete(ctx, req.Phone); derr != nil {
			s.logger.Warn("Failed to delete otp", zap.Error(derr))
		}
		return nil, "", apperrors.NewValidation("too many failed attempts")
	}
	if code != req.OTP {
		if aerr := s.otps.RecordAttempt(ctx, req.Phone); aerr != nil {
			s.logger.Warn("Failed to record otp attempt", zap.Error(aerr))
		}
		return nil, "", apperrors.NewValidation("invalid OTP")
	}
	if err := s.otps.Delete(ctx, req.Phone); err != nil {
		s.logger.Warn("Failed to delete otp", zap.Error(err))
	}

	var user models.User
	err = s.db.WithContext(ctx).Where("phone = ?", req.Phone).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if req.Name == "" {
			return nil, "", apperrors.NewValidation("name is required for new users")
		}
		if strings.TrimSpace(req.Email) == "" {
			return nil, "", apperrors.NewValidation("email is required for registration")
		}
		if req.Role != "user" && req.Role != "professional" {
			return nil, "", apperrors.NewValidation("role must be either user or professional")
		}
		created, cerr := s.register(ctx, req)
		if cerr != nil {
			return nil, "", cerr
		}
		user = *created
	case err != nil:
		return nil, "", fmt.Errorf("failed to find user: %w", err)
	default:
		if email := strings.TrimSpace(req.Email); email != "" && user.Email == "" {
			user.Email = strings.ToLower(email)
		}
		if req.Role == "professional" && user.Role == "user" {
			user.Role = req.Role
		}
		user.IsVerified = true
		user.UpdatedAt = time.Now()
		if err := s.db.WithContext(ctx).Save(&user).Error; err != nil {
			return nil, "", fmt.Errorf("failed to save user: %w", err)
		}
	}

	if !user.IsActive {
		return nil, "", apperrors.ErrNotAuthorized
	}

	token, err := s.generateToken(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}
	return &user, token, nil
}

func (s *Service) register(ctx context.Context, req *VerifyOTPRequest) (*models.User, error) {
	now := time.Now()
	user := &models.User{
		ID:           uuid.New(),
		Name:         req.Name,
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:        req.Phone,
		Role:         req.Role,
		AuthMethod:   "otp",
		IsVerified:   true,
		IsActive:     true,
		ReferralCode: newReferralCode(req.Phone),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	if _, err := s.wallets.GetOrCreate(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return user, nil
}

// OAuthLogin signs in a user whose Google or Apple identity was verified
// upstream, creating or linking the account as needed.
func (s *Service) OAuthLogin(ctx context.Context, req *OAuthRequest) (*models.User, string, error) {
	column := "google_id"
	if req.Provider == "apple" {
		column = "apple_id"
	}

	var user models.User
	query := s.db.WithContext(ctx).Where(column+" = ?", req.ProviderID)
	if req.Email != "" {
		query = query.Or("email = ?", strings.ToLower(req.Email))
	}
	err := query.First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		now := time.Now()
		user = models.User{
			ID:           uuid.New(),
			Name:         req.Name,
			Email:        strings.ToLower(req.Email),
			Phone:        fmt.Sprintf("%s:%s", req.Provider, req.ProviderID),
			Role:         "user",
			AuthMethod:   req.Provider,
			ProfileImage: req.ProfileImage,
			IsVerified:   true,
			IsActive:     true,
			ReferralCode: newReferralCode(req.ProviderID),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if req.Provider == "google" {
			user.GoogleID = req.ProviderID
		} else {
			user.AppleID = req.ProviderID
		}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, "", fmt.Errorf("failed to create user: %w", err)
		}
		if _, err := s.wallets.GetOrCreate(ctx, user.ID); err != nil {
			return nil, "", fmt.Errorf("failed to create wallet: %w", err)
		}
	case err != nil:
		return nil, "", fmt.Errorf("failed to find user: %w", err)
	default:
		changed := false
		if req.Provider == "google" && user.GoogleID == "" {
			user.GoogleID = req.ProviderID
			changed = true
		}
		if req.Provider == "apple" && user.AppleID == "" {
			user.AppleID = req.ProviderID
			changed = true
		}
		if changed {
			user.UpdatedAt = time.Now()
			if err := s.db.WithContext(ctx).Save(&user).Error; err != nil {
				return nil, "", fmt.Errorf("failed to save user: %w", err)
			}
		}
	}

	if !user.IsActive {
		return nil, "", apperrors.ErrNotAuthorized
	}

	token, err := s.generateToken(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}
	return &user, token, nil
}

// Me returns the current user's profile.
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("user")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

// UpdateProfile applies the provided profile fields.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, req *UpdateProfileRequest) (*models.User, error) {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.Name != "" {
		user.Name = req.Name
	}
	if req.Email != "" {
		user.Email = strings.ToLower(req.Email)
	}
	if req.ProfileImage != "" {
		user.ProfileImage = req.ProfileImage
	}
	if req.Language != "" {
		user.Language = req.Language
	}
	if req.Address != nil {
		user.Address = *req.Address
	}
	user.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	return user, nil
}

// ValidateToken parses a JWT and returns the user id it was issued for.
func (s *Service) ValidateToken(tokenString string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, apperrors.ErrNotAuthorized
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, apperrors.ErrNotAuthorized
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return uuid.Nil, apperrors.ErrNotAuthorized
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, apperrors.ErrNotAuthorized
	}
	return id, nil
}

// IsAdmin reports whether the user holds the admin role.
func (s *Service) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.Role == "admin", nil
}

func (s *Service) generateToken(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID.String(),
		"iat": now.Unix(),
		"exp": now.Add(s.jwtExpiry).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func newReferralCode(seed string) string {
	suffix := seed
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return fmt.Sprintf("REF%s%d", strings.ToUpper(suffix), time.Now().UnixNano()%10000)
}
