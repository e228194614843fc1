package identities_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/skilllink/skilllink/internal/config"
	"github.com/skilllink/skilllink/internal/identities"
	"github.com/skilllink/skilllink/internal/wallet"
	"github.com/skilllink/skilllink/pkg/apperrors"
	"github.com/skilllink/skilllink/pkg/models"
)

func setupService(t *testing.T) (*identities.Service, *identities.MemoryOTPStore, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Wallet{}, &models.WalletTransaction{}))

	logger := zap.NewNop()
	wallets, err := wallet.NewService(logger, db, config.CreditsConfig{
		CreditValue: decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	store := identities.NewMemoryOTPStore()
	svc, err := identities.NewService(logger, db, wallets, store,
		10*time.Minute, 5, "test-secret", 24)
	require.NoError(t, err)
	return svc, store, db
}

func TestSendOTPStoresCode(t *testing.T) {
	svc, store, _ := setupService(t)
	ctx := context.Background()
	phone := "+919876543210"

	require.NoError(t, svc.SendOTP(ctx, phone))
	code, attempts, err := store.Lookup(ctx, phone)
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Equal(t, 0, attempts)
}

func TestVerifyOTPRegistersNewUser(t *testing.T) {
	svc, store, db := setupService(t)
	ctx := context.Background()
	phone := "+919876543210"
	require.NoError(t, store.Save(ctx, phone, "123456", 10*time.Minute))

	user, token, err := svc.VerifyOTP(ctx, &identities.VerifyOTPRequest{
		Phone: phone,
		OTP:   "123456",
		Name:  "Asha",
		Email: "asha@example.com",
		Role:  "user",
	})
	require.NoError(t, err)
	assert.Equal(t, phone, user.Phone)
	assert.Equal(t, "user", user.Role)
	assert.True(t, user.IsVerified)
	assert.NotEmpty(t, user.ReferralCode)
	assert.NotEmpty(t, token)

	// Registration creates the wallet.
	var w models.Wallet
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&w).Error)

	// The code is consumed: a replay fails.
	_, _, err = svc.VerifyOTP(ctx, &identities.VerifyOTPRequest{
		Phone: phone, OTP: "123456",
	})
	var validation *apperrors.ValidationError
	assert.ErrorAs(t, err, &validation)

	// Token round-trips.
	userID, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)
}

func TestVerifyOTPRequiresProfileForNewUsers(t *testing.T) {
	svc, store, _ := setupService(t)
	ctx := context.Background()
	phone := "+919876543211"
	require.NoError(t, store.Save(ctx, phone, "123456", 10*time.Minute))

	_, _, err := svc.VerifyOTP(ctx, &identities.VerifyOTPRequest{
		Phone: phone, OTP: "123456",
	})
	var validation *apperrors.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestVerifyOTPWrongCodeCountsAttempts(t *testing.T) {
	svc, store, _ := setupService(t)
	ctx := context.Background()
	phone := "+919876543212"
	require.NoError(t, store.Save(ctx, phone, "123456", 10*time.Minute))

	for i := 0; i < 5; i++ {
		_, _, err := svc.VerifyOTP(ctx, &identities.VerifyOTPRequest{
			Phone: phone, OTP: "000000",
		})
		assert.Error(t, err)
	}

	// Attempt budget exhausted: even the right code is rejected and the
	// stored code is discarded.
	_, _, err := svc.VerifyOTP(ctx, &identities.VerifyOTPRequest{
		Phone: phone, OTP: "123456", Name: "Asha", Email: "a@example.com", Role: "user",
	})
	assert.Error(t, err)
	_, _, lookupErr := store.Lookup(ctx, phone)
	assert.ErrorIs(t, lookupErr, identities.ErrOTPNotFound)
}

func TestVerifyOTPExistingUserLogsIn(t *testing.T) {
	svc, store, _ := setupService(t)
	ctx := context.Background()
	phone := "+919876543213"

	require.NoError(t, store.Save(ctx, phone, "111111", 10*time.Minute))
	first, _, err := svc.VerifyOTP(ctx, &identities.VerifyOTPRequest{
		Phone: phone, OTP: "111111", Name: "Ravi", Email: "ravi@example.com", Role: "user",
	})
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, phone, "222222", 10*time.Minute))
	second, token, err := svc.VerifyOTP(ctx, &identities.VerifyOTPRequest{
		Phone: phone, OTP: "222222",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.NotEmpty(t, token)
}

func TestOAuthLoginCreatesAndLinks(t *testing.T) {
	svc, _, db := setupService(t)
	ctx := context.Background()

	user, token, err := svc.OAuthLogin(ctx, &identities.OAuthRequest{
		Provider:   "google",
		ProviderID: "google-sub-1",
		Email:      "g@example.com",
		Name:       "G User",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "google", user.AuthMethod)

	var stored models.User
	require.NoError(t, db.Where("id = ?", user.ID).First(&stored).Error)
	assert.Equal(t, "google-sub-1", stored.GoogleID)

	// Same identity logs into the same account.
	again, _, err := svc.OAuthLogin(ctx, &identities.OAuthRequest{
		Provider:   "google",
		ProviderID: "google-sub-1",
		Email:      "g@example.com",
		Name:       "G User",
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc, _, _ := setupService(t)
	_, err := svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, apperrors.ErrNotAuthorized)
}

func TestIsAdmin(t *testing.T) {
	svc, store, db := setupService(t)
	ctx := context.Background()
	phone := "+919876543214"
	require.NoError(t, store.Save(ctx, phone, "123456", 10*time.Minute))

	user, _, err := svc.VerifyOTP(ctx, &identities.VerifyOTPRequest{
		Phone: phone, OTP: "123456", Name: "Admin", Email: "admin@example.com", Role: "user",
	})
	require.NoError(t, err)

	ok, err := svc.IsAdmin(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).Update("role", "admin").Error)
	ok, err = svc.IsAdmin(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
