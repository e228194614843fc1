package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/skilllink/skilllink/api"
	"github.com/skilllink/skilllink/internal/access"
	"github.com/skilllink/skilllink/internal/admin"
	"github.com/skilllink/skilllink/internal/booking"
	"github.com/skilllink/skilllink/internal/catalog"
	"github.com/skilllink/skilllink/internal/chat"
	"github.com/skilllink/skilllink/internal/config"
	"github.com/skilllink/skilllink/internal/identities"
	"github.com/skilllink/skilllink/internal/professional"
	"github.com/skilllink/skilllink/internal/referral"
	"github.com/skilllink/skilllink/internal/review"
	"github.com/skilllink/skilllink/internal/wallet"
	"github.com/skilllink/skilllink/pkg/models"
)

type env struct {
	server *api.Server
	store  *identities.MemoryOTPStore
	db     *gorm.DB
}

func setupServer(t *testing.T) *env {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))

	logger := zap.NewNop()
	credits := config.CreditsConfig{
		CreditValue:           decimal.NewFromInt(10),
		BookingCost:           1,
		UnlockCost:            1,
		CancellationFeeRate:   decimal.RequireFromString("0.2"),
		ReferralRewardCredits: 1,
	}

	wallets, err := wallet.NewService(logger, db, credits)
	require.NoError(t, err)
	gate := access.NewGate(logger, wallets)
	store := identities.NewMemoryOTPStore()
	identitiesSvc, err := identities.NewService(logger, db, wallets, store,
		10*time.Minute, 5, "test-secret", 24)
	require.NoError(t, err)
	bookings, err := booking.NewService(logger, db, wallets, credits)
	require.NoError(t, err)
	pros, err := professional.NewService(logger, db, wallets, gate, credits)
	require.NoError(t, err)
	referrals, err := referral.NewService(logger, db, wallets, credits)
	require.NoError(t, err)
	bookings.AddCompletionListener(referrals)
	reviews, err := review.NewService(logger, db)
	require.NoError(t, err)
	chats, err := chat.NewService(logger, db, wallets, credits)
	require.NoError(t, err)
	catalogSvc, err := catalog.NewService(logger, db)
	require.NoError(t, err)
	adminSvc, err := admin.NewService(logger, db)
	require.NoError(t, err)

	server := api.NewServer(logger, api.Services{
		Identities:    identitiesSvc,
		Wallets:       wallets,
		Bookings:      bookings,
		Professionals: pros,
		Referrals:     referrals,
		Reviews:       reviews,
		Chats:         chats,
		Catalog:       catalogSvc,
		Admin:         adminSvc,
	}, "1000-M")
	return &env{server: server, store: store, db: db}
}

func (e *env) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

// login registers (or logs in) a user over the OTP flow and returns the
// token.
func (e *env) login(t *testing.T, phone, role string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/auth/send-otp", "", gin.H{"phone": phone})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	code, _, err := e.store.Lookup(context.Background(), phone)
	require.NoError(t, err)

	rec = e.do(t, http.MethodPost, "/api/v1/auth/verify-otp", "", gin.H{
		"phone": phone,
		"otp":   code,
		"name":  "Test User",
		"email": fmt.Sprintf("%s@example.com", phone[1:]),
		"role":  role,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestHealth(t *testing.T) {
	e := setupServer(t)
	rec := e.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	e := setupServer(t)
	rec := e.do(t, http.MethodGet, "/api/v1/wallet", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/wallet", "bogus-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOTPLoginAndWalletFlow(t *testing.T) {
	e := setupServer(t)
	token := e.login(t, "+919876543210", "user")

	rec := e.do(t, http.MethodGet, "/api/v1/wallet", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/api/v1/wallet/add-funds", token, gin.H{
		"amount": "100", "payment_id": "pay_123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Wallet models.Wallet `json:"wallet"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 10, resp.Wallet.Credits)
}

func TestBookingWithoutCreditsIs402(t *testing.T) {
	e := setupServer(t)
	token := e.login(t, "+919876543211", "user")

	// An active professional to book.
	pro := &models.Professional{
		ID: uuid.New(), UserID: uuid.New(), Profession: "Electrician", CategoryID: uuid.New(),
		KYC:      models.KYC{Status: models.KYCApproved},
		Pricing:  models.ProfessionalPricing{BasePrice: decimal.NewFromInt(500)},
		IsActive: true,
	}
	require.NoError(t, e.db.Create(pro).Error)

	rec := e.do(t, http.MethodPost, "/api/v1/bookings", token, gin.H{
		"professional_id": pro.ID,
		"service_id":      uuid.New(),
		"category_id":     pro.CategoryID,
		"service_date":    time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"service_time":    "10:00",
	})
	require.Equal(t, http.StatusPaymentRequired, rec.Code, rec.Body.String())

	var resp struct {
		Required  int `json:"required"`
		Available int `json:"available"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Required)
	assert.Equal(t, 0, resp.Available)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	e := setupServer(t)
	token := e.login(t, "+919876543212", "user")

	rec := e.do(t, http.MethodGet, "/api/v1/admin/dashboard", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	require.NoError(t, e.db.Model(&models.User{}).
		Where("phone = ?", "+919876543212").Update("role", "admin").Error)
	rec = e.do(t, http.MethodGet, "/api/v1/admin/dashboard", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestPublicCatalogAndProfessionalListing(t *testing.T) {
	e := setupServer(t)
	rec := e.do(t, http.MethodGet, "/api/v1/categories", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/professionals", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
