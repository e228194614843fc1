package booking_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/skilllink/skilllink/internal/booking"
	"github.com/skilllink/skilllink/internal/config"
	"github.com/skilllink/skilllink/internal/wallet"
	"github.com/skilllink/skilllink/pkg/apperrors"
	"github.com/skilllink/skilllink/pkg/models"
)

type fixture struct {
	db       *gorm.DB
	wallets  *wallet.Service
	bookings *booking.Service
	userID   uuid.UUID
	proUser  uuid.UUID
	pro      *models.Professional
}

func testCredits() config.CreditsConfig {
	return config.CreditsConfig{
		CreditValue:           decimal.NewFromInt(10),
		BookingCost:           1,
		UnlockCost:            1,
		CancellationFeeRate:   decimal.RequireFromString("0.2"),
		ReferralRewardCredits: 1,
	}
}

func setup(t *testing.T) *fixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))

	logger := zap.NewNop()
	wallets, err := wallet.NewService(logger, db, testCredits())
	require.NoError(t, err)
	bookings, err := booking.NewService(logger, db, wallets, testCredits())
	require.NoError(t, err)

	f := &fixture{
		db:       db,
		wallets:  wallets,
		bookings: bookings,
		userID:   uuid.New(),
		proUser:  uuid.New(),
	}
	f.pro = &models.Professional{
		ID:         uuid.New(),
		UserID:     f.proUser,
		Profession: "Electrician",
		CategoryID: uuid.New(),
		KYC:        models.KYC{Status: models.KYCApproved},
		Pricing:    models.ProfessionalPricing{BasePrice: decimal.NewFromInt(1000)},
		IsActive:   true,
	}
	require.NoError(t, db.Create(f.pro).Error)
	return f
}

func (f *fixture) fund(t *testing.T, userID uuid.UUID, amount int64) {
	t.Helper()
	_, err := f.wallets.AddFunds(context.Background(), userID, decimal.NewFromInt(amount), "top-up", "")
	require.NoError(t, err)
}

func (f *fixture) create(t *testing.T) *models.Booking {
	t.Helper()
	b, err := f.bookings.Create(context.Background(), f.userID, &booking.CreateRequest{
		ProfessionalID: f.pro.ID,
		ServiceID:      uuid.New(),
		CategoryID:     f.pro.CategoryID,
		ServiceDate:    time.Now().Add(24 * time.Hour),
		ServiceTime:    "10:00",
	})
	require.NoError(t, err)
	return b
}

func TestTransitionTableIsTotal(t *testing.T) {
	statuses := []string{
		models.BookingPending, models.BookingAccepted, models.BookingOnTheWay,
		models.BookingInProgress, models.BookingCompleted, models.BookingCancelled,
		models.BookingRejected,
	}
	legal := map[string]bool{
		"pending>accepted":      true,
		"pending>rejected":      true,
		"pending>cancelled":     true,
		"accepted>on_the_way":   true,
		"accepted>cancelled":    true,
		"on_the_way>in_progress": true,
		"on_the_way>cancelled":  true,
		"in_progress>completed": true,
		"in_progress>cancelled": true,
	}
	for _, from := range statuses {
		for _, to := range statuses {
			key := fmt.Sprintf("%s>%s", from, to)
			assert.Equal(t, legal[key], booking.CanTransition(from, to), key)
		}
	}
}

func TestCreateConsumesOneCredit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fund(t, f.userID, 10) // 1 credit

	b := f.create(t)
	assert.Equal(t, models.BookingPending, b.Status)
	assert.Equal(t, 1, b.Pricing.CreditsUsed)
	assert.True(t, b.Pricing.TotalAmount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, fmt.Sprintf("room_%s", b.ID), b.ChatRoomID)

	w, err := f.wallets.GetOrCreate(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, 0, w.Credits)

	// The credit is gone; a second booking must fail and create nothing.
	_, err = f.bookings.Create(ctx, f.userID, &booking.CreateRequest{
		ProfessionalID: f.pro.ID,
		ServiceID:      uuid.New(),
		CategoryID:     f.pro.CategoryID,
		ServiceDate:    time.Now().Add(24 * time.Hour),
		ServiceTime:    "11:00",
	})
	var insufficient *apperrors.InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)

	var count int64
	require.NoError(t, f.db.Model(&models.Booking{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreateRequiresApprovedProfessional(t *testing.T) {
	f := setup(t)
	f.fund(t, f.userID, 10)

	inactive := &models.Professional{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		Profession: "Plumber",
		CategoryID: uuid.New(),
		KYC:        models.KYC{Status: models.KYCPending},
		Pricing:    models.ProfessionalPricing{BasePrice: decimal.NewFromInt(500)},
	}
	require.NoError(t, f.db.Create(inactive).Error)

	_, err := f.bookings.Create(context.Background(), f.userID, &booking.CreateRequest{
		ProfessionalID: inactive.ID,
		ServiceID:      uuid.New(),
		CategoryID:     inactive.CategoryID,
		ServiceDate:    time.Now().Add(24 * time.Hour),
		ServiceTime:    "10:00",
	})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestAcceptOnlyByAssignedProfessional(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fund(t, f.userID, 10)
	b := f.create(t)

	_, err := f.bookings.Accept(ctx, b.ID, f.userID)
	assert.ErrorIs(t, err, apperrors.ErrNotAuthorized)

	accepted, err := f.bookings.Accept(ctx, b.ID, f.proUser)
	require.NoError(t, err)
	assert.Equal(t, models.BookingAccepted, accepted.Status)
	require.NotNil(t, accepted.AcceptedAt)

	// A second accept is an illegal transition.
	_, err = f.bookings.Accept(ctx, b.ID, f.proUser)
	var transition *apperrors.InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, models.BookingAccepted, transition.From)
}

func TestRejectRefundsCredit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fund(t, f.userID, 10)
	b := f.create(t)

	w, err := f.wallets.GetOrCreate(ctx, f.userID)
	require.NoError(t, err)
	require.Equal(t, 0, w.Credits)

	rejected, err := f.bookings.Reject(ctx, b.ID, f.proUser)
	require.NoError(t, err)
	assert.Equal(t, models.BookingRejected, rejected.Status)

	w, err = f.wallets.GetOrCreate(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Credits, "reject must restore the booking credit")
}

func TestLifecycleToCompletion(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fund(t, f.userID, 10)
	b := f.create(t)

	_, err := f.bookings.Accept(ctx, b.ID, f.proUser)
	require.NoError(t, err)
	_, err = f.bookings.UpdateStatus(ctx, b.ID, f.proUser, models.BookingOnTheWay)
	require.NoError(t, err)
	_, err = f.bookings.UpdateStatus(ctx, b.ID, f.proUser, models.BookingInProgress)
	require.NoError(t, err)

	// Skipping a stage is rejected.
	fresh, err := f.bookings.Get(ctx, b.ID, f.userID, false)
	require.NoError(t, err)
	assert.Equal(t, models.BookingInProgress, fresh.Status)

	done, err := f.bookings.UpdateStatus(ctx, b.ID, f.userID, models.BookingCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	// Terminal states reject everything.
	_, err = f.bookings.Cancel(ctx, b.ID, f.userID, "too late")
	var transition *apperrors.InvalidTransitionError
	assert.ErrorAs(t, err, &transition)
}

func TestUpdateStatusSkippingStageFails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fund(t, f.userID, 10)
	b := f.create(t)

	_, err := f.bookings.UpdateStatus(ctx, b.ID, f.proUser, models.BookingCompleted)
	var transition *apperrors.InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, models.BookingPending, transition.From)
	assert.Equal(t, models.BookingCompleted, transition.To)
}

func TestCancelPendingRefundsInFull(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fund(t, f.userID, 10)
	b := f.create(t)

	cancelled, err := f.bookings.Cancel(ctx, b.ID, f.userID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, cancelled.Status)
	assert.Equal(t, "user", cancelled.Cancellation.CancelledBy)
	assert.True(t, cancelled.Cancellation.CancellationFee.IsZero())
	assert.True(t, cancelled.Cancellation.RefundAmount.Equal(decimal.NewFromInt(1000)))

	w, err := f.wallets.GetOrCreate(ctx, f.userID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(1000)))
}

func TestCancelInProgressChargesFee(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fund(t, f.userID, 10)
	b := f.create(t)

	_, err := f.bookings.Accept(ctx, b.ID, f.proUser)
	require.NoError(t, err)
	_, err = f.bookings.UpdateStatus(ctx, b.ID, f.proUser, models.BookingOnTheWay)
	require.NoError(t, err)
	_, err = f.bookings.UpdateStatus(ctx, b.ID, f.proUser, models.BookingInProgress)
	require.NoError(t, err)

	cancelled, err := f.bookings.Cancel(ctx, b.ID, f.userID, "emergency")
	require.NoError(t, err)
	// 20% of 1000.
	assert.True(t, cancelled.Cancellation.CancellationFee.Equal(decimal.NewFromInt(200)),
		"fee was %s", cancelled.Cancellation.CancellationFee)
	assert.True(t, cancelled.Cancellation.RefundAmount.Equal(decimal.NewFromInt(800)),
		"refund was %s", cancelled.Cancellation.RefundAmount)
}

func TestCancelRequiresReason(t *testing.T) {
	f := setup(t)
	f.fund(t, f.userID, 10)
	b := f.create(t)

	_, err := f.bookings.Cancel(context.Background(), b.ID, f.userID, "")
	var validation *apperrors.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestGetDeniedToStrangers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fund(t, f.userID, 10)
	b := f.create(t)

	_, err := f.bookings.Get(ctx, b.ID, uuid.New(), false)
	assert.ErrorIs(t, err, apperrors.ErrNotAuthorized)

	// Admin override.
	got, err := f.bookings.Get(ctx, b.ID, uuid.New(), true)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
}

type captureListener struct {
	completed []*models.Booking
}

func (c *captureListener) BookingCompleted(_ context.Context, b *models.Booking) {
	c.completed = append(c.completed, b)
}

func TestCompletionNotifiesListeners(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	listener := &captureListener{}
	f.bookings.AddCompletionListener(listener)

	f.fund(t, f.userID, 10)
	b := f.create(t)
	_, err := f.bookings.Accept(ctx, b.ID, f.proUser)
	require.NoError(t, err)
	_, err = f.bookings.UpdateStatus(ctx, b.ID, f.proUser, models.BookingOnTheWay)
	require.NoError(t, err)
	_, err = f.bookings.UpdateStatus(ctx, b.ID, f.proUser, models.BookingInProgress)
	require.NoError(t, err)
	_, err = f.bookings.UpdateStatus(ctx, b.ID, f.proUser, models.BookingCompleted)
	require.NoError(t, err)

	require.Len(t, listener.completed, 1)
	assert.Equal(t, b.ID, listener.completed[0].ID)
}

func TestConcurrentAcceptAndRejectOneWins(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fund(t, f.userID, 10)
	b := f.create(t)

	acceptErr := make(chan error, 1)
	rejectErr := make(chan error, 1)
	go func() {
		_, err := f.bookings.Accept(ctx, b.ID, f.proUser)
		acceptErr <- err
	}()
	go func() {
		_, err := f.bookings.Reject(ctx, b.ID, f.proUser)
		rejectErr <- err
	}()
	aErr, rErr := <-acceptErr, <-rejectErr

	fresh, err := f.bookings.Get(ctx, b.ID, f.userID, false)
	require.NoError(t, err)
	switch fresh.Status {
	case models.BookingAccepted:
		assert.NoError(t, aErr)
		assert.Error(t, rErr)
	case models.BookingRejected:
		assert.NoError(t, rErr)
		assert.Error(t, aErr)
	default:
		t.Fatalf("unexpected status %s", fresh.Status)
	}

	// Whatever won, the requester's credits are consistent: 1 if rejected
	// (refunded), 0 if accepted.
	w, err := f.wallets.GetOrCreate(ctx, f.userID)
	require.NoError(t, err)
	if fresh.Status == models.BookingRejected {
		assert.Equal(t, 1, w.Credits)
	} else {
		assert.Equal(t, 0, w.Credits)
	}
}
