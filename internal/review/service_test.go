package review_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/skilllink/skilllink/internal/review"
	"github.com/skilllink/skilllink/pkg/apperrors"
	"github.com/skilllink/skilllink/pkg/models"
)

type fixture struct {
	db      *gorm.DB
	reviews *review.Service
	userID  uuid.UUID
	proID   uuid.UUID
}

func setup(t *testing.T) *fixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))

	reviews, err := review.NewService(zap.NewNop(), db)
	require.NoError(t, err)
	f := &fixture{db: db, reviews: reviews, userID: uuid.New(), proID: uuid.New()}
	require.NoError(t, db.Create(&models.Professional{
		ID: f.proID, UserID: uuid.New(), Profession: "Electrician", CategoryID: uuid.New(),
	}).Error)
	return f
}

func (f *fixture) booking(t *testing.T, status string) *models.Booking {
	t.Helper()
	b := &models.Booking{
		ID:             uuid.New(),
		UserID:         f.userID,
		ProfessionalID: f.proID,
		ServiceID:      uuid.New(),
		CategoryID:     uuid.New(),
		Status:         status,
		ChatRoomID:     "room_" + uuid.NewString(),
	}
	require.NoError(t, f.db.Create(b).Error)
	return b
}

func TestCreateReviewUpdatesRating(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	first := f.booking(t, models.BookingCompleted)
	second := f.booking(t, models.BookingCompleted)

	_, err := f.reviews.Create(ctx, f.userID, &review.CreateRequest{
		BookingID: first.ID, Rating: 5, Comment: "Great work",
	})
	require.NoError(t, err)
	_, err = f.reviews.Create(ctx, f.userID, &review.CreateRequest{
		BookingID: second.ID, Rating: 3,
	})
	require.NoError(t, err)

	var pro models.Professional
	require.NoError(t, f.db.Where("id = ?", f.proID).First(&pro).Error)
	assert.Equal(t, 2, pro.RatingCount)
	assert.InDelta(t, 4.0, pro.RatingAverage, 0.001)
}

func TestCreateReviewOnlyOncePerBooking(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b := f.booking(t, models.BookingCompleted)

	_, err := f.reviews.Create(ctx, f.userID, &review.CreateRequest{BookingID: b.ID, Rating: 4})
	require.NoError(t, err)

	_, err = f.reviews.Create(ctx, f.userID, &review.CreateRequest{BookingID: b.ID, Rating: 1})
	var validation *apperrors.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestCreateReviewRequiresCompletion(t *testing.T) {
	f := setup(t)
	b := f.booking(t, models.BookingInProgress)

	_, err := f.reviews.Create(context.Background(), f.userID, &review.CreateRequest{
		BookingID: b.ID, Rating: 5,
	})
	var validation *apperrors.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestCreateReviewOnlyByRequester(t *testing.T) {
	f := setup(t)
	b := f.booking(t, models.BookingCompleted)

	_, err := f.reviews.Create(context.Background(), uuid.New(), &review.CreateRequest{
		BookingID: b.ID, Rating: 5,
	})
	assert.ErrorIs(t, err, apperrors.ErrNotAuthorized)
}

func TestCreateReviewSanitizesComment(t *testing.T) {
	f := setup(t)
	b := f.booking(t, models.BookingCompleted)

	r, err := f.reviews.Create(context.Background(), f.userID, &review.CreateRequest{
		BookingID: b.ID,
		Rating:    5,
		Comment:   `Nice <script>alert("x")</script>job`,
	})
	require.NoError(t, err)
	assert.NotContains(t, r.Comment, "<script>")
	assert.Contains(t, r.Comment, "Nice")
}

func TestListForProfessionalNewestFirst(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		b := f.booking(t, models.BookingCompleted)
		_, err := f.reviews.Create(ctx, f.userID, &review.CreateRequest{BookingID: b.ID, Rating: 4})
		require.NoError(t, err)
	}

	reviews, total, err := f.reviews.ListForProfessional(ctx, f.proID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, reviews, 2)
}
