package chat_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/skilllink/skilllink/internal/chat"
	"github.com/skilllink/skilllink/internal/config"
	"github.com/skilllink/skilllink/internal/wallet"
	"github.com/skilllink/skilllink/pkg/apperrors"
	"github.com/skilllink/skilllink/pkg/models"
)

type fixture struct {
	db      *gorm.DB
	wallets *wallet.Service
	chats   *chat.Service
	userID  uuid.UUID
	proUser uuid.UUID
	roomID  string
}

func setup(t *testing.T) *fixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))

	logger := zap.NewNop()
	credits := config.CreditsConfig{
		CreditValue: decimal.NewFromInt(10),
		UnlockCost:  1,
	}
	wallets, err := wallet.NewService(logger, db, credits)
	require.NoError(t, err)
	chats, err := chat.NewService(logger, db, wallets, credits)
	require.NoError(t, err)

	f := &fixture{db: db, wallets: wallets, chats: chats, userID: uuid.New(), proUser: uuid.New()}

	pro := &models.Professional{
		ID: uuid.New(), UserID: f.proUser, Profession: "Electrician", CategoryID: uuid.New(),
	}
	require.NoError(t, db.Create(pro).Error)

	bookingID := uuid.New()
	f.roomID = fmt.Sprintf("room_%s", bookingID)
	require.NoError(t, db.Create(&models.Booking{
		ID: bookingID, UserID: f.userID, ProfessionalID: pro.ID,
		ServiceID: uuid.New(), CategoryID: pro.CategoryID,
		Status: models.BookingAccepted, ChatRoomID: f.roomID,
	}).Error)
	return f
}

func (f *fixture) fund(t *testing.T, userID uuid.UUID) {
	t.Helper()
	_, err := f.wallets.AddFunds(context.Background(), userID, decimal.NewFromInt(10), "top-up", "")
	require.NoError(t, err)
}

func TestOpenRoomChargesOnFirstUse(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// No credits: room creation is refused.
	_, _, err := f.chats.OpenRoom(ctx, f.userID, f.roomID)
	var insufficient *apperrors.InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)

	f.fund(t, f.userID)
	room, messages, err := f.chats.OpenRoom(ctx, f.userID, f.roomID)
	require.NoError(t, err)
	assert.Equal(t, f.roomID, room.RoomID)
	assert.Empty(t, messages)

	w, err := f.wallets.GetOrCreate(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, 0, w.Credits)

	// Reopening an existing room is free.
	_, _, err = f.chats.OpenRoom(ctx, f.userID, f.roomID)
	require.NoError(t, err)
}

func TestOpenRoomRejectsStrangers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	stranger := uuid.New()
	f.fund(t, stranger)

	_, _, err := f.chats.OpenRoom(ctx, stranger, f.roomID)
	assert.ErrorIs(t, err, apperrors.ErrNotAuthorized)
}

func TestOpenRoomUnknownRoom(t *testing.T) {
	f := setup(t)
	_, _, err := f.chats.OpenRoom(context.Background(), f.userID, "room_nonexistent")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSendMaintainsLastMessage(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fund(t, f.userID)

	msg, err := f.chats.Send(ctx, f.userID, f.roomID, &chat.SendRequest{Body: "Hello there"})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", msg.Body)
	assert.Equal(t, "text", msg.Type)

	var room models.ChatRoom
	require.NoError(t, f.db.Where("room_id = ?", f.roomID).First(&room).Error)
	assert.Equal(t, "Hello there", room.LastMessage)
	require.NotNil(t, room.LastMessageAt)
}

func TestSendSanitizesBody(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fund(t, f.userID)

	msg, err := f.chats.Send(ctx, f.userID, f.roomID, &chat.SendRequest{
		Body: `hey <script>alert("x")</script>`,
	})
	require.NoError(t, err)
	assert.NotContains(t, msg.Body, "<script>")

	// A body that sanitizes to nothing is rejected.
	_, err = f.chats.Send(ctx, f.userID, f.roomID, &chat.SendRequest{
		Body: `<script>alert("x")</script>`,
	})
	var validation *apperrors.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestUnreadCountsPerViewer(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fund(t, f.userID)

	_, err := f.chats.Send(ctx, f.userID, f.roomID, &chat.SendRequest{Body: "one"})
	require.NoError(t, err)
	_, err = f.chats.Send(ctx, f.userID, f.roomID, &chat.SendRequest{Body: "two"})
	require.NoError(t, err)

	// The professional has two unread; the sender has none.
	rooms, err := f.chats.Rooms(ctx, f.proUser)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, int64(2), rooms[0].Unread)

	rooms, err = f.chats.Rooms(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, int64(0), rooms[0].Unread)

	// Opening the room marks them read.
	_, _, err = f.chats.OpenRoom(ctx, f.proUser, f.roomID)
	require.NoError(t, err)
	rooms, err = f.chats.Rooms(ctx, f.proUser)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rooms[0].Unread)
}
