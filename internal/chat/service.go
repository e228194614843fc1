// Package chat provides booking-scoped messaging between the customer and
// the professional. Each booking owns exactly one room, and opening a room
// consumes a credit.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/skilllink/skilllink/internal/config"
	"github.com/skilllink/skilllink/internal/wallet"
	"github.com/skilllink/skilllink/pkg/apperrors"
	"github.com/skilllink/skilllink/pkg/metrics"
	"github.com/skilllink/skilllink/pkg/models"
)

// SendRequest carries one outgoing message.
type SendRequest struct {
	Type     string `json:"type" validate:"omitempty,oneof=text image file"`
	Body     string `json:"body" validate:"required,max=5000"`
	MediaURL string `json:"media_url" validate:"omitempty,url"`
}

// RoomView is a room plus the viewer's unread count.
type RoomView struct {
	Room   *models.ChatRoom `json:"room"`
	Unread int64            `json:"unread"`
}

// ChatService defines messaging operations.
type ChatService interface {
	Start() error
	Stop() error
	Rooms(ctx context.Context, userID uuid.UUID) ([]*RoomView, error)
	OpenRoom(ctx context.Context, userID uuid.UUID, roomID string) (*models.ChatRoom, []*models.ChatMessage, error)
	Send(ctx context.Context, userID uuid.UUID, roomID string, req *SendRequest) (*models.ChatMessage, error)
}

// Service implements ChatService.
type Service struct {
	logger    *zap.Logger
	db        *gorm.DB
	wallets   wallet.WalletService
	credits   config.CreditsConfig
	sanitizer *bluemonday.Policy
}

// NewService creates a new ChatService.
func NewService(logger *zap.Logger, db *gorm.DB, wallets wallet.WalletService, credits config.CreditsConfig) (*Service, error) {
	return &Service{
		logger:    logger,
		db:        db,
		wallets:   wallets,
		credits:   credits,
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

// Start starts the chat service.
func (s *Service) Start() error {
	s.logger.Info("Chat service started")
	return nil
}

// Stop stops the chat service.
func (s *Service) Stop() error {
	s.logger.Info("Chat service stopped")
	return nil
}

// Rooms lists the user's rooms, most recently active first, with unread
// counts.
func (s *Service) Rooms(ctx context.Context, userID uuid.UUID) ([]*RoomView, error) {
	var rooms []*models.ChatRoom
	err := s.db.WithContext(ctx).
		Where("user_id = ? OR professional_user_id = ?", userID, userID).
		Order("last_message_at DESC NULLS LAST").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	views := make([]*RoomView, 0, len(rooms))
	for _, room := range rooms {
		var unread int64
		err := s.db.WithContext(ctx).Model(&models.ChatMessage{}).
			Where("room_id = ? AND sender_id <> ? AND read_at IS NULL", room.RoomID, userID).
			Count(&unread).Error
		if err != nil {
			return nil, fmt.Errorf("failed to count unread: %w", err)
		}
		views = append(views, &RoomView{Room: room, Unread: unread})
	}
	return views, nil
}

// OpenRoom returns a room and its messages, marking the viewer's unread
// messages as read. The first open by a user creates the room from its
// booking and consumes a credit.
func (s *Service) OpenRoom(ctx context.Context, userID uuid.UUID, roomID string) (*models.ChatRoom, []*models.ChatMessage, error) {
	room, err := s.ensureRoom(ctx, userID, roomID)
	if err != nil {
		return nil, nil, err
	}
	if room.UserID != userID && room.ProfessionalUserID != userID {
		return nil, nil, apperrors.ErrNotAuthorized
	}

	var messages []*models.ChatMessage
	err = s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list messages: %w", err)
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Model(&models.ChatMessage{}).
		Where("room_id = ? AND sender_id <> ? AND read_at IS NULL", roomID, userID).
		Update("read_at", now).Error
	if err != nil {
		s.logger.Warn("Failed to mark messages read",
			zap.String("room_id", roomID), zap.Error(err))
	}
	return room, messages, nil
}

// Send appends a message to the room, creating the room first if this is
// the conversation's opening message.
func (s *Service) Send(ctx context.Context, userID uuid.UUID, roomID string, req *SendRequest) (*models.ChatMessage, error) {
	room, err := s.ensureRoom(ctx, userID, roomID)
	if err != nil {
		return nil, err
	}
	if room.UserID != userID && room.ProfessionalUserID != userID {
		return nil, apperrors.ErrNotAuthorized
	}

	msgType := req.Type
	if msgType == "" {
		msgType = "text"
	}
	body := s.sanitizer.Sanitize(req.Body)
	if body == "" {
		return nil, apperrors.NewValidation("message body is empty")
	}

	now := time.Now()
	msg := &models.ChatMessage{
		ID:        uuid.New(),
		RoomID:    roomID,
		SenderID:  userID,
		Type:      msgType,
		Body:      body,
		MediaURL:  req.MediaURL,
		CreatedAt: now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("failed to create message: %w", err)
		}
		return tx.Model(&models.ChatRoom{}).Where("id = ?", room.ID).
			Updates(map[string]interface{}{
				"last_message":    msg.Body,
				"last_message_at": now,
				"updated_at":      now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ensureRoom loads the room, creating it from its booking on first use.
// Creation verifies the caller is a party to the booking and charges the
// chat access credit.
func (s *Service) ensureRoom(ctx context.Context, userID uuid.UUID, roomID string) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := s.db.WithContext(ctx).Where("room_id = ?", roomID).First(&room).Error
	if err == nil {
		return &room, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load room: %w", err)
	}

	var booking models.Booking
	err = s.db.WithContext(ctx).Where("chat_room_id = ?", roomID).First(&booking).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("chat room")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load booking for room: %w", err)
	}

	var pro models.Professional
	if err := s.db.WithContext(ctx).Where("id = ?", booking.ProfessionalID).First(&pro).Error; err != nil {
		return nil, fmt.Errorf("failed to load professional for room: %w", err)
	}
	if booking.UserID != userID && pro.UserID != userID {
		return nil, apperrors.ErrNotAuthorized
	}

	if _, err := s.wallets.DeductCredits(ctx, userID, s.credits.UnlockCost, "Chat access", roomID); err != nil {
		return nil, err
	}
	metrics.CreditsSpent.WithLabelValues("chat").Add(float64(s.credits.UnlockCost))

	now := time.Now()
	room = models.ChatRoom{
		ID:                 uuid.New(),
		RoomID:             roomID,
		BookingID:          booking.ID,
		UserID:             booking.UserID,
		ProfessionalUserID: pro.UserID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.db.WithContext(ctx).Create(&room).Error; err != nil {
		// A concurrent open may have created it first.
		var existing models.ChatRoom
		if lerr := s.db.WithContext(ctx).Where("room_id = ?", roomID).First(&existing).Error; lerr == nil {
			return &existing, nil
		}
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	s.logger.Info("Chat room opened",
		zap.String("room_id", roomID),
		zap.String("booking_id", booking.ID.String()))
	return &room, nil
}
