package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User represents an account holder: a customer, a professional's login, or
// an admin. Professionals additionally own a Professional profile row.
type User struct {
	ID           uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	Name         string     `json:"name" validate:"required,min=1,max=100"`
	Email        string     `json:"email" gorm:"index" validate:"omitempty,email,max=254"`
	Phone        string     `json:"phone" gorm:"uniqueIndex" validate:"required,e164"`
	Role         string     `json:"role" gorm:"default:user" validate:"required,oneof=user professional admin"`
	AuthMethod   string     `json:"auth_method" gorm:"default:otp" validate:"omitempty,oneof=otp google apple"`
	GoogleID     string     `json:"-" gorm:"index"`
	AppleID      string     `json:"-" gorm:"index"`
	ProfileImage string     `json:"profile_image"`
	Address      Address    `json:"address" gorm:"embedded;embeddedPrefix:address_"`
	Language     string     `json:"language" gorm:"default:en" validate:"omitempty,oneof=en te hi ta kn"`
	IsVerified   bool       `json:"is_verified"`
	IsActive     bool       `json:"is_active" gorm:"default:true"`
	ReferredBy   *uuid.UUID `json:"referred_by" gorm:"type:uuid"`
	ReferralCode string     `json:"referral_code" gorm:"uniqueIndex"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Address is a postal address with optional coordinates.
type Address struct {
	Street  string  `json:"street"`
	City    string  `json:"city"`
	State   string  `json:"state"`
	Pincode string  `json:"pincode"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// Wallet holds a user's currency balance, credit count and version counter
// for optimistic concurrency. One wallet per user, created lazily.
// Balance and credits never go negative on a committed operation.
type Wallet struct {
	ID        uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	UserID    uuid.UUID       `json:"user_id" gorm:"type:uuid;uniqueIndex" validate:"required,uuid"`
	Balance   decimal.Decimal `json:"balance" gorm:"type:numeric(14,2)"`
	Credits   int             `json:"credits" validate:"min=0"`
	Version   int64           `json:"-"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Wallet transaction kinds.
const (
	TxCredit       = "credit"
	TxDebit        = "debit"
	TxRefund       = "refund"
	TxWithdrawal   = "withdrawal"
	TxReferral     = "referral"
	TxBooking      = "booking"
	TxUnlock       = "unlock"
	TxSubscription = "subscription"
)

// Wallet transaction statuses.
const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
	TxStatusCancelled = "cancelled"
)

// WalletTransaction is one append-only ledger entry. Amount and Credits are
// signed: debits carry negative values.
type WalletTransaction struct {
	ID          uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	WalletID    uuid.UUID       `json:"wallet_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Type        string          `json:"type" validate:"required,oneof=credit debit refund withdrawal referral booking unlock subscription"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:numeric(14,2)"`
	Credits     int             `json:"credits"`
	Description string          `json:"description" validate:"omitempty,max=500"`
	ReferenceID string          `json:"reference_id" validate:"omitempty,max=255"`
	Status      string          `json:"status" gorm:"default:completed" validate:"required,oneof=pending completed failed cancelled"`
	CreatedAt   time.Time       `json:"created_at"`
}

// KYC statuses for professionals.
const (
	KYCPending  = "pending"
	KYCApproved = "approved"
	KYCRejected = "rejected"
)

// KYC holds the identity documents a professional submits for approval.
type KYC struct {
	IDType       string     `json:"id_type" validate:"omitempty,oneof=aadhar pan driving_license passport"`
	IDNumber     string     `json:"id_number"`
	IDFront      string     `json:"id_front"`
	IDBack       string     `json:"id_back"`
	AddressProof string     `json:"address_proof"`
	Photo        string     `json:"photo"`
	Status       string     `json:"status" gorm:"default:pending" validate:"omitempty,oneof=pending approved rejected"`
	VerifiedAt   *time.Time `json:"verified_at"`
	VerifiedBy   *uuid.UUID `json:"verified_by" gorm:"type:uuid"`
}

// ProfessionalPricing is a professional's rate card. BasePrice seeds the
// booking total.
type ProfessionalPricing struct {
	BasePrice     decimal.Decimal `json:"base_price" gorm:"type:numeric(14,2)"`
	PricePerHour  decimal.Decimal `json:"price_per_hour" gorm:"type:numeric(14,2)"`
	MinimumCharge decimal.Decimal `json:"minimum_charge" gorm:"type:numeric(14,2)"`
	Currency      string          `json:"currency" gorm:"default:INR"`
}

// Professional is a verified service provider. Inactive until KYC approval.
type Professional struct {
	ID            uuid.UUID           `json:"id" gorm:"primaryKey;type:uuid"`
	UserID        uuid.UUID           `json:"user_id" gorm:"type:uuid;uniqueIndex" validate:"required,uuid"`
	Profession    string              `json:"profession" validate:"required,max=100"`
	CategoryID    uuid.UUID           `json:"category_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Experience    int                 `json:"experience"`
	Bio           string              `json:"bio" validate:"omitempty,max=2000"`
	Skills        []string            `json:"skills" gorm:"serializer:json"`
	KYC           KYC                 `json:"kyc" gorm:"embedded;embeddedPrefix:kyc_"`
	Pricing       ProfessionalPricing `json:"pricing" gorm:"embedded;embeddedPrefix:pricing_"`
	WorkRadiusKm  int                 `json:"work_radius_km" gorm:"default:10"`
	RatingAverage float64             `json:"rating_average" validate:"min=0,max=5"`
	RatingCount   int                 `json:"rating_count"`
	Plan          string              `json:"plan" gorm:"default:free" validate:"omitempty,oneof=free pro"`
	JobLeadsUsed  int                 `json:"job_leads_used"`
	JobLeadsLimit int                 `json:"job_leads_limit" gorm:"default:10"`
	IsVerified    bool                `json:"is_verified"`
	IsActive      bool                `json:"is_active"`
	Location      Address             `json:"location" gorm:"embedded;embeddedPrefix:location_"`
	ReferredBy    *uuid.UUID          `json:"referred_by" gorm:"type:uuid"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// Category groups services (electrician, plumber, ...).
type Category struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	Name        string    `json:"name" gorm:"uniqueIndex" validate:"required,max=100"`
	Icon        string    `json:"icon"`
	Image       string    `json:"image"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active" gorm:"default:true"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Service is a bookable offering inside a category.
type Service struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	Name        string    `json:"name" validate:"required,max=100"`
	CategoryID  uuid.UUID `json:"category_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	Image       string    `json:"image"`
	IsActive    bool      `json:"is_active" gorm:"default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Booking lifecycle statuses. See internal/booking for the legal
// transition table.
const (
	BookingPending    = "pending"
	BookingAccepted   = "accepted"
	BookingOnTheWay   = "on_the_way"
	BookingInProgress = "in_progress"
	BookingCompleted  = "completed"
	BookingCancelled  = "cancelled"
	BookingRejected   = "rejected"
)

// BookingPricing captures the agreed price breakdown at creation time.
// TotalAmount = BasePrice + AdditionalCharges - Discount.
type BookingPricing struct {
	BasePrice         decimal.Decimal `json:"base_price" gorm:"type:numeric(14,2)"`
	AdditionalCharges decimal.Decimal `json:"additional_charges" gorm:"type:numeric(14,2)"`
	Discount          decimal.Decimal `json:"discount" gorm:"type:numeric(14,2)"`
	TotalAmount       decimal.Decimal `json:"total_amount" gorm:"type:numeric(14,2)"`
	PaidAmount        decimal.Decimal `json:"paid_amount" gorm:"type:numeric(14,2)"`
	PaymentMethod     string          `json:"payment_method" validate:"omitempty,oneof=wallet razorpay cash"`
	CreditsUsed       int             `json:"credits_used"`
}

// BookingCancellation is populated only when a booking is cancelled.
type BookingCancellation struct {
	CancelledBy     string          `json:"cancelled_by" validate:"omitempty,oneof=user professional admin"`
	CancelledAt     *time.Time      `json:"cancelled_at"`
	Reason          string          `json:"reason"`
	RefundAmount    decimal.Decimal `json:"refund_amount" gorm:"type:numeric(14,2)"`
	CancellationFee decimal.Decimal `json:"cancellation_fee" gorm:"type:numeric(14,2)"`
}

// Booking is a single service engagement between a user and a professional.
// ChatRoomID is derived from the booking id at creation and never changes.
type Booking struct {
	ID             uuid.UUID           `json:"id" gorm:"primaryKey;type:uuid"`
	UserID         uuid.UUID           `json:"user_id" gorm:"type:uuid;index" validate:"required,uuid"`
	ProfessionalID uuid.UUID           `json:"professional_id" gorm:"type:uuid;index" validate:"required,uuid"`
	ServiceID      uuid.UUID           `json:"service_id" gorm:"type:uuid" validate:"required,uuid"`
	CategoryID     uuid.UUID           `json:"category_id" gorm:"type:uuid" validate:"required,uuid"`
	Status         string              `json:"status" gorm:"default:pending;index" validate:"required,oneof=pending accepted on_the_way in_progress completed cancelled rejected"`
	ServiceDate    time.Time           `json:"service_date" validate:"required"`
	ServiceTime    string              `json:"service_time"`
	Address        Address             `json:"address" gorm:"embedded;embeddedPrefix:address_"`
	Description    string              `json:"description" validate:"omitempty,max=2000"`
	Pricing        BookingPricing      `json:"pricing" gorm:"embedded;embeddedPrefix:pricing_"`
	Cancellation   BookingCancellation `json:"cancellation" gorm:"embedded;embeddedPrefix:cancellation_"`
	ReviewID       *uuid.UUID          `json:"review_id" gorm:"type:uuid"`
	ChatRoomID     string              `json:"chat_room_id" gorm:"uniqueIndex"`
	Version        int64               `json:"-"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	AcceptedAt     *time.Time          `json:"accepted_at"`
	CompletedAt    *time.Time          `json:"completed_at"`
}

// Review is feedback on a completed booking. Exactly one per booking.
type Review struct {
	ID             uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	BookingID      uuid.UUID  `json:"booking_id" gorm:"type:uuid;uniqueIndex" validate:"required,uuid"`
	UserID         uuid.UUID  `json:"user_id" gorm:"type:uuid;index" validate:"required,uuid"`
	ProfessionalID uuid.UUID  `json:"professional_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Rating         int        `json:"rating" validate:"required,min=1,max=5"`
	Comment        string     `json:"comment" validate:"omitempty,max=2000"`
	Photos         []string   `json:"photos" gorm:"serializer:json"`
	IsVerified     bool       `json:"is_verified"`
	IsVisible      bool       `json:"is_visible" gorm:"default:true"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Referral statuses.
const (
	ReferralPending   = "pending"
	ReferralCompleted = "completed"
	ReferralExpired   = "expired"
)

// Referral links a referrer to a referred user. The reward pays out after
// the referred user's first completed booking.
type Referral struct {
	ID            uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	ReferrerID    uuid.UUID       `json:"referrer_id" gorm:"type:uuid;index" validate:"required,uuid"`
	ReferredID    uuid.UUID       `json:"referred_id" gorm:"type:uuid;uniqueIndex" validate:"required,uuid"`
	ReferralCode  string          `json:"referral_code" validate:"required"`
	Type          string          `json:"type" gorm:"default:user" validate:"omitempty,oneof=user professional"`
	Status        string          `json:"status" gorm:"default:pending" validate:"omitempty,oneof=pending completed expired"`
	RewardCredits int             `json:"reward_credits"`
	RewardAmount  decimal.Decimal `json:"reward_amount" gorm:"type:numeric(14,2)"`
	CompletedAt   *time.Time      `json:"completed_at"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Coupon is an admin-issued discount code.
type Coupon struct {
	ID          uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	Code        string          `json:"code" gorm:"uniqueIndex" validate:"required,uppercase"`
	Type        string          `json:"type" validate:"required,oneof=percentage fixed"`
	Value       decimal.Decimal `json:"value" gorm:"type:numeric(14,2)" validate:"required"`
	MinPurchase decimal.Decimal `json:"min_purchase" gorm:"type:numeric(14,2)"`
	MaxDiscount decimal.Decimal `json:"max_discount" gorm:"type:numeric(14,2)"`
	ValidFrom   time.Time       `json:"valid_from" validate:"required"`
	ValidUntil  time.Time       `json:"valid_until" validate:"required"`
	UsageLimit  int             `json:"usage_limit"`
	UsedCount   int             `json:"used_count"`
	IsActive    bool            `json:"is_active" gorm:"default:true"`
	CreatedBy   uuid.UUID       `json:"created_by" gorm:"type:uuid"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ChatRoom is the conversation between the two parties of a booking. RoomID
// mirrors the booking's ChatRoomID.
type ChatRoom struct {
	ID                 uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	RoomID             string     `json:"room_id" gorm:"uniqueIndex" validate:"required"`
	BookingID          uuid.UUID  `json:"booking_id" gorm:"type:uuid;index" validate:"required,uuid"`
	UserID             uuid.UUID  `json:"user_id" gorm:"type:uuid;index" validate:"required,uuid"`
	ProfessionalUserID uuid.UUID  `json:"professional_user_id" gorm:"type:uuid;index" validate:"required,uuid"`
	LastMessage        string     `json:"last_message"`
	LastMessageAt      *time.Time `json:"last_message_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ChatMessage is one message in a room.
type ChatMessage struct {
	ID        uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	RoomID    string     `json:"room_id" gorm:"index" validate:"required"`
	SenderID  uuid.UUID  `json:"sender_id" gorm:"type:uuid" validate:"required,uuid"`
	Type      string     `json:"type" gorm:"default:text" validate:"omitempty,oneof=text image file"`
	Body      string     `json:"body" validate:"required,max=5000"`
	MediaURL  string     `json:"media_url"`
	ReadAt    *time.Time `json:"read_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// All returns every model for migration, leaves first.
func All() []interface{} {
	return []interface{}{
		&User{}, &Wallet{}, &WalletTransaction{},
		&Category{}, &Service{}, &Professional{},
		&Booking{}, &Review{}, &Referral{}, &Coupon{},
		&ChatRoom{}, &ChatMessage{},
	}
}
