// Package access decides whether a viewer sees full contact details or a
// redacted view. The gate is a pre-commitment discovery control: it reads
// the viewer's live credit balance on every request rather than any stored
// unlock grant, and it stands down once a booking is past pending.
package access

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skilllink/skilllink/internal/wallet"
	"github.com/skilllink/skilllink/pkg/models"
)

// MaskedValue replaces locked contact fields in redacted views.
const MaskedValue = "***"

// Gate evaluates contact-detail visibility.
type Gate struct {
	logger  *zap.Logger
	wallets wallet.WalletService
}

// NewGate creates a Gate backed by the wallet ledger.
func NewGate(logger *zap.Logger, wallets wallet.WalletService) *Gate {
	return &Gate{logger: logger, wallets: wallets}
}

// HasAccess reports whether the viewer currently holds at least one credit.
// A nil viewer (guest) never has access. The check is evaluated from the
// live balance, so access lapses when the balance returns to zero.
func (g *Gate) HasAccess(ctx context.Context, viewerID *uuid.UUID) bool {
	if viewerID == nil {
		return false
	}
	w, err := g.wallets.GetOrCreate(ctx, *viewerID)
	if err != nil {
		g.logger.Warn("Access check failed, denying", zap.String("viewerID", viewerID.String()), zap.Error(err))
		return false
	}
	return w.Credits >= 1
}

// CounterpartVisible reports whether a booking's parties may see each
// other's contact details regardless of credit balance. True once the
// booking has progressed past pending.
func CounterpartVisible(b *models.Booking) bool {
	switch b.Status {
	case models.BookingAccepted, models.BookingOnTheWay, models.BookingInProgress, models.BookingCompleted:
		return true
	}
	return false
}

// ContactDetails is the gated slice of a user's profile.
type ContactDetails struct {
	Phone         string `json:"phone"`
	Email         string `json:"email,omitempty"`
	ContactLocked bool   `json:"contact_locked,omitempty"`
}

// Redact returns the contact details a viewer is entitled to.
func Redact(u *models.User, full bool) ContactDetails {
	if full {
		return ContactDetails{Phone: u.Phone, Email: u.Email}
	}
	return ContactDetails{Phone: MaskedValue, ContactLocked: true}
}
