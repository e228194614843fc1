// Package wallet implements the credit ledger: per-user balance and credit
// counts with an append-only transaction history. Every mutation is
// all-or-nothing; balance and credits never go negative on a committed
// operation.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/skilllink/skilllink/internal/config"
	"github.com/skilllink/skilllink/pkg/apperrors"
	"github.com/skilllink/skilllink/pkg/models"
)

// WalletService defines ledger operations over per-user wallets.
type WalletService interface {
	Start() error
	Stop() error
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Get(ctx context.Context, userID uuid.UUID, page, limit int) (*models.Wallet, []*models.WalletTransaction, int64, error)
	AddFunds(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description, referenceID string) (*models.Wallet, error)
	ReverseFunds(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description, referenceID string) (*models.Wallet, error)
	DeductCredits(ctx context.Context, userID uuid.UUID, credits int, description, referenceID string) (*models.Wallet, error)
	Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, accountNumber, ifscCode string) (*models.Wallet, error)
	CreditValue() decimal.Decimal
}

// updateRetries bounds the optimistic-concurrency retry loop. Contention on
// a single wallet is rare (one user, interactive traffic), so a small bound
// is enough to separate races from bugs.
const updateRetries = 5

var errStaleWallet = errors.New("wallet version changed")

// Service implements WalletService on gorm.
type Service struct {
	logger  *zap.Logger
	db      *gorm.DB
	credits config.CreditsConfig
}

// NewService creates a new WalletService.
func NewService(logger *zap.Logger, db *gorm.DB, credits config.CreditsConfig) (*Service, error) {
	if credits.CreditValue.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("credit value must be positive")
	}
	return &Service{logger: logger, db: db, credits: credits}, nil
}

// Start starts the wallet service.
func (s *Service) Start() error {
	s.logger.Info("Wallet service started")
	return nil
}

// Stop stops the wallet service.
func (s *Service) Stop() error {
	s.logger.Info("Wallet service stopped")
	return nil
}

// CreditValue returns the currency worth of one credit.
func (s *Service) CreditValue() decimal.Decimal {
	return s.credits.CreditValue
}

// GetOrCreate loads the user's wallet, creating an empty one on first use.
func (s *Service) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if err == nil {
		return &wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to find wallet: %w", err)
	}

	now := time.Now()
	wallet = models.Wallet{
		ID:        uuid.New(),
		UserID:    userID,
		Balance:   decimal.Zero,
		Credits:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&wallet).Error; err != nil {
		// Lost a create race; the other writer's wallet wins.
		var existing models.Wallet
		if ferr := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&existing).Error; ferr == nil {
			return &existing, nil
		}
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return &wallet, nil
}

// Get returns the wallet with a page of its transactions, newest first.
func (s *Service) Get(ctx context.Context, userID uuid.UUID, page, limit int) (*models.Wallet, []*models.WalletTransaction, int64, error) {
	wallet, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.WalletTransaction{}).Where("wallet_id = ?", wallet.ID).Count(&total).Error; err != nil {
		return nil, nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	var txns []*models.WalletTransaction
	if err := s.db.WithContext(ctx).
		Where("wallet_id = ?", wallet.ID).
		Order("created_at DESC").
		Limit(limit).Offset((page - 1) * limit).
		Find(&txns).Error; err != nil {
		return nil, nil, 0, fmt.Errorf("failed to find transactions: %w", err)
	}

	return wallet, txns, total, nil
}

// AddFunds credits the wallet with a verified currency amount. Credits grow
// by floor(amount / creditValue); balance grows by the full amount. A
// completed credit entry is appended in the same transaction.
func (s *Service) AddFunds(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description, referenceID string) (*models.Wallet, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperrors.NewValidation("amount must be positive, got %s", amount)
	}

	return s.update(ctx, userID, func(w *models.Wallet) (*models.WalletTransaction, error) {
		creditsToAdd := int(amount.Div(s.credits.CreditValue).IntPart())
		w.Credits += creditsToAdd
		w.Balance = w.Balance.Add(amount)

		return &models.WalletTransaction{
			ID:          uuid.New(),
			WalletID:    w.ID,
			Type:        models.TxCredit,
			Amount:      amount,
			Credits:     creditsToAdd,
			Description: description,
			ReferenceID: referenceID,
			Status:      models.TxStatusCompleted,
			CreatedAt:   time.Now(),
		}, nil
	})
}

// ReverseFunds undoes a prior AddFunds with the same amount: balance shrinks
// by the exact amount and credits by floor(amount / creditValue), both
// clamped at zero. Compensation paths use it so a reversal never leaves a
// sub-credit residue behind.
func (s *Service) ReverseFunds(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description, referenceID string) (*models.Wallet, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperrors.NewValidation("amount must be positive, got %s", amount)
	}

	return s.update(ctx, userID, func(w *models.Wallet) (*models.WalletTransaction, error) {
		creditsToRemove := int(amount.Div(s.credits.CreditValue).IntPart())
		if creditsToRemove > w.Credits {
			creditsToRemove = w.Credits
		}
		w.Credits -= creditsToRemove
		w.Balance = w.Balance.Sub(amount)
		if w.Balance.IsNegative() {
			w.Balance = decimal.Zero
		}

		return &models.WalletTransaction{
			ID:          uuid.New(),
			WalletID:    w.ID,
			Type:        models.TxDebit,
			Amount:      amount.Neg(),
			Credits:     -creditsToRemove,
			Description: description,
			ReferenceID: referenceID,
			Status:      models.TxStatusCompleted,
			CreatedAt:   time.Now(),
		}, nil
	})
}

// DeductCredits spends credits. It fails with InsufficientCreditsError and
// no mutation when the wallet holds fewer credits than requested. Balance
// shrinks by credits * creditValue, clamped at zero.
func (s *Service) DeductCredits(ctx context.Context, userID uuid.UUID, credits int, description, referenceID string) (*models.Wallet, error) {
	if credits <= 0 {
		return nil, apperrors.NewValidation("credits must be positive, got %d", credits)
	}

	return s.update(ctx, userID, func(w *models.Wallet) (*models.WalletTransaction, error) {
		if w.Credits < credits {
			return nil, &apperrors.InsufficientCreditsError{Required: credits, Available: w.Credits}
		}

		amount := s.credits.CreditValue.Mul(decimal.NewFromInt(int64(credits)))
		w.Credits -= credits
		w.Balance = w.Balance.Sub(amount)
		if w.Balance.IsNegative() {
			w.Balance = decimal.Zero
		}

		return &models.WalletTransaction{
			ID:          uuid.New(),
			WalletID:    w.ID,
			Type:        models.TxDebit,
			Amount:      amount.Neg(),
			Credits:     -credits,
			Description: description,
			ReferenceID: referenceID,
			Status:      models.TxStatusCompleted,
			CreatedAt:   time.Now(),
		}, nil
	})
}

// Withdraw moves balance out of the wallet as a pending payout. Credits are
// untouched; the payout settles through an external gateway.
func (s *Service) Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, accountNumber, ifscCode string) (*models.Wallet, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperrors.NewValidation("amount must be positive, got %s", amount)
	}
	if len(accountNumber) < 4 {
		return nil, apperrors.NewValidation("account number is required")
	}
	if ifscCode == "" {
		return nil, apperrors.NewValidation("IFSC code is required")
	}

	return s.update(ctx, userID, func(w *models.Wallet) (*models.WalletTransaction, error) {
		if w.Balance.LessThan(amount) {
			return nil, apperrors.ErrInsufficientBalance
		}
		w.Balance = w.Balance.Sub(amount)

		return &models.WalletTransaction{
			ID:          uuid.New(),
			WalletID:    w.ID,
			Type:        models.TxWithdrawal,
			Amount:      amount.Neg(),
			Description: fmt.Sprintf("Withdrawal to account ending in %s", accountNumber[len(accountNumber)-4:]),
			Status:      models.TxStatusPending,
			CreatedAt:   time.Now(),
		}, nil
	})
}

// update runs a load-mutate-store cycle under optimistic concurrency: the
// balance/credit write only lands if the version read is still current, and
// the ledger entry is appended in the same database transaction. A stale
// read reloads and retries, so two racing debits cannot both pass the
// credits check.
func (s *Service) update(ctx context.Context, userID uuid.UUID, mutate func(w *models.Wallet) (*models.WalletTransaction, error)) (*models.Wallet, error) {
	for attempt := 0; attempt < updateRetries; attempt++ {
		wallet, err := s.GetOrCreate(ctx, userID)
		if err != nil {
			return nil, err
		}

		entry, err := mutate(wallet)
		if err != nil {
			return nil, err
		}

		prev := wallet.Version
		wallet.Version++
		wallet.UpdatedAt = time.Now()

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.Wallet{}).
				Where("id = ? AND version = ?", wallet.ID, prev).
				Updates(map[string]interface{}{
					"balance":    wallet.Balance,
					"credits":    wallet.Credits,
					"version":    wallet.Version,
					"updated_at": wallet.UpdatedAt,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errStaleWallet
			}
			return tx.Create(entry).Error
		})
		if errors.Is(err, errStaleWallet) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to commit wallet update: %w", err)
		}
		return wallet, nil
	}
	return nil, fmt.Errorf("wallet %s: update contention, giving up after %d attempts", userID, updateRetries)
}
