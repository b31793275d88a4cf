// Package ledger records teacher earnings. Each credit is keyed by (payee, reference) so
// replaying a credit for the same payment never moves the balance twice.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anjiri1684/tutor_live/apperrors"
	"github.com/anjiri1684/tutor_live/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditStore persists credits. ApplyCredit reports false when the (payee, reference) pair was
// already recorded.
type CreditStore interface {
	ApplyCredit(ctx context.Context, credit *models.LedgerCredit) (bool, error)
	LedgerBalance(ctx context.Context, payeeID uuid.UUID) (decimal.Decimal, error)
}

type Config struct {
	// CommissionRate is the platform share withheld from each credit, between 0 and 1.
	CommissionRate decimal.Decimal
}

type Ledger struct {
	store      CreditStore
	commission decimal.Decimal
	logger     *slog.Logger
}

func New(store CreditStore, cfg Config, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	rate := cfg.CommissionRate
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		rate = decimal.Zero
	}
	return &Ledger{store: store, commission: rate, logger: logger}
}

// Net returns the amount that reaches the payee after commission, rounded to cents.
func (l *Ledger) Net(amount decimal.Decimal) decimal.Decimal {
	return amount.Sub(amount.Mul(l.commission)).Round(2)
}

// Credit adds amount to the payee's balance. Repeating a call with the same payee and
// reference is a no-op and returns nil.
func (l *Ledger) Credit(ctx context.Context, payeeID uuid.UUID, amount decimal.Decimal, currency string, referenceID uuid.UUID) error {
	if payeeID == uuid.Nil || referenceID == uuid.Nil {
		return fmt.Errorf("ledger credit needs payee and reference: %w", apperrors.ErrInvalidInput)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("ledger credit amount %s: %w", amount, apperrors.ErrInvalidInput)
	}

	credit := &models.LedgerCredit{
		PayeeID:     payeeID,
		ReferenceID: referenceID,
		Amount:      amount,
		Net:         l.Net(amount),
		Currency:    currency,
	}
	applied, err := l.store.ApplyCredit(ctx, credit)
	if err != nil {
		return err
	}
	if !applied {
		l.logger.InfoContext(ctx, "ledger credit already applied",
			"payee_id", payeeID, "reference_id", referenceID)
		return nil
	}

	l.logger.InfoContext(ctx, "ledger credited",
		"payee_id", payeeID,
		"reference_id", referenceID,
		"amount", amount.StringFixed(2),
		"net", credit.Net.StringFixed(2),
		"currency", currency)
	return nil
}

func (l *Ledger) Balance(ctx context.Context, payeeID uuid.UUID) (decimal.Decimal, error) {
	return l.store.LedgerBalance(ctx, payeeID)
}
