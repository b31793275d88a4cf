package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/anjiri1684/tutor_live/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const uniqueViolation = "23505"

// ApplyCredit inserts the credit row. A second credit for the same (payee, reference) hits the
// unique index and is reported as not applied rather than as an error.
func (s *Store) ApplyCredit(ctx context.Context, credit *models.LedgerCredit) (bool, error) {
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(credit).Error
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return false, nil
		}
		return false, fmt.Errorf("apply ledger credit: %w", err)
	}
	return true, nil
}

func (s *Store) LedgerBalance(ctx context.Context, payeeID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	row := s.db.WithContext(ctx).
		Model(&models.LedgerCredit{}).
		Select("COALESCE(SUM(net), 0)").
		Where("payee_id = ?", payeeID).
		Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("ledger balance: %w", err)
	}
	return total, nil
}
