package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/anjiri1684/tutor_live/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) GetPaymentByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.WithContext(ctx).First(&payment, "booking_id = ?", bookingID).Error; err != nil {
		return nil, notFound(err, "payment")
	}
	return &payment, nil
}

func (s *Store) GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.WithContext(ctx).First(&payment, "gateway_reference = ?", reference).Error; err != nil {
		return nil, notFound(err, "payment")
	}
	return &payment, nil
}

// UpsertPendingPayment inserts p, or resets an existing PENDING/FAILED row of the same booking
// to PENDING with p's reference. It returns false when the existing row is COMPLETED or
// REFUNDED, in which case nothing is written.
func (s *Store) UpsertPendingPayment(ctx context.Context, p *models.Payment) (bool, error) {
	p.Status = models.PaymentPending
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "booking_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"amount":            p.Amount,
			"currency":          p.Currency,
			"status":            models.PaymentPending,
			"provider":          p.Provider,
			"payment_method":    p.PaymentMethod,
			"gateway_reference": p.GatewayReference,
			"failure_reason":    nil,
			"updated_at":        time.Now(),
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Neq{Column: clause.Column{Table: "payments", Name: "status"}, Value: models.PaymentCompleted},
			clause.Neq{Column: clause.Column{Table: "payments", Name: "status"}, Value: models.PaymentRefunded},
		}},
	}).Create(p)
	if res.Error != nil {
		return false, fmt.Errorf("upsert payment: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) CompletePayment(ctx context.Context, id uuid.UUID, gatewayPaymentID string, at time.Time) (bool, error) {
	return s.transitionPayment(ctx, id,
		[]models.PaymentStatus{models.PaymentPending, models.PaymentFailed},
		map[string]any{
			"status":             models.PaymentCompleted,
			"gateway_payment_id": gatewayPaymentID,
			"failure_reason":     nil,
			"completed_at":       at,
		})
}

func (s *Store) FailPayment(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	return s.transitionPayment(ctx, id,
		[]models.PaymentStatus{models.PaymentPending},
		map[string]any{
			"status":         models.PaymentFailed,
			"failure_reason": reason,
		})
}

func (s *Store) RefundPayment(ctx context.Context, id uuid.UUID, amount decimal.Decimal, at time.Time) (bool, error) {
	return s.transitionPayment(ctx, id,
		[]models.PaymentStatus{models.PaymentCompleted},
		map[string]any{
			"status":        models.PaymentRefunded,
			"refund_amount": amount,
			"refunded_at":   at,
		})
}

func (s *Store) transitionPayment(ctx context.Context, id uuid.UUID, from []models.PaymentStatus, updates map[string]any) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("transition payment: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) MarkPaymentCredited(ctx context.Context, id uuid.UUID, at time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND credited_at IS NULL", id).
		Update("credited_at", at).Error
	if err != nil {
		return fmt.Errorf("mark payment credited: %w", err)
	}
	return nil
}

// ListUncreditedPayments returns COMPLETED payments whose ledger credit was never confirmed,
// oldest first.
func (s *Store) ListUncreditedPayments(ctx context.Context, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	q := s.db.WithContext(ctx).
		Where("status = ? AND credited_at IS NULL", models.PaymentCompleted).
		Order("completed_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("list uncredited payments: %w", err)
	}
	return payments, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}
