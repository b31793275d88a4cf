package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type Payment struct {
	ID               uuid.UUID           `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	BookingID        uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex" json:"booking_id"`
	Amount           decimal.Decimal     `gorm:"type:numeric(10,2);not null" json:"amount"`
	Currency         string              `gorm:"size:3;not null" json:"currency"`
	Status           PaymentStatus       `gorm:"size:20;not null;index" json:"status"`
	Provider         string              `gorm:"size:50;not null" json:"provider"`
	PaymentMethod    string              `gorm:"size:50" json:"payment_method,omitempty"`
	GatewayReference *string             `gorm:"size:255;uniqueIndex" json:"gateway_reference,omitempty"`
	GatewayPaymentID *string             `gorm:"size:255" json:"gateway_payment_id,omitempty"`
	FailureReason    *string             `gorm:"type:text" json:"failure_reason,omitempty"`
	RefundAmount     decimal.NullDecimal `gorm:"type:numeric(10,2)" json:"refund_amount"`
	RefundedAt       *time.Time          `json:"refunded_at,omitempty"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
	CreditedAt       *time.Time          `gorm:"index" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
