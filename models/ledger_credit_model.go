package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerCredit is one balance increase for a payee. (PayeeID, ReferenceID) is unique so a
// payment can never be credited twice.
type LedgerCredit struct {
	ID          uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	PayeeID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_ledger_credit_ref,priority:1" json:"payee_id"`
	ReferenceID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_ledger_credit_ref,priority:2" json:"reference_id"`
	Amount      decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"amount"`
	Net         decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"net"`
	Currency    string          `gorm:"size:3;not null" json:"currency"`
	CreatedAt   time.Time       `json:"created_at"`
}
