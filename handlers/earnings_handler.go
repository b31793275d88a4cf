package handlers

import (
	"context"

	"github.com/anjiri1684/tutor_live/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BalanceReader interface {
	Balance(ctx context.Context, payeeID uuid.UUID) (decimal.Decimal, error)
}

type EarningsHandler struct {
	ledger BalanceReader
}

func NewEarningsHandler(ledger BalanceReader) *EarningsHandler {
	return &EarningsHandler{ledger: ledger}
}

// GetEarnings returns the calling teacher's net ledger balance.
func (h *EarningsHandler) GetEarnings(c *fiber.Ctx) error {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}
	balance, err := h.ledger.Balance(c.UserContext(), user.UserID)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "Earnings retrieved", fiber.Map{
		"teacher_id": user.UserID,
		"balance":    balance.StringFixed(2),
	})
}
