package handlers

import (
	"context"
	"fmt"

	"github.com/anjiri1684/tutor_live/apperrors"
	"github.com/anjiri1684/tutor_live/middleware"
	"github.com/anjiri1684/tutor_live/models"
	"github.com/anjiri1684/tutor_live/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SignatureHeader carries the gateway's webhook signature.
const SignatureHeader = "Stripe-Signature"

type PaymentService interface {
	CreateIntent(ctx context.Context, bookingID uuid.UUID, paymentMethod string) (*services.IntentResult, error)
	ApplyGatewayEvent(ctx context.Context, payload []byte, signatureHeader string) error
	Refund(ctx context.Context, bookingID uuid.UUID, amount *decimal.Decimal) (*models.Payment, error)
}

type BookingAccess interface {
	RequireParticipant(ctx context.Context, id, userID uuid.UUID) (*models.Booking, error)
}

type PaymentHandler struct {
	payments PaymentService
	bookings BookingAccess
}

func NewPaymentHandler(payments PaymentService, bookings BookingAccess) *PaymentHandler {
	return &PaymentHandler{payments: payments, bookings: bookings}
}

type createIntentRequest struct {
	PaymentMethod string `json:"payment_method" validate:"omitempty,max=32,alphanum"`
}

// CreateIntent opens a charge intent for the booking. Only the student who booked may pay.
func (h *PaymentHandler) CreateIntent(c *fiber.Ctx) error {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}
	bookingID, err := bookingIDParam(c)
	if err != nil {
		return err
	}
	var req createIntentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	booking, err := h.bookings.RequireParticipant(c.UserContext(), bookingID, user.UserID)
	if err != nil {
		return err
	}
	if booking.StudentID != user.UserID {
		return fmt.Errorf("only the booking's student can pay: %w", apperrors.ErrAccessDenied)
	}

	res, err := h.payments.CreateIntent(c.UserContext(), bookingID, req.PaymentMethod)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusCreated, "Payment intent created", res)
}

// Webhook receives gateway deliveries. Anything but a bad signature is acknowledged.
func (h *PaymentHandler) Webhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)
	if err := h.payments.ApplyGatewayEvent(c.UserContext(), payload, c.Get(SignatureHeader)); err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "Webhook received", fiber.Map{"received": true})
}

type refundRequest struct {
	Amount *string `json:"amount" validate:"omitempty,numeric"`
}

// Refund returns money to the payer; an absent amount refunds in full.
func (h *PaymentHandler) Refund(c *fiber.Ctx) error {
	bookingID, err := bookingIDParam(c)
	if err != nil {
		return err
	}
	var req refundRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	var amount *decimal.Decimal
	if req.Amount != nil {
		d, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid refund amount")
		}
		amount = &d
	}

	payment, err := h.payments.Refund(c.UserContext(), bookingID, amount)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "Payment refunded", payment)
}
