package apperrors

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid state")
	ErrAlreadyPaid        = errors.New("booking already paid")
	ErrNotPayable         = errors.New("payment is not refundable")
	ErrPaymentRequired    = errors.New("payment required")
	ErrAccessDenied       = errors.New("access denied")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrInvalidInput       = errors.New("invalid input")
)

// StatusCode maps an error chain to the HTTP status returned to API callers.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrAlreadyPaid),
		errors.Is(err, ErrNotPayable):
		return fiber.StatusConflict
	case errors.Is(err, ErrPaymentRequired):
		return fiber.StatusPaymentRequired
	case errors.Is(err, ErrAccessDenied):
		return fiber.StatusForbidden
	case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrGatewayUnavailable):
		return fiber.StatusBadGateway
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}
