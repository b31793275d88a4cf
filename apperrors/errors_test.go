package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, fiber.StatusOK},
		{"not found", ErrNotFound, fiber.StatusNotFound},
		{"wrapped invalid state", fmt.Errorf("booking abc: %w", ErrInvalidState), fiber.StatusConflict},
		{"already paid", ErrAlreadyPaid, fiber.StatusConflict},
		{"not payable", ErrNotPayable, fiber.StatusConflict},
		{"payment required", ErrPaymentRequired, fiber.StatusPaymentRequired},
		{"access denied", ErrAccessDenied, fiber.StatusForbidden},
		{"invalid signature", ErrInvalidSignature, fiber.StatusBadRequest},
		{"invalid input", ErrInvalidInput, fiber.StatusBadRequest},
		{"gateway", fmt.Errorf("stripe: %w", ErrGatewayUnavailable), fiber.StatusBadGateway},
		{"fiber error", fiber.NewError(fiber.StatusTeapot, "tea"), fiber.StatusTeapot},
		{"unknown", errors.New("boom"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.err))
		})
	}
}
