package handlers

import (
	"errors"
	"log/slog"

	"github.com/anjiri1684/tutor_live/apperrors"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var validate = validator.New()

func success(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success":    false,
		"message":    message,
		"statusCode": status,
	})
}

// ErrorHandler renders any error returned by a handler in the error envelope. Server-side
// failures are logged and their details withheld.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := apperrors.StatusCode(err)
		var fe *fiber.Error
		switch {
		case errors.As(err, &fe):
			return fail(c, code, fe.Message)
		case code == fiber.StatusBadGateway:
			logger.Warn("upstream failure", "path", c.Path(), "method", c.Method(), "error", err)
			return fail(c, code, "Payment gateway unavailable")
		case code >= fiber.StatusInternalServerError:
			logger.Error("request failed", "path", c.Path(), "method", c.Method(), "error", err)
			return fail(c, code, "Internal server error")
		}
		return fail(c, code, err.Error())
	}
}

func bookingIDParam(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("bookingId"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "Invalid booking ID")
	}
	return id, nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return validateBody(out)
	}
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Cannot parse JSON")
	}
	return validateBody(out)
}

func validateBody(out any) error {
	if err := validate.Struct(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}
