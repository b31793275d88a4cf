package metrics

import (
	"strconv"

	"github.com/anjiri1684/tutor_live/apperrors"
	"github.com/gofiber/fiber/v2"
)

// FiberMiddleware counts requests by matched route template so ids do not explode the label
// set.
func FiberMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			status = apperrors.StatusCode(err)
		}
		HTTPRequests.WithLabelValues(c.Method(), c.Route().Path, strconv.Itoa(status)).Inc()
		return err
	}
}
