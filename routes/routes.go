package routes

import (
	"github.com/anjiri1684/tutor_live/handlers"
	"github.com/anjiri1684/tutor_live/metrics"
	"github.com/anjiri1684/tutor_live/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	JWTSecret string
	Payments  *handlers.PaymentHandler
	Sessions  *handlers.SessionHandler
	Earnings  *handlers.EarningsHandler
	Feed      *handlers.SessionFeedHandler
}

func Register(app *fiber.App, h Handlers) {
	app.Use(metrics.FiberMiddleware())
	PublicRoutes(app)
	PaymentRoutes(app, h)
	SessionRoutes(app, h)
	TeacherRoutes(app, h)
	FeedRoutes(app, h)
}

func PublicRoutes(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

func PaymentRoutes(app *fiber.App, h Handlers) {
	api := app.Group("/api/v1")

	api.Post("/payments/webhook", h.Payments.Webhook)
	api.Post("/bookings/:bookingId/payment-intent", middleware.Protected(h.JWTSecret), h.Payments.CreateIntent)

	admin := api.Group("/admin", middleware.Protected(h.JWTSecret), middleware.AdminRequired())
	admin.Post("/bookings/:bookingId/refund", h.Payments.Refund)
}

func SessionRoutes(app *fiber.App, h Handlers) {
	session := app.Group("/api/v1/bookings/:bookingId/session", middleware.Protected(h.JWTSecret))
	session.Post("", h.Sessions.Create)
	session.Get("", h.Sessions.Get)
	session.Post("/start", h.Sessions.Start)
	session.Post("/end", h.Sessions.End)
	session.Post("/recording-signature", h.Sessions.RecordingSignature)
}

func TeacherRoutes(app *fiber.App, h Handlers) {
	teacher := app.Group("/api/v1/teacher", middleware.Protected(h.JWTSecret), middleware.TeacherRequired())
	teacher.Get("/earnings", h.Earnings.GetEarnings)
}

func FeedRoutes(app *fiber.App, h Handlers) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	app.Get("/ws/sessions", websocket.New(h.Feed.Serve))
}
