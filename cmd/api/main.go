package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	config "github.com/anjiri1684/tutor_live/configs"
	"github.com/anjiri1684/tutor_live/database"
	"github.com/anjiri1684/tutor_live/handlers"
	"github.com/anjiri1684/tutor_live/jobs"
	"github.com/anjiri1684/tutor_live/ledger"
	"github.com/anjiri1684/tutor_live/media"
	"github.com/anjiri1684/tutor_live/mq"
	"github.com/anjiri1684/tutor_live/notifications"
	"github.com/anjiri1684/tutor_live/obs"
	"github.com/anjiri1684/tutor_live/payments"
	"github.com/anjiri1684/tutor_live/repository"
	"github.com/anjiri1684/tutor_live/repository/memory"
	"github.com/anjiri1684/tutor_live/routes"
	"github.com/anjiri1684/tutor_live/rtc"
	"github.com/anjiri1684/tutor_live/services"
	"github.com/anjiri1684/tutor_live/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// store is everything the services and ledger need from persistence.
type store interface {
	services.ReconcilerStore
	services.SessionManagerStore
	services.BookingStore
	ledger.CreditStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("🔥 Invalid configuration: %v", err)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, obs.Config{
		ServiceName: "tutor-live",
		Version:     "1.0.0",
		Environment: cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		log.Fatalf("🔥 Tracing setup failed: %v", err)
	}

	st := openStore(cfg, logger)

	book := ledger.New(st, ledger.Config{CommissionRate: cfg.CommissionRate()}, logger)
	issuer := rtc.NewIssuer(rtc.Config{
		AppID:          cfg.RTCAppID,
		AppCertificate: cfg.RTCAppCertificate,
		TTL:            time.Duration(cfg.RTCTokenTTLSec) * time.Second,
	})
	if !issuer.Enabled() {
		logger.Warn("RTC credentials not configured, issuing placeholder tokens")
	}
	gateway := payments.NewStripeGateway(cfg.StripeSecretKey, nil)

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	opts := []services.Option{services.WithLogger(logger), services.WithSessionFeed(hub)}
	if cfg.AMQPURL != "" {
		pub, err := mq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("🔥 RabbitMQ setup failed: %v", err)
		}
		defer pub.Close()
		opts = append(opts, services.WithPublisher(pub))
		logger.Info("publishing domain events", "exchange", cfg.AMQPExchange)
	}
	if brevo := notifications.NewBrevoService(notifications.BrevoConfig{
		APIKey:      cfg.BrevoAPIKey,
		SenderEmail: cfg.EmailSender,
		SenderName:  cfg.EmailSenderName,
	}, logger); brevo != nil {
		opts = append(opts, services.WithNotifier(brevo))
	}

	bookings := services.NewBookingLifecycle(st, opts...)
	reconciler := services.NewPaymentReconciler(st, bookings, gateway, book, services.ReconcilerConfig{
		WebhookSecret:  cfg.StripeWebhookSecret,
		Provider:       payments.ProviderStripe,
		CreditAttempts: cfg.LedgerCreditAttempts,
	}, opts...)
	sessions := services.NewSessionManager(st, bookings, issuer, services.SessionConfig{
		TokenTTL: time.Duration(cfg.RTCTokenTTLSec) * time.Second,
	}, opts...)

	scheduler, err := jobs.Schedule(logger,
		jobs.Entry{
			Name:     "ledger-sweep",
			Schedule: cfg.LedgerSweepSchedule,
			Job:      jobs.LedgerSweep{Sweeper: reconciler, Limit: cfg.LedgerSweepBatchLimit, Logger: logger},
		},
		jobs.Entry{
			Name:     "overdue-sessions",
			Schedule: cfg.SessionSweepSchedule,
			Job:      jobs.OverdueSessionSweep{Closer: sessions, Grace: cfg.SessionOverdueGrace, Limit: cfg.SessionSweepBatchSize, Logger: logger},
		},
	)
	if err != nil {
		log.Fatalf("🔥 Job scheduling failed: %v", err)
	}
	scheduler.Start()
	logger.Info("✅ Cron jobs scheduled successfully")

	var signer handlers.UploadSigner
	recordings, err := media.NewRecordingSigner(cfg.CloudinaryURL, cfg.RecordingsFolder)
	if err != nil {
		log.Fatalf("🔥 Cloudinary setup failed: %v", err)
	}
	if recordings != nil {
		signer = recordings
	}

	app := fiber.New(fiber.Config{
		AppName:       "Tutor Live",
		CaseSensitive: true,
		StrictRouting: true,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		IdleTimeout:   60 * time.Second,
		ErrorHandler:  handlers.ErrorHandler(logger),
	})
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:  "GET, POST, OPTIONS",
		ExposeHeaders: "Content-Length, Authorization",
		MaxAge:        86400,
	}))
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	routes.Register(app, routes.Handlers{
		JWTSecret: cfg.JWTSecret,
		Payments:  handlers.NewPaymentHandler(reconciler, bookings),
		Sessions:  handlers.NewSessionHandler(sessions, bookings, signer),
		Earnings:  handlers.NewEarningsHandler(book),
		Feed:      handlers.NewSessionFeedHandler(hub, cfg.JWTSecret, logger),
	})

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		<-scheduler.Stop().Done()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("http shutdown", "error", err)
		}
	}()

	logger.Info("✅ Server is running", "addr", cfg.HTTPAddr)
	if err := app.Listen(cfg.HTTPAddr); err != nil {
		log.Fatalf("🔥 Server failed to start: %v", err)
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracer(flushCtx); err != nil {
		logger.Error("tracer shutdown", "error", err)
	}
}

func openStore(cfg config.App, logger *slog.Logger) store {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using the in-memory store")
		return memory.New()
	}
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("🔥 %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("🔥 %v", err)
	}
	return repository.New(db)
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}
