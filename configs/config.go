package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type App struct {
	Env      string `envconfig:"ENV" default:"dev"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":3000"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// DB. Empty runs on the in-memory store.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	// Stripe
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`

	// Ledger
	PlatformCommission    string `envconfig:"PLATFORM_COMMISSION_RATE" default:"0"`
	LedgerCreditAttempts  uint   `envconfig:"LEDGER_CREDIT_ATTEMPTS" default:"5"`
	LedgerSweepSchedule   string `envconfig:"LEDGER_SWEEP_SCHEDULE" default:"@every 5m"`
	LedgerSweepBatchLimit int    `envconfig:"LEDGER_SWEEP_BATCH" default:"100"`

	// Sessions still open this long after the booking's end are closed by the sweep.
	SessionOverdueGrace   time.Duration `envconfig:"SESSION_OVERDUE_GRACE" default:"30m"`
	SessionSweepSchedule  string        `envconfig:"SESSION_SWEEP_SCHEDULE" default:"*/5 * * * *"`
	SessionSweepBatchSize int           `envconfig:"SESSION_SWEEP_BATCH" default:"50"`

	// RTC
	RTCAppID          string `envconfig:"RTC_APP_ID"`
	RTCAppCertificate string `envconfig:"RTC_APP_CERTIFICATE"`
	RTCTokenTTLSec    int    `envconfig:"RTC_TOKEN_TTL_SECONDS" default:"3600"`

	// RabbitMQ. Empty disables domain events.
	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"tutor.events"`

	// Brevo
	BrevoAPIKey     string `envconfig:"BREVO_API_KEY"`
	EmailSender     string `envconfig:"EMAIL_SENDER"`
	EmailSenderName string `envconfig:"EMAIL_SENDER_NAME"`

	// Cloudinary
	CloudinaryURL    string `envconfig:"CLOUDINARY_URL"`
	RecordingsFolder string `envconfig:"RECORDINGS_FOLDER" default:"session-recordings"`

	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads .env when present and then the process environment.
func Load() (App, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("Warning: .env file not found, reading from system environment variables")
	}
	var c App
	err := envconfig.Process("", &c)
	return c, err
}

// CommissionRate parses PLATFORM_COMMISSION_RATE, falling back to zero on bad input.
func (c App) CommissionRate() decimal.Decimal {
	rate, err := decimal.NewFromString(c.PlatformCommission)
	if err != nil {
		return decimal.Zero
	}
	return rate
}
