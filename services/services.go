package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/anjiri1684/tutor_live/models"
	"github.com/anjiri1684/tutor_live/payments"
	"github.com/anjiri1684/tutor_live/rtc"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type BookingStore interface {
	GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	TransitionBooking(ctx context.Context, id uuid.UUID, from, to models.BookingStatus) (bool, error)
}

type PaymentStore interface {
	GetPaymentByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error)
	GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error)
	UpsertPendingPayment(ctx context.Context, p *models.Payment) (bool, error)
	CompletePayment(ctx context.Context, id uuid.UUID, gatewayPaymentID string, at time.Time) (bool, error)
	FailPayment(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	RefundPayment(ctx context.Context, id uuid.UUID, amount decimal.Decimal, at time.Time) (bool, error)
	MarkPaymentCredited(ctx context.Context, id uuid.UUID, at time.Time) error
	ListUncreditedPayments(ctx context.Context, limit int) ([]models.Payment, error)
}

type SessionStore interface {
	GetSessionByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Session, error)
	CreateSessionIfAbsent(ctx context.Context, s *models.Session) (bool, error)
	MarkSessionStarted(ctx context.Context, bookingID uuid.UUID, at time.Time) (bool, error)
	MarkSessionEnded(ctx context.Context, bookingID uuid.UUID, at time.Time, durationMinutes int, recordingRef *string) (bool, error)
}

type WebhookEventStore interface {
	RecordWebhookEvent(ctx context.Context, e *models.WebhookEvent) (*models.WebhookEvent, error)
	MarkWebhookEventProcessed(ctx context.Context, id uint, at time.Time) error
	RecordWebhookFailure(ctx context.Context, id uint, processingErr string) error
}

type UserStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type ReconcilerStore interface {
	PaymentStore
	WebhookEventStore
	UserStore
}

type SessionManagerStore interface {
	SessionStore
	GetPaymentByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error)
	ListOverdueSessions(ctx context.Context, cutoff time.Time, limit int) ([]models.Session, error)
}

// LedgerGateway credits a payee. It must be idempotent per (payeeID, referenceID).
type LedgerGateway interface {
	Credit(ctx context.Context, payeeID uuid.UUID, amount decimal.Decimal, currency string, referenceID uuid.UUID) error
}

type ChargeGateway interface {
	CreateChargeIntent(ctx context.Context, req payments.IntentRequest) (*payments.Intent, error)
	Refund(ctx context.Context, req payments.RefundRequest) (*payments.RefundResult, error)
}

type TokenIssuer interface {
	Issue(roomID, participantID string, role rtc.Role, ttl time.Duration) (rtc.Credential, error)
}

type Notifier interface {
	PaymentConfirmed(ctx context.Context, payer *models.User, booking *models.Booking, payment *models.Payment) error
}

type EventPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// SessionFeed pushes a lifecycle event to the connected participants.
type SessionFeed interface {
	Push(userIDs []uuid.UUID, kind string, payload any)
}

type options struct {
	logger    *slog.Logger
	now       func() time.Time
	notifier  Notifier
	publisher EventPublisher
	feed      SessionFeed
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

func WithPublisher(p EventPublisher) Option {
	return func(o *options) { o.publisher = p }
}

func WithSessionFeed(f SessionFeed) Option {
	return func(o *options) { o.feed = f }
}

func newOptions(opts []Option) options {
	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) publish(ctx context.Context, key string, v any) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishJSON(ctx, key, v); err != nil {
		o.logger.WarnContext(ctx, "publish domain event failed", "key", key, "error", err)
	}
}

func (o options) push(userIDs []uuid.UUID, kind string, payload any) {
	if o.feed == nil {
		return
	}
	o.feed.Push(userIDs, kind, payload)
}

var tracer = otel.Tracer("github.com/anjiri1684/tutor_live/services")

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type PaymentEvent struct {
	PaymentID uuid.UUID            `json:"payment_id"`
	BookingID uuid.UUID            `json:"booking_id"`
	Status    models.PaymentStatus `json:"status"`
	Amount    string               `json:"amount"`
	Currency  string               `json:"currency"`
	Reason    string               `json:"reason,omitempty"`
}

func paymentEvent(p *models.Payment) PaymentEvent {
	ev := PaymentEvent{
		PaymentID: p.ID,
		BookingID: p.BookingID,
		Status:    p.Status,
		Amount:    p.Amount.StringFixed(2),
		Currency:  p.Currency,
	}
	if p.FailureReason != nil {
		ev.Reason = *p.FailureReason
	}
	return ev
}

type SessionEvent struct {
	SessionID       uuid.UUID           `json:"session_id"`
	BookingID       uuid.UUID           `json:"booking_id"`
	RoomID          string              `json:"room_id"`
	State           models.SessionState `json:"state"`
	DurationMinutes int                 `json:"duration_minutes"`
}

func sessionEvent(s *models.Session) SessionEvent {
	return SessionEvent{
		SessionID:       s.ID,
		BookingID:       s.BookingID,
		RoomID:          s.RoomID,
		State:           s.State(),
		DurationMinutes: s.DurationMinutes,
	}
}
