package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anjiri1684/tutor_live/apperrors"
	"github.com/anjiri1684/tutor_live/metrics"
	"github.com/anjiri1684/tutor_live/models"
	"github.com/anjiri1684/tutor_live/mq"
	"github.com/anjiri1684/tutor_live/payments"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
)

type ReconcilerConfig struct {
	WebhookSecret string
	Provider      string

	// Ledger credit retry after a successful charge.
	CreditAttempts        uint
	CreditInitialInterval time.Duration
	CreditMaxInterval     time.Duration
}

func (c *ReconcilerConfig) defaults() {
	if c.Provider == "" {
		c.Provider = payments.ProviderStripe
	}
	if c.CreditAttempts == 0 {
		c.CreditAttempts = 5
	}
	if c.CreditInitialInterval <= 0 {
		c.CreditInitialInterval = 200 * time.Millisecond
	}
	if c.CreditMaxInterval <= 0 {
		c.CreditMaxInterval = 5 * time.Second
	}
}

type IntentResult struct {
	GatewayReference string          `json:"gateway_reference"`
	ClientSecret     string          `json:"client_secret"`
	Payment          *models.Payment `json:"payment"`
}

// PaymentReconciler owns the payment lifecycle: it opens charge intents, applies gateway
// webhooks exactly once per state change, credits the teacher ledger and issues refunds.
type PaymentReconciler struct {
	store    ReconcilerStore
	bookings *BookingLifecycle
	gateway  ChargeGateway
	ledger   LedgerGateway
	cfg      ReconcilerConfig
	options
}

func NewPaymentReconciler(store ReconcilerStore, bookings *BookingLifecycle, gateway ChargeGateway, ledger LedgerGateway, cfg ReconcilerConfig, opts ...Option) *PaymentReconciler {
	cfg.defaults()
	return &PaymentReconciler{
		store:    store,
		bookings: bookings,
		gateway:  gateway,
		ledger:   ledger,
		cfg:      cfg,
		options:  newOptions(opts),
	}
}

func (r *PaymentReconciler) CreateIntent(ctx context.Context, bookingID uuid.UUID, paymentMethod string) (res *IntentResult, err error) {
	ctx, span := tracer.Start(ctx, "PaymentReconciler.CreateIntent")
	span.SetAttributes(attribute.String("booking.id", bookingID.String()))
	defer func() { finishSpan(span, err) }()

	booking, err := r.bookings.RequireConfirmed(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	existing, err := r.store.GetPaymentByBooking(ctx, bookingID)
	switch {
	case err == nil:
		if err := payableState(existing.Status); err != nil {
			return nil, err
		}
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, err
	}

	started := time.Now()
	intent, err := r.gateway.CreateChargeIntent(ctx, payments.IntentRequest{
		Amount:        booking.Price,
		Currency:      booking.Currency,
		PaymentMethod: paymentMethod,
		Metadata: map[string]string{
			"booking_id": booking.ID.String(),
			"student_id": booking.StudentID.String(),
			"teacher_id": booking.TeacherID.String(),
		},
		IdempotencyKey: fmt.Sprintf("%s-%s", booking.ID, uuid.NewString()),
	})
	observeGateway("create_intent", started, err)
	if err != nil {
		r.logger.ErrorContext(ctx, "create charge intent failed", "booking_id", bookingID, "error", err)
		return nil, fmt.Errorf("%w: %w", apperrors.ErrGatewayUnavailable, err)
	}

	payment := &models.Payment{
		BookingID:        booking.ID,
		Amount:           booking.Price,
		Currency:         booking.Currency,
		Provider:         r.cfg.Provider,
		PaymentMethod:    paymentMethod,
		GatewayReference: &intent.Reference,
	}
	stored, err := r.store.UpsertPendingPayment(ctx, payment)
	if err != nil {
		return nil, err
	}
	if !stored {
		current, err := r.store.GetPaymentByBooking(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		if err := payableState(current.Status); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("payment is %s: %w", current.Status, apperrors.ErrInvalidState)
	}

	payment, err = r.store.GetPaymentByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "charge intent created",
		"booking_id", bookingID, "payment_id", payment.ID, "reference", intent.Reference)

	return &IntentResult{
		GatewayReference: intent.Reference,
		ClientSecret:     intent.ClientSecret,
		Payment:          payment,
	}, nil
}

func payableState(status models.PaymentStatus) error {
	switch status {
	case models.PaymentCompleted:
		return apperrors.ErrAlreadyPaid
	case models.PaymentRefunded:
		return fmt.Errorf("payment was refunded: %w", apperrors.ErrInvalidState)
	}
	return nil
}

// ApplyGatewayEvent verifies and applies one webhook delivery. Only an invalid signature is
// returned as an error; every other outcome is acknowledged so the gateway stops retrying.
func (r *PaymentReconciler) ApplyGatewayEvent(ctx context.Context, payload []byte, signatureHeader string) (err error) {
	ctx, span := tracer.Start(ctx, "PaymentReconciler.ApplyGatewayEvent")
	defer func() { finishSpan(span, err) }()

	ev, err := payments.ParseWebhookEvent(payload, signatureHeader, r.cfg.WebhookSecret)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidSignature) {
			metrics.WebhookEvents.WithLabelValues("unknown", "invalid_signature").Inc()
			r.logger.WarnContext(ctx, "webhook signature rejected", "error", err)
			return err
		}
		metrics.WebhookEvents.WithLabelValues("unknown", "malformed").Inc()
		r.logger.ErrorContext(ctx, "webhook payload could not be decoded", "error", err)
		return nil
	}

	meta := ev.Meta()
	kind := eventKind(ev)
	span.SetAttributes(attribute.String("webhook.event_id", meta.ID), attribute.String("webhook.type", meta.Type))

	record, recErr := r.store.RecordWebhookEvent(ctx, &models.WebhookEvent{
		Provider:        r.cfg.Provider,
		ProviderEventID: meta.ID,
		EventType:       meta.Type,
		Payload:         datatypes.JSON(payload),
	})
	if recErr != nil {
		r.logger.WarnContext(ctx, "webhook event not recorded", "event_id", meta.ID, "error", recErr)
	} else if record.ProcessedAt != nil {
		metrics.WebhookEvents.WithLabelValues(kind, "duplicate").Inc()
		r.logger.InfoContext(ctx, "webhook event already processed", "event_id", meta.ID, "type", meta.Type)
		return nil
	}

	outcome, procErr := r.apply(ctx, ev)
	if procErr != nil {
		outcome = "error"
		r.logger.ErrorContext(ctx, "webhook processing failed",
			"event_id", meta.ID, "type", meta.Type, "error", procErr)
	}
	metrics.WebhookEvents.WithLabelValues(kind, outcome).Inc()

	switch {
	case record == nil:
	case procErr != nil:
		// Left unprocessed so a redelivery applies the event again.
		if err := r.store.RecordWebhookFailure(ctx, record.ID, procErr.Error()); err != nil {
			r.logger.WarnContext(ctx, "record webhook failure failed", "event_id", meta.ID, "error", err)
		}
	default:
		if err := r.store.MarkWebhookEventProcessed(ctx, record.ID, r.now()); err != nil {
			r.logger.WarnContext(ctx, "mark webhook event processed failed", "event_id", meta.ID, "error", err)
		}
	}
	return nil
}

func eventKind(ev payments.Event) string {
	switch ev.(type) {
	case payments.ChargeSucceeded:
		return "charge_succeeded"
	case payments.ChargeFailed:
		return "charge_failed"
	default:
		return "unhandled"
	}
}

func (r *PaymentReconciler) apply(ctx context.Context, ev payments.Event) (string, error) {
	switch e := ev.(type) {
	case payments.ChargeSucceeded:
		return r.chargeSucceeded(ctx, e)
	case payments.ChargeFailed:
		return r.chargeFailed(ctx, e)
	default:
		r.logger.InfoContext(ctx, "webhook event ignored", "event_id", ev.Meta().ID, "type", ev.Meta().Type)
		return "ignored", nil
	}
}

func (r *PaymentReconciler) chargeSucceeded(ctx context.Context, e payments.ChargeSucceeded) (string, error) {
	payment, err := r.store.GetPaymentByReference(ctx, e.GatewayReference)
	if errors.Is(err, apperrors.ErrNotFound) {
		r.logger.WarnContext(ctx, "charge succeeded for unknown reference",
			"event_id", e.ID, "reference", e.GatewayReference)
		return "unmatched", nil
	}
	if err != nil {
		return "", err
	}

	won, err := r.store.CompletePayment(ctx, payment.ID, e.GatewayPaymentID, r.now())
	if err != nil {
		return "", err
	}
	if !won {
		r.logger.InfoContext(ctx, "charge succeeded replayed",
			"payment_id", payment.ID, "status", payment.Status, "event_id", e.ID)
		return "duplicate", nil
	}

	if !e.Amount.IsZero() && !e.Amount.Equal(payment.Amount) {
		r.logger.WarnContext(ctx, "charged amount differs from payment amount",
			"payment_id", payment.ID, "charged", e.Amount.StringFixed(2), "expected", payment.Amount.StringFixed(2))
	}

	payment, err = r.store.GetPaymentByBooking(ctx, payment.BookingID)
	if err != nil {
		return "", err
	}
	r.logger.InfoContext(ctx, "payment completed",
		"payment_id", payment.ID, "booking_id", payment.BookingID, "gateway_payment_id", e.GatewayPaymentID)

	booking, err := r.bookings.Get(ctx, payment.BookingID)
	if err != nil {
		return "", fmt.Errorf("load booking for credit: %w", err)
	}
	if err := r.credit(ctx, booking.TeacherID, payment, r.cfg.CreditAttempts); err != nil {
		r.logger.ErrorContext(ctx, "ledger credit exhausted retries, left for sweeper",
			"payment_id", payment.ID, "teacher_id", booking.TeacherID, "error", err)
	}

	r.publish(ctx, mq.KeyPaymentCompleted, paymentEvent(payment))
	r.notifyPayer(ctx, booking, payment)
	return "completed", nil
}

func (r *PaymentReconciler) chargeFailed(ctx context.Context, e payments.ChargeFailed) (string, error) {
	payment, err := r.store.GetPaymentByReference(ctx, e.GatewayReference)
	if errors.Is(err, apperrors.ErrNotFound) {
		r.logger.WarnContext(ctx, "charge failed for unknown reference",
			"event_id", e.ID, "reference", e.GatewayReference)
		return "unmatched", nil
	}
	if err != nil {
		return "", err
	}

	won, err := r.store.FailPayment(ctx, payment.ID, e.Reason)
	if err != nil {
		return "", err
	}
	if !won {
		r.logger.InfoContext(ctx, "charge failure ignored",
			"payment_id", payment.ID, "status", payment.Status, "event_id", e.ID)
		return "ignored", nil
	}

	payment.Status = models.PaymentFailed
	payment.FailureReason = &e.Reason
	r.logger.InfoContext(ctx, "payment failed", "payment_id", payment.ID, "reason", e.Reason)
	r.publish(ctx, mq.KeyPaymentFailed, paymentEvent(payment))
	return "failed", nil
}

// credit posts the payment to the teacher's ledger, retrying transient failures with
// exponential backoff, and stamps the payment as credited once the ledger accepts it.
func (r *PaymentReconciler) credit(ctx context.Context, teacherID uuid.UUID, payment *models.Payment, attempts uint) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.CreditInitialInterval
	b.MaxInterval = r.cfg.CreditMaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := r.ledger.Credit(ctx, teacherID, payment.Amount, payment.Currency, payment.ID)
		if errors.Is(err, apperrors.ErrInvalidInput) {
			return struct{}{}, backoff.Permanent(err)
		}
		if err != nil {
			r.logger.WarnContext(ctx, "ledger credit attempt failed", "payment_id", payment.ID, "error", err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(attempts))
	if err != nil {
		metrics.LedgerCredits.WithLabelValues("failed").Inc()
		return err
	}
	metrics.LedgerCredits.WithLabelValues("credited").Inc()

	if err := r.store.MarkPaymentCredited(ctx, payment.ID, r.now()); err != nil {
		r.logger.WarnContext(ctx, "mark payment credited failed", "payment_id", payment.ID, "error", err)
	}
	return nil
}

func (r *PaymentReconciler) notifyPayer(ctx context.Context, booking *models.Booking, payment *models.Payment) {
	if r.notifier == nil {
		return
	}
	payer, err := r.store.GetUser(ctx, booking.StudentID)
	if err != nil {
		r.logger.WarnContext(ctx, "payer not found for notification", "student_id", booking.StudentID, "error", err)
		return
	}
	if err := r.notifier.PaymentConfirmed(ctx, payer, booking, payment); err != nil {
		r.logger.WarnContext(ctx, "payment confirmation not sent", "payment_id", payment.ID, "error", err)
	}
}

// Refund returns amount (the full payment when nil) to the payer. The teacher's ledger credit
// is kept.
func (r *PaymentReconciler) Refund(ctx context.Context, bookingID uuid.UUID, amount *decimal.Decimal) (out *models.Payment, err error) {
	ctx, span := tracer.Start(ctx, "PaymentReconciler.Refund")
	span.SetAttributes(attribute.String("booking.id", bookingID.String()))
	defer func() { finishSpan(span, err) }()

	payment, err := r.store.GetPaymentByBooking(ctx, bookingID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("booking has no payment: %w", apperrors.ErrNotPayable)
	}
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentCompleted || payment.GatewayReference == nil {
		return nil, fmt.Errorf("payment is %s: %w", payment.Status, apperrors.ErrNotPayable)
	}

	refundAmount := payment.Amount
	if amount != nil {
		refundAmount = *amount
	}
	if !refundAmount.IsPositive() || refundAmount.GreaterThan(payment.Amount) {
		return nil, fmt.Errorf("refund amount %s outside (0, %s]: %w",
			refundAmount.StringFixed(2), payment.Amount.StringFixed(2), apperrors.ErrInvalidInput)
	}

	started := time.Now()
	res, err := r.gateway.Refund(ctx, payments.RefundRequest{
		Reference:      *payment.GatewayReference,
		Amount:         refundAmount,
		Currency:       payment.Currency,
		IdempotencyKey: "refund-" + payment.ID.String(),
	})
	observeGateway("refund", started, err)
	if err != nil {
		r.logger.ErrorContext(ctx, "gateway refund failed", "payment_id", payment.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", apperrors.ErrGatewayUnavailable, err)
	}

	refunded := res.Amount
	if !refunded.IsPositive() {
		refunded = refundAmount
	}
	won, err := r.store.RefundPayment(ctx, payment.ID, refunded, r.now())
	if err != nil {
		return nil, err
	}

	payment, err = r.store.GetPaymentByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if won {
		r.logger.InfoContext(ctx, "payment refunded",
			"payment_id", payment.ID, "amount", refunded.StringFixed(2), "refund_id", res.ID)
		r.publish(ctx, mq.KeyPaymentRefunded, paymentEvent(payment))
	}
	return payment, nil
}

// CreditOutstanding re-posts ledger credits for completed payments whose credit never
// landed. It returns how many were credited.
func (r *PaymentReconciler) CreditOutstanding(ctx context.Context, limit int) (int, error) {
	pending, err := r.store.ListUncreditedPayments(ctx, limit)
	if err != nil {
		return 0, err
	}

	var (
		credited int
		errs     []error
	)
	for i := range pending {
		payment := &pending[i]
		booking, err := r.bookings.Get(ctx, payment.BookingID)
		if err != nil {
			errs = append(errs, fmt.Errorf("payment %s: %w", payment.ID, err))
			continue
		}
		if err := r.credit(ctx, booking.TeacherID, payment, 1); err != nil {
			errs = append(errs, fmt.Errorf("payment %s: %w", payment.ID, err))
			continue
		}
		credited++
	}
	return credited, errors.Join(errs...)
}

func observeGateway(op string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.GatewayLatency.WithLabelValues(op, status).Observe(time.Since(started).Seconds())
}
