package payments

import (
	"encoding/json"
	"fmt"

	"github.com/anjiri1684/tutor_live/apperrors"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
	EventIntentCanceled  = "payment_intent.canceled"
)

type EventMeta struct {
	ID   string
	Type string
}

// Event is one of ChargeSucceeded, ChargeFailed or Unhandled.
type Event interface {
	Meta() EventMeta
	isEvent()
}

type ChargeSucceeded struct {
	EventMeta
	GatewayReference string
	GatewayPaymentID string
	Amount           decimal.Decimal
	Currency         string
}

type ChargeFailed struct {
	EventMeta
	GatewayReference string
	Reason           string
}

type Unhandled struct {
	EventMeta
}

func (m EventMeta) Meta() EventMeta { return m }

func (ChargeSucceeded) isEvent() {}
func (ChargeFailed) isEvent()    {}
func (Unhandled) isEvent()       {}

// ParseWebhookEvent verifies the Stripe-Signature header over the raw payload and decodes the
// delivery. Any verification failure is reported as apperrors.ErrInvalidSignature.
func ParseWebhookEvent(payload []byte, signatureHeader, secret string) (Event, error) {
	if secret == "" || signatureHeader == "" {
		return nil, fmt.Errorf("missing webhook signature: %w", apperrors.ErrInvalidSignature)
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signatureHeader, secret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, apperrors.ErrInvalidSignature)
	}

	meta := EventMeta{ID: ev.ID, Type: string(ev.Type)}
	switch meta.Type {
	case EventIntentSucceeded, EventIntentFailed, EventIntentCanceled:
	default:
		return Unhandled{EventMeta: meta}, nil
	}

	if ev.Data == nil {
		return nil, fmt.Errorf("webhook %s has no data object: %w", ev.ID, apperrors.ErrInvalidInput)
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent: %v: %w", err, apperrors.ErrInvalidInput)
	}

	switch meta.Type {
	case EventIntentSucceeded:
		paymentID := pi.ID
		if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
			paymentID = pi.LatestCharge.ID
		}
		return ChargeSucceeded{
			EventMeta:        meta,
			GatewayReference: pi.ID,
			GatewayPaymentID: paymentID,
			Amount:           FromMinorUnits(pi.Amount, string(pi.Currency)),
			Currency:         string(pi.Currency),
		}, nil
	case EventIntentCanceled:
		reason := "canceled"
		if pi.CancellationReason != "" {
			reason = "canceled: " + string(pi.CancellationReason)
		}
		return ChargeFailed{EventMeta: meta, GatewayReference: pi.ID, Reason: reason}, nil
	default:
		reason := "payment failed"
		if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
			reason = pi.LastPaymentError.Msg
		}
		return ChargeFailed{EventMeta: meta, GatewayReference: pi.ID, Reason: reason}, nil
	}
}
