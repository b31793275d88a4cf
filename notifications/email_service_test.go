package notifications

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anjiri1684/tutor_live/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestNewBrevoServiceDisabledWithoutConfig(t *testing.T) {
	assert.Nil(t, NewBrevoService(BrevoConfig{APIKey: "k"}, discard))
}

func TestPaymentConfirmed(t *testing.T) {
	var got brevoPayload
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"messageId":"m1"}`))
	}))
	defer srv.Close()

	svc := NewBrevoService(BrevoConfig{APIKey: "key-1", SenderEmail: "no-reply@tutor.test", SenderName: "Tutor", BaseURL: srv.URL}, discard)
	require.NotNil(t, svc)

	err := svc.PaymentConfirmed(context.Background(),
		&models.User{FullName: "Ana", Email: "ana@example.com"},
		&models.Booking{StartTime: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)},
		&models.Payment{Amount: decimal.RequireFromString("42.5"), Currency: "usd"},
	)
	require.NoError(t, err)

	assert.Equal(t, "key-1", apiKey)
	assert.Equal(t, "ana@example.com", got.To[0]["email"])
	assert.Equal(t, "Tutor", got.Sender["name"])
	assert.Contains(t, got.HTMLContent, "42.50 USD")
}

func TestSendRejectsBadRecipientAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	svc := NewBrevoService(BrevoConfig{APIKey: "k", SenderEmail: "a@b.c", SenderName: "n", BaseURL: srv.URL}, discard)

	assert.Error(t, svc.Send(context.Background(), "not-an-email", "", "s", "b"))
	assert.Error(t, svc.Send(context.Background(), "x@example.com", "", "s", "b"))
}
