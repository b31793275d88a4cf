package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/anjiri1684/tutor_live/ledger"
	"github.com/anjiri1684/tutor_live/models"
	"github.com/anjiri1684/tutor_live/payments"
	"github.com/anjiri1684/tutor_live/repository/memory"
	"github.com/anjiri1684/tutor_live/rtc"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "whsec_services_test"

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// --- Mock ChargeGateway ---

type mockGateway struct {
	mu       sync.Mutex
	intents  int
	refunds  int
	createFn func(ctx context.Context, req payments.IntentRequest) (*payments.Intent, error)
	refundFn func(ctx context.Context, req payments.RefundRequest) (*payments.RefundResult, error)
}

func (m *mockGateway) CreateChargeIntent(ctx context.Context, req payments.IntentRequest) (*payments.Intent, error) {
	m.mu.Lock()
	m.intents++
	n := m.intents
	m.mu.Unlock()
	if m.createFn != nil {
		return m.createFn(ctx, req)
	}
	ref := fmt.Sprintf("pi_%d", n)
	return &payments.Intent{Reference: ref, ClientSecret: ref + "_secret"}, nil
}

func (m *mockGateway) Refund(ctx context.Context, req payments.RefundRequest) (*payments.RefundResult, error) {
	m.mu.Lock()
	m.refunds++
	m.mu.Unlock()
	if m.refundFn != nil {
		return m.refundFn(ctx, req)
	}
	return &payments.RefundResult{ID: "re_1", Amount: req.Amount, Status: "succeeded"}, nil
}

// --- Ledger wrapper with failure injection ---

type flakyLedger struct {
	mu       sync.Mutex
	inner    *ledger.Ledger
	failures int
	calls    int
}

func (f *flakyLedger) Credit(ctx context.Context, payeeID uuid.UUID, amount decimal.Decimal, currency string, referenceID uuid.UUID) error {
	f.mu.Lock()
	f.calls++
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return errors.New("ledger unavailable")
	}
	return f.inner.Credit(ctx, payeeID, amount, currency, referenceID)
}

func (f *flakyLedger) setFailures(n int) {
	f.mu.Lock()
	f.failures = n
	f.mu.Unlock()
}

// --- Recording collaborators ---

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) PublishJSON(_ context.Context, key string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return nil
}

func (p *recordingPublisher) count(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, k := range p.keys {
		if k == key {
			n++
		}
	}
	return n
}

type recordingFeed struct {
	mu     sync.Mutex
	pushes []string
	to     [][]uuid.UUID
}

func (f *recordingFeed) Push(userIDs []uuid.UUID, kind string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, kind)
	f.to = append(f.to, userIDs)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (n *recordingNotifier) PaymentConfirmed(_ context.Context, payer *models.User, _ *models.Booking, _ *models.Payment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, payer.Email)
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// --- Fixture ---

type fixture struct {
	store      *memory.Store
	clock      *testClock
	gateway    *mockGateway
	ledger     *flakyLedger
	publisher  *recordingPublisher
	feed       *recordingFeed
	notifier   *recordingNotifier
	bookings   *BookingLifecycle
	reconciler *PaymentReconciler
	sessions   *SessionManager
	issuer     *rtc.Issuer
	student    *models.User
	teacher    *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	clock := &testClock{now: time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC)}
	f := &fixture{
		store:     store,
		clock:     clock,
		gateway:   &mockGateway{},
		ledger:    &flakyLedger{inner: ledger.New(store, ledger.Config{}, discard)},
		publisher: &recordingPublisher{},
		feed:      &recordingFeed{},
		notifier:  &recordingNotifier{},
		issuer:    rtc.NewIssuer(rtc.Config{AppID: "970ca35de60c44645bbae8a215061b33", AppCertificate: "5cfd2fd1755d40ecb72977518be15d3b"}),
		student:   &models.User{FullName: "Student", Email: "student@example.com", Role: "student"},
		teacher:   &models.User{FullName: "Teacher", Email: "teacher@example.com", Role: "teacher"},
	}
	require.NoError(t, store.CreateUser(context.Background(), f.student))
	require.NoError(t, store.CreateUser(context.Background(), f.teacher))

	opts := []Option{
		WithLogger(discard),
		WithClock(clock.Now),
		WithPublisher(f.publisher),
		WithSessionFeed(f.feed),
		WithNotifier(f.notifier),
	}
	f.bookings = NewBookingLifecycle(store, opts...)
	f.reconciler = NewPaymentReconciler(store, f.bookings, f.gateway, f.ledger, ReconcilerConfig{
		WebhookSecret:         webhookSecret,
		CreditAttempts:        3,
		CreditInitialInterval: time.Millisecond,
		CreditMaxInterval:     2 * time.Millisecond,
	}, opts...)
	f.sessions = NewSessionManager(store, f.bookings, f.issuer, SessionConfig{}, opts...)
	return f
}

func (f *fixture) booking(t *testing.T, status models.BookingStatus, price string) *models.Booking {
	t.Helper()
	b := &models.Booking{
		StudentID: f.student.ID,
		TeacherID: f.teacher.ID,
		StartTime: f.clock.Now().Add(time.Hour),
		EndTime:   f.clock.Now().Add(2 * time.Hour),
		Status:    status,
		Price:     decimal.RequireFromString(price),
		Currency:  "usd",
	}
	require.NoError(t, f.store.CreateBooking(context.Background(), b))
	return b
}

// paidBooking returns a confirmed booking whose payment already completed.
func (f *fixture) paidBooking(t *testing.T, price string) (*models.Booking, *models.Payment) {
	t.Helper()
	ctx := context.Background()
	b := f.booking(t, models.BookingConfirmed, price)
	res, err := f.reconciler.CreateIntent(ctx, b.ID, "card")
	require.NoError(t, err)
	require.NoError(t, f.deliver(succeededEvent("evt_"+uuid.NewString(), res.GatewayReference, "ch_"+uuid.NewString(), 0)))
	p, err := f.store.GetPaymentByBooking(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentCompleted, p.Status)
	return b, p
}

func (f *fixture) deliver(payload []byte) error {
	return f.reconciler.ApplyGatewayEvent(context.Background(), payload, signPayload(payload, webhookSecret))
}

func signPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func succeededEvent(eventID, reference, chargeID string, amountMinor int64) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","type":"payment_intent.succeeded","data":{"object":{"id":%q,"object":"payment_intent","amount":%d,"currency":"usd","latest_charge":%q}}}`,
		eventID, reference, amountMinor, chargeID))
}

func failedEvent(eventID, reference, message string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","type":"payment_intent.payment_failed","data":{"object":{"id":%q,"object":"payment_intent","amount":100,"currency":"usd","last_payment_error":{"message":%q}}}}`,
		eventID, reference, message))
}
