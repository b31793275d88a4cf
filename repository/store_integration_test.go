//go:build integration

package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/anjiri1684/tutor_live/apperrors"
	"github.com/anjiri1684/tutor_live/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Booking{}, &models.Payment{},
		&models.Session{}, &models.LedgerCredit{}, &models.WebhookEvent{},
	))
	return New(db)
}

func ref(s string) *string { return &s }

func TestPostgresPaymentLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	booking := &models.Booking{
		StudentID: uuid.New(), TeacherID: uuid.New(),
		StartTime: time.Now(), EndTime: time.Now().Add(time.Hour),
		Status: models.BookingConfirmed, Price: decimal.NewFromInt(30), Currency: "usd",
	}
	require.NoError(t, s.CreateBooking(ctx, booking))

	reference := "pi_" + uuid.NewString()
	p := &models.Payment{BookingID: booking.ID, Amount: booking.Price, Currency: "usd", Provider: "stripe", GatewayReference: ref(reference)}
	ok, err := s.UpsertPendingPayment(ctx, p)
	require.NoError(t, err)
	require.True(t, ok)

	stored, err := s.GetPaymentByReference(ctx, reference)
	require.NoError(t, err)

	ok, err = s.CompletePayment(ctx, stored.ID, "ch_1", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.CompletePayment(ctx, stored.ID, "ch_2", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.UpsertPendingPayment(ctx, &models.Payment{BookingID: booking.ID, Amount: booking.Price, Currency: "usd", Provider: "stripe", GatewayReference: ref("pi_" + uuid.NewString())})
	require.NoError(t, err)
	assert.False(t, ok)

	credit := &models.LedgerCredit{PayeeID: booking.TeacherID, ReferenceID: stored.ID, Amount: booking.Price, Net: booking.Price, Currency: "usd"}
	ok, err = s.ApplyCredit(ctx, credit)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.ApplyCredit(ctx, &models.LedgerCredit{PayeeID: booking.TeacherID, ReferenceID: stored.ID, Amount: booking.Price, Net: booking.Price, Currency: "usd"})
	require.NoError(t, err)
	assert.False(t, ok)

	bal, err := s.LedgerBalance(ctx, booking.TeacherID)
	require.NoError(t, err)
	assert.True(t, booking.Price.Equal(bal))
}

func TestPostgresSessionCreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	bookingID := uuid.New()

	ok, err := s.CreateSessionIfAbsent(ctx, &models.Session{BookingID: bookingID, RoomID: "room-a-" + bookingID.String()})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.CreateSessionIfAbsent(ctx, &models.Session{BookingID: bookingID, RoomID: "room-b-" + bookingID.String()})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.GetSessionByBooking(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPostgresListOverdueSessions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	past := time.Now().Add(-3 * time.Hour)
	booking := &models.Booking{
		StudentID: uuid.New(), TeacherID: uuid.New(),
		StartTime: past.Add(-time.Hour), EndTime: past,
		Status: models.BookingConfirmed, Price: decimal.NewFromInt(10), Currency: "usd",
	}
	require.NoError(t, s.CreateBooking(ctx, booking))
	created, err := s.CreateSessionIfAbsent(ctx, &models.Session{BookingID: booking.ID, RoomID: "room-" + uuid.NewString()})
	require.NoError(t, err)
	require.True(t, created)

	list, err := s.ListOverdueSessions(ctx, time.Now().Add(-time.Hour), 0)
	require.NoError(t, err)
	found := false
	for _, sess := range list {
		if sess.BookingID == booking.ID {
			found = true
		}
	}
	assert.True(t, found)

	_, err = s.MarkSessionEnded(ctx, booking.ID, time.Now(), 0, nil)
	require.NoError(t, err)
	list, err = s.ListOverdueSessions(ctx, time.Now().Add(-time.Hour), 0)
	require.NoError(t, err)
	for _, sess := range list {
		assert.NotEqual(t, booking.ID, sess.BookingID)
	}
}
