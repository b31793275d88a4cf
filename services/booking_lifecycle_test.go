package services

import (
	"context"
	"testing"

	"github.com/anjiri1684/tutor_live/apperrors"
	"github.com/anjiri1684/tutor_live/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireParticipant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.booking(t, models.BookingConfirmed, "10")

	_, err := f.bookings.RequireParticipant(ctx, b.ID, f.student.ID)
	assert.NoError(t, err)
	_, err = f.bookings.RequireParticipant(ctx, b.ID, f.teacher.ID)
	assert.NoError(t, err)
	_, err = f.bookings.RequireParticipant(ctx, b.ID, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrAccessDenied)
	_, err = f.bookings.RequireParticipant(ctx, uuid.New(), f.student.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCompleteBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.booking(t, models.BookingConfirmed, "10")

	require.NoError(t, f.bookings.Complete(ctx, b.ID))
	require.NoError(t, f.bookings.Complete(ctx, b.ID))

	got, err := f.store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCompleted, got.Status)

	pending := f.booking(t, models.BookingPending, "10")
	require.NoError(t, f.bookings.Complete(ctx, pending.ID))
	got, err = f.store.GetBooking(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, got.Status)

	assert.ErrorIs(t, f.bookings.Complete(ctx, uuid.New()), apperrors.ErrNotFound)
}
