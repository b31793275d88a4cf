package services

import (
	"context"
	"fmt"

	"github.com/anjiri1684/tutor_live/apperrors"
	"github.com/anjiri1684/tutor_live/models"
	"github.com/google/uuid"
)

// BookingLifecycle guards operations that depend on a booking's state and owns its
// CONFIRMED to COMPLETED transition.
type BookingLifecycle struct {
	store BookingStore
	options
}

func NewBookingLifecycle(store BookingStore, opts ...Option) *BookingLifecycle {
	return &BookingLifecycle{store: store, options: newOptions(opts)}
}

func (b *BookingLifecycle) Get(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return b.store.GetBooking(ctx, id)
}

func (b *BookingLifecycle) RequireConfirmed(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	booking, err := b.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingConfirmed {
		return nil, fmt.Errorf("booking is %s: %w", booking.Status, apperrors.ErrInvalidState)
	}
	return booking, nil
}

func (b *BookingLifecycle) RequireParticipant(ctx context.Context, id, userID uuid.UUID) (*models.Booking, error) {
	booking, err := b.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !booking.HasParticipant(userID) {
		return nil, fmt.Errorf("user is not part of this booking: %w", apperrors.ErrAccessDenied)
	}
	return booking, nil
}

// Complete marks a confirmed booking completed. Already completed bookings are left as they
// are, and so are cancelled ones, which are only logged.
func (b *BookingLifecycle) Complete(ctx context.Context, id uuid.UUID) error {
	ok, err := b.store.TransitionBooking(ctx, id, models.BookingConfirmed, models.BookingCompleted)
	if err != nil {
		return err
	}
	if ok {
		b.logger.InfoContext(ctx, "booking completed", "booking_id", id)
		return nil
	}

	booking, err := b.store.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	if booking.Status != models.BookingCompleted {
		b.logger.WarnContext(ctx, "booking not completed after session end",
			"booking_id", id, "status", booking.Status)
	}
	return nil
}
