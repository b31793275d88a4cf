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
	"github.com/anjiri1684/tutor_live/rtc"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type SessionConfig struct {
	// TokenTTL is the lifetime of issued join credentials; zero uses the issuer default.
	TokenTTL time.Duration
}

// SessionManager owns the live session attached to a booking: created, started, ended,
// in that order and never backwards.
type SessionManager struct {
	store    SessionManagerStore
	bookings *BookingLifecycle
	issuer   TokenIssuer
	cfg      SessionConfig
	options
}

func NewSessionManager(store SessionManagerStore, bookings *BookingLifecycle, issuer TokenIssuer, cfg SessionConfig, opts ...Option) *SessionManager {
	return &SessionManager{
		store:    store,
		bookings: bookings,
		issuer:   issuer,
		cfg:      cfg,
		options:  newOptions(opts),
	}
}

// RoomID names the media room for a booking.
func RoomID(bookingID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("booking-%s-%d", bookingID, at.UnixMilli())
}

// Create opens the session for a paid, confirmed booking. When a session already exists it
// is returned unchanged with a nil credential; otherwise the initiator gets a publisher
// credential for the new room.
func (m *SessionManager) Create(ctx context.Context, bookingID, initiatorID uuid.UUID) (sess *models.Session, cred *rtc.Credential, err error) {
	ctx, span := tracer.Start(ctx, "SessionManager.Create")
	span.SetAttributes(attribute.String("booking.id", bookingID.String()))
	defer func() { finishSpan(span, err) }()

	booking, err := m.bookings.RequireConfirmed(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	if !booking.HasParticipant(initiatorID) {
		return nil, nil, fmt.Errorf("initiator is not part of this booking: %w", apperrors.ErrAccessDenied)
	}

	payment, err := m.store.GetPaymentByBooking(ctx, bookingID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil, fmt.Errorf("booking has no payment: %w", apperrors.ErrPaymentRequired)
	}
	if err != nil {
		return nil, nil, err
	}
	if payment.Status != models.PaymentCompleted {
		return nil, nil, fmt.Errorf("payment is %s: %w", payment.Status, apperrors.ErrPaymentRequired)
	}

	existing, err := m.store.GetSessionByBooking(ctx, bookingID)
	if err == nil {
		return existing, nil, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil, err
	}

	roomID := RoomID(bookingID, m.now())
	credential, err := m.issuer.Issue(roomID, initiatorID.String(), rtc.RolePublisher, m.cfg.TokenTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("issue credential: %w", err)
	}

	session := &models.Session{BookingID: bookingID, RoomID: roomID}
	created, err := m.store.CreateSessionIfAbsent(ctx, session)
	if err != nil {
		return nil, nil, err
	}
	if !created {
		stored, err := m.store.GetSessionByBooking(ctx, bookingID)
		if err != nil {
			return nil, nil, err
		}
		m.logger.InfoContext(ctx, "session created concurrently, returning stored one",
			"booking_id", bookingID, "room_id", stored.RoomID)
		return stored, nil, nil
	}

	stored, err := m.store.GetSessionByBooking(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	m.logger.InfoContext(ctx, "session created",
		"booking_id", bookingID, "session_id", stored.ID, "room_id", roomID, "placeholder_token", credential.Placeholder)
	m.transitioned(ctx, booking, stored, mq.KeySessionCreated)
	return stored, &credential, nil
}

// Get returns the session with a freshly signed credential for the requester.
func (m *SessionManager) Get(ctx context.Context, bookingID, requesterID uuid.UUID) (*models.Session, *rtc.Credential, error) {
	if _, err := m.bookings.RequireParticipant(ctx, bookingID, requesterID); err != nil {
		return nil, nil, err
	}
	session, err := m.store.GetSessionByBooking(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	credential, err := m.issuer.Issue(session.RoomID, requesterID.String(), rtc.RolePublisher, m.cfg.TokenTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("issue credential: %w", err)
	}
	return session, &credential, nil
}

// Start stamps the start time once. Repeated calls and calls after the session ended return
// the stored session unchanged.
func (m *SessionManager) Start(ctx context.Context, bookingID uuid.UUID) (sess *models.Session, err error) {
	ctx, span := tracer.Start(ctx, "SessionManager.Start")
	span.SetAttributes(attribute.String("booking.id", bookingID.String()))
	defer func() { finishSpan(span, err) }()

	if _, err := m.store.GetSessionByBooking(ctx, bookingID); err != nil {
		return nil, err
	}
	won, err := m.store.MarkSessionStarted(ctx, bookingID, m.now())
	if err != nil {
		return nil, err
	}
	session, err := m.store.GetSessionByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if won {
		m.logger.InfoContext(ctx, "session started", "booking_id", bookingID, "session_id", session.ID)
		m.transitionedByID(ctx, session, mq.KeySessionStarted)
	}
	return session, nil
}

// End stamps the end time and whole-minute duration once, then completes the booking.
func (m *SessionManager) End(ctx context.Context, bookingID uuid.UUID, recordingRef *string) (sess *models.Session, err error) {
	ctx, span := tracer.Start(ctx, "SessionManager.End")
	span.SetAttributes(attribute.String("booking.id", bookingID.String()))
	defer func() { finishSpan(span, err) }()

	session, err := m.store.GetSessionByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	won := false
	if session.EndedAt == nil {
		now := m.now()
		won, err = m.store.MarkSessionEnded(ctx, bookingID, now, durationMinutes(session.StartedAt, now), recordingRef)
		if err != nil {
			return nil, err
		}
		session, err = m.store.GetSessionByBooking(ctx, bookingID)
		if err != nil {
			return nil, err
		}
	}

	if err := m.bookings.Complete(ctx, bookingID); err != nil {
		m.logger.ErrorContext(ctx, "complete booking after session end failed", "booking_id", bookingID, "error", err)
	}

	if won {
		m.logger.InfoContext(ctx, "session ended",
			"booking_id", bookingID, "session_id", session.ID, "duration_minutes", session.DurationMinutes)
		m.transitionedByID(ctx, session, mq.KeySessionEnded)
	}
	return session, nil
}

// CloseOverdue ends sessions left open past their booking's end time plus grace. It returns
// how many were closed; individual failures are joined and do not stop the sweep.
func (m *SessionManager) CloseOverdue(ctx context.Context, grace time.Duration, limit int) (int, error) {
	overdue, err := m.store.ListOverdueSessions(ctx, m.now().Add(-grace), limit)
	if err != nil {
		return 0, err
	}
	closed := 0
	var errs []error
	for _, s := range overdue {
		if _, err := m.End(ctx, s.BookingID, nil); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", s.ID, err))
			continue
		}
		closed++
	}
	if closed > 0 {
		m.logger.InfoContext(ctx, "closed overdue sessions", "count", closed)
	}
	return closed, errors.Join(errs...)
}

func durationMinutes(startedAt *time.Time, endedAt time.Time) int {
	if startedAt == nil || endedAt.Before(*startedAt) {
		return 0
	}
	return int(endedAt.Sub(*startedAt) / time.Minute)
}

func (m *SessionManager) transitionedByID(ctx context.Context, session *models.Session, key string) {
	booking, err := m.bookings.Get(ctx, session.BookingID)
	if err != nil {
		m.logger.WarnContext(ctx, "booking not found for session event", "booking_id", session.BookingID, "error", err)
	}
	m.transitioned(ctx, booking, session, key)
}

func (m *SessionManager) transitioned(ctx context.Context, booking *models.Booking, session *models.Session, key string) {
	metrics.SessionTransitions.WithLabelValues(string(session.State())).Inc()
	ev := sessionEvent(session)
	m.publish(ctx, key, ev)
	if booking != nil {
		m.push([]uuid.UUID{booking.StudentID, booking.TeacherID}, key, ev)
	}
}
