// Package memory is an in-process Store with the same check-and-set semantics as the postgres
// store. It backs tests and local runs without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/anjiri1684/tutor_live/apperrors"
	"github.com/anjiri1684/tutor_live/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type creditKey struct {
	payee     uuid.UUID
	reference uuid.UUID
}

type webhookKey struct {
	provider string
	eventID  string
}

type Store struct {
	mu sync.RWMutex

	users    map[uuid.UUID]models.User
	bookings map[uuid.UUID]models.Booking

	// keyed by booking id
	payments map[uuid.UUID]models.Payment
	sessions map[uuid.UUID]models.Session

	credits  map[creditKey]models.LedgerCredit
	webhooks map[webhookKey]models.WebhookEvent
	nextHook uint
}

func New() *Store {
	return &Store{
		users:    make(map[uuid.UUID]models.User),
		bookings: make(map[uuid.UUID]models.Booking),
		payments: make(map[uuid.UUID]models.Payment),
		sessions: make(map[uuid.UUID]models.Session),
		credits:  make(map[creditKey]models.LedgerCredit),
		webhooks: make(map[webhookKey]models.WebhookEvent),
	}
}

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, apperrors.ErrNotFound)
}

// Users and bookings

func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	s.users[user.ID] = *user
	return nil
}

func (s *Store) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, notFound("user")
	}
	return &u, nil
}

func (s *Store) CreateBooking(_ context.Context, booking *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	if booking.Status == "" {
		booking.Status = models.BookingPending
	}
	now := time.Now()
	booking.CreatedAt, booking.UpdatedAt = now, now
	s.bookings[booking.ID] = *booking
	return nil
}

func (s *Store) GetBooking(_ context.Context, id uuid.UUID) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, notFound("booking")
	}
	return &b, nil
}

func (s *Store) TransitionBooking(_ context.Context, id uuid.UUID, from, to models.BookingStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	b.UpdatedAt = time.Now()
	s.bookings[id] = b
	return true, nil
}

// Payments

func (s *Store) GetPaymentByBooking(_ context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[bookingID]
	if !ok {
		return nil, notFound("payment")
	}
	return &p, nil
}

func (s *Store) GetPaymentByReference(_ context.Context, reference string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.payments {
		if p.GatewayReference != nil && *p.GatewayReference == reference {
			return &p, nil
		}
	}
	return nil, notFound("payment")
}

func (s *Store) UpsertPendingPayment(_ context.Context, p *models.Payment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	p.Status = models.PaymentPending

	existing, ok := s.payments[p.BookingID]
	if !ok {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		p.CreatedAt, p.UpdatedAt = now, now
		s.payments[p.BookingID] = *p
		return true, nil
	}
	if existing.Status == models.PaymentCompleted || existing.Status == models.PaymentRefunded {
		return false, nil
	}

	existing.Amount = p.Amount
	existing.Currency = p.Currency
	existing.Status = models.PaymentPending
	existing.Provider = p.Provider
	existing.PaymentMethod = p.PaymentMethod
	existing.GatewayReference = p.GatewayReference
	existing.FailureReason = nil
	existing.UpdatedAt = now
	s.payments[p.BookingID] = existing
	*p = existing
	return true, nil
}

// updatePayment applies fn to the payment with the given id when its status is one of from.
func (s *Store) updatePayment(id uuid.UUID, from []models.PaymentStatus, fn func(p *models.Payment)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for bookingID, p := range s.payments {
		if p.ID != id {
			continue
		}
		for _, st := range from {
			if p.Status == st {
				fn(&p)
				p.UpdatedAt = time.Now()
				s.payments[bookingID] = p
				return true
			}
		}
		return false
	}
	return false
}

func (s *Store) CompletePayment(_ context.Context, id uuid.UUID, gatewayPaymentID string, at time.Time) (bool, error) {
	ok := s.updatePayment(id, []models.PaymentStatus{models.PaymentPending, models.PaymentFailed}, func(p *models.Payment) {
		ref := gatewayPaymentID
		p.Status = models.PaymentCompleted
		p.GatewayPaymentID = &ref
		p.FailureReason = nil
		p.CompletedAt = &at
	})
	return ok, nil
}

func (s *Store) FailPayment(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	ok := s.updatePayment(id, []models.PaymentStatus{models.PaymentPending}, func(p *models.Payment) {
		r := reason
		p.Status = models.PaymentFailed
		p.FailureReason = &r
	})
	return ok, nil
}

func (s *Store) RefundPayment(_ context.Context, id uuid.UUID, amount decimal.Decimal, at time.Time) (bool, error) {
	ok := s.updatePayment(id, []models.PaymentStatus{models.PaymentCompleted}, func(p *models.Payment) {
		p.Status = models.PaymentRefunded
		p.RefundAmount = decimal.NewNullDecimal(amount)
		p.RefundedAt = &at
	})
	return ok, nil
}

func (s *Store) MarkPaymentCredited(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for bookingID, p := range s.payments {
		if p.ID == id && p.CreditedAt == nil {
			p.CreditedAt = &at
			s.payments[bookingID] = p
		}
	}
	return nil
}

func (s *Store) ListUncreditedPayments(_ context.Context, limit int) ([]models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Payment, 0)
	for _, p := range s.payments {
		if p.Status == models.PaymentCompleted && p.CreditedAt == nil {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return completedAt(out[i]).Before(completedAt(out[j]))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func completedAt(p models.Payment) time.Time {
	if p.CompletedAt == nil {
		return time.Time{}
	}
	return *p.CompletedAt
}

// Sessions

func (s *Store) GetSessionByBooking(_ context.Context, bookingID uuid.UUID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[bookingID]
	if !ok {
		return nil, notFound("session")
	}
	return &sess, nil
}

func (s *Store) CreateSessionIfAbsent(_ context.Context, session *models.Session) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.BookingID]; exists {
		return false, nil
	}
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	now := time.Now()
	session.CreatedAt, session.UpdatedAt = now, now
	s.sessions[session.BookingID] = *session
	return true, nil
}

func (s *Store) MarkSessionStarted(_ context.Context, bookingID uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[bookingID]
	if !ok || sess.StartedAt != nil || sess.EndedAt != nil {
		return false, nil
	}
	sess.StartedAt = &at
	sess.UpdatedAt = time.Now()
	s.sessions[bookingID] = sess
	return true, nil
}

func (s *Store) MarkSessionEnded(_ context.Context, bookingID uuid.UUID, at time.Time, durationMinutes int, recordingRef *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[bookingID]
	if !ok || sess.EndedAt != nil {
		return false, nil
	}
	sess.EndedAt = &at
	sess.DurationMinutes = durationMinutes
	if recordingRef != nil {
		ref := *recordingRef
		sess.RecordingRef = &ref
	}
	sess.UpdatedAt = time.Now()
	s.sessions[bookingID] = sess
	return true, nil
}

func (s *Store) ListOverdueSessions(_ context.Context, cutoff time.Time, limit int) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type overdue struct {
		session models.Session
		endTime time.Time
	}
	var found []overdue
	for bookingID, sess := range s.sessions {
		if sess.EndedAt != nil {
			continue
		}
		b, ok := s.bookings[bookingID]
		if !ok || !b.EndTime.Before(cutoff) {
			continue
		}
		found = append(found, overdue{session: sess, endTime: b.EndTime})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].endTime.Before(found[j].endTime) })

	out := make([]models.Session, 0, len(found))
	for _, o := range found {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, o.session)
	}
	return out, nil
}

// Webhook events

func (s *Store) RecordWebhookEvent(_ context.Context, event *models.WebhookEvent) (*models.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := webhookKey{provider: event.Provider, eventID: event.ProviderEventID}
	if stored, ok := s.webhooks[key]; ok {
		return &stored, nil
	}
	s.nextHook++
	event.ID = s.nextHook
	now := time.Now()
	event.CreatedAt, event.UpdatedAt = now, now
	s.webhooks[key] = *event
	stored := *event
	return &stored, nil
}

func (s *Store) MarkWebhookEventProcessed(_ context.Context, id uint, at time.Time) error {
	return s.updateWebhook(id, func(e *models.WebhookEvent) {
		e.ProcessedAt = &at
		e.ProcessingError = ""
	})
}

func (s *Store) RecordWebhookFailure(_ context.Context, id uint, processingErr string) error {
	return s.updateWebhook(id, func(e *models.WebhookEvent) {
		if e.ProcessedAt == nil {
			e.ProcessingError = processingErr
		}
	})
}

func (s *Store) updateWebhook(id uint, fn func(e *models.WebhookEvent)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.webhooks {
		if e.ID == id {
			fn(&e)
			e.UpdatedAt = time.Now()
			s.webhooks[key] = e
			return nil
		}
	}
	return notFound("webhook event")
}

// Ledger

func (s *Store) ApplyCredit(_ context.Context, credit *models.LedgerCredit) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := creditKey{payee: credit.PayeeID, reference: credit.ReferenceID}
	if _, exists := s.credits[key]; exists {
		return false, nil
	}
	if credit.ID == uuid.Nil {
		credit.ID = uuid.New()
	}
	credit.CreatedAt = time.Now()
	s.credits[key] = *credit
	return true, nil
}

func (s *Store) LedgerBalance(_ context.Context, payeeID uuid.UUID) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for key, c := range s.credits {
		if key.payee == payeeID {
			total = total.Add(c.Net)
		}
	}
	return total, nil
}

// CreditCount returns how many credits exist for a reference across all payees.
func (s *Store) CreditCount(referenceID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for key := range s.credits {
		if key.reference == referenceID {
			n++
		}
	}
	return n
}
