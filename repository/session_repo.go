package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/anjiri1684/tutor_live/models"
	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

func (s *Store) GetSessionByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Session, error) {
	var session models.Session
	if err := s.db.WithContext(ctx).First(&session, "booking_id = ?", bookingID).Error; err != nil {
		return nil, notFound(err, "session")
	}
	return &session, nil
}

// CreateSessionIfAbsent inserts the session unless the booking already has one. The boolean
// reports whether this call's row was the one stored.
func (s *Store) CreateSessionIfAbsent(ctx context.Context, session *models.Session) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "booking_id"}}, DoNothing: true}).
		Create(session)
	if res.Error != nil {
		return false, fmt.Errorf("create session: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) MarkSessionStarted(ctx context.Context, bookingID uuid.UUID, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("booking_id = ? AND started_at IS NULL AND ended_at IS NULL", bookingID).
		Update("started_at", at)
	if res.Error != nil {
		return false, fmt.Errorf("start session: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) MarkSessionEnded(ctx context.Context, bookingID uuid.UUID, at time.Time, durationMinutes int, recordingRef *string) (bool, error) {
	updates := map[string]any{
		"ended_at":         at,
		"duration_minutes": durationMinutes,
	}
	if recordingRef != nil {
		updates["recording_ref"] = *recordingRef
	}
	res := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("booking_id = ? AND ended_at IS NULL", bookingID).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("end session: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListOverdueSessions returns sessions still open whose booking was scheduled to end before
// cutoff.
func (s *Store) ListOverdueSessions(ctx context.Context, cutoff time.Time, limit int) ([]models.Session, error) {
	var sessions []models.Session
	q := s.db.WithContext(ctx).
		Joins("JOIN bookings ON bookings.id = sessions.booking_id").
		Where("sessions.ended_at IS NULL AND bookings.end_time < ?", cutoff).
		Order("bookings.end_time ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list overdue sessions: %w", err)
	}
	return sessions, nil
}
