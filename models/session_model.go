package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionState string

const (
	SessionCreated SessionState = "created"
	SessionStarted SessionState = "started"
	SessionEnded   SessionState = "ended"
)

// Session is the live call attached to exactly one booking.
type Session struct {
	ID              uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	BookingID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"booking_id"`
	RoomID          string     `gorm:"size:255;not null;uniqueIndex" json:"room_id"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationMinutes int        `gorm:"not null;default:0" json:"duration_minutes"`
	RecordingRef    *string    `gorm:"size:255" json:"recording_ref,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Session) State() SessionState {
	switch {
	case s.EndedAt != nil:
		return SessionEnded
	case s.StartedAt != nil:
		return SessionStarted
	default:
		return SessionCreated
	}
}
