package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSessionState(t *testing.T) {
	now := time.Now()

	s := &Session{}
	assert.Equal(t, SessionCreated, s.State())

	s.StartedAt = &now
	assert.Equal(t, SessionStarted, s.State())

	s.EndedAt = &now
	assert.Equal(t, SessionEnded, s.State())

	assert.Equal(t, SessionEnded, (&Session{EndedAt: &now}).State())
}

func TestBookingHasParticipant(t *testing.T) {
	b := &Booking{StudentID: uuid.New(), TeacherID: uuid.New()}

	assert.True(t, b.HasParticipant(b.StudentID))
	assert.True(t, b.HasParticipant(b.TeacherID))
	assert.False(t, b.HasParticipant(uuid.New()))
	assert.False(t, b.HasParticipant(uuid.Nil))
}
