package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

type Booking struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	StudentID uuid.UUID       `gorm:"type:uuid;not null;index" json:"student_id"`
	TeacherID uuid.UUID       `gorm:"type:uuid;not null;index" json:"teacher_id"`
	StartTime time.Time       `gorm:"not null" json:"start_time"`
	EndTime   time.Time       `gorm:"not null" json:"end_time"`
	Status    BookingStatus   `gorm:"size:20;not null;default:'pending'" json:"status"`
	Price     decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"price"`
	Currency  string          `gorm:"size:3;not null" json:"currency"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasParticipant reports whether userID is the payer or the provider of the booking.
func (b *Booking) HasParticipant(userID uuid.UUID) bool {
	return userID != uuid.Nil && (b.StudentID == userID || b.TeacherID == userID)
}
