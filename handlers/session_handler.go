package handlers

import (
	"context"
	"time"

	"github.com/anjiri1684/tutor_live/media"
	"github.com/anjiri1684/tutor_live/middleware"
	"github.com/anjiri1684/tutor_live/models"
	"github.com/anjiri1684/tutor_live/rtc"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type SessionService interface {
	Create(ctx context.Context, bookingID, initiatorID uuid.UUID) (*models.Session, *rtc.Credential, error)
	Get(ctx context.Context, bookingID, requesterID uuid.UUID) (*models.Session, *rtc.Credential, error)
	Start(ctx context.Context, bookingID uuid.UUID) (*models.Session, error)
	End(ctx context.Context, bookingID uuid.UUID, recordingRef *string) (*models.Session, error)
}

type UploadSigner interface {
	Sign(roomID string, at time.Time) (media.UploadSignature, error)
	RecordingRef(roomID string) string
}

type SessionHandler struct {
	sessions SessionService
	bookings BookingAccess
	signer   UploadSigner
}

func NewSessionHandler(sessions SessionService, bookings BookingAccess, signer UploadSigner) *SessionHandler {
	return &SessionHandler{sessions: sessions, bookings: bookings, signer: signer}
}

type sessionResponse struct {
	Session    *models.Session `json:"session"`
	Credential *rtc.Credential `json:"credential,omitempty"`
}

func (h *SessionHandler) Create(c *fiber.Ctx) error {
	user, bookingID, err := h.caller(c, false)
	if err != nil {
		return err
	}
	sess, cred, err := h.sessions.Create(c.UserContext(), bookingID, user)
	if err != nil {
		return err
	}
	if cred == nil {
		return success(c, fiber.StatusOK, "Session already exists", sessionResponse{Session: sess})
	}
	return success(c, fiber.StatusCreated, "Session created", sessionResponse{Session: sess, Credential: cred})
}

func (h *SessionHandler) Get(c *fiber.Ctx) error {
	user, bookingID, err := h.caller(c, false)
	if err != nil {
		return err
	}
	sess, cred, err := h.sessions.Get(c.UserContext(), bookingID, user)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "Session retrieved", sessionResponse{Session: sess, Credential: cred})
}

func (h *SessionHandler) Start(c *fiber.Ctx) error {
	_, bookingID, err := h.caller(c, true)
	if err != nil {
		return err
	}
	sess, err := h.sessions.Start(c.UserContext(), bookingID)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "Session started", sessionResponse{Session: sess})
}

type endSessionRequest struct {
	RecordingRef *string `json:"recording_ref" validate:"omitempty,max=512"`
}

func (h *SessionHandler) End(c *fiber.Ctx) error {
	_, bookingID, err := h.caller(c, true)
	if err != nil {
		return err
	}
	var req endSessionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	sess, err := h.sessions.End(c.UserContext(), bookingID, req.RecordingRef)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "Session ended", sessionResponse{Session: sess})
}

type recordingSignatureResponse struct {
	media.UploadSignature
	RecordingRef string `json:"recording_ref"`
}

// RecordingSignature lets a participant upload the session recording directly to storage.
func (h *SessionHandler) RecordingSignature(c *fiber.Ctx) error {
	user, bookingID, err := h.caller(c, false)
	if err != nil {
		return err
	}
	if h.signer == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Recording uploads are not configured")
	}
	sess, _, err := h.sessions.Get(c.UserContext(), bookingID, user)
	if err != nil {
		return err
	}
	sig, err := h.signer.Sign(sess.RoomID, time.Now())
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "Upload signature created", recordingSignatureResponse{
		UploadSignature: sig,
		RecordingRef:    h.signer.RecordingRef(sess.RoomID),
	})
}

// caller resolves the authenticated user and booking id. With checkParticipant the user must
// be on the booking; Create and Get enforce that themselves.
func (h *SessionHandler) caller(c *fiber.Ctx, checkParticipant bool) (uuid.UUID, uuid.UUID, error) {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		return uuid.Nil, uuid.Nil, fiber.ErrUnauthorized
	}
	bookingID, err := bookingIDParam(c)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if checkParticipant {
		if _, err := h.bookings.RequireParticipant(c.UserContext(), bookingID, user.UserID); err != nil {
			return uuid.Nil, uuid.Nil, err
		}
	}
	return user.UserID, bookingID, nil
}
