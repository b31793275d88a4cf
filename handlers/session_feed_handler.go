package handlers

import (
	"log/slog"

	"github.com/anjiri1684/tutor_live/middleware"
	"github.com/anjiri1684/tutor_live/websocket"
	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type authMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// SessionFeedHandler streams session lifecycle events to an authenticated participant.
type SessionFeedHandler struct {
	hub    *websocket.Hub
	secret string
	logger *slog.Logger
}

func NewSessionFeedHandler(hub *websocket.Hub, jwtSecret string, logger *slog.Logger) *SessionFeedHandler {
	return &SessionFeedHandler{hub: hub, secret: jwtSecret, logger: logger}
}

// Serve expects {"type":"auth","token":"..."} as the first frame, then holds the connection
// open until the client leaves. Inbound frames after auth are ignored.
func (h *SessionFeedHandler) Serve(c *websocketcontrib.Conn) {
	var msg authMessage
	if err := c.ReadJSON(&msg); err != nil || msg.Type != "auth" {
		h.logger.Warn("session feed auth failed: missing auth message", "error", err)
		_ = c.WriteJSON(fiber.Map{"success": false, "message": "Invalid or missing auth message"})
		_ = c.Close()
		return
	}
	claims, err := middleware.ParseToken(h.secret, msg.Token)
	if err != nil {
		h.logger.Warn("session feed auth failed: invalid token", "error", err)
		_ = c.WriteJSON(fiber.Map{"success": false, "message": "Invalid token"})
		_ = c.Close()
		return
	}

	// Written before registering; afterwards only the hub writes to this connection.
	_ = c.WriteJSON(websocket.Frame{Type: "ready", Data: fiber.Map{"user_id": claims.UserID}})
	client := &websocket.Client{UserID: claims.UserID, Conn: c}
	h.hub.Register(client)
	h.logger.Info("session feed client connected", "user_id", claims.UserID)
	defer h.hub.Unregister(client)

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if websocketcontrib.IsCloseError(err, websocketcontrib.CloseGoingAway, websocketcontrib.CloseNormalClosure) {
				h.logger.Info("session feed client left", "user_id", claims.UserID)
			} else {
				h.logger.Warn("session feed read error", "user_id", claims.UserID, "error", err)
			}
			return
		}
	}
}
