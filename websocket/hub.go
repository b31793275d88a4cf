// Package websocket fans session lifecycle events out to connected participants.
package websocket

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

type Client struct {
	UserID uuid.UUID
	Conn   Conn
}

// Frame is what a participant receives.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type delivery struct {
	userIDs []uuid.UUID
	frame   Frame
}

// Hub keeps every open connection of a user; a frame for the user goes to all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[Conn]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan delivery
	done       chan struct{}

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[uuid.UUID]map[Conn]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan delivery, 64),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves registrations and deliveries until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, conns := range h.clients {
				for conn := range conns {
					_ = conn.Close()
				}
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.logger.Debug("session feed client registered", "user_id", client.UserID)
			h.mu.Lock()
			conns, ok := h.clients[client.UserID]
			if !ok {
				conns = make(map[Conn]struct{})
				h.clients[client.UserID] = conns
			}
			conns[client.Conn] = struct{}{}
			h.mu.Unlock()
		case client := <-h.unregister:
			h.logger.Debug("session feed client unregistered", "user_id", client.UserID)
			h.remove(client.UserID, client.Conn)
		case d := <-h.broadcast:
			h.deliver(d)
		}
	}
}

func (h *Hub) deliver(d delivery) {
	for _, id := range d.userIDs {
		h.mu.RLock()
		conns := make([]Conn, 0, len(h.clients[id]))
		for conn := range h.clients[id] {
			conns = append(conns, conn)
		}
		h.mu.RUnlock()

		for _, conn := range conns {
			if err := conn.WriteJSON(d.frame); err != nil {
				h.logger.Warn("session feed write failed", "user_id", id, "error", err)
				_ = conn.Close()
				h.remove(id, conn)
			}
		}
	}
}

func (h *Hub) remove(userID uuid.UUID, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[userID]
	if !ok {
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.clients, userID)
	}
}

// Register and Unregister return immediately once the hub has stopped.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		_ = c.Conn.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Push queues an event for the given users. It never blocks; when the queue is full the event
// is dropped.
func (h *Hub) Push(userIDs []uuid.UUID, kind string, payload any) {
	select {
	case h.broadcast <- delivery{userIDs: userIDs, frame: Frame{Type: kind, Data: payload}}:
	default:
		h.logger.Warn("session feed queue full, event dropped", "type", kind)
	}
}

// Connections reports how many open connections the user has.
func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) Connected(userID uuid.UUID) bool {
	return h.Connections(userID) > 0
}
