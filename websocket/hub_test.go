package websocket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []Frame
	closed bool
	fail   bool
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.frames = append(c.frames, v.(Frame))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.frames...)
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func TestPushReachesOnlyAddressedUsers(t *testing.T) {
	h := startHub(t)
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	aConn, bConn, cConn := &fakeConn{}, &fakeConn{}, &fakeConn{}
	h.Register(&Client{UserID: alice, Conn: aConn})
	h.Register(&Client{UserID: bob, Conn: bConn})
	h.Register(&Client{UserID: carol, Conn: cConn})

	h.Push([]uuid.UUID{alice, bob}, "session.started", map[string]string{"room_id": "r1"})

	assert.Eventually(t, func() bool {
		return len(aConn.received()) == 1 && len(bConn.received()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "session.started", aConn.received()[0].Type)
	assert.Empty(t, cConn.received())
}

func TestFailedWriteDropsClient(t *testing.T) {
	h := startHub(t)
	id := uuid.New()
	conn := &fakeConn{fail: true}
	h.Register(&Client{UserID: id, Conn: conn})
	assert.Eventually(t, func() bool { return h.Connected(id) }, time.Second, 5*time.Millisecond)

	h.Push([]uuid.UUID{id}, "session.ended", nil)

	assert.Eventually(t, func() bool { return !h.Connected(id) }, time.Second, 5*time.Millisecond)
	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.True(t, conn.closed)
}

func TestUserMayConnectFromSeveralDevices(t *testing.T) {
	h := startHub(t)
	id := uuid.New()
	laptop, phone := &fakeConn{}, &fakeConn{}
	h.Register(&Client{UserID: id, Conn: laptop})
	h.Register(&Client{UserID: id, Conn: phone})
	assert.Eventually(t, func() bool { return h.Connections(id) == 2 }, time.Second, 5*time.Millisecond)

	h.Push([]uuid.UUID{id}, "session.started", nil)
	assert.Eventually(t, func() bool {
		return len(laptop.received()) == 1 && len(phone.received()) == 1
	}, time.Second, 5*time.Millisecond)

	h.Unregister(&Client{UserID: id, Conn: laptop})
	assert.Eventually(t, func() bool { return h.Connections(id) == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, h.Connected(id))

	h.Push([]uuid.UUID{id}, "session.ended", nil)
	assert.Eventually(t, func() bool { return len(phone.received()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Len(t, laptop.received(), 1)
	laptop.mu.Lock()
	assert.False(t, laptop.closed)
	laptop.mu.Unlock()

	h.Unregister(&Client{UserID: id, Conn: phone})
	assert.Eventually(t, func() bool { return !h.Connected(id) }, time.Second, 5*time.Millisecond)
}

func TestFailedWriteKeepsOtherDevices(t *testing.T) {
	h := startHub(t)
	id := uuid.New()
	broken, healthy := &fakeConn{fail: true}, &fakeConn{}
	h.Register(&Client{UserID: id, Conn: broken})
	h.Register(&Client{UserID: id, Conn: healthy})

	h.Push([]uuid.UUID{id}, "session.started", nil)

	assert.Eventually(t, func() bool { return h.Connections(id) == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, healthy.received(), 1)
	broken.mu.Lock()
	defer broken.mu.Unlock()
	assert.True(t, broken.closed)
}

func TestRegisterAfterStopDoesNotBlock(t *testing.T) {
	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	conn := &fakeConn{}
	client := &Client{UserID: uuid.New(), Conn: conn}
	h.Register(client)
	h.Unregister(client)

	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.True(t, conn.closed)
}
