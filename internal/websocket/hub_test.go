package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func connect(t *testing.T, h *Hub, userID uint, admin bool) *Client {
	t.Helper()
	c := &Client{Hub: h, Send: make(chan []byte, 8), UserID: userID, Admin: admin}
	h.register <- c
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.clients[c]
	}, time.Second, time.Millisecond)
	return c
}

func receive(t *testing.T, c *Client) (Event, bool) {
	t.Helper()
	select {
	case msg := <-c.Send:
		var e Event
		require.NoError(t, json.Unmarshal(msg, &e))
		return e, true
	case <-time.After(100 * time.Millisecond):
		return Event{}, false
	}
}

func TestAccessChangedRouting(t *testing.T) {
	h := startHub(t)
	admin := connect(t, h, 1, true)
	alice := connect(t, h, 2, false)
	bob := connect(t, h, 3, false)
	assert.Equal(t, 3, h.ClientCount())

	h.AccessChanged([]uint{2})

	e, ok := receive(t, alice)
	require.True(t, ok)
	assert.Equal(t, EventAccessChanged, e.Type)
	assert.Equal(t, []uint{2}, e.UserIDs)

	_, ok = receive(t, admin)
	assert.True(t, ok, "admins see every change")

	_, ok = receive(t, bob)
	assert.False(t, ok, "other users are not told")
}

func TestUnregisterClosesSend(t *testing.T) {
	h := startHub(t)
	c := connect(t, h, 2, false)

	h.unregister <- c
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, time.Millisecond)
	_, open := <-c.Send
	assert.False(t, open)
}

func TestAccessChangedNeverBlocks(t *testing.T) {
	// no Run loop: the queue fills and further events are dropped
	h := NewHub(zap.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(h.events)+10; i++ {
			h.AccessChanged([]uint{uint(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AccessChanged blocked on a full queue")
	}
	assert.Len(t, h.events, cap(h.events))
}

func TestShutdownClosesClients(t *testing.T) {
	h := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	c := connect(t, h, 2, false)
	cancel()
	<-stopped

	_, open := <-c.Send
	assert.False(t, open)
	assert.Zero(t, h.ClientCount())
}
