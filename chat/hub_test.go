package chat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveHub(t *testing.T, h *Hub, userID uuid.UUID) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.Serve(conn, userID)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return h.Connections(userID) == 1 }, time.Second, 10*time.Millisecond)
	return conn
}

func TestHub_PublishReachesUserRoom(t *testing.T) {
	h := NewHub()
	alice := uuid.New()
	conn := serveHub(t, h, alice)

	require.NoError(t, h.Publish(alice, "message", map[string]string{"text": "hello"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var got struct {
		Type    string            `json:"type"`
		Payload map[string]string `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(frame, &got))
	assert.Equal(t, "message", got.Type)
	assert.Equal(t, "hello", got.Payload["text"])
}

func TestHub_PublishWithoutConnectionsIsNoop(t *testing.T) {
	h := NewHub()
	assert.NoError(t, h.Publish(uuid.New(), "message", "ignored"))
}

func TestHub_DisconnectLeavesRoom(t *testing.T) {
	h := NewHub()
	bob := uuid.New()
	conn := serveHub(t, h, bob)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.Connections(bob) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_DropsSlowConsumer(t *testing.T) {
	h := NewHub()
	carol := uuid.New()
	c := &client{hub: h, userID: carol, send: make(chan []byte, 1)}
	h.register(c)

	require.NoError(t, h.Publish(carol, "message", 1))
	assert.Equal(t, 1, h.Connections(carol))

	// queue is full, so the second event drops the client
	require.NoError(t, h.Publish(carol, "message", 2))
	assert.Equal(t, 0, h.Connections(carol))

	_, open := <-c.send
	assert.True(t, open, "queued frame is still delivered")
	_, open = <-c.send
	assert.False(t, open)
}

func TestHub_PublishRejectsUnencodablePayload(t *testing.T) {
	h := NewHub()
	err := h.Publish(uuid.New(), "message", make(chan int))
	assert.Error(t, err)
}
