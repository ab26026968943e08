// Package chat delivers realtime chat events to connected websocket clients,
// grouped in one room per user.
package chat

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"legalmatch-backend/logger"
	"legalmatch-backend/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 4096

	// DefaultSendBuffer is the per connection queue length
	DefaultSendBuffer = 32
)

// Upgrader accepts websocket handshakes from any origin; the API sits
// behind the same CORS policy as the REST routes.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Event is the frame pushed to clients
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub tracks open connections by user and fans events out to them
type Hub struct {
	mu         sync.RWMutex
	rooms      map[uuid.UUID]map[*client]struct{}
	sendBuffer int
	log        *logrus.Logger
}

// Option configures a Hub
type Option func(*Hub)

// WithLogger sets the logger
func WithLogger(log *logrus.Logger) Option {
	return func(h *Hub) {
		h.log = log
	}
}

// WithSendBuffer sets the per connection queue length
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		h.sendBuffer = n
	}
}

// NewHub creates an empty hub
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		rooms:      make(map[uuid.UUID]map[*client]struct{}),
		sendBuffer: DefaultSendBuffer,
		log:        logger.Discard(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID uuid.UUID
	send   chan []byte
	once   sync.Once
}

// Serve joins conn to the room of userID and blocks until the connection
// closes. Inbound frames are read only to process control messages.
func (h *Hub) Serve(conn *websocket.Conn, userID uuid.UUID) {
	c := &client{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, h.sendBuffer),
	}
	h.register(c)
	h.log.WithField("user_id", userID).Debug("Chat client connected")

	go c.writePump()
	c.readPump()

	h.unregister(c)
	h.log.WithField("user_id", userID).Debug("Chat client disconnected")
}

// Publish queues an event for every connection of userID. A connection
// whose queue is full is dropped. Users without connections are skipped;
// they read the persisted history on their next visit.
func (h *Hub) Publish(userID uuid.UUID, eventType string, payload any) error {
	frame, err := json.Marshal(Event{Type: eventType, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.rooms[userID] {
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.WithField("user_id", userID).Warn("Dropping slow chat client")
		h.unregister(c)
	}
	return nil
}

// Connections returns the number of open connections of userID
func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*client
	for _, room := range h.rooms {
		for c := range room {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.unregister(c)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.userID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[c.userID] = room
	}
	room[c] = struct{}{}
	metrics.ChatConnections.Inc()
}

// unregister removes c and closes its queue, which stops the writer. Safe
// to call more than once.
func (h *Hub) unregister(c *client) {
	c.once.Do(func() {
		h.mu.Lock()
		if room, ok := h.rooms[c.userID]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, c.userID)
			}
		}
		h.mu.Unlock()
		close(c.send)
		metrics.ChatConnections.Dec()
	})
}

func (c *client) readPump() {
	c.conn.SetReadLimit(maxInboundSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
