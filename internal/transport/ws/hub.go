package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned when sending to a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// Connection represents a single WebSocket connection.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]context.CancelFunc
}

// Hub tracks open connections.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Connection
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{connections: make(map[string]*Connection)}
}

// NewConnection wraps ws. It is not tracked until Register.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:       uuid.New().String(),
		Conn:     ws,
		Send:     make(chan []byte, 64),
		done:     make(chan struct{}),
		inflight: make(map[string]context.CancelFunc),
	}
}

// Register starts tracking conn.
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	h.connections[conn.ID] = conn
	h.mu.Unlock()
}

// Unregister stops tracking conn, cancels its requests and closes it.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	delete(h.connections, conn.ID)
	h.mu.Unlock()
	conn.cancelAll()
	conn.Close()
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// CloseAll sends a close frame to every connection and unregisters it.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = c.Conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		h.Unregister(c)
	}
}

// SendJSON queues v for the write pump. It blocks while the buffer is full,
// so a slow client slows its own stream instead of losing deltas.
func (c *Connection) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case c.Send <- data:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// Done is closed when the connection closes.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection. It is safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.Conn.Close()
	})
	return err
}

// track records cancel for requestID. It reports false when the id is
// already in flight.
func (c *Connection) track(requestID string, cancel context.CancelFunc) bool {
	c.inflightMu.Lock()
	defer c.inflightMu.Unlock()
	if _, ok := c.inflight[requestID]; ok {
		return false
	}
	c.inflight[requestID] = cancel
	return true
}

func (c *Connection) untrack(requestID string) {
	c.inflightMu.Lock()
	delete(c.inflight, requestID)
	c.inflightMu.Unlock()
}

// cancel stops the request with requestID, if it is in flight.
func (c *Connection) cancel(requestID string) bool {
	c.inflightMu.Lock()
	cancel, ok := c.inflight[requestID]
	c.inflightMu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (c *Connection) cancelAll() {
	c.inflightMu.Lock()
	defer c.inflightMu.Unlock()
	for _, cancel := range c.inflight {
		cancel()
	}
}
