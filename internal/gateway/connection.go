package gateway

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout   = 10 * time.Second
	readTimeout    = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
)

// connection is one WebSocket subscriber of a room.
type connection struct {
	id     string
	userID uuid.UUID
	roomID uuid.UUID
	ws     *websocket.Conn

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func newConnection(ws *websocket.Conn, userID, roomID uuid.UUID) *connection {
	return &connection{
		id:     uuid.NewString(),
		userID: userID,
		roomID: roomID,
		ws:     ws,
		send:   make(chan []byte, 256),
	}
}

// trySend enqueues a frame unless the connection is closed or its
// buffer is full.
func (c *connection) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// shutdown marks the connection closed and releases its send channel.
// Safe to call more than once.
func (c *connection) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with pings.
func (c *connection) writePump(g *Gateway) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		g.hub.drop(c)
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump receives client commands until the socket drops.
func (c *connection) readPump(g *Gateway) {
	defer func() {
		g.hub.drop(c)
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				g.logger.Warn("unexpected websocket close",
					slog.String("connection_id", c.id),
					slog.Any("error", err),
				)
			}
			return
		}
		g.handleCommand(c, message)
		_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	}
}
