// Package gateway fans auction events out to room participants over
// WebSocket and feeds inbound commands to the auction engine.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/cricketauction/auctiond/internal/event"
)

// Hub tracks the WebSocket connections subscribed to each room and
// implements event.Publisher. Broadcasts flow through a buffered channel
// so publishers never block on slow sockets.
type Hub struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*connection]bool

	broadcastCh chan event.Event
	logger      *slog.Logger
}

// NewHub creates a hub. Run must be started for broadcasts to flow.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:       make(map[uuid.UUID]map[*connection]bool),
		broadcastCh: make(chan event.Event, 1024),
		logger:      logger,
	}
}

// Run processes broadcasts until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case e := <-h.broadcastCh:
			h.fanOut(e)
		}
	}
}

// Publish enqueues an event for every connection subscribed to its room.
// Delivery is best effort; a full queue drops the event rather than
// blocking the engine.
func (h *Hub) Publish(_ context.Context, e event.Event) error {
	select {
	case h.broadcastCh <- e:
		return nil
	default:
		h.logger.Warn("broadcast queue full, dropping event",
			slog.String("room_id", e.RoomID.String()),
			slog.String("type", string(e.Type)),
		)
		return fmt.Errorf("broadcast queue full")
	}
}

func (h *Hub) register(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[c.roomID] == nil {
		h.rooms[c.roomID] = make(map[*connection]bool)
	}
	h.rooms[c.roomID][c] = true
}

// drop removes a connection from its room pool and shuts it down.
func (h *Hub) drop(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.rooms[c.roomID]
	if !ok {
		return
	}
	if _, ok := conns[c]; !ok {
		return
	}
	delete(conns, c)
	c.shutdown()
	if len(conns) == 0 {
		delete(h.rooms, c.roomID)
	}
}

func (h *Hub) fanOut(e event.Event) {
	h.mu.RLock()
	conns, ok := h.rooms[e.RoomID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]*connection, 0, len(conns))
	for c := range conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("marshalling event for broadcast", slog.Any("error", err))
		return
	}

	for _, c := range targets {
		if !c.trySend(data) {
			// The socket is not draining; drop it.
			h.logger.Warn("connection send buffer full, closing",
				slog.String("connection_id", c.id),
				slog.String("room_id", c.roomID.String()),
			)
			h.drop(c)
			_ = c.ws.Close()
		}
	}
}

// sendTo delivers an event to a single connection, bypassing the room
// fan-out. Used for command rejections and snapshots.
func (h *Hub) sendTo(c *connection, e event.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("marshalling event", slog.Any("error", err))
		return
	}
	if !c.trySend(data) {
		h.logger.Warn("direct send failed",
			slog.String("connection_id", c.id),
			slog.String("type", string(e.Type)),
		)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID, conns := range h.rooms {
		for c := range conns {
			c.shutdown()
			_ = c.ws.Close()
		}
		delete(h.rooms, roomID)
	}
}
