package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/cricketauction/auctiond/internal/auction"
	"github.com/cricketauction/auctiond/internal/event"
	"github.com/cricketauction/auctiond/internal/room"
	"github.com/cricketauction/auctiond/internal/store"
)

// Engine is the command surface the gateway drives.
type Engine interface {
	GetRoom(ctx context.Context, id uuid.UUID) (*room.Room, error)
	JoinRoom(ctx context.Context, roomID, userID uuid.UUID, teamName string) (*room.Room, error)
	StartAuction(ctx context.Context, roomID, adminID uuid.UUID) (*room.Room, error)
	Cancel(ctx context.Context, roomID, adminID uuid.UUID) (*room.Room, error)
	PlaceBid(ctx context.Context, req auction.BidRequest) (*room.Bid, error)
}

// Verifier authenticates an upgrade request and returns the user id.
// Token format and issuance live outside the gateway.
type Verifier interface {
	Verify(r *http.Request) (uuid.UUID, error)
}

// Gateway upgrades HTTP requests to WebSocket subscriptions and routes
// client commands to the engine.
type Gateway struct {
	hub      *Hub
	engine   Engine
	verifier Verifier
	upgrader websocket.Upgrader
	cors     *cors.Cors
	logger   *slog.Logger
}

// New creates a gateway over the given hub and engine. allowedOrigins
// follows the CORS middleware convention; "*" allows all origins.
func New(hub *Hub, engine Engine, verifier Verifier, allowedOrigins []string, logger *slog.Logger) *Gateway {
	return &Gateway{
		hub:      hub,
		engine:   engine,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		cors: cors.New(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
		}),
		logger: logger,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		return set[r.Header.Get("Origin")]
	}
}

// Handler returns the HTTP handler serving the WebSocket endpoint at
// /ws, wrapped in CORS middleware.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.serveWS)
	return g.cors.Handler(mux)
}

// serveWS authenticates the request, upgrades it, subscribes the
// connection to its room and sends the room snapshot.
func (g *Gateway) serveWS(w http.ResponseWriter, r *http.Request) {
	userID, err := g.verifier.Verify(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	roomID, err := uuid.Parse(r.URL.Query().Get("room"))
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return
	}
	rm, err := g.engine.GetRoom(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("upgrading connection", slog.Any("error", err))
		return
	}

	c := newConnection(ws, userID, roomID)
	g.hub.register(c)
	go c.writePump(g)
	go c.readPump(g)

	g.sendSnapshot(c, rm)
	g.logger.Info("websocket connection established",
		slog.String("connection_id", c.id),
		slog.String("room_id", roomID.String()),
		slog.String("user_id", userID.String()),
	)
}

func (g *Gateway) sendSnapshot(c *connection, rm *room.Room) {
	snapshot, err := json.Marshal(rm)
	if err != nil {
		g.logger.Error("marshalling room snapshot", slog.Any("error", err))
		return
	}
	e, err := event.New(rm.ID, event.RoomJoined, rm.Version, event.RoomJoinedData{Room: snapshot})
	if err != nil {
		g.logger.Error("building snapshot event", slog.Any("error", err))
		return
	}
	e.ID = uuid.NewString()
	g.hub.sendTo(c, e)
}
