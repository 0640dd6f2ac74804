package gateway_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cricketauction/auctiond/internal/auction"
	"github.com/cricketauction/auctiond/internal/event"
	"github.com/cricketauction/auctiond/internal/gateway"
	"github.com/cricketauction/auctiond/internal/room"
	"github.com/cricketauction/auctiond/internal/store"
)

// --- mock helpers ---

type mockEngine struct {
	mu    sync.Mutex
	room  *room.Room
	bids  []auction.BidRequest
	joins []string

	bidErr error
}

func (m *mockEngine) GetRoom(_ context.Context, id uuid.UUID) (*room.Room, error) {
	if m.room == nil || m.room.ID != id {
		return nil, store.ErrNotFound
	}
	return m.room, nil
}

func (m *mockEngine) JoinRoom(_ context.Context, _, _ uuid.UUID, teamName string) (*room.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joins = append(m.joins, teamName)
	return m.room, nil
}

func (m *mockEngine) StartAuction(_ context.Context, _, _ uuid.UUID) (*room.Room, error) {
	return m.room, nil
}

func (m *mockEngine) Cancel(_ context.Context, _, _ uuid.UUID) (*room.Room, error) {
	return m.room, nil
}

func (m *mockEngine) PlaceBid(_ context.Context, req auction.BidRequest) (*room.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bidErr != nil {
		return nil, m.bidErr
	}
	m.bids = append(m.bids, req)
	return &room.Bid{Amount: req.Amount}, nil
}

func (m *mockEngine) bidCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bids)
}

type testGateway struct {
	hub    *gateway.Hub
	engine *mockEngine
	server *httptest.Server
	cancel context.CancelFunc
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := gateway.NewHub(logger)

	engine := &mockEngine{
		room: &room.Room{
			ID:      uuid.New(),
			Name:    "gateway room",
			Status:  room.StatusActive,
			Version: 3,
		},
	}

	g := gateway.New(hub, engine, gateway.HeaderVerifier{}, []string{"*"}, logger)
	server := httptest.NewServer(g.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return &testGateway{hub: hub, engine: engine, server: server, cancel: cancel}
}

func (tg *testGateway) dial(t *testing.T, userID uuid.UUID) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(tg.server.URL, "http") +
		"/ws?room=" + tg.engine.room.ID.String() + "&user=" + userID.String()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) event.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	var e event.Event
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("unmarshalling event: %v", err)
	}
	return e
}

// --- tests ---

func TestConnectSendsRoomSnapshot(t *testing.T) {
	tg := newTestGateway(t)
	conn := tg.dial(t, uuid.New())

	e := readEvent(t, conn)
	if e.Type != event.RoomJoined {
		t.Fatalf("first event type = %q, want %q", e.Type, event.RoomJoined)
	}
	if e.Version != 3 {
		t.Errorf("snapshot version = %d, want 3", e.Version)
	}

	payload, err := event.ParsePayload(e)
	if err != nil {
		t.Fatalf("parsing payload: %v", err)
	}
	var snapshot room.Room
	if err := json.Unmarshal(payload.(event.RoomJoinedData).Room, &snapshot); err != nil {
		t.Fatalf("unmarshalling snapshot: %v", err)
	}
	if snapshot.ID != tg.engine.room.ID {
		t.Errorf("snapshot id = %s, want %s", snapshot.ID, tg.engine.room.ID)
	}
}

func TestConnectRejections(t *testing.T) {
	tg := newTestGateway(t)

	// Missing identity.
	resp, err := http.Get(tg.server.URL + "/ws?room=" + tg.engine.room.ID.String())
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	// Unknown room.
	resp, err = http.Get(tg.server.URL + "/ws?room=" + uuid.NewString() + "&user=" + uuid.NewString())
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestPlaceBidCommandReachesEngine(t *testing.T) {
	tg := newTestGateway(t)
	userID := uuid.New()
	conn := tg.dial(t, userID)
	readEvent(t, conn) // snapshot

	playerID := uuid.New()
	cmd := map[string]any{
		"type": "place-bid",
		"data": map[string]any{"player_id": playerID, "amount": 150_000},
	}
	if err := conn.WriteJSON(cmd); err != nil {
		t.Fatalf("writing command: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for tg.engine.bidCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("engine never received the bid")
		}
		time.Sleep(10 * time.Millisecond)
	}

	tg.engine.mu.Lock()
	bid := tg.engine.bids[0]
	tg.engine.mu.Unlock()
	if bid.BidderID != userID {
		t.Errorf("bidder = %s, want connection user %s", bid.BidderID, userID)
	}
	if bid.PlayerID != playerID || bid.Amount != 150_000 {
		t.Errorf("bid = %+v", bid)
	}
}

func TestRejectedCommandNotifiesOnlyIssuer(t *testing.T) {
	tg := newTestGateway(t)
	tg.engine.bidErr = auction.ErrBidTooLow

	issuer := tg.dial(t, uuid.New())
	observer := tg.dial(t, uuid.New())
	readEvent(t, issuer)
	readEvent(t, observer)

	cmd := map[string]any{
		"type": "place-bid",
		"data": map[string]any{"player_id": uuid.New(), "amount": 1},
	}
	if err := issuer.WriteJSON(cmd); err != nil {
		t.Fatalf("writing command: %v", err)
	}

	e := readEvent(t, issuer)
	if e.Type != event.Error {
		t.Fatalf("issuer event type = %q, want %q", e.Type, event.Error)
	}
	payload, err := event.ParsePayload(e)
	if err != nil {
		t.Fatalf("parsing payload: %v", err)
	}
	if data := payload.(event.ErrorData); data.Retryable {
		t.Error("rule violation flagged retryable")
	}

	// The observer receives nothing.
	_ = observer.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := observer.ReadMessage(); err == nil {
		t.Error("observer received a frame for another connection's rejection")
	}
}

func TestChatBroadcastsToRoom(t *testing.T) {
	tg := newTestGateway(t)
	sender := tg.dial(t, uuid.New())
	receiver := tg.dial(t, uuid.New())
	readEvent(t, sender)
	readEvent(t, receiver)

	cmd := map[string]any{
		"type": "chat-message",
		"data": map[string]any{"sender_name": "Team A", "message": "good luck"},
	}
	if err := sender.WriteJSON(cmd); err != nil {
		t.Fatalf("writing command: %v", err)
	}

	e := readEvent(t, receiver)
	if e.Type != event.ChatMessage {
		t.Fatalf("receiver event type = %q, want %q", e.Type, event.ChatMessage)
	}
	payload, err := event.ParsePayload(e)
	if err != nil {
		t.Fatalf("parsing payload: %v", err)
	}
	if data := payload.(event.ChatMessageData); data.Message != "good luck" {
		t.Errorf("message = %q, want %q", data.Message, "good luck")
	}
}

func TestPublishFansOutToSubscribers(t *testing.T) {
	tg := newTestGateway(t)
	connA := tg.dial(t, uuid.New())
	connB := tg.dial(t, uuid.New())
	readEvent(t, connA)
	readEvent(t, connB)

	e, err := event.New(tg.engine.room.ID, event.BidTimer, 3, event.BidTimerData{SecondsRemaining: 10})
	if err != nil {
		t.Fatalf("building event: %v", err)
	}
	if err := tg.hub.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for _, conn := range []*websocket.Conn{connA, connB} {
		got := readEvent(t, conn)
		if got.Type != event.BidTimer {
			t.Errorf("event type = %q, want %q", got.Type, event.BidTimer)
		}
	}
}
