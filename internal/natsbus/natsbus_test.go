package natsbus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/cricketauction/auctiond/internal/event"
)

type capturePublisher struct {
	events []event.Event
}

func (p *capturePublisher) Publish(_ context.Context, e event.Event) error {
	p.events = append(p.events, e)
	return nil
}

func TestRelayForwardsToLocalPublisher(t *testing.T) {
	local := &capturePublisher{}
	b := &Bus{
		prefix: "auction.room",
		local:  local,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	roomID := uuid.New()
	in, err := event.New(roomID, event.NewBid, 3, event.NewBidData{
		RoomID:     roomID,
		PlayerID:   uuid.New(),
		TeamID:     uuid.New(),
		BidderName: "Team A",
		Amount:     250_000,
	})
	if err != nil {
		t.Fatalf("building event: %v", err)
	}
	in.ID = uuid.NewString()

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshalling event: %v", err)
	}
	b.relay(&nats.Msg{Subject: "auction.room." + roomID.String(), Data: data})

	if len(local.events) != 1 {
		t.Fatalf("expected 1 relayed event, got %d", len(local.events))
	}
	got := local.events[0]
	if got.RoomID != roomID {
		t.Errorf("expected room %s, got %s", roomID, got.RoomID)
	}
	if got.Type != event.NewBid {
		t.Errorf("expected type %s, got %s", event.NewBid, got.Type)
	}
	if got.Version != 3 {
		t.Errorf("expected version 3, got %d", got.Version)
	}
}

func TestRelayDropsMalformedPayload(t *testing.T) {
	local := &capturePublisher{}
	b := &Bus{
		prefix: "auction.room",
		local:  local,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	b.relay(&nats.Msg{Subject: "auction.room.bogus", Data: []byte("not json")})

	if len(local.events) != 0 {
		t.Fatalf("expected no relayed events, got %d", len(local.events))
	}
}
