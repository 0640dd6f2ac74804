package notify

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cricketauction/auctiond/internal/event"
	"github.com/cricketauction/auctiond/internal/room"
	"github.com/cricketauction/auctiond/internal/store"
	"github.com/cricketauction/auctiond/internal/store/memstore"
)

func newTestAnnouncer(t *testing.T) (*Announcer, *store.Repositories) {
	t.Helper()
	repos := memstore.Open()
	a := &Announcer{
		channelID: "channel",
		repos:     repos,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return a, repos
}

func TestFormatPlayerSold(t *testing.T) {
	a, repos := newTestAnnouncer(t)
	ctx := context.Background()

	player := &room.Player{ID: uuid.New(), Name: "V Sharma", Role: room.RoleBatsman, BasePrice: 100_000}
	if err := repos.Players.Create(ctx, player); err != nil {
		t.Fatalf("creating player: %v", err)
	}
	team := &store.Team{ID: uuid.New(), Name: "Team A", OwnerID: uuid.New()}
	if err := repos.Teams.Create(ctx, team); err != nil {
		t.Fatalf("creating team: %v", err)
	}

	price := int64(450_000)
	e, err := event.New(uuid.New(), event.PlayerSold, 4, event.PlayerSoldData{
		PrevPlayerID: player.ID,
		SoldTo:       &team.ID,
		SoldPrice:    &price,
	})
	if err != nil {
		t.Fatalf("building event: %v", err)
	}

	msg, err := a.format(ctx, e)
	if err != nil {
		t.Fatalf("formatting: %v", err)
	}
	want := "V Sharma sold to Team A for 450000."
	if msg != want {
		t.Errorf("expected %q, got %q", want, msg)
	}
}

func TestFormatUnsoldPlayer(t *testing.T) {
	a, repos := newTestAnnouncer(t)
	ctx := context.Background()

	player := &room.Player{ID: uuid.New(), Name: "R Patel", Role: room.RoleBowler, BasePrice: 100_000}
	if err := repos.Players.Create(ctx, player); err != nil {
		t.Fatalf("creating player: %v", err)
	}

	e, err := event.New(uuid.New(), event.PlayerSold, 4, event.PlayerSoldData{
		PrevPlayerID: player.ID,
	})
	if err != nil {
		t.Fatalf("building event: %v", err)
	}

	msg, err := a.format(ctx, e)
	if err != nil {
		t.Fatalf("formatting: %v", err)
	}
	if msg != "R Patel went unsold." {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestFormatRankingsNamesWinner(t *testing.T) {
	a, repos := newTestAnnouncer(t)
	ctx := context.Background()

	first := &store.Team{ID: uuid.New(), Name: "Team A", OwnerID: uuid.New()}
	second := &store.Team{ID: uuid.New(), Name: "Team B", OwnerID: uuid.New()}
	for _, tm := range []*store.Team{first, second} {
		if err := repos.Teams.Create(ctx, tm); err != nil {
			t.Fatalf("creating team: %v", err)
		}
	}

	e, err := event.New(uuid.New(), event.TeamRankings, 9, event.TeamRankingsData{
		Rankings: []event.RankingLine{
			{TeamID: first.ID, Rank: 1, TotalScore: 900, TotalSpent: 600_000},
			{TeamID: second.ID, Rank: 2, TotalScore: 400, TotalSpent: 300_000},
		},
		WinnerTeamID: first.ID,
	})
	if err != nil {
		t.Fatalf("building event: %v", err)
	}

	msg, err := a.format(ctx, e)
	if err != nil {
		t.Fatalf("formatting: %v", err)
	}
	if !strings.Contains(msg, "1. Team A") || !strings.Contains(msg, "2. Team B") {
		t.Errorf("standings missing from %q", msg)
	}
	if !strings.HasSuffix(msg, "Winner: Team A") {
		t.Errorf("winner line missing from %q", msg)
	}
}

func TestFormatIgnoresChatAndTimerEvents(t *testing.T) {
	a, _ := newTestAnnouncer(t)
	ctx := context.Background()

	for _, e := range []event.Event{
		mustEvent(t, event.BidTimer, event.BidTimerData{SecondsRemaining: 5}),
		mustEvent(t, event.ChatMessage, event.ChatMessageData{
			SenderName: "viewer", Message: "hello", SentAt: time.Now(),
		}),
	} {
		msg, err := a.format(ctx, e)
		if err != nil {
			t.Fatalf("formatting %s: %v", e.Type, err)
		}
		if msg != "" {
			t.Errorf("expected no announcement for %s, got %q", e.Type, msg)
		}
	}
}

func mustEvent(t *testing.T, kind event.Type, payload any) event.Event {
	t.Helper()
	e, err := event.New(uuid.New(), kind, 1, payload)
	if err != nil {
		t.Fatalf("building %s event: %v", kind, err)
	}
	return e
}
