package postgres_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cricketauction/auctiond/internal/room"
	"github.com/cricketauction/auctiond/internal/store"
	"github.com/cricketauction/auctiond/internal/store/postgres"
)

func newRoom() *room.Room {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &room.Room{
		ID:      uuid.New(),
		Name:    "integration room",
		AdminID: uuid.New(),
		Status:  room.StatusWaiting,
		Config: room.Config{
			MaxTeams:        8,
			MinBidIncrement: 50_000,
			TimePerBidSec:   30,
			TeamBudget:      10_000_000,
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestRoomRepoRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewRoomRepo(db)
	ctx := context.Background()

	r := newRoom()
	playerID := uuid.New()
	r.Roster = []uuid.UUID{playerID}
	if err := repo.Create(ctx, r); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != r.Name || got.Version != 1 {
		t.Errorf("got name=%q version=%d", got.Name, got.Version)
	}
	if len(got.Roster) != 1 || got.Roster[0] != playerID {
		t.Errorf("roster not preserved: %v", got.Roster)
	}
	if got.Config.MinBidIncrement != 50_000 {
		t.Errorf("config not preserved: %+v", got.Config)
	}

	if _, err := repo.Get(ctx, uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown room error = %v, want ErrNotFound", err)
	}
}

func TestRoomRepoWriteIf(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewRoomRepo(db)
	ctx := context.Background()

	r := newRoom()
	if err := repo.Create(ctx, r); err != nil {
		t.Fatalf("Create: %v", err)
	}

	r.Status = room.StatusActive
	if err := repo.WriteIf(ctx, r, 1); err != nil {
		t.Fatalf("WriteIf: %v", err)
	}
	if r.Version != 2 {
		t.Errorf("caller version = %d, want 2", r.Version)
	}

	got, err := repo.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != room.StatusActive || got.Version != 2 {
		t.Errorf("stored status=%q version=%d", got.Status, got.Version)
	}

	// Stale version loses.
	stale := newRoom()
	stale.ID = r.ID
	if err := repo.WriteIf(ctx, stale, 1); !errors.Is(err, store.ErrConflict) {
		t.Errorf("stale WriteIf error = %v, want ErrConflict", err)
	}

	// Unknown room is reported as such, not as a conflict.
	missing := newRoom()
	if err := repo.WriteIf(ctx, missing, 1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing WriteIf error = %v, want ErrNotFound", err)
	}
}

func TestRoomRepoConcurrentWriteIf(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewRoomRepo(db)
	ctx := context.Background()

	r := newRoom()
	if err := repo.Create(ctx, r); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			local, err := repo.Get(ctx, r.ID)
			if err != nil {
				errs[i] = err
				return
			}
			local.Description = "winner"
			errs[i] = repo.WriteIf(ctx, local, 1)
		}(i)
	}
	wg.Wait()

	commits := 0
	for _, err := range errs {
		switch {
		case err == nil:
			commits++
		case errors.Is(err, store.ErrConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if commits != 1 {
		t.Errorf("commits = %d, want exactly 1", commits)
	}
}

func TestRoomRepoListByStatus(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewRoomRepo(db)
	ctx := context.Background()

	active := newRoom()
	active.Status = room.StatusActive
	waiting := newRoom()
	for _, r := range []*room.Room{active, waiting} {
		if err := repo.Create(ctx, r); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	got, err := repo.ListByStatus(ctx, room.StatusActive)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(got) != 1 || got[0].ID != active.ID {
		t.Errorf("ListByStatus returned %d rooms", len(got))
	}
}
