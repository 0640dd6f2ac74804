package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cricketauction/auctiond/internal/room"
)

// Errors returned by repositories.
var (
	// ErrNotFound is returned when a room, player or team does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional write loses a version race.
	// It is retryable: the caller must re-read fresh state before resubmitting.
	ErrConflict = errors.New("version conflict")
)

// Team is a global team entity. Per-room membership and budget live on the
// room aggregate (room.TeamEntry).
type Team struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	OwnerID   uuid.UUID `json:"owner_id" db:"owner_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RoomRepository persists room aggregates. The engine treats it as a
// transactional key-value store keyed by room id: reads return the stored
// version, and writes are conditional on it.
type RoomRepository interface {
	Create(ctx context.Context, r *room.Room) error
	Get(ctx context.Context, id uuid.UUID) (*room.Room, error)
	// WriteIf persists r conditioned on the stored version still being
	// readVersion. On success the stored version becomes readVersion+1
	// (reflected in r.Version). Returns ErrConflict when a concurrent
	// writer won the race; nothing is written in that case.
	WriteIf(ctx context.Context, r *room.Room, readVersion int64) error
	ListByStatus(ctx context.Context, status room.Status) ([]room.Room, error)
}

// PlayerRepository persists the player catalog and per-room sale state.
type PlayerRepository interface {
	Create(ctx context.Context, p *room.Player) error
	Get(ctx context.Context, id uuid.UUID) (*room.Player, error)
	List(ctx context.Context) ([]room.Player, error)

	// SeedStates creates the per-room state rows for newly rostered players.
	SeedStates(ctx context.Context, states []room.PlayerState) error
	GetState(ctx context.Context, roomID, playerID uuid.UUID) (*room.PlayerState, error)
	// WriteCurrentPrice updates the running price while a lot is open.
	WriteCurrentPrice(ctx context.Context, roomID, playerID uuid.UUID, price int64) error
	// WriteSaleState records a settlement outcome. Implementations must
	// refuse to overwrite a state that is already sold.
	WriteSaleState(ctx context.Context, st *room.PlayerState) error
	ListStates(ctx context.Context, roomID uuid.UUID) ([]room.PlayerState, error)
}

// TeamRepository persists team entities and resolves ownership. Bidders are
// resolved by team ownership, never by a client-supplied team id.
type TeamRepository interface {
	Create(ctx context.Context, t *Team) error
	Get(ctx context.Context, id uuid.UUID) (*Team, error)
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*Team, error)
	GetByName(ctx context.Context, name string) (*Team, error)
}

// RankingRepository persists the per-team scorecards computed at completion.
type RankingRepository interface {
	Save(ctx context.Context, rankings []room.Ranking) error
	ListByRoom(ctx context.Context, roomID uuid.UUID) ([]room.Ranking, error)
}
