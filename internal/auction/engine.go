package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cricketauction/auctiond/internal/config"
	"github.com/cricketauction/auctiond/internal/event"
	"github.com/cricketauction/auctiond/internal/room"
	"github.com/cricketauction/auctiond/internal/store"
)

// Engine coordinates room lifecycle, bid arbitration and settlement.
// All room mutations go through conditional writes on the room version;
// the engine holds no lock across I/O.
type Engine struct {
	rooms    store.RoomRepository
	players  store.PlayerRepository
	teams    store.TeamRepository
	rankings store.RankingRepository
	journal  event.Store

	publisher event.Publisher
	timers    Countdown
	clock     clockwork.Clock
	defaults  config.AuctionConfig
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewEngine creates an auction engine. Bind the countdown manager with
// SetCountdown before serving commands.
func NewEngine(repos *store.Repositories, publisher event.Publisher, defaults config.AuctionConfig, logger *slog.Logger, tp trace.TracerProvider, clk clockwork.Clock) *Engine {
	return &Engine{
		rooms:     repos.Rooms,
		players:   repos.Players,
		teams:     repos.Teams,
		rankings:  repos.Rankings,
		journal:   repos.Events,
		publisher: publisher,
		clock:     clk,
		defaults:  defaults,
		logger:    logger,
		tracer:    tp.Tracer("github.com/cricketauction/auctiond/internal/auction"),
	}
}

// SetCountdown binds the countdown manager. The manager's expiry
// callback points back at SettleExpired, so the two are wired after
// construction.
func (e *Engine) SetCountdown(c Countdown) {
	e.timers = c
}

// CreateRoomParams describes a new room. Zero-valued config fields fall
// back to the configured defaults.
type CreateRoomParams struct {
	Name        string
	Description string
	AdminID     uuid.UUID

	MaxTeams        int
	MinBidIncrement int64
	TimePerBidSec   int
	TeamBudget      int64
}

// CreateRoom creates a room in the waiting state.
func (e *Engine) CreateRoom(ctx context.Context, p CreateRoomParams) (*room.Room, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.CreateRoom",
		trace.WithAttributes(attribute.String("room.name", p.Name)),
	)
	defer span.End()

	cfg := room.Config{
		MaxTeams:        p.MaxTeams,
		MinBidIncrement: p.MinBidIncrement,
		TimePerBidSec:   p.TimePerBidSec,
		TeamBudget:      p.TeamBudget,
	}
	if cfg.MaxTeams == 0 {
		cfg.MaxTeams = e.defaults.MaxTeams
	}
	if cfg.MinBidIncrement == 0 {
		cfg.MinBidIncrement = e.defaults.MinBidIncrement
	}
	if cfg.TimePerBidSec == 0 {
		cfg.TimePerBidSec = e.defaults.TimePerBidSec
	}
	if cfg.TeamBudget == 0 {
		cfg.TeamBudget = e.defaults.TeamBudget
	}

	now := e.clock.Now().UTC()
	r := &room.Room{
		ID:          uuid.New(),
		Name:        p.Name,
		Description: p.Description,
		AdminID:     p.AdminID,
		Status:      room.StatusWaiting,
		Config:      cfg,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.rooms.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("creating room: %w", err)
	}

	e.logger.InfoContext(ctx, "room created",
		slog.String("room_id", r.ID.String()),
		slog.String("name", r.Name),
	)
	return r, nil
}

// GetRoom returns the current room aggregate.
func (e *Engine) GetRoom(ctx context.Context, id uuid.UUID) (*room.Room, error) {
	return e.rooms.Get(ctx, id)
}

// AddPlayers appends players from the catalog to the room's roster, in
// the given order. Players already rostered are skipped. Only allowed
// while the room is waiting.
func (e *Engine) AddPlayers(ctx context.Context, roomID, adminID uuid.UUID, playerIDs []uuid.UUID) (*room.Room, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.AddPlayers",
		trace.WithAttributes(
			attribute.String("room_id", roomID.String()),
			attribute.Int("players", len(playerIDs)),
		),
	)
	defer span.End()

	r, err := e.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if r.AdminID != adminID {
		return nil, ErrNotAdmin
	}
	if r.Status != room.StatusWaiting {
		return nil, ErrRoomNotWaiting
	}

	readVersion := r.Version
	var seeds []room.PlayerState
	for _, id := range playerIDs {
		if r.InRoster(id) {
			continue
		}
		p, err := e.players.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolving player %s: %w", id, err)
		}
		r.Roster = append(r.Roster, p.ID)
		seeds = append(seeds, room.PlayerState{
			RoomID:       r.ID,
			PlayerID:     p.ID,
			BasePrice:    p.BasePrice,
			CurrentPrice: p.BasePrice,
		})
	}
	if len(seeds) == 0 {
		return r, nil
	}

	r.UpdatedAt = e.clock.Now().UTC()
	if err := e.rooms.WriteIf(ctx, r, readVersion); err != nil {
		return nil, fmt.Errorf("writing roster: %w", err)
	}
	if err := e.players.SeedStates(ctx, seeds); err != nil {
		return nil, fmt.Errorf("seeding player states: %w", err)
	}

	e.logger.InfoContext(ctx, "roster extended",
		slog.String("room_id", r.ID.String()),
		slog.Int("added", len(seeds)),
		slog.Int("roster_size", len(r.Roster)),
	)
	return r, nil
}

// JoinRoom enrolls the user's team in the room, creating the team entity
// if the user has none yet. The team's room budget is seeded from the
// room config.
func (e *Engine) JoinRoom(ctx context.Context, roomID, userID uuid.UUID, teamName string) (*room.Room, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.JoinRoom",
		trace.WithAttributes(
			attribute.String("room_id", roomID.String()),
			attribute.String("user_id", userID.String()),
		),
	)
	defer span.End()

	r, err := e.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if r.Status != room.StatusWaiting {
		return nil, ErrRoomNotWaiting
	}
	if r.TeamByOwner(userID) != nil {
		return nil, ErrAlreadyJoined
	}
	if len(r.Teams) >= r.Config.MaxTeams {
		return nil, ErrRoomFull
	}

	team, err := e.resolveTeam(ctx, userID, teamName)
	if err != nil {
		return nil, err
	}
	if r.HasTeam(team.ID) {
		return nil, ErrAlreadyJoined
	}

	readVersion := r.Version
	now := e.clock.Now().UTC()
	r.Teams = append(r.Teams, room.TeamEntry{
		TeamID:          team.ID,
		OwnerID:         userID,
		Name:            team.Name,
		RemainingBudget: r.Config.TeamBudget,
		JoinedAt:        now,
	})
	r.UpdatedAt = now
	if err := e.rooms.WriteIf(ctx, r, readVersion); err != nil {
		return nil, fmt.Errorf("writing membership: %w", err)
	}

	e.emit(ctx, r.ID, event.UserJoined, r.Version, event.UserJoinedData{
		UserID:   userID,
		Username: team.Name,
	})
	e.logger.InfoContext(ctx, "team joined room",
		slog.String("room_id", r.ID.String()),
		slog.String("team_id", team.ID.String()),
	)
	return r, nil
}

// resolveTeam finds the user's team or creates one with the given name.
func (e *Engine) resolveTeam(ctx context.Context, ownerID uuid.UUID, name string) (*store.Team, error) {
	team, err := e.teams.GetByOwner(ctx, ownerID)
	if err == nil {
		return team, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("resolving team: %w", err)
	}

	if name == "" {
		name = fmt.Sprintf("team-%s", ownerID.String()[:8])
	}
	team = &store.Team{
		ID:        uuid.New(),
		Name:      name,
		OwnerID:   ownerID,
		CreatedAt: e.clock.Now().UTC(),
	}
	if err := e.teams.Create(ctx, team); err != nil {
		return nil, fmt.Errorf("creating team: %w", err)
	}
	return team, nil
}

// StartAuction moves the room from waiting to active, opens bidding on
// the first roster entry and starts the countdown. If the room is one
// team short of the two-team minimum, the admin's own team is enrolled
// to make up the difference.
func (e *Engine) StartAuction(ctx context.Context, roomID, adminID uuid.UUID) (*room.Room, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.StartAuction",
		trace.WithAttributes(attribute.String("room_id", roomID.String())),
	)
	defer span.End()

	r, err := e.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if r.AdminID != adminID {
		return nil, ErrNotAdmin
	}
	if r.Status != room.StatusWaiting {
		return nil, ErrRoomNotWaiting
	}
	if len(r.Roster) == 0 {
		return nil, ErrEmptyRoster
	}

	readVersion := r.Version
	now := e.clock.Now().UTC()

	if len(r.Teams) == 1 && r.TeamByOwner(adminID) == nil {
		team, err := e.resolveTeam(ctx, adminID, "")
		if err != nil {
			return nil, err
		}
		r.Teams = append(r.Teams, room.TeamEntry{
			TeamID:          team.ID,
			OwnerID:         adminID,
			Name:            team.Name,
			RemainingBudget: r.Config.TeamBudget,
			JoinedAt:        now,
		})
		e.logger.InfoContext(ctx, "admin team auto-enrolled",
			slog.String("room_id", r.ID.String()),
			slog.String("team_id", team.ID.String()),
		)
	}
	if len(r.Teams) < 2 {
		return nil, ErrNotEnoughTeams
	}

	first := r.Roster[0]
	r.Status = room.StatusActive
	r.CurrentPlayerID = &first
	r.CurrentBid = nil
	r.StartTime = now
	r.UpdatedAt = now
	if err := e.rooms.WriteIf(ctx, r, readVersion); err != nil {
		return nil, fmt.Errorf("activating room: %w", err)
	}

	e.emit(ctx, r.ID, event.AuctionStarted, r.Version, event.AuctionStartedData{
		RoomID:          r.ID,
		CurrentPlayerID: first,
		RosterSize:      len(r.Roster),
		TimePerBidSec:   r.Config.TimePerBidSec,
		StartedAt:       now,
	})
	e.timers.Start(ctx, r.ID, r.Version, r.Config.TimePerBidSec)

	e.logger.InfoContext(ctx, "auction started",
		slog.String("room_id", r.ID.String()),
		slog.Int("roster_size", len(r.Roster)),
		slog.Int("teams", len(r.Teams)),
	)
	return r, nil
}

// Cancel stops the auction from waiting or active. From a finished room
// it fails with ErrRoomFinished. Once cancelled no further settlement
// can touch the room.
func (e *Engine) Cancel(ctx context.Context, roomID, adminID uuid.UUID) (*room.Room, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Cancel",
		trace.WithAttributes(attribute.String("room_id", roomID.String())),
	)
	defer span.End()

	for {
		r, err := e.rooms.Get(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if r.AdminID != adminID {
			return nil, ErrNotAdmin
		}
		if r.Status == room.StatusCompleted || r.Status == room.StatusCancelled {
			return nil, ErrRoomFinished
		}

		readVersion := r.Version
		now := e.clock.Now().UTC()
		r.Status = room.StatusCancelled
		r.EndTime = &now
		r.CurrentBid = nil
		r.UpdatedAt = now
		err = e.rooms.WriteIf(ctx, r, readVersion)
		if errors.Is(err, store.ErrConflict) {
			// Lost a race against a bid or settlement; re-read and retry.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("cancelling room: %w", err)
		}

		e.timers.Stop(r.ID)
		e.logger.InfoContext(ctx, "auction cancelled",
			slog.String("room_id", r.ID.String()),
		)
		return r, nil
	}
}

// Resume re-arms countdowns for rooms that were active when the process
// last stopped. Countdowns are process-local, so each open lot restarts
// from the full per-bid duration.
func (e *Engine) Resume(ctx context.Context) error {
	rs, err := e.rooms.ListByStatus(ctx, room.StatusActive)
	if err != nil {
		return fmt.Errorf("listing active rooms: %w", err)
	}
	for i := range rs {
		r := &rs[i]
		e.timers.Start(ctx, r.ID, r.Version, r.Config.TimePerBidSec)
		e.logger.InfoContext(ctx, "countdown re-armed after restart",
			slog.String("room_id", r.ID.String()),
		)
	}
	return nil
}

// emit journals and broadcasts one event. Neither failure aborts the
// surrounding operation; the room aggregate is the source of truth.
func (e *Engine) emit(ctx context.Context, roomID uuid.UUID, kind event.Type, version int64, payload any) {
	ev, err := event.New(roomID, kind, version, payload)
	if err != nil {
		e.logger.ErrorContext(ctx, "encoding event",
			slog.String("type", string(kind)), slog.Any("error", err))
		return
	}
	ev.ID = uuid.NewString()
	ev.CreatedAt = e.clock.Now().UTC()

	if err := e.journal.Append(ctx, ev); err != nil {
		e.logger.ErrorContext(ctx, "journaling event",
			slog.String("type", string(kind)), slog.Any("error", err))
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.ErrorContext(ctx, "publishing event",
			slog.String("type", string(kind)), slog.Any("error", err))
	}
}
