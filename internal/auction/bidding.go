package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cricketauction/auctiond/internal/event"
	"github.com/cricketauction/auctiond/internal/room"
	"github.com/cricketauction/auctiond/internal/store"
)

// BidRequest is one inbound bid. The bidder's team is resolved from
// room membership by ownership; clients never supply a team id.
type BidRequest struct {
	RoomID   uuid.UUID
	PlayerID uuid.UUID
	BidderID uuid.UUID
	Amount   int64
}

// PlaceBid validates and commits a bid against the room's current lot.
// Preconditions are checked in order and the first failure wins: room
// active, bid is for the current player, bidder owns a member team,
// amount beats the reference price, amount clears the increment. The
// commit is conditional on the room version read at validation; losing
// the race returns store.ErrConflict and the caller must re-read before
// resubmitting.
func (e *Engine) PlaceBid(ctx context.Context, req BidRequest) (*room.Bid, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.PlaceBid",
		trace.WithAttributes(
			attribute.String("room_id", req.RoomID.String()),
			attribute.String("player_id", req.PlayerID.String()),
			attribute.Int64("amount", req.Amount),
		),
	)
	defer span.End()

	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	r, err := e.rooms.Get(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	readVersion := r.Version

	if r.Status != room.StatusActive {
		return nil, ErrRoomNotActive
	}
	if r.CurrentPlayerID == nil || *r.CurrentPlayerID != req.PlayerID {
		return nil, ErrWrongPlayer
	}
	team := r.TeamByOwner(req.BidderID)
	if team == nil {
		return nil, ErrNotMember
	}

	reference, err := e.referenceAmount(ctx, r)
	if err != nil {
		return nil, err
	}
	if req.Amount <= reference {
		return nil, ErrBidTooLow
	}
	if req.Amount < reference+r.Config.MinBidIncrement {
		return nil, ErrBelowIncrement
	}

	now := e.clock.Now().UTC()
	bid := room.Bid{
		Amount:   req.Amount,
		TeamID:   team.TeamID,
		BidderID: req.BidderID,
		At:       now,
	}
	r.CurrentBid = &bid
	r.BidHistory = append(r.BidHistory, room.BidRecord{
		PlayerID: req.PlayerID,
		Amount:   req.Amount,
		TeamID:   team.TeamID,
		BidderID: req.BidderID,
		At:       now,
	})
	r.UpdatedAt = now
	if err := e.rooms.WriteIf(ctx, r, readVersion); err != nil {
		return nil, fmt.Errorf("committing bid: %w", err)
	}

	if err := e.players.WriteCurrentPrice(ctx, r.ID, req.PlayerID, req.Amount); err != nil {
		e.logger.ErrorContext(ctx, "writing current price",
			slog.String("room_id", r.ID.String()),
			slog.String("player_id", req.PlayerID.String()),
			slog.Any("error", err),
		)
	}

	e.timers.Reset(ctx, r.ID, r.Version, r.Config.TimePerBidSec)
	e.emit(ctx, r.ID, event.NewBid, r.Version, event.NewBidData{
		RoomID:     r.ID,
		PlayerID:   req.PlayerID,
		Amount:     req.Amount,
		TeamID:     team.TeamID,
		BidderName: team.Name,
		Timestamp:  now,
	})

	e.logger.InfoContext(ctx, "bid accepted",
		slog.String("room_id", r.ID.String()),
		slog.String("team_id", team.TeamID.String()),
		slog.Int64("amount", req.Amount),
	)
	return &bid, nil
}

// referenceAmount is the price a new bid must climb from: the current
// bid if one exists, otherwise the lot's base price.
func (e *Engine) referenceAmount(ctx context.Context, r *room.Room) (int64, error) {
	if r.CurrentBid != nil {
		return r.CurrentBid.Amount, nil
	}
	st, err := e.players.GetState(ctx, r.ID, *r.CurrentPlayerID)
	if err != nil {
		return 0, fmt.Errorf("reading lot state: %w", err)
	}
	return st.BasePrice, nil
}

// SettleExpired is the countdown expiry callback. It closes bidding on
// the room's current lot, records the sale if a bid stands, and either
// opens the next lot or completes the room. A version conflict means a
// bid or cancellation superseded this countdown; the settlement no-ops.
func (e *Engine) SettleExpired(ctx context.Context, roomID uuid.UUID) {
	ctx, span := e.tracer.Start(ctx, "Engine.SettleExpired",
		trace.WithAttributes(attribute.String("room_id", roomID.String())),
	)
	defer span.End()

	if err := e.settle(ctx, roomID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			e.logger.InfoContext(ctx, "settlement superseded by a newer write",
				slog.String("room_id", roomID.String()))
			return
		}
		e.logger.ErrorContext(ctx, "settlement failed",
			slog.String("room_id", roomID.String()),
			slog.Any("error", err),
		)
	}
}

func (e *Engine) settle(ctx context.Context, roomID uuid.UUID) error {
	r, err := e.rooms.Get(ctx, roomID)
	if err != nil {
		return fmt.Errorf("reading room: %w", err)
	}
	if r.Status != room.StatusActive {
		// Cancelled or completed while the expiry was in flight.
		return nil
	}
	if r.CurrentPlayerID == nil {
		return nil
	}
	readVersion := r.Version

	idx := r.RosterIndex(*r.CurrentPlayerID)
	if idx < 0 {
		return e.recoverPointer(ctx, r, readVersion)
	}

	prev := *r.CurrentPlayerID
	bid := r.CurrentBid
	now := e.clock.Now().UTC()

	var soldTo *uuid.UUID
	var soldPrice *int64
	if bid != nil {
		teamID := bid.TeamID
		price := bid.Amount
		soldTo = &teamID
		soldPrice = &price
		for i := range r.Teams {
			if r.Teams[i].TeamID == teamID {
				r.Teams[i].RemainingBudget -= price
				break
			}
		}
	}

	var next *uuid.UUID
	if idx+1 < len(r.Roster) {
		n := r.Roster[idx+1]
		next = &n
		r.CurrentPlayerID = &n
	} else {
		r.Status = room.StatusCompleted
		r.CurrentPlayerID = nil
		r.EndTime = &now
	}
	r.CurrentBid = nil
	r.UpdatedAt = now
	if err := e.rooms.WriteIf(ctx, r, readVersion); err != nil {
		return err
	}

	if err := e.recordSale(ctx, r.ID, prev, soldTo, soldPrice); err != nil {
		e.logger.ErrorContext(ctx, "recording sale state",
			slog.String("room_id", r.ID.String()),
			slog.String("player_id", prev.String()),
			slog.Any("error", err),
		)
	}

	e.emit(ctx, r.ID, event.PlayerSold, r.Version, event.PlayerSoldData{
		RoomID:       r.ID,
		PrevPlayerID: prev,
		SoldTo:       soldTo,
		SoldPrice:    soldPrice,
		NextPlayerID: next,
	})
	e.logger.InfoContext(ctx, "lot settled",
		slog.String("room_id", r.ID.String()),
		slog.String("player_id", prev.String()),
		slog.Bool("sold", soldTo != nil),
	)

	if r.Status == room.StatusActive {
		e.timers.Start(ctx, r.ID, r.Version, r.Config.TimePerBidSec)
		return nil
	}

	e.timers.Stop(r.ID)
	return e.finalize(ctx, r)
}

// recoverPointer handles a current-player id that is not in the roster.
// The room restarts from the first roster entry instead of crashing. A
// corrupt room with no roster at all has nothing to restart from, so
// bidding is closed and the pointer cleared; the admin can still cancel.
func (e *Engine) recoverPointer(ctx context.Context, r *room.Room, readVersion int64) error {
	e.logger.WarnContext(ctx, "current player not in roster, resetting to first entry",
		slog.String("room_id", r.ID.String()),
		slog.String("player_id", r.CurrentPlayerID.String()),
	)
	if len(r.Roster) == 0 {
		r.CurrentPlayerID = nil
		r.CurrentBid = nil
		r.UpdatedAt = e.clock.Now().UTC()
		if err := e.rooms.WriteIf(ctx, r, readVersion); err != nil {
			return err
		}
		e.timers.Stop(r.ID)
		return nil
	}
	first := r.Roster[0]
	r.CurrentPlayerID = &first
	r.CurrentBid = nil
	r.UpdatedAt = e.clock.Now().UTC()
	if err := e.rooms.WriteIf(ctx, r, readVersion); err != nil {
		return err
	}
	e.timers.Start(ctx, r.ID, r.Version, r.Config.TimePerBidSec)
	return nil
}

// recordSale writes the terminal player state for a settled lot. An
// unsold lot produces no sale record; with retirement enabled it is
// marked inactive for the room instead of staying re-auctionable.
func (e *Engine) recordSale(ctx context.Context, roomID, playerID uuid.UUID, soldTo *uuid.UUID, soldPrice *int64) error {
	if soldTo == nil && !e.defaults.RetireUnsold {
		return nil
	}
	st, err := e.players.GetState(ctx, roomID, playerID)
	if err != nil {
		return fmt.Errorf("reading lot state: %w", err)
	}
	if soldTo != nil {
		st.Sold = true
		st.SoldTo = soldTo
		st.SoldPrice = soldPrice
		st.CurrentPrice = *soldPrice
	} else {
		st.Retired = true
	}
	return e.players.WriteSaleState(ctx, st)
}

// finalize computes and persists the team rankings for a completed room
// and stamps the winner.
func (e *Engine) finalize(ctx context.Context, r *room.Room) error {
	states, err := e.players.ListStates(ctx, r.ID)
	if err != nil {
		return fmt.Errorf("listing player states: %w", err)
	}
	catalog := make(map[uuid.UUID]room.Player)
	for _, st := range states {
		if !st.Sold {
			continue
		}
		p, err := e.players.Get(ctx, st.PlayerID)
		if err != nil {
			return fmt.Errorf("resolving player %s: %w", st.PlayerID, err)
		}
		catalog[p.ID] = *p
	}

	rankings := ComputeRankings(r, catalog, states, e.clock.Now().UTC())
	if err := e.rankings.Save(ctx, rankings); err != nil {
		return fmt.Errorf("saving rankings: %w", err)
	}

	winner := rankings[0].TeamID
	readVersion := r.Version
	r.WinnerTeamID = &winner
	r.UpdatedAt = e.clock.Now().UTC()
	if err := e.rooms.WriteIf(ctx, r, readVersion); err != nil {
		return fmt.Errorf("stamping winner: %w", err)
	}

	e.emit(ctx, r.ID, event.AuctionCompleted, r.Version, event.AuctionCompletedData{
		RoomID:      r.ID,
		CompletedAt: *r.EndTime,
	})

	lines := make([]event.RankingLine, 0, len(rankings))
	for _, rk := range rankings {
		lines = append(lines, event.RankingLine{
			TeamID:          rk.TeamID,
			Rank:            rk.Rank,
			TotalScore:      rk.Score.Total,
			TotalSpent:      rk.TotalSpent,
			RemainingBudget: rk.RemainingBudget,
		})
	}
	e.emit(ctx, r.ID, event.TeamRankings, r.Version, event.TeamRankingsData{
		RoomID:       r.ID,
		Rankings:     lines,
		WinnerTeamID: winner,
	})

	e.logger.InfoContext(ctx, "auction completed",
		slog.String("room_id", r.ID.String()),
		slog.String("winner_team_id", winner.String()),
	)
	return nil
}
