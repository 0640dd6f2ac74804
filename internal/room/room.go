// Package room holds the domain model for a cricket player auction room:
// the room aggregate, its roster and membership, bids, per-room player
// sale state and the final team rankings.
package room

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an auction room.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Role is a player's single role tag. A player has exactly one role;
// an all-rounder is counted as an all-rounder only, never additionally
// as a batsman or bowler.
type Role string

const (
	RoleBatsman      Role = "batsman"
	RoleBowler       Role = "bowler"
	RoleAllRounder   Role = "all-rounder"
	RoleWicketKeeper Role = "wicket-keeper"
)

// BattingEligible reports whether the role contributes to batting score.
func (r Role) BattingEligible() bool {
	return r == RoleBatsman || r == RoleAllRounder
}

// BowlingEligible reports whether the role contributes to bowling score.
func (r Role) BowlingEligible() bool {
	return r == RoleBowler || r == RoleAllRounder
}

// Stats is a player's career statistics snapshot.
type Stats struct {
	Matches   int     `json:"matches" db:"matches"`
	Runs      int     `json:"runs" db:"runs"`
	Wickets   int     `json:"wickets" db:"wickets"`
	Catches   int     `json:"catches" db:"catches"`
	Stumpings int     `json:"stumpings" db:"stumpings"`
	Average   float64 `json:"average" db:"average"`
	Economy   float64 `json:"economy" db:"economy"`
}

// Player is a catalog entry in the global player pool. Per-auction sale
// state lives in PlayerState, so the same pool serves many rooms.
type Player struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Age         int       `json:"age" db:"age"`
	Nationality string    `json:"nationality" db:"nationality"`
	Role        Role      `json:"role" db:"role"`
	BasePrice   int64     `json:"base_price" db:"base_price"`
	Stats       Stats     `json:"stats"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// PlayerState is the per-(room, player) auction state. It is created when
// the player joins a roster, mutated by the arbitrator (current price) and
// the progression engine (sale fields), and immutable once sold.
type PlayerState struct {
	RoomID       uuid.UUID  `json:"room_id" db:"room_id"`
	PlayerID     uuid.UUID  `json:"player_id" db:"player_id"`
	BasePrice    int64      `json:"base_price" db:"base_price"`
	CurrentPrice int64      `json:"current_price" db:"current_price"`
	Sold         bool       `json:"sold" db:"sold"`
	SoldTo       *uuid.UUID `json:"sold_to,omitempty" db:"sold_to"`
	SoldPrice    *int64     `json:"sold_price,omitempty" db:"sold_price"`
	Retired      bool       `json:"retired" db:"retired"`
}

// TeamEntry is a team's membership in one room. RemainingBudget is debited
// at settlement time only; bids are provisional until the lot closes.
type TeamEntry struct {
	TeamID          uuid.UUID `json:"team_id" db:"team_id"`
	OwnerID         uuid.UUID `json:"owner_id" db:"owner_id"`
	Name            string    `json:"name" db:"name"`
	RemainingBudget int64     `json:"remaining_budget" db:"remaining_budget"`
	JoinedAt        time.Time `json:"joined_at" db:"joined_at"`
}

// Bid is the current highest bid on the room's open lot.
type Bid struct {
	Amount   int64     `json:"amount"`
	TeamID   uuid.UUID `json:"team_id"`
	BidderID uuid.UUID `json:"bidder_id"`
	At       time.Time `json:"at"`
}

// BidRecord is one entry in a room's append-only bid history.
type BidRecord struct {
	PlayerID uuid.UUID `json:"player_id"`
	Amount   int64     `json:"amount"`
	TeamID   uuid.UUID `json:"team_id"`
	BidderID uuid.UUID `json:"bidder_id"`
	At       time.Time `json:"at"`
}

// Config is a room's auction configuration.
type Config struct {
	MaxTeams        int   `json:"max_teams"`
	MinBidIncrement int64 `json:"min_bid_increment"`
	TimePerBidSec   int   `json:"time_per_bid_sec"`
	TeamBudget      int64 `json:"team_budget"`
}

// Room is the auction room aggregate. Version is a monotonic counter used
// for optimistic concurrency: every mutating write increments it, and
// conditional writes compare against the version the writer read.
type Room struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	AdminID     uuid.UUID   `json:"admin_id"`
	Status      Status      `json:"status"`
	Config      Config      `json:"config"`
	Roster      []uuid.UUID `json:"roster"`
	Teams       []TeamEntry `json:"teams"`

	CurrentPlayerID *uuid.UUID  `json:"current_player_id,omitempty"`
	CurrentBid      *Bid        `json:"current_bid,omitempty"`
	BidHistory      []BidRecord `json:"bid_history"`

	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	WinnerTeamID *uuid.UUID `json:"winner_team_id,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasTeam reports whether the team is a member of the room.
func (r *Room) HasTeam(teamID uuid.UUID) bool {
	for _, t := range r.Teams {
		if t.TeamID == teamID {
			return true
		}
	}
	return false
}

// TeamByOwner returns the member team owned by the given user, if any.
func (r *Room) TeamByOwner(ownerID uuid.UUID) *TeamEntry {
	for i := range r.Teams {
		if r.Teams[i].OwnerID == ownerID {
			return &r.Teams[i]
		}
	}
	return nil
}

// RosterIndex returns the roster position of the player, or -1.
func (r *Room) RosterIndex(playerID uuid.UUID) int {
	for i, id := range r.Roster {
		if id == playerID {
			return i
		}
	}
	return -1
}

// InRoster reports whether the player belongs to the room's roster.
func (r *Room) InRoster(playerID uuid.UUID) bool {
	return r.RosterIndex(playerID) >= 0
}

// Acquisition is one purchased player inside a ranking record.
type Acquisition struct {
	PlayerID      uuid.UUID `json:"player_id"`
	PurchasePrice int64     `json:"purchase_price"`
	Role          Role      `json:"role"`
	Stats         Stats     `json:"stats"`
}

// Composition counts a team's players by role, each player exactly once.
type Composition struct {
	Batsmen       int `json:"batsmen"`
	Bowlers       int `json:"bowlers"`
	AllRounders   int `json:"all_rounders"`
	WicketKeepers int `json:"wicket_keepers"`
}

// Score is the four-part team score. Each part is rounded to the nearest
// integer at the point of computation.
type Score struct {
	Batting  int `json:"batting"`
	Bowling  int `json:"bowling"`
	Fielding int `json:"fielding"`
	Balance  int `json:"balance"`
	Total    int `json:"total"`
}

// Ranking is the per-(room, team) scorecard computed once at auction
// completion. Never mutated after ranks are assigned.
type Ranking struct {
	RoomID          uuid.UUID     `json:"room_id"`
	TeamID          uuid.UUID     `json:"team_id"`
	TotalSpent      int64         `json:"total_spent"`
	RemainingBudget int64         `json:"remaining_budget"`
	Acquisitions    []Acquisition `json:"acquisitions"`
	Composition     Composition   `json:"composition"`
	Score           Score         `json:"score"`
	Rank            int           `json:"rank"`
	CreatedAt       time.Time     `json:"created_at"`
}
