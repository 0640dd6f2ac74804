// Package event defines the typed events the auction engine emits, the
// publish primitive used to fan them out to room participants, and the
// journal that records them.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type identifies an event kind.
type Type string

const (
	NewBid           Type = "new-bid"
	BidTimer         Type = "bid-timer"
	AuctionStarted   Type = "auction-started"
	PlayerSold       Type = "player-sold"
	AuctionCompleted Type = "auction-completed"
	TeamRankings     Type = "team-rankings"

	RoomJoined  Type = "room-joined"
	UserJoined  Type = "user-joined"
	ChatMessage Type = "chat-message"
	Error       Type = "error"
)

// Event is the envelope sent over the broadcast boundary and stored in the
// journal. Data always holds one of the payload structs below, never an
// untyped map.
type Event struct {
	ID        string          `json:"id" db:"id"`
	RoomID    uuid.UUID       `json:"room_id" db:"room_id"`
	Type      Type            `json:"type" db:"type"`
	Data      json.RawMessage `json:"data" db:"data"`
	Version   int64           `json:"version" db:"version"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// New builds an envelope around a typed payload.
func New(roomID uuid.UUID, kind Type, version int64, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshalling %s payload: %w", kind, err)
	}
	return Event{
		RoomID:  roomID,
		Type:    kind,
		Data:    data,
		Version: version,
	}, nil
}

// NewBidData is the payload for NewBid events.
type NewBidData struct {
	RoomID     uuid.UUID `json:"room_id"`
	PlayerID   uuid.UUID `json:"player_id"`
	Amount     int64     `json:"amount"`
	TeamID     uuid.UUID `json:"team_id"`
	BidderName string    `json:"bidder_name"`
	Timestamp  time.Time `json:"timestamp"`
}

// BidTimerData is the payload for per-second countdown ticks.
type BidTimerData struct {
	SecondsRemaining int `json:"seconds_remaining"`
}

// AuctionStartedData is the payload for AuctionStarted events.
type AuctionStartedData struct {
	RoomID          uuid.UUID `json:"room_id"`
	CurrentPlayerID uuid.UUID `json:"current_player_id"`
	RosterSize      int       `json:"roster_size"`
	TimePerBidSec   int       `json:"time_per_bid_sec"`
	StartedAt       time.Time `json:"started_at"`
}

// PlayerSoldData is the payload emitted when a lot settles. SoldTo and
// SoldPrice are nil when the player went unsold; NextPlayerID is nil when
// the settled player was the last lot.
type PlayerSoldData struct {
	RoomID       uuid.UUID  `json:"room_id"`
	PrevPlayerID uuid.UUID  `json:"prev_player_id"`
	SoldTo       *uuid.UUID `json:"sold_to,omitempty"`
	SoldPrice    *int64     `json:"sold_price,omitempty"`
	NextPlayerID *uuid.UUID `json:"next_player_id,omitempty"`
}

// AuctionCompletedData is the payload for AuctionCompleted events.
type AuctionCompletedData struct {
	RoomID      uuid.UUID `json:"room_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// RankingLine is one team's line in a TeamRankings payload, ordered by rank.
type RankingLine struct {
	TeamID          uuid.UUID `json:"team_id"`
	Rank            int       `json:"rank"`
	TotalScore      int       `json:"total_score"`
	TotalSpent      int64     `json:"total_spent"`
	RemainingBudget int64     `json:"remaining_budget"`
}

// TeamRankingsData is the payload for TeamRankings events.
type TeamRankingsData struct {
	RoomID       uuid.UUID     `json:"room_id"`
	Rankings     []RankingLine `json:"rankings"`
	WinnerTeamID uuid.UUID     `json:"winner_team_id"`
}

// RoomJoinedData is sent to a connection when it subscribes, carrying
// the full room snapshot so late joiners can render current state.
type RoomJoinedData struct {
	Room json.RawMessage `json:"room"`
}

// UserJoinedData is the payload for UserJoined events.
type UserJoinedData struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
}

// ChatMessageData is the payload for ChatMessage events.
type ChatMessageData struct {
	RoomID     uuid.UUID `json:"room_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Message    string    `json:"message"`
	SentAt     time.Time `json:"sent_at"`
}

// ErrorData is the payload for same-connection Error events. Rejected
// commands are reported only to the issuing connection, never broadcast.
type ErrorData struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// ParsePayload decodes an envelope's data into its payload struct.
func ParsePayload(e Event) (any, error) {
	switch e.Type {
	case NewBid:
		return decode[NewBidData](e)
	case BidTimer:
		return decode[BidTimerData](e)
	case AuctionStarted:
		return decode[AuctionStartedData](e)
	case PlayerSold:
		return decode[PlayerSoldData](e)
	case AuctionCompleted:
		return decode[AuctionCompletedData](e)
	case TeamRankings:
		return decode[TeamRankingsData](e)
	case RoomJoined:
		return decode[RoomJoinedData](e)
	case UserJoined:
		return decode[UserJoinedData](e)
	case ChatMessage:
		return decode[ChatMessageData](e)
	case Error:
		return decode[ErrorData](e)
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
}

func decode[T any](e Event) (T, error) {
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return v, fmt.Errorf("unmarshalling %s payload: %w", e.Type, err)
	}
	return v, nil
}
