// Package auction implements the room state machine: bid arbitration,
// countdown-driven settlement, roster progression and the final team
// rankings.
package auction

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Errors returned by auction operations. Rule violations reject the
// command without touching state.
var (
	ErrRoomNotActive  = errors.New("room is not active")
	ErrRoomNotWaiting = errors.New("room is no longer accepting changes")
	ErrRoomFinished   = errors.New("room has already finished")
	ErrRoomFull       = errors.New("room has reached its team limit")
	ErrAlreadyJoined  = errors.New("user already has a team in this room")
	ErrNotMember      = errors.New("bidder does not own a member team")
	ErrNotAdmin       = errors.New("only the room admin may do this")
	ErrWrongPlayer    = errors.New("bid is not for the current player")
	ErrBidTooLow      = errors.New("bid must be higher than the current bid")
	ErrBelowIncrement = errors.New("bid must exceed the reference amount by the minimum increment")
	ErrInvalidAmount  = errors.New("bid amount must be positive")
	ErrEmptyRoster    = errors.New("room has no players in its roster")
	ErrNotEnoughTeams = errors.New("auction requires at least two teams")
)

// Countdown is the per-room timer surface the engine drives. Start and
// Reset replace any countdown already running for the room.
type Countdown interface {
	Start(ctx context.Context, roomID uuid.UUID, version int64, seconds int)
	Reset(ctx context.Context, roomID uuid.UUID, version int64, seconds int)
	Stop(roomID uuid.UUID)
}
