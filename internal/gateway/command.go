package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cricketauction/auctiond/internal/auction"
	"github.com/cricketauction/auctiond/internal/event"
	"github.com/cricketauction/auctiond/internal/store"
)

// Client command names.
const (
	cmdJoinRoom      = "join-room"
	cmdStartAuction  = "start-auction"
	cmdPlaceBid      = "place-bid"
	cmdCancelAuction = "cancel-auction"
	cmdChatMessage   = "chat-message"
)

const commandTimeout = 10 * time.Second

// command is the inbound envelope. Data holds the per-command payload.
type command struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type joinRoomCmd struct {
	TeamName string `json:"team_name"`
}

type placeBidCmd struct {
	PlayerID uuid.UUID `json:"player_id"`
	Amount   int64     `json:"amount"`
}

type chatMessageCmd struct {
	SenderName string `json:"sender_name"`
	Message    string `json:"message"`
}

// handleCommand dispatches one client frame. Rejections are reported to
// the issuing connection only; nothing is broadcast for a failed
// command.
func (g *Gateway) handleCommand(c *connection, raw []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		g.rejectCommand(c, errors.New("malformed command"))
		return
	}

	var err error
	switch cmd.Type {
	case cmdJoinRoom:
		var p joinRoomCmd
		if err = json.Unmarshal(cmd.Data, &p); err == nil {
			_, err = g.engine.JoinRoom(ctx, c.roomID, c.userID, p.TeamName)
		}
	case cmdStartAuction:
		_, err = g.engine.StartAuction(ctx, c.roomID, c.userID)
	case cmdCancelAuction:
		_, err = g.engine.Cancel(ctx, c.roomID, c.userID)
	case cmdPlaceBid:
		var p placeBidCmd
		if err = json.Unmarshal(cmd.Data, &p); err == nil {
			_, err = g.engine.PlaceBid(ctx, auction.BidRequest{
				RoomID:   c.roomID,
				PlayerID: p.PlayerID,
				BidderID: c.userID,
				Amount:   p.Amount,
			})
		}
	case cmdChatMessage:
		err = g.handleChat(ctx, c, cmd.Data)
	default:
		err = errors.New("unknown command type")
	}

	if err != nil {
		g.logger.Info("command rejected",
			slog.String("connection_id", c.id),
			slog.String("command", cmd.Type),
			slog.Any("error", err),
		)
		g.rejectCommand(c, err)
	}
}

// handleChat relays a chat line to the room. Chat is transient: it is
// broadcast but never journaled.
func (g *Gateway) handleChat(ctx context.Context, c *connection, data []byte) error {
	var p chatMessageCmd
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.New("malformed chat message")
	}
	if p.Message == "" {
		return errors.New("empty chat message")
	}
	e, err := event.New(c.roomID, event.ChatMessage, 0, event.ChatMessageData{
		RoomID:     c.roomID,
		SenderID:   c.userID,
		SenderName: p.SenderName,
		Message:    p.Message,
		SentAt:     time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	e.ID = uuid.NewString()
	return g.hub.Publish(ctx, e)
}

// rejectCommand sends a same-connection error event. Version conflicts
// are flagged retryable so the client re-reads before resubmitting.
func (g *Gateway) rejectCommand(c *connection, cause error) {
	e, err := event.New(c.roomID, event.Error, 0, event.ErrorData{
		Message:   cause.Error(),
		Retryable: errors.Is(cause, store.ErrConflict),
	})
	if err != nil {
		g.logger.Error("building error event", slog.Any("error", err))
		return
	}
	e.ID = uuid.NewString()
	g.hub.sendTo(c, e)
}
