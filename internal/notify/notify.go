// Package notify posts auction lifecycle announcements to a Discord
// channel. It subscribes as a publisher fan-out target, so chat and
// per-second timer ticks never reach Discord.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/cricketauction/auctiond/internal/config"
	"github.com/cricketauction/auctiond/internal/event"
	"github.com/cricketauction/auctiond/internal/store"
)

// Announcer relays lifecycle events to a single Discord channel.
type Announcer struct {
	session   *discordgo.Session
	channelID string
	repos     *store.Repositories
	logger    *slog.Logger
}

// New creates an Announcer. The session is not opened until Start.
func New(cfg config.DiscordConfig, repos *store.Repositories, logger *slog.Logger) (*Announcer, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	return &Announcer{
		session:   session,
		channelID: cfg.ChannelID,
		repos:     repos,
		logger:    logger,
	}, nil
}

// Start opens the Discord connection.
func (a *Announcer) Start(ctx context.Context) error {
	a.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		a.logger.InfoContext(ctx, "announcer is ready", slog.String("user", s.State.User.Username))
	})
	if err := a.session.Open(); err != nil {
		return fmt.Errorf("opening discord session: %w", err)
	}
	return nil
}

// Stop closes the Discord connection.
func (a *Announcer) Stop() error {
	return a.session.Close()
}

// Publish implements event.Publisher. Failures are logged, never
// propagated: a Discord outage must not fail a settlement.
func (a *Announcer) Publish(ctx context.Context, e event.Event) error {
	msg, err := a.format(ctx, e)
	if err != nil {
		a.logger.Warn("formatting announcement",
			slog.String("type", string(e.Type)),
			slog.Any("error", err),
		)
		return nil
	}
	if msg == "" {
		return nil
	}
	if _, err := a.session.ChannelMessageSend(a.channelID, msg); err != nil {
		a.logger.Warn("sending announcement",
			slog.String("type", string(e.Type)),
			slog.Any("error", err),
		)
	}
	return nil
}

func (a *Announcer) format(ctx context.Context, e event.Event) (string, error) {
	payload, err := event.ParsePayload(e)
	if err != nil {
		return "", err
	}

	switch data := payload.(type) {
	case event.AuctionStartedData:
		return fmt.Sprintf("Auction underway: %d players on the block, %ds per bid.",
			data.RosterSize, data.TimePerBidSec), nil
	case event.PlayerSoldData:
		player := a.playerName(ctx, data.PrevPlayerID)
		if data.SoldTo == nil {
			return fmt.Sprintf("%s went unsold.", player), nil
		}
		return fmt.Sprintf("%s sold to %s for %d.",
			player, a.teamName(ctx, *data.SoldTo), *data.SoldPrice), nil
	case event.AuctionCompletedData:
		return "Auction complete. Final rankings coming up.", nil
	case event.TeamRankingsData:
		var b strings.Builder
		b.WriteString("Final standings:\n")
		for _, line := range data.Rankings {
			fmt.Fprintf(&b, "%d. %s | score %d | spent %d\n",
				line.Rank, a.teamName(ctx, line.TeamID), line.TotalScore, line.TotalSpent)
		}
		fmt.Fprintf(&b, "Winner: %s", a.teamName(ctx, data.WinnerTeamID))
		return b.String(), nil
	default:
		return "", nil
	}
}

func (a *Announcer) playerName(ctx context.Context, id uuid.UUID) string {
	p, err := a.repos.Players.Get(ctx, id)
	if err != nil {
		return id.String()
	}
	return p.Name
}

func (a *Announcer) teamName(ctx context.Context, id uuid.UUID) string {
	t, err := a.repos.Teams.Get(ctx, id)
	if err != nil {
		return id.String()
	}
	return t.Name
}
