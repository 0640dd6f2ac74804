// Package natsbus relays auction events through NATS so every instance's
// gateway can fan them out to its own WebSocket subscribers. The engine
// publishes to the bus; each instance's subscription feeds its local hub,
// including the publishing instance's own.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/cricketauction/auctiond/internal/event"
)

// Bus implements event.Publisher over a NATS connection. Events are
// published to <prefix>.<room id>.
type Bus struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	prefix string
	local  event.Publisher
	logger *slog.Logger
}

// Connect dials NATS and subscribes the local publisher to every room
// subject under the prefix.
func Connect(url, prefix string, local event.Publisher, logger *slog.Logger) (*Bus, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Error("nats disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	b := &Bus{nc: nc, prefix: prefix, local: local, logger: logger}
	sub, err := nc.Subscribe(prefix+".>", b.relay)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribing to %s.>: %w", prefix, err)
	}
	b.sub = sub
	return b, nil
}

// Publish sends the event to the room subject. Delivery to local
// subscribers happens through the relay like on any other instance.
func (b *Bus) Publish(_ context.Context, e event.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", b.prefix, e.RoomID)
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

// relay feeds an inbound bus message to the local hub.
func (b *Bus) relay(msg *nats.Msg) {
	var e event.Event
	if err := json.Unmarshal(msg.Data, &e); err != nil {
		b.logger.Error("unmarshalling bus event",
			slog.String("subject", msg.Subject),
			slog.Any("error", err),
		)
		return
	}
	if err := b.local.Publish(context.Background(), e); err != nil {
		b.logger.Warn("local delivery failed",
			slog.String("subject", msg.Subject),
			slog.Any("error", err),
		)
	}
}

// Close unsubscribes and drains the connection.
func (b *Bus) Close() error {
	if err := b.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("unsubscribing: %w", err)
	}
	if err := b.nc.Drain(); err != nil {
		return fmt.Errorf("draining nats connection: %w", err)
	}
	return nil
}
