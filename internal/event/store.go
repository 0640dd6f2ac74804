package event

import (
	"context"

	"github.com/google/uuid"
)

// Store is the append-only journal of emitted events, keyed by room.
// The room aggregate remains the source of truth; the journal serves
// audit reads and post-incident inspection.
type Store interface {
	// Append persists one or more events atomically.
	Append(ctx context.Context, events ...Event) error
	// Load returns all events for a room, oldest first.
	Load(ctx context.Context, roomID uuid.UUID) ([]Event, error)
	// LoadByType returns events filtered by type.
	LoadByType(ctx context.Context, eventType Type) ([]Event, error)
}

// Publisher fans an event out to all current subscribers of a room topic.
// Delivery is best effort: the engine does not depend on any guarantee
// beyond an eventually consistent view for participants.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Fanout delivers each event to every publisher in order. All publishers
// are attempted; the first error encountered is returned.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var firstErr error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
