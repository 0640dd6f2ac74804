// Package countdown runs the per-room bid timers. Every active room has
// at most one running countdown; placing a bid resets it, and expiry
// hands the room back to the auction engine for settlement.
package countdown

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/cricketauction/auctiond/internal/event"
)

// ExpireFunc is invoked exactly once when a room's countdown reaches
// zero without being reset or stopped.
type ExpireFunc func(ctx context.Context, roomID uuid.UUID)

type countdownState struct {
	cancel context.CancelFunc
	ticker clockwork.Ticker
	gen    uint64
}

// Manager owns all running countdowns. Timers are process-local and are
// not persisted; on restart the engine re-arms countdowns for every
// active room it loads.
type Manager struct {
	clock     clockwork.Clock
	publisher event.Publisher
	onExpire  ExpireFunc
	logger    *slog.Logger

	mu     sync.Mutex
	gen    uint64
	timers map[uuid.UUID]*countdownState
	wg     sync.WaitGroup
}

// NewManager creates a countdown manager. The publisher receives a
// bid-timer event every second while a countdown runs.
func NewManager(clock clockwork.Clock, publisher event.Publisher, onExpire ExpireFunc, logger *slog.Logger) *Manager {
	return &Manager{
		clock:     clock,
		publisher: publisher,
		onExpire:  onExpire,
		logger:    logger,
		timers:    make(map[uuid.UUID]*countdownState),
	}
}

// Start begins a countdown of the given number of seconds for the room,
// replacing any countdown already running for it. The superseded
// countdown's ticker is stopped before Start returns, so its goroutine
// can receive no further ticks. The version is the room version the
// caller observed when arming the timer and is stamped on every tick
// event.
func (m *Manager) Start(ctx context.Context, roomID uuid.UUID, version int64, seconds int) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ticker := m.clock.NewTicker(time.Second)

	m.mu.Lock()
	if prev, ok := m.timers[roomID]; ok {
		prev.cancel()
		prev.ticker.Stop()
	}
	m.gen++
	st := &countdownState{cancel: cancel, ticker: ticker, gen: m.gen}
	m.timers[roomID] = st
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(ctx, roomID, version, seconds, st)
}

// Reset restarts the room's countdown from the full duration. It is
// equivalent to Start and exists for call-site clarity.
func (m *Manager) Reset(ctx context.Context, roomID uuid.UUID, version int64, seconds int) {
	m.Start(ctx, roomID, version, seconds)
}

// Stop cancels the room's countdown if one is running. The expiry
// callback will not fire for a stopped countdown, even when the stop
// lands between the final tick and the callback.
func (m *Manager) Stop(roomID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.timers[roomID]; ok {
		st.cancel()
		st.ticker.Stop()
		delete(m.timers, roomID)
	}
}

// StopAll cancels every running countdown and waits for their
// goroutines to exit. Used during shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	for id, st := range m.timers {
		st.cancel()
		st.ticker.Stop()
		delete(m.timers, id)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// claim removes the room's map entry if this countdown still owns it.
// The terminal callback fires only after a successful claim, so an
// expiry racing a Stop or Reset that has already returned never
// reaches the engine. Start, Stop and claim all serialize on m.mu.
func (m *Manager) claim(roomID uuid.UUID, gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.timers[roomID]
	if !ok || st.gen != gen {
		return false
	}
	delete(m.timers, roomID)
	return true
}

func (m *Manager) run(ctx context.Context, roomID uuid.UUID, version int64, seconds int, st *countdownState) {
	defer m.wg.Done()
	defer st.ticker.Stop()

	remaining := seconds
	for {
		select {
		case <-ctx.Done():
			return
		case <-st.ticker.Chan():
			remaining--
			e, err := event.New(roomID, event.BidTimer, version, event.BidTimerData{SecondsRemaining: remaining})
			if err != nil {
				m.logger.ErrorContext(ctx, "encoding bid-timer event", "room_id", roomID, "error", err)
			} else {
				e.ID = uuid.NewString()
				e.CreatedAt = m.clock.Now().UTC()
				if err := m.publisher.Publish(ctx, e); err != nil {
					m.logger.ErrorContext(ctx, "publishing bid-timer event", "room_id", roomID, "error", err)
				}
			}
			if remaining <= 0 {
				if !m.claim(roomID, st.gen) {
					return
				}
				m.logger.InfoContext(ctx, "countdown expired", "room_id", roomID, "version", version)
				m.onExpire(ctx, roomID)
				return
			}
		}
	}
}
