package countdown_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/cricketauction/auctiond/internal/countdown"
	"github.com/cricketauction/auctiond/internal/event"
)

type capturePublisher struct {
	ch chan event.Event
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{ch: make(chan event.Event, 64)}
}

func (p *capturePublisher) Publish(_ context.Context, e event.Event) error {
	p.ch <- e
	return nil
}

func waitEvent(t *testing.T, ch <-chan event.Event) event.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return event.Event{}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCountdownTicksAndExpires(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	pub := newCapturePublisher()
	roomID := uuid.New()

	expired := make(chan uuid.UUID, 1)
	m := countdown.NewManager(fc, pub, func(_ context.Context, id uuid.UUID) {
		expired <- id
	}, discardLogger())
	defer m.StopAll()

	m.Start(ctx, roomID, 7, 3)
	if err := fc.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("BlockUntilContext: %v", err)
	}

	for _, want := range []int{2, 1, 0} {
		fc.Advance(time.Second)
		e := waitEvent(t, pub.ch)
		if e.Type != event.BidTimer {
			t.Fatalf("event type = %q, want %q", e.Type, event.BidTimer)
		}
		if e.Version != 7 {
			t.Errorf("event version = %d, want 7", e.Version)
		}
		payload, err := event.ParsePayload(e)
		if err != nil {
			t.Fatalf("parsing payload: %v", err)
		}
		data, ok := payload.(event.BidTimerData)
		if !ok {
			t.Fatalf("payload type = %T, want BidTimerData", payload)
		}
		if data.SecondsRemaining != want {
			t.Errorf("SecondsRemaining = %d, want %d", data.SecondsRemaining, want)
		}
	}

	select {
	case id := <-expired:
		if id != roomID {
			t.Errorf("expired room = %s, want %s", id, roomID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for expiry")
	}
}

func TestStartReplacesRunningCountdown(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	pub := newCapturePublisher()
	roomID := uuid.New()

	var mu sync.Mutex
	expiries := 0
	m := countdown.NewManager(fc, pub, func(context.Context, uuid.UUID) {
		mu.Lock()
		expiries++
		mu.Unlock()
	}, discardLogger())
	defer m.StopAll()

	m.Start(ctx, roomID, 1, 3)
	if err := fc.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("BlockUntilContext: %v", err)
	}
	fc.Advance(time.Second)
	waitEvent(t, pub.ch)

	// A bid arrived: the countdown restarts from the full duration.
	m.Reset(ctx, roomID, 2, 3)
	if err := fc.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("BlockUntilContext: %v", err)
	}

	for _, want := range []int{2, 1, 0} {
		fc.Advance(time.Second)
		e := waitEvent(t, pub.ch)
		payload, err := event.ParsePayload(e)
		if err != nil {
			t.Fatalf("parsing payload: %v", err)
		}
		data, ok := payload.(event.BidTimerData)
		if !ok {
			t.Fatalf("payload type = %T, want BidTimerData", payload)
		}
		if data.SecondsRemaining != want {
			t.Errorf("SecondsRemaining = %d, want %d", data.SecondsRemaining, want)
		}
		if e.Version != 2 {
			t.Errorf("event version = %d, want 2", e.Version)
		}
	}

	m.StopAll()
	mu.Lock()
	defer mu.Unlock()
	if expiries != 1 {
		t.Errorf("expiries = %d, want exactly 1", expiries)
	}
}

// gatedPublisher blocks its first Publish call until released, holding
// the countdown goroutine mid-tick. Later publishes pass straight
// through.
type gatedPublisher struct {
	ch      chan event.Event
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedPublisher() *gatedPublisher {
	return &gatedPublisher{
		ch:      make(chan event.Event, 8),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (p *gatedPublisher) Publish(_ context.Context, e event.Event) error {
	p.once.Do(func() {
		p.entered <- struct{}{}
		<-p.release
	})
	p.ch <- e
	return nil
}

func (p *gatedPublisher) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-p.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the countdown to reach Publish")
	}
}

func TestStopDuringFinalTickSuppressesExpiry(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	pub := newGatedPublisher()
	roomID := uuid.New()

	expired := make(chan uuid.UUID, 1)
	m := countdown.NewManager(fc, pub, func(_ context.Context, id uuid.UUID) {
		expired <- id
	}, discardLogger())

	m.Start(ctx, roomID, 1, 1)
	fc.Advance(time.Second)

	// The goroutine is mid-tick with zero seconds remaining, blocked in
	// Publish. Stop returns before the tick completes; the terminal
	// callback must still not fire.
	pub.waitEntered(t)
	m.Stop(roomID)
	close(pub.release)

	m.StopAll()
	select {
	case <-expired:
		t.Fatal("expiry fired after Stop returned")
	default:
	}
}

func TestResetDuringFinalTickSuppressesExpiry(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	pub := newGatedPublisher()
	roomID := uuid.New()

	expired := make(chan uuid.UUID, 1)
	m := countdown.NewManager(fc, pub, func(_ context.Context, id uuid.UUID) {
		expired <- id
	}, discardLogger())
	defer m.StopAll()

	m.Start(ctx, roomID, 1, 1)
	fc.Advance(time.Second)

	// A bid lands at the expiry instant: Reset returns while the old
	// countdown is still mid-tick. The old countdown must not settle
	// the room; the new one runs from the full duration.
	pub.waitEntered(t)
	m.Reset(ctx, roomID, 2, 2)
	close(pub.release)

	e := waitEvent(t, pub.ch)
	if e.Version != 1 {
		t.Fatalf("first drained event version = %d, want 1", e.Version)
	}
	select {
	case <-expired:
		t.Fatal("superseded countdown fired its expiry")
	default:
	}

	for _, want := range []int{1, 0} {
		fc.Advance(time.Second)
		e := waitEvent(t, pub.ch)
		if e.Version != 2 {
			t.Errorf("event version = %d, want 2", e.Version)
		}
		payload, err := event.ParsePayload(e)
		if err != nil {
			t.Fatalf("parsing payload: %v", err)
		}
		data, ok := payload.(event.BidTimerData)
		if !ok {
			t.Fatalf("payload type = %T, want BidTimerData", payload)
		}
		if data.SecondsRemaining != want {
			t.Errorf("SecondsRemaining = %d, want %d", data.SecondsRemaining, want)
		}
	}

	select {
	case id := <-expired:
		if id != roomID {
			t.Errorf("expired room = %s, want %s", id, roomID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the replacement countdown to expire")
	}
}

func TestStopPreventsExpiry(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	pub := newCapturePublisher()
	roomID := uuid.New()

	expired := make(chan uuid.UUID, 1)
	m := countdown.NewManager(fc, pub, func(_ context.Context, id uuid.UUID) {
		expired <- id
	}, discardLogger())

	m.Start(ctx, roomID, 1, 2)
	if err := fc.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("BlockUntilContext: %v", err)
	}
	fc.Advance(time.Second)
	waitEvent(t, pub.ch)

	m.Stop(roomID)
	m.StopAll()
	fc.Advance(10 * time.Second)

	select {
	case <-expired:
		t.Fatal("expiry fired after Stop")
	case <-time.After(100 * time.Millisecond):
	}
}
