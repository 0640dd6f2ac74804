// Package memstore provides an in-memory store driver. It implements
// the same conditional-write semantics as the postgres driver and backs
// local development and tests.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/cricketauction/auctiond/internal/config"
	"github.com/cricketauction/auctiond/internal/event"
	"github.com/cricketauction/auctiond/internal/room"
	"github.com/cricketauction/auctiond/internal/store"
)

func init() {
	store.Register("memory", func(_ context.Context, _ config.DatabaseConfig, _ clockwork.Clock) (*store.Repositories, error) {
		return Open(), nil
	})
}

type stateKey struct {
	roomID   uuid.UUID
	playerID uuid.UUID
}

// DB is a process-local store. All repositories share one mutex; every
// method copies data in and out so callers never alias stored state.
type DB struct {
	mu       sync.RWMutex
	rooms    map[uuid.UUID]*room.Room
	players  map[uuid.UUID]room.Player
	states   map[stateKey]room.PlayerState
	teams    map[uuid.UUID]store.Team
	rankings map[uuid.UUID][]room.Ranking
	events   []event.Event
}

// Open creates an empty in-memory store and returns its repositories.
func Open() *store.Repositories {
	db := &DB{
		rooms:    make(map[uuid.UUID]*room.Room),
		players:  make(map[uuid.UUID]room.Player),
		states:   make(map[stateKey]room.PlayerState),
		teams:    make(map[uuid.UUID]store.Team),
		rankings: make(map[uuid.UUID][]room.Ranking),
	}
	return &store.Repositories{
		Rooms:    &roomRepo{db},
		Players:  &playerRepo{db},
		Teams:    &teamRepo{db},
		Rankings: &rankingRepo{db},
		Events:   &eventStore{db},
		Closer:   nopCloser{},
		Ping:     func(context.Context) error { return nil },
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// cloneRoom deep-copies a room aggregate through JSON. The aggregate is
// plain data, so a round trip is an exact copy.
func cloneRoom(r *room.Room) *room.Room {
	data, _ := json.Marshal(r)
	var out room.Room
	_ = json.Unmarshal(data, &out)
	return &out
}

type roomRepo struct{ db *DB }

func (s *roomRepo) Create(_ context.Context, r *room.Room) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.rooms[r.ID]; ok {
		return fmt.Errorf("room %s already exists", r.ID)
	}
	s.db.rooms[r.ID] = cloneRoom(r)
	return nil
}

func (s *roomRepo) Get(_ context.Context, id uuid.UUID) (*room.Room, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	r, ok := s.db.rooms[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneRoom(r), nil
}

func (s *roomRepo) WriteIf(_ context.Context, r *room.Room, readVersion int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	stored, ok := s.db.rooms[r.ID]
	if !ok {
		return store.ErrNotFound
	}
	if stored.Version != readVersion {
		return store.ErrConflict
	}
	r.Version = readVersion + 1
	s.db.rooms[r.ID] = cloneRoom(r)
	return nil
}

func (s *roomRepo) ListByStatus(_ context.Context, status room.Status) ([]room.Room, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []room.Room
	for _, r := range s.db.rooms {
		if r.Status == status {
			out = append(out, *cloneRoom(r))
		}
	}
	return out, nil
}

type playerRepo struct{ db *DB }

func (s *playerRepo) Create(_ context.Context, p *room.Player) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.players[p.ID]; ok {
		return fmt.Errorf("player %s already exists", p.ID)
	}
	s.db.players[p.ID] = *p
	return nil
}

func (s *playerRepo) Get(_ context.Context, id uuid.UUID) (*room.Player, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	p, ok := s.db.players[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *playerRepo) List(_ context.Context) ([]room.Player, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	out := make([]room.Player, 0, len(s.db.players))
	for _, p := range s.db.players {
		out = append(out, p)
	}
	return out, nil
}

func (s *playerRepo) SeedStates(_ context.Context, states []room.PlayerState) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, st := range states {
		key := stateKey{st.RoomID, st.PlayerID}
		if _, ok := s.db.states[key]; ok {
			return fmt.Errorf("state for player %s in room %s already exists", st.PlayerID, st.RoomID)
		}
		s.db.states[key] = st
	}
	return nil
}

func (s *playerRepo) GetState(_ context.Context, roomID, playerID uuid.UUID) (*room.PlayerState, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	st, ok := s.db.states[stateKey{roomID, playerID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &st, nil
}

func (s *playerRepo) WriteCurrentPrice(_ context.Context, roomID, playerID uuid.UUID, price int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	key := stateKey{roomID, playerID}
	st, ok := s.db.states[key]
	if !ok {
		return store.ErrNotFound
	}
	if st.Sold {
		return fmt.Errorf("player %s already sold in room %s", playerID, roomID)
	}
	st.CurrentPrice = price
	s.db.states[key] = st
	return nil
}

func (s *playerRepo) WriteSaleState(_ context.Context, st *room.PlayerState) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	key := stateKey{st.RoomID, st.PlayerID}
	stored, ok := s.db.states[key]
	if !ok {
		return store.ErrNotFound
	}
	if stored.Sold {
		return fmt.Errorf("player %s already sold in room %s", st.PlayerID, st.RoomID)
	}
	s.db.states[key] = *st
	return nil
}

func (s *playerRepo) ListStates(_ context.Context, roomID uuid.UUID) ([]room.PlayerState, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []room.PlayerState
	for key, st := range s.db.states {
		if key.roomID == roomID {
			out = append(out, st)
		}
	}
	return out, nil
}

type teamRepo struct{ db *DB }

func (s *teamRepo) Create(_ context.Context, t *store.Team) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, existing := range s.db.teams {
		if existing.OwnerID == t.OwnerID {
			return fmt.Errorf("owner %s already has a team", t.OwnerID)
		}
	}
	s.db.teams[t.ID] = *t
	return nil
}

func (s *teamRepo) Get(_ context.Context, id uuid.UUID) (*store.Team, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	t, ok := s.db.teams[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (s *teamRepo) GetByOwner(_ context.Context, ownerID uuid.UUID) (*store.Team, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	for _, t := range s.db.teams {
		if t.OwnerID == ownerID {
			out := t
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *teamRepo) GetByName(_ context.Context, name string) (*store.Team, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	for _, t := range s.db.teams {
		if t.Name == name {
			out := t
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

type rankingRepo struct{ db *DB }

func (s *rankingRepo) Save(_ context.Context, rankings []room.Ranking) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, rk := range rankings {
		s.db.rankings[rk.RoomID] = append(s.db.rankings[rk.RoomID], rk)
	}
	return nil
}

func (s *rankingRepo) ListByRoom(_ context.Context, roomID uuid.UUID) ([]room.Ranking, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	out := make([]room.Ranking, len(s.db.rankings[roomID]))
	copy(out, s.db.rankings[roomID])
	return out, nil
}

type eventStore struct{ db *DB }

func (s *eventStore) Append(_ context.Context, events ...event.Event) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.events = append(s.db.events, events...)
	return nil
}

func (s *eventStore) Load(_ context.Context, roomID uuid.UUID) ([]event.Event, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []event.Event
	for _, e := range s.db.events {
		if e.RoomID == roomID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *eventStore) LoadByType(_ context.Context, eventType event.Type) ([]event.Event, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []event.Event
	for _, e := range s.db.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out, nil
}
