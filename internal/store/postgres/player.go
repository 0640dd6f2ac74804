package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"

	"github.com/cricketauction/auctiond/internal/room"
	"github.com/cricketauction/auctiond/internal/store"
)

// PlayerRepo implements store.PlayerRepository with sqlx.
type PlayerRepo struct {
	db    *sqlx.DB
	clock clockwork.Clock
}

// NewPlayerRepo returns a new PlayerRepo.
func NewPlayerRepo(db *sqlx.DB, clk clockwork.Clock) *PlayerRepo {
	return &PlayerRepo{db: db, clock: clk}
}

// playerRow flattens the stats columns for sqlx scanning.
type playerRow struct {
	ID          uuid.UUID    `db:"id"`
	Name        string       `db:"name"`
	Age         int          `db:"age"`
	Nationality string       `db:"nationality"`
	Role        string       `db:"role"`
	BasePrice   int64        `db:"base_price"`
	Matches     int          `db:"matches"`
	Runs        int          `db:"runs"`
	Wickets     int          `db:"wickets"`
	Catches     int          `db:"catches"`
	Stumpings   int          `db:"stumpings"`
	Average     float64      `db:"average"`
	Economy     float64      `db:"economy"`
	CreatedAt   sql.NullTime `db:"created_at"`
}

func (row playerRow) toPlayer() room.Player {
	p := room.Player{
		ID:          row.ID,
		Name:        row.Name,
		Age:         row.Age,
		Nationality: row.Nationality,
		Role:        room.Role(row.Role),
		BasePrice:   row.BasePrice,
		Stats: room.Stats{
			Matches:   row.Matches,
			Runs:      row.Runs,
			Wickets:   row.Wickets,
			Catches:   row.Catches,
			Stumpings: row.Stumpings,
			Average:   row.Average,
			Economy:   row.Economy,
		},
	}
	if row.CreatedAt.Valid {
		p.CreatedAt = row.CreatedAt.Time
	}
	return p
}

func (r *PlayerRepo) Create(ctx context.Context, p *room.Player) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.clock.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO players (id, name, age, nationality, role, base_price,
		                      matches, runs, wickets, catches, stumpings, average, economy, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		p.ID, p.Name, p.Age, p.Nationality, p.Role, p.BasePrice,
		p.Stats.Matches, p.Stats.Runs, p.Stats.Wickets, p.Stats.Catches,
		p.Stats.Stumpings, p.Stats.Average, p.Stats.Economy, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting player: %w", err)
	}
	return nil
}

func (r *PlayerRepo) Get(ctx context.Context, id uuid.UUID) (*room.Player, error) {
	var row playerRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM players WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting player: %w", err)
	}
	p := row.toPlayer()
	return &p, nil
}

func (r *PlayerRepo) List(ctx context.Context) ([]room.Player, error) {
	var rows []playerRow
	err := r.db.SelectContext(ctx, &rows, `SELECT * FROM players ORDER BY base_price DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	players := make([]room.Player, 0, len(rows))
	for _, row := range rows {
		players = append(players, row.toPlayer())
	}
	return players, nil
}

func (r *PlayerRepo) SeedStates(ctx context.Context, states []room.PlayerState) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx,
		`INSERT INTO player_states (room_id, player_id, base_price, current_price)
		 VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, st := range states {
		if _, err := stmt.ExecContext(ctx, st.RoomID, st.PlayerID, st.BasePrice, st.CurrentPrice); err != nil {
			return fmt.Errorf("seeding state (room=%s, player=%s): %w", st.RoomID, st.PlayerID, err)
		}
	}

	return tx.Commit()
}

func (r *PlayerRepo) GetState(ctx context.Context, roomID, playerID uuid.UUID) (*room.PlayerState, error) {
	var st room.PlayerState
	err := r.db.GetContext(ctx, &st,
		`SELECT room_id, player_id, base_price, current_price, sold, sold_to, sold_price, retired
		 FROM player_states WHERE room_id = $1 AND player_id = $2`, roomID, playerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting player state: %w", err)
	}
	return &st, nil
}

func (r *PlayerRepo) WriteCurrentPrice(ctx context.Context, roomID, playerID uuid.UUID, price int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE player_states SET current_price = $1
		 WHERE room_id = $2 AND player_id = $3 AND sold = FALSE`,
		price, roomID, playerID,
	)
	if err != nil {
		return fmt.Errorf("updating current price: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("player state (room=%s, player=%s) missing or already sold", roomID, playerID)
	}
	return nil
}

func (r *PlayerRepo) WriteSaleState(ctx context.Context, st *room.PlayerState) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE player_states
		 SET current_price = $1, sold = $2, sold_to = $3, sold_price = $4, retired = $5
		 WHERE room_id = $6 AND player_id = $7 AND sold = FALSE`,
		st.CurrentPrice, st.Sold, st.SoldTo, st.SoldPrice, st.Retired, st.RoomID, st.PlayerID,
	)
	if err != nil {
		return fmt.Errorf("writing sale state: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("player state (room=%s, player=%s) missing or already sold", st.RoomID, st.PlayerID)
	}
	return nil
}

func (r *PlayerRepo) ListStates(ctx context.Context, roomID uuid.UUID) ([]room.PlayerState, error) {
	var states []room.PlayerState
	err := r.db.SelectContext(ctx, &states,
		`SELECT room_id, player_id, base_price, current_price, sold, sold_to, sold_price, retired
		 FROM player_states WHERE room_id = $1`, roomID)
	if err != nil {
		return nil, fmt.Errorf("listing player states: %w", err)
	}
	return states, nil
}
