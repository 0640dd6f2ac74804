package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cricketauction/auctiond/internal/room"
)

// RankingRepo implements store.RankingRepository with sqlx. The sort
// keys live in columns; the full scorecard is a JSONB document.
type RankingRepo struct {
	db *sqlx.DB
}

// NewRankingRepo returns a new RankingRepo.
func NewRankingRepo(db *sqlx.DB) *RankingRepo {
	return &RankingRepo{db: db}
}

func (r *RankingRepo) Save(ctx context.Context, rankings []room.Ranking) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx,
		`INSERT INTO rankings (room_id, team_id, rank, total_spent, remaining_budget, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, rk := range rankings {
		data, err := json.Marshal(rk)
		if err != nil {
			return fmt.Errorf("marshalling ranking: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			rk.RoomID, rk.TeamID, rk.Rank, rk.TotalSpent, rk.RemainingBudget, data, rk.CreatedAt,
		); err != nil {
			return fmt.Errorf("inserting ranking (room=%s, team=%s): %w", rk.RoomID, rk.TeamID, err)
		}
	}

	return tx.Commit()
}

func (r *RankingRepo) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]room.Ranking, error) {
	var blobs [][]byte
	err := r.db.SelectContext(ctx, &blobs,
		`SELECT data FROM rankings WHERE room_id = $1 ORDER BY rank ASC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("listing rankings: %w", err)
	}

	rankings := make([]room.Ranking, 0, len(blobs))
	for _, data := range blobs {
		var rk room.Ranking
		if err := json.Unmarshal(data, &rk); err != nil {
			return nil, fmt.Errorf("unmarshalling ranking: %w", err)
		}
		rankings = append(rankings, rk)
	}
	return rankings, nil
}
