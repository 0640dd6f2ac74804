package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cricketauction/auctiond/internal/room"
	"github.com/cricketauction/auctiond/internal/store"
)

// RoomRepo implements store.RoomRepository with sqlx. The aggregate is
// one JSONB document per room; status and version are lifted into
// columns for indexing and the conditional write.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo returns a new RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

func (r *RoomRepo) Create(ctx context.Context, rm *room.Room) error {
	data, err := json.Marshal(rm)
	if err != nil {
		return fmt.Errorf("marshalling room: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO rooms (id, status, version, data, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		rm.ID, rm.Status, rm.Version, data, rm.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting room: %w", err)
	}
	return nil
}

func (r *RoomRepo) Get(ctx context.Context, id uuid.UUID) (*room.Room, error) {
	var data []byte
	err := r.db.GetContext(ctx, &data, `SELECT data FROM rooms WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting room: %w", err)
	}
	var rm room.Room
	if err := json.Unmarshal(data, &rm); err != nil {
		return nil, fmt.Errorf("unmarshalling room: %w", err)
	}
	return &rm, nil
}

func (r *RoomRepo) WriteIf(ctx context.Context, rm *room.Room, readVersion int64) error {
	rm.Version = readVersion + 1
	data, err := json.Marshal(rm)
	if err != nil {
		rm.Version = readVersion
		return fmt.Errorf("marshalling room: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE rooms SET status = $1, version = $2, data = $3, updated_at = $4
		 WHERE id = $5 AND version = $6`,
		rm.Status, rm.Version, data, rm.UpdatedAt, rm.ID, readVersion,
	)
	if err != nil {
		rm.Version = readVersion
		return fmt.Errorf("updating room: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 1 {
		return nil
	}
	rm.Version = readVersion

	// Distinguish a lost race from a missing row.
	var exists bool
	if err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM rooms WHERE id = $1)`, rm.ID); err != nil {
		return fmt.Errorf("checking room existence: %w", err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

func (r *RoomRepo) ListByStatus(ctx context.Context, status room.Status) ([]room.Room, error) {
	var blobs [][]byte
	err := r.db.SelectContext(ctx, &blobs,
		`SELECT data FROM rooms WHERE status = $1 ORDER BY updated_at ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("listing rooms by status: %w", err)
	}

	rooms := make([]room.Room, 0, len(blobs))
	for _, data := range blobs {
		var rm room.Room
		if err := json.Unmarshal(data, &rm); err != nil {
			return nil, fmt.Errorf("unmarshalling room: %w", err)
		}
		rooms = append(rooms, rm)
	}
	return rooms, nil
}
