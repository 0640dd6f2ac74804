// Package postgres implements the store repositories on Postgres with
// sqlx. The room aggregate is stored as a JSONB document next to a
// version column; conditional writes compare-and-swap on that column.
package postgres

import (
	"context"
	"fmt"

	"github.com/XSAM/otelsql"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/cricketauction/auctiond/internal/config"
	"github.com/cricketauction/auctiond/internal/store"
)

func init() {
	store.Register("postgres", Open)
}

// Connect opens and verifies a Postgres connection with OTEL instrumentation.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := cfg.DSN()

	// Register the OTel-instrumented driver wrapping lib/pq.
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return nil, fmt.Errorf("registering otel driver: %w", err)
	}

	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

// Open connects and returns the full repository set.
func Open(ctx context.Context, cfg config.DatabaseConfig, clk clockwork.Clock) (*store.Repositories, error) {
	db, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &store.Repositories{
		Rooms:    NewRoomRepo(db),
		Players:  NewPlayerRepo(db, clk),
		Teams:    NewTeamRepo(db, clk),
		Rankings: NewRankingRepo(db),
		Events:   NewEventStore(db),
		Closer:   db,
		Ping:     db.PingContext,
	}, nil
}
