package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inamate/canvas/internal/typeid"
)

const schema = `
CREATE TABLE IF NOT EXISTS scene_snapshots (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	version    INTEGER NOT NULL,
	document   JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (session_id, version)
)`

// Postgres stores snapshots in a PostgreSQL table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to databaseURL and verifies the connection.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Migrate creates the snapshot table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (p *Postgres) Save(ctx context.Context, sessionID string, document []byte) (Snapshot, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serialize concurrent saves of the same session.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, sessionID); err != nil {
		return Snapshot{}, fmt.Errorf("lock session: %w", err)
	}

	snap := Snapshot{
		ID:        typeid.NewSnapshotID(),
		SessionID: sessionID,
		Document:  document,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO scene_snapshots (id, session_id, version, document)
		SELECT $1::text, $2::text, COALESCE(MAX(version), 0) + 1, $3::jsonb
		FROM scene_snapshots WHERE session_id = $2
		RETURNING version, created_at`,
		snap.ID, sessionID, document,
	).Scan(&snap.Version, &snap.CreatedAt)
	if err != nil {
		return Snapshot{}, fmt.Errorf("insert snapshot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("commit: %w", err)
	}
	return snap, nil
}

func (p *Postgres) Latest(ctx context.Context, sessionID string) (Snapshot, error) {
	var snap Snapshot
	err := p.pool.QueryRow(ctx, `
		SELECT id, session_id, version, document, created_at
		FROM scene_snapshots
		WHERE session_id = $1
		ORDER BY version DESC
		LIMIT 1`,
		sessionID,
	).Scan(&snap.ID, &snap.SessionID, &snap.Version, &snap.Document, &snap.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("latest snapshot: %w", err)
	}
	return snap, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}
