package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/tabwork/internal/table"
)

// The document column is JSON rather than JSONB so numeric literals such as
// 2.50 come back exactly as they were written.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS working_tables (
		key        TEXT PRIMARY KEY,
		session    TEXT NOT NULL,
		document   JSON NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS working_tables_session_idx ON working_tables (session)`,
}

// PoolConfig tunes the pgx connection pool. Zero values keep pgx defaults.
type PoolConfig struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Postgres stores tables as JSON documents in a single table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects, pings and ensures the schema exists.
func NewPostgres(ctx context.Context, url string, pc PoolConfig) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if pc.MaxConns > 0 {
		cfg.MaxConns = int32(pc.MaxConns)
	}
	if pc.MinConns > 0 {
		cfg.MinConns = int32(pc.MinConns)
	}
	if pc.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = pc.MaxConnLifetime
	}
	if pc.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = pc.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &Postgres{pool: pool}, nil
}

// Load reads the table stored under key.
func (s *Postgres) Load(ctx context.Context, key string) (*table.Table, error) {
	if _, _, err := SplitKey(key); err != nil {
		return nil, err
	}
	var doc string
	err := s.pool.QueryRow(ctx,
		`SELECT document::text FROM working_tables WHERE key = $1`, key,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("load table: %w", err)
	}
	return decode([]byte(doc))
}

// Save upserts the table document.
func (s *Postgres) Save(ctx context.Context, key string, t *table.Table) error {
	session, _, err := SplitKey(key)
	if err != nil {
		return err
	}
	data, err := encode(t)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO working_tables (key, session, document, updated_at)
		VALUES ($1, $2, $3::json, now())
		ON CONFLICT (key) DO UPDATE
		SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`,
		key, session, string(data),
	)
	if err != nil {
		return fmt.Errorf("save table: %w", err)
	}
	return nil
}

// Delete removes the table.
func (s *Postgres) Delete(ctx context.Context, key string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM working_tables WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete table: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return nil
}

// List returns the keys of every table in session.
func (s *Postgres) List(ctx context.Context, session string) ([]string, error) {
	if !ValidSession(session) {
		return nil, fmt.Errorf("%w: session %q", ErrInvalidKey, session)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT key FROM working_tables WHERE session = $1 ORDER BY key`, session)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return keys, nil
}

// Close releases the pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
