package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/tabwork/internal/table"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS working_tables (
		key        TEXT PRIMARY KEY,
		session    TEXT NOT NULL,
		document   TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS working_tables_session_idx ON working_tables (session)`,
}

// SQLite stores tables as JSON text in a single-file database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens the database at dsn and ensures the schema exists.
//
// dsn is passed to database/sql, for example "tabwork.db" or
// "file:tabwork.db?cache=shared".
func NewSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer at a time avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: create schema: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

// Load reads the table stored under key.
func (s *SQLite) Load(ctx context.Context, key string) (*table.Table, error) {
	if _, _, err := SplitKey(key); err != nil {
		return nil, err
	}
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM working_tables WHERE key = ?`, key,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load: %w", err)
	}
	return decode([]byte(doc))
}

// Save upserts the table document.
func (s *SQLite) Save(ctx context.Context, key string, t *table.Table) error {
	session, _, err := SplitKey(key)
	if err != nil {
		return err
	}
	data, err := encode(t)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO working_tables (key, session, document, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE
		SET document = excluded.document, updated_at = excluded.updated_at`,
		key, session, string(data), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save: %w", err)
	}
	return nil
}

// Delete removes the table.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM working_tables WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("sqlite: delete: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return nil
}

// List returns the keys of every table in session.
func (s *SQLite) List(ctx context.Context, session string) ([]string, error) {
	if !ValidSession(session) {
		return nil, fmt.Errorf("%w: session %q", ErrInvalidKey, session)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM working_tables WHERE session = ? ORDER BY key`, session)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("sqlite: list: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
