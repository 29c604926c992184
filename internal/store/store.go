// Package store persists working tables. A table is always read and written
// whole, so concurrent writers to one key resolve as last write wins without
// ever leaving a partial document behind.
//
// Keys have the form "<session>/<name>". The session part groups every table
// that belongs to one upload session.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/tabwork/internal/table"
)

// ErrNotFound is returned when a key has no table, for example because the
// session expired or was never created.
var ErrNotFound = errors.New("table not found")

// ErrInvalidKey is returned for keys outside the "<session>/<name>" form.
var ErrInvalidKey = errors.New("invalid table key")

// Store is the durable home of working tables.
type Store interface {
	Load(ctx context.Context, key string) (*table.Table, error)
	Save(ctx context.Context, key string, t *table.Table) error
	Delete(ctx context.Context, key string) error
	// List returns the keys under a session, sorted.
	List(ctx context.Context, session string) ([]string, error)
	Close() error
}

var (
	sessionPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	namePattern    = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9_.-]{0,127}$`)
)

// Key joins a session id and a table name.
func Key(session, name string) string {
	return session + "/" + name
}

// NewKey mints a fresh key under session.
func NewKey(session string) string {
	return Key(session, uuid.NewString())
}

// SplitKey validates key and returns its parts.
func SplitKey(key string) (session, name string, err error) {
	session, name, ok := strings.Cut(key, "/")
	if !ok || !ValidSession(session) || !namePattern.MatchString(name) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return session, name, nil
}

// ValidSession reports whether id can be used as a session id.
func ValidSession(id string) bool {
	return sessionPattern.MatchString(id)
}

func encode(t *table.Table) ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode table: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*table.Table, error) {
	var t table.Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode table: %w", err)
	}
	return &t, nil
}
