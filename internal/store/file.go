package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JonMunkholm/tabwork/internal/table"
)

const fileExt = ".json"

// FileStore keeps one JSON document per table under dir/<session>/<name>.json.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create table dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) (string, error) {
	session, name, err := SplitKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, session, name+fileExt), nil
}

// Load reads the table stored under key.
func (s *FileStore) Load(_ context.Context, key string) (*table.Table, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}
	return decode(data)
}

// Save writes the table to a temporary file and renames it over the old
// document, so readers see either the old or the new table.
func (s *FileStore) Save(_ context.Context, key string, t *table.Table) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	data, err := encode(t)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("replace table: %w", err)
	}
	return nil
}

// Delete removes the table. Deleting a missing key returns ErrNotFound.
func (s *FileStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return err
}

// List returns the keys of every table in session.
func (s *FileStore) List(_ context.Context, session string) ([]string, error) {
	if !ValidSession(session) {
		return nil, fmt.Errorf("%w: session %q", ErrInvalidKey, session)
	}
	entries, err := os.ReadDir(filepath.Join(s.dir, session))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		keys = append(keys, Key(session, strings.TrimSuffix(name, fileExt)))
	}
	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
