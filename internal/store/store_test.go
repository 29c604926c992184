package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tabwork/internal/table"
)

func sample(t *testing.T, tag string) *table.Table {
	t.Helper()
	tbl, err := table.New([]string{"id", "price", "note", table.FlagColumn})
	require.NoError(t, err)
	require.NoError(t, tbl.AppendRow([]table.Value{table.Text("1"), table.Text("2.50"), table.Text(tag), table.Text("False")}))
	require.NoError(t, tbl.AppendRow([]table.Value{table.Text("2"), table.Null(), table.Text("null"), table.Text("True")}))
	return tbl
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	session := "sess-" + filepath.Base(t.Name())

	// Database backends may hold documents from an earlier run.
	stale, err := s.List(ctx, session)
	require.NoError(t, err)
	for _, k := range stale {
		require.NoError(t, s.Delete(ctx, k))
	}

	_, err = s.Load(ctx, Key(session, "missing"))
	require.ErrorIs(t, err, ErrNotFound)

	want := sample(t, "first")
	require.NoError(t, s.Save(ctx, Key(session, "file1"), want))

	got, err := s.Load(ctx, Key(session, "file1"))
	require.NoError(t, err)
	assert.True(t, want.Equal(got), "loaded table differs")

	// Overwrite.
	second := sample(t, "second")
	require.NoError(t, s.Save(ctx, Key(session, "file1"), second))
	got, err = s.Load(ctx, Key(session, "file1"))
	require.NoError(t, err)
	assert.Equal(t, "second", got.Rows[0][2].String())

	joined := NewKey(session)
	require.NoError(t, s.Save(ctx, joined, want))

	keys, err := s.List(ctx, session)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{Key(session, "file1"), joined}, keys)

	require.NoError(t, s.Delete(ctx, joined))
	require.ErrorIs(t, s.Delete(ctx, joined), ErrNotFound)

	_, err = s.Load(ctx, "../etc/passwd")
	require.ErrorIs(t, err, ErrInvalidKey)

	// Concurrent whole-table writers leave one complete document.
	race := sample(t, "race")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Save(ctx, Key(session, "race"), race)
		}()
	}
	wg.Wait()
	got, err = s.Load(ctx, Key(session, "race"))
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "tabwork.db"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TABWORK_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TABWORK_TEST_DATABASE_URL not set")
	}
	s, err := NewPostgres(context.Background(), url, PoolConfig{MaxConns: 4})
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Config{Backend: "floppy"})
	require.Error(t, err)
}

func TestSplitKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"abc/file1", false},
		{"abc/0b7c3f9e-1111-4222-8333-444455556666", false},
		{"abc", true},
		{"abc/", true},
		{"/file1", true},
		{"abc/../x", true},
		{"a b/file1", true},
		{"abc/.hidden", true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			_, _, err := SplitKey(tt.key)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidKey)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
