package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestPreviewCommand(t *testing.T) {
	path := writeFile(t, "people.csv", "id;name\n1;Alice\n2;Bob\n3;Carol\n")

	out, _, err := run(t, "preview", "-n", "2", path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"id", "name"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"2", "Bob"}, strings.Fields(lines[2]))
}

func TestCleanCommand(t *testing.T) {
	path := writeFile(t, "people.csv", "id,name\n1, Alice \n2,Bob\n2,Bob\n")
	dest := filepath.Join(t.TempDir(), "out.csv")

	_, stderr, err := run(t, "clean", "-d", ",", "-o", dest, path)
	require.NoError(t, err)
	assert.Contains(t, stderr, "2 rows, 1 duplicates removed")

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id,name,inconsistency_flag", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1,Alice,"))
}

func TestSummaryCommand(t *testing.T) {
	path := writeFile(t, "regions.csv", "region\nEU\nUS\nEU\n")

	out, _, err := run(t, "summary", "--column", "region", path)
	require.NoError(t, err)
	assert.Contains(t, out, "bar")
	assert.Regexp(t, `EU\s+2`, out)
	assert.Regexp(t, `US\s+1`, out)

	_, _, err = run(t, "summary", "--column", "nope", path)
	assert.Error(t, err)
}

func TestJoinCommand(t *testing.T) {
	a := writeFile(t, "a.csv", "id;name\n1;Alice\n2;Bob\n")
	b := writeFile(t, "b.csv", "id;score\n1;90\n3;70\n")

	out, _, err := run(t, "join", "--left", "id", "--right", "id", a, b)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 2, "header and one matched row")

	_, _, err = run(t, "join", "--left", "id", "--right", "id", "-m", "outer", "--max-rows", "1", a, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	out, _, err = run(t, "join", "--left", "id", "--right", "id", "-m", "outer", "--max-rows", "1", "--force", a, b)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 4)
}

func TestMissingFile(t *testing.T) {
	_, _, err := run(t, "preview", filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
