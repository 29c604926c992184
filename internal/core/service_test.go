package core

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tabwork/internal/dialect"
	"github.com/JonMunkholm/tabwork/internal/join"
	"github.com/JonMunkholm/tabwork/internal/mutate"
	"github.com/JonMunkholm/tabwork/internal/store"
	"github.com/JonMunkholm/tabwork/internal/summary"
	"github.com/JonMunkholm/tabwork/internal/table"
)

const (
	peopleCSV = "id;name\n1; Alice \n2;Bob\n2;Bob\n"
	scoresCSV = "id,score\n1,90\n2,85\n3,70\n"
)

type fixture struct {
	svc     *Service
	tables  store.Store
	uploads *store.Uploads
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	dir := t.TempDir()
	tables, err := store.NewFileStore(filepath.Join(dir, "tables"))
	require.NoError(t, err)
	uploads, err := store.NewUploads(filepath.Join(dir, "uploads"))
	require.NoError(t, err)
	return &fixture{
		svc:     NewService(tables, uploads, NewLimiter(2, 50*time.Millisecond), opts),
		tables:  tables,
		uploads: uploads,
	}
}

func commaOptions() dialect.Options {
	o := dialect.DefaultOptions()
	o.Delimiter = ","
	return o
}

// uploadPair uploads both sample files and returns the session.
func (f *fixture) uploadPair(t *testing.T) string {
	t.Helper()
	sf, err := f.svc.Upload(context.Background(), []UploadFile{
		{Slot: SlotA, Name: "people.csv", Data: []byte(peopleCSV)},
		{Slot: SlotB, Name: "scores.CSV", Data: []byte(scoresCSV)},
	})
	require.NoError(t, err)
	return sf.Session
}

// importPair uploads and imports both sample files.
func (f *fixture) importPair(t *testing.T) string {
	t.Helper()
	session := f.uploadPair(t)
	_, err := f.svc.Import(context.Background(), session, map[string]dialect.Options{SlotB: commaOptions()})
	require.NoError(t, err)
	return session
}

func TestUpload(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	sf, err := f.svc.Upload(ctx, []UploadFile{
		{Slot: SlotA, Name: "people.csv", Data: []byte(peopleCSV)},
	})
	require.NoError(t, err)
	assert.True(t, store.ValidSession(sf.Session))
	assert.Equal(t, dialect.DefaultOptions(), sf.Defaults)
	require.Len(t, sf.Files, 1)
	assert.Equal(t, "people.csv", sf.Files[0].Name)

	again, err := f.svc.SessionFiles(ctx, sf.Session)
	require.NoError(t, err)
	assert.Equal(t, sf, again)
}

func TestUploadRejects(t *testing.T) {
	f := newFixture(t, Options{MaxFileSize: 16})
	ctx := context.Background()

	tests := []struct {
		name  string
		files []UploadFile
		want  error
	}{
		{"no files", nil, ErrNoFiles},
		{"wrong extension", []UploadFile{{Slot: SlotA, Name: "data.xlsx", Data: []byte("a")}}, ErrUnsupportedFile},
		{"empty", []UploadFile{{Slot: SlotA, Name: "a.csv"}}, ErrEmptyFile},
		{"too large", []UploadFile{{Slot: SlotA, Name: "a.csv", Data: bytes.Repeat([]byte("x"), 17)}}, ErrFileTooLarge},
		{"unknown slot", []UploadFile{{Slot: "file3", Name: "a.csv", Data: []byte("a")}}, store.ErrInvalidKey},
		{"slot twice", []UploadFile{
			{Slot: SlotA, Name: "a.csv", Data: []byte("a")},
			{Slot: SlotA, Name: "b.csv", Data: []byte("b")},
		}, store.ErrInvalidKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Upload(ctx, tt.files)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUploadTooLargeMessage(t *testing.T) {
	f := newFixture(t, Options{MaxFileSize: 1024})
	_, err := f.svc.Upload(context.Background(), []UploadFile{
		{Slot: SlotA, Name: "big.csv", Data: bytes.Repeat([]byte("x"), 2048)},
	})
	require.Error(t, err)
	msg := MapError(err)
	assert.Equal(t, "FILE001", msg.Code)
	assert.Equal(t, "big.csv is 2.0 KiB, the limit is 1.0 KiB", msg.Message)
}

func TestPreview(t *testing.T) {
	f := newFixture(t, Options{PreviewRows: 2})
	ctx := context.Background()
	session := f.uploadPair(t)

	p, err := f.svc.Preview(ctx, session, SlotB, commaOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "score"}, p.Table.Columns)
	assert.Equal(t, 2, p.Table.Len())
	assert.Empty(t, p.Warnings)

	// Previewing with the wrong delimiter still works, as one column.
	p, err = f.svc.Preview(ctx, session, SlotB, dialect.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"id,score"}, p.Table.Columns)

	// Previews never store anything.
	keys, err := f.tables.List(ctx, session)
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = f.svc.Preview(ctx, session, "file9", commaOptions())
	assert.ErrorIs(t, err, store.ErrUploadNotFound)
}

func TestImport(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	session := f.uploadPair(t)

	report, err := f.svc.Import(ctx, session, map[string]dialect.Options{SlotB: commaOptions()})
	require.NoError(t, err)
	require.Len(t, report.Files, 2)
	assert.Equal(t, 2, report.Imported())

	people := report.Files[0]
	assert.Equal(t, store.Key(session, SlotA), people.Key)
	assert.Equal(t, 2, people.Rows)
	require.NotNil(t, people.Clean)
	assert.Equal(t, 1, people.Clean.DuplicatesRemoved)

	t1, err := f.svc.Table(ctx, people.Key)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", table.FlagColumn}, t1.Columns)
	assert.Equal(t, "Alice", t1.Rows[0][1].String())

	// Raw files are gone once something was imported.
	raw, err := f.uploads.List(session)
	require.NoError(t, err)
	assert.Empty(t, raw)

	d, err := f.svc.Tables(ctx, session)
	require.NoError(t, err)
	require.Len(t, d.Tables, 2)
	assert.Equal(t, "people.csv", d.Tables[0].Label)
	assert.Equal(t, "scores.CSV", d.Tables[1].Label)
	assert.Empty(t, d.Failed)
}

func TestImportPartialFailure(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	session := f.uploadPair(t)

	bad := commaOptions()
	bad.Encoding = "klingon"
	report, err := f.svc.Import(ctx, session, map[string]dialect.Options{SlotB: bad})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported())

	failed := report.Files[1]
	assert.True(t, failed.Failed())
	assert.Equal(t, "PARSE001", failed.Code)

	d, err := f.svc.Tables(ctx, session)
	require.NoError(t, err)
	require.Len(t, d.Tables, 1)
	require.Len(t, d.Failed, 1)
	assert.Equal(t, "scores.CSV", d.Failed[0].Name)
}

func TestImportNothingImported(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	session := f.uploadPair(t)

	bad := dialect.DefaultOptions()
	bad.Encoding = "klingon"
	report, err := f.svc.Import(ctx, session, map[string]dialect.Options{SlotA: bad, SlotB: bad})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNothingImported)
	assert.Equal(t, 0, report.Imported())

	// Raw files stay so the user can retry with other options.
	raw, err := f.uploads.List(session)
	require.NoError(t, err)
	assert.Len(t, raw, 2)

	_, err = f.svc.Tables(ctx, session)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestImportBusy(t *testing.T) {
	f := newFixture(t, Options{})
	session := f.uploadPair(t)

	l := f.svc.Limiter()
	for l.TryAcquire() {
	}
	defer func() {
		for l.ActiveCount() > 0 {
			l.Release()
		}
	}()

	_, err := f.svc.Import(context.Background(), session, nil)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, "RATE002", MapError(err).Code)
}

func TestInvalidSession(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.Tables(ctx, "../etc")
	assert.ErrorIs(t, err, ErrInvalidSession)
	_, err = f.svc.Import(ctx, "", nil)
	assert.ErrorIs(t, err, ErrInvalidSession)
	_, err = f.svc.SessionFiles(ctx, "unknown")
	assert.ErrorIs(t, err, store.ErrUploadNotFound)
}

func TestApplyChanges(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	session := f.importPair(t)
	key := store.Key(session, SlotA)

	res, err := f.svc.ApplyChanges(ctx, key, mutate.Batch{
		mutate.Edit{Row: 0, Column: "name", Value: "Alicia"},
		mutate.AddRow{},
		mutate.AddColumn{Name: "name"},
	})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, 2, res.Warnings[0].Index)

	saved, err := f.svc.Table(ctx, key)
	require.NoError(t, err)
	assert.True(t, res.Table.Equal(saved))
	assert.Equal(t, 3, saved.Len())
	assert.Equal(t, "Alicia", saved.Rows[0][1].String())
}

func TestDecodeChanges(t *testing.T) {
	batch, err := DecodeChanges([]byte(`[{"type":"delete_row","row":1}]`))
	require.NoError(t, err)
	assert.Equal(t, mutate.Batch{mutate.DeleteRow{Row: 1}}, batch)

	_, err = DecodeChanges([]byte(`[{"type":"explode"}]`))
	assert.ErrorIs(t, err, ErrInvalidChanges)
	assert.Equal(t, "CHG001", MapError(err).Code)
}

func TestSummarize(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	session := f.importPair(t)

	s, err := f.svc.Summarize(ctx, store.Key(session, SlotB), "score")
	require.NoError(t, err)
	assert.Equal(t, summary.TypeBar, s.Type)
	assert.Len(t, s.Labels, 3)

	_, err = f.svc.Summarize(ctx, store.Key(session, SlotB), "missing")
	assert.ErrorIs(t, err, table.ErrColumnNotFound)
}

func TestJoin(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	session := f.importPair(t)

	out, err := f.svc.Join(ctx, JoinRequest{
		TableA: store.Key(session, SlotA),
		TableB: store.Key(session, SlotB),
		Spec:   join.Spec{LeftColumn: "id", RightColumn: "id", Mode: join.Inner},
	})
	require.NoError(t, err)
	assert.Equal(t, join.StatusSuccess, out.Status)
	assert.Equal(t, 2, out.Table.Len())
	assert.True(t, out.Table.HasColumn("score"))
	assert.True(t, strings.HasPrefix(out.Key, session+"/"))

	saved, err := f.svc.Table(ctx, out.Key)
	require.NoError(t, err)
	assert.True(t, out.Table.Equal(saved))

	d, err := f.svc.Tables(ctx, session)
	require.NoError(t, err)
	require.Len(t, d.Tables, 3)
	assert.True(t, strings.HasPrefix(d.Tables[2].Label, "Joined table "))
}

func TestJoinConfirm(t *testing.T) {
	f := newFixture(t, Options{JoinMaxRows: 1})
	ctx := context.Background()
	session := f.importPair(t)
	req := JoinRequest{
		TableA: store.Key(session, SlotA),
		TableB: store.Key(session, SlotB),
		Spec:   join.Spec{LeftColumn: "id", RightColumn: "id", Mode: join.Outer},
	}

	out, err := f.svc.Join(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, join.StatusConfirm, out.Status)
	assert.Empty(t, out.Key)
	assert.Nil(t, out.Table)

	keys, err := f.tables.List(ctx, session)
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	req.Force = true
	out, err = f.svc.Join(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, join.StatusSuccess, out.Status)
	assert.NotEmpty(t, out.Key)
}

func TestJoinErrors(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	session := f.importPair(t)

	_, err := f.svc.Join(ctx, JoinRequest{TableA: store.Key(session, SlotA)})
	assert.ErrorIs(t, err, ErrJoinNeedsTables)

	_, err = f.svc.Join(ctx, JoinRequest{
		TableA: store.Key(session, SlotA),
		TableB: store.Key(session, SlotB),
		Spec:   join.Spec{LeftColumn: "nope", RightColumn: "id", Mode: join.Inner},
	})
	assert.ErrorIs(t, err, table.ErrColumnNotFound)

	_, err = f.svc.Join(ctx, JoinRequest{
		TableA: store.Key(session, SlotA),
		TableB: store.Key(session, "gone"),
		Spec:   join.Spec{LeftColumn: "id", RightColumn: "id", Mode: join.Inner},
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestExport(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	session := f.importPair(t)

	var buf bytes.Buffer
	require.NoError(t, f.svc.Export(ctx, store.Key(session, SlotB), &buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "id,score,"+table.FlagColumn, lines[0])
}

func TestDeleteSession(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	session := f.importPair(t)

	require.NoError(t, f.svc.DeleteSession(ctx, session))

	_, err := f.svc.Tables(ctx, session)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.svc.Table(ctx, store.Key(session, SlotA))
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestDeleteTable(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	session := f.importPair(t)
	key := store.Key(session, SlotB)

	require.NoError(t, f.svc.DeleteTable(ctx, key))
	assert.ErrorIs(t, f.svc.DeleteTable(ctx, key), store.ErrNotFound)
	assert.ErrorIs(t, f.svc.DeleteTable(ctx, "not-a-key"), store.ErrInvalidKey)
}
