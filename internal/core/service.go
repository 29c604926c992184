package core

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/tabwork/internal/clean"
	"github.com/JonMunkholm/tabwork/internal/dialect"
	"github.com/JonMunkholm/tabwork/internal/join"
	"github.com/JonMunkholm/tabwork/internal/logging"
	"github.com/JonMunkholm/tabwork/internal/mutate"
	"github.com/JonMunkholm/tabwork/internal/store"
	"github.com/JonMunkholm/tabwork/internal/summary"
	"github.com/JonMunkholm/tabwork/internal/table"
)

// Options tune the service. Zero values select the defaults below.
type Options struct {
	MaxFileSize       int64
	AllowedExtensions []string
	PreviewRows       int
	ImportWorkers     int
	ImportTimeout     time.Duration
	JoinMaxRows       int64
}

const (
	defaultMaxFileSize   = 50 << 20
	defaultPreviewRows   = 20
	defaultImportWorkers = 2
	defaultImportTimeout = 5 * time.Minute
)

func (o Options) withDefaults() Options {
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = defaultMaxFileSize
	}
	if len(o.AllowedExtensions) == 0 {
		o.AllowedExtensions = []string{".csv"}
	}
	if o.PreviewRows <= 0 {
		o.PreviewRows = defaultPreviewRows
	}
	if o.ImportWorkers <= 0 {
		o.ImportWorkers = defaultImportWorkers
	}
	if o.ImportTimeout <= 0 {
		o.ImportTimeout = defaultImportTimeout
	}
	if o.JoinMaxRows <= 0 {
		o.JoinMaxRows = join.DefaultMaxRows
	}
	return o
}

// Service runs the upload, import, edit and join workflow on top of a table
// store and the raw upload area.
type Service struct {
	tables  store.Store
	uploads *store.Uploads
	limiter *Limiter
	opts    Options
}

// NewService creates a Service. A nil limiter gets the default limits.
func NewService(tables store.Store, uploads *store.Uploads, limiter *Limiter, opts Options) *Service {
	if limiter == nil {
		limiter = NewLimiter(0, 0)
	}
	return &Service{
		tables:  tables,
		uploads: uploads,
		limiter: limiter,
		opts:    opts.withDefaults(),
	}
}

// Limiter exposes the heavy-operation limiter for health checks and drain.
func (s *Service) Limiter() *Limiter {
	return s.limiter
}

// Upload stores raw files under a new session and returns the session's
// files. Every file is checked before anything is written.
func (s *Service) Upload(ctx context.Context, files []UploadFile) (*SessionFiles, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if err := s.checkUpload(f); err != nil {
			return nil, err
		}
		if seen[f.Slot] {
			return nil, fmt.Errorf("%w: slot %q given twice", store.ErrInvalidKey, f.Slot)
		}
		seen[f.Slot] = true
	}

	session := uuid.NewString()
	ctx = logging.WithSession(ctx, session)
	logger := logging.FromContext(ctx)

	for _, f := range files {
		if err := s.uploads.Put(session, f.Slot, f.Name, f.Data); err != nil {
			return nil, fmt.Errorf("store %s: %w", f.Slot, err)
		}
		logger.Info("file uploaded", "slot", f.Slot, "file", f.Name, "size", len(f.Data))
	}

	return s.SessionFiles(ctx, session)
}

func (s *Service) checkUpload(f UploadFile) error {
	if !slices.Contains(Slots, f.Slot) {
		return fmt.Errorf("%w: unknown slot %q", store.ErrInvalidKey, f.Slot)
	}
	ext := strings.ToLower(filepath.Ext(f.Name))
	if !slices.Contains(s.opts.AllowedExtensions, ext) {
		return NewUserError(ErrUnsupportedFile, "%s is not a supported file type (allowed: %s)",
			f.Name, strings.Join(s.opts.AllowedExtensions, ", "))
	}
	if len(f.Data) == 0 {
		return NewUserError(ErrEmptyFile, "%s is empty", f.Name)
	}
	if int64(len(f.Data)) > s.opts.MaxFileSize {
		return sizeLimitError(f.Name, int64(len(f.Data)), s.opts.MaxFileSize)
	}
	return nil
}

// SessionFiles lists the raw files of a session awaiting import.
func (s *Service) SessionFiles(ctx context.Context, session string) (*SessionFiles, error) {
	if err := checkSession(session); err != nil {
		return nil, err
	}
	files, err := s.uploads.List(session)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: session %s has no pending files", store.ErrUploadNotFound, session)
	}
	return &SessionFiles{
		Session:  session,
		Files:    files,
		Defaults: dialect.DefaultOptions(),
	}, nil
}

// Preview parses the first rows of one raw file with opts. Nothing is
// cleaned or stored.
func (s *Service) Preview(ctx context.Context, session, slot string, opts dialect.Options) (*Preview, error) {
	if err := checkSession(session); err != nil {
		return nil, err
	}
	_, data, err := s.uploads.Get(session, slot)
	if err != nil {
		return nil, err
	}
	res, err := dialect.Parse(data, opts, s.opts.PreviewRows)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Debug("preview parsed",
		"slot", slot, "rows", res.Table.Len(), "warnings", len(res.Warnings))
	return &Preview{Slot: slot, Table: res.Table, Warnings: res.Warnings}, nil
}

// Import parses and cleans every raw file of the session with the options
// chosen for its slot (DefaultOptions when absent) and saves each result as
// a working table keyed "<session>/<slot>". Files fail independently; the
// call fails only when no file could be imported. Raw files are removed
// once at least one import succeeded.
func (s *Service) Import(ctx context.Context, session string, opts map[string]dialect.Options) (*ImportReport, error) {
	if err := checkSession(session); err != nil {
		return nil, err
	}
	ctx = logging.WithSession(ctx, session)
	logger := logging.FromContext(ctx)

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.opts.ImportTimeout)
	defer cancel()

	files, err := s.uploads.List(session)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: session %s has no pending files", store.ErrUploadNotFound, session)
	}

	report := &ImportReport{
		Session:    session,
		Files:      make([]FileReport, len(files)),
		ImportedAt: time.Now().UTC(),
	}

	var g errgroup.Group
	g.SetLimit(s.opts.ImportWorkers)
	for i, f := range files {
		o, ok := opts[f.Slot]
		if !ok {
			o = dialect.DefaultOptions()
		}
		g.Go(func() error {
			report.Files[i] = s.importFile(ctx, session, f, o)
			return nil
		})
	}
	_ = g.Wait()

	if err := s.uploads.PutMeta(session, importMeta, report); err != nil {
		logger.Warn("failed to save import report", "error", err)
	}

	if report.Imported() == 0 {
		first := report.Files[0]
		return report, NewUserError(ErrNothingImported,
			"None of the uploaded files could be imported: %s: %s", first.Name, first.Error)
	}

	for _, f := range files {
		if err := s.uploads.Remove(session, f.Slot); err != nil {
			logger.Warn("failed to remove raw upload", "slot", f.Slot, "error", err)
		}
	}

	logger.Info("import complete", "files", len(files), "imported", report.Imported())
	return report, nil
}

func (s *Service) importFile(ctx context.Context, session string, f store.RawFile, opts dialect.Options) FileReport {
	logger := logging.WithFields(ctx, "slot", f.Slot, "file", f.Name)
	fr := FileReport{Slot: f.Slot, Name: f.Name, Options: opts}

	fail := func(err error) FileReport {
		msg := MapError(err)
		fr.Error = msg.Message
		fr.Code = msg.Code
		logger.Warn("file import failed", "error", err, "code", msg.Code)
		return fr
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	_, data, err := s.uploads.Get(session, f.Slot)
	if err != nil {
		return fail(err)
	}
	res, err := dialect.Parse(data, opts, 0)
	if err != nil {
		return fail(err)
	}
	cleaned, rep := clean.Clean(res.Table, logger)

	key := store.Key(session, f.Slot)
	if err := s.tables.Save(ctx, key, cleaned); err != nil {
		return fail(err)
	}

	fr.Key = key
	fr.Rows = cleaned.Len()
	fr.Warnings = res.Warnings
	fr.Clean = &rep
	logger.Info("file imported", "key", key, "rows", fr.Rows,
		"warnings", len(res.Warnings), "flagged", rep.Flagged)
	return fr
}

// Tables loads every working table of a session for display. Imported files
// come first in slot order, then join results. Files that failed in the last
// import are returned in Failed.
func (s *Service) Tables(ctx context.Context, session string) (*Display, error) {
	if err := checkSession(session); err != nil {
		return nil, err
	}
	keys, err := s.tables.List(ctx, session)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: session %s has no tables", store.ErrNotFound, session)
	}

	var report *ImportReport
	if err := s.uploads.GetMeta(session, importMeta, &report); err != nil {
		logging.FromContext(ctx).Warn("failed to read import report", "session", session, "error", err)
	}

	d := &Display{Session: session}
	for _, key := range keys {
		t, err := s.tables.Load(ctx, key)
		if err != nil {
			return nil, err
		}
		_, name, _ := store.SplitKey(key)
		nt := NamedTable{Key: key, Name: name, Label: "Joined table " + shortName(name), Table: t}
		if fr, ok := report.forKey(key); ok {
			nt.Label = fr.Name
			nt.Warnings = fr.Warnings
		}
		d.Tables = append(d.Tables, nt)
	}
	slices.SortStableFunc(d.Tables, func(a, b NamedTable) int {
		return slotRank(a.Name) - slotRank(b.Name)
	})

	if report != nil {
		for _, f := range report.Files {
			if f.Failed() {
				d.Failed = append(d.Failed, f)
			}
		}
	}
	return d, nil
}

func slotRank(name string) int {
	if i := slices.Index(Slots, name); i >= 0 {
		return i
	}
	return len(Slots)
}

func shortName(name string) string {
	if len(name) > 8 {
		return name[:8]
	}
	return name
}

// Table loads one working table.
func (s *Service) Table(ctx context.Context, key string) (*table.Table, error) {
	if _, _, err := store.SplitKey(key); err != nil {
		return nil, err
	}
	return s.tables.Load(ctx, key)
}

// DecodeChanges reads a JSON change batch.
func DecodeChanges(data []byte) (mutate.Batch, error) {
	batch, err := mutate.DecodeBatch(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChanges, err)
	}
	return batch, nil
}

// ApplyChanges loads the table at key, applies batch and saves the result
// back under the same key. Skipped operations are returned as warnings.
func (s *Service) ApplyChanges(ctx context.Context, key string, batch mutate.Batch) (*ChangeResult, error) {
	t, err := s.Table(ctx, key)
	if err != nil {
		return nil, err
	}
	out, warnings := mutate.Apply(t, batch)
	if err := s.tables.Save(ctx, key, out); err != nil {
		return nil, err
	}

	logger := logging.FromContext(ctx)
	for _, w := range warnings {
		logger.Debug("change skipped", "key", key, "index", w.Index, "op", w.Op, "reason", w.Reason)
	}
	logger.Info("changes saved", "key", key, "operations", len(batch),
		"skipped", len(warnings), "rows", out.Len(), "columns", len(out.Columns))
	return &ChangeResult{Table: out, Warnings: warnings}, nil
}

// Summarize builds the chart summary of one column.
func (s *Service) Summarize(ctx context.Context, key, column string) (summary.Summary, error) {
	t, err := s.Table(ctx, key)
	if err != nil {
		return summary.Summary{}, err
	}
	return summary.Summarize(t, column)
}

// Join combines two working tables. A success result is saved under a fresh
// key in TableA's session. Confirm results store nothing.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*JoinOutcome, error) {
	if req.TableA == "" || req.TableB == "" {
		return nil, ErrJoinNeedsTables
	}
	session, _, err := store.SplitKey(req.TableA)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithSession(ctx, session)

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	a, err := s.Table(ctx, req.TableA)
	if err != nil {
		return nil, err
	}
	b, err := s.Table(ctx, req.TableB)
	if err != nil {
		return nil, err
	}

	res, err := join.Run(a, b, req.Spec, join.Options{Force: req.Force, MaxRows: s.opts.JoinMaxRows})
	if err != nil {
		return nil, err
	}

	out := &JoinOutcome{
		Status:        res.Status,
		Message:       res.Message,
		PredictedRows: res.PredictedRows,
	}
	logger := logging.WithFields(ctx, "table_a", req.TableA, "table_b", req.TableB,
		"mode", req.Spec.Mode, "compare", req.Spec.Compare)
	if res.Status != join.StatusSuccess {
		logger.Info("join needs confirmation", "predicted_rows", res.PredictedRows)
		return out, nil
	}

	key := store.NewKey(session)
	if err := s.tables.Save(ctx, key, res.Table); err != nil {
		return nil, err
	}
	out.Key = key
	out.Table = res.Table
	logger.Info("join saved", "key", key, "rows", res.Table.Len())
	return out, nil
}

// Export writes the table at key as CSV.
func (s *Service) Export(ctx context.Context, key string, w io.Writer) error {
	t, err := s.Table(ctx, key)
	if err != nil {
		return err
	}
	return t.WriteCSV(w)
}

// DeleteTable removes one working table.
func (s *Service) DeleteTable(ctx context.Context, key string) error {
	if _, _, err := store.SplitKey(key); err != nil {
		return err
	}
	if err := s.tables.Delete(ctx, key); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("table deleted", "key", key)
	return nil
}

// DeleteSession removes every table, raw file and report of a session.
func (s *Service) DeleteSession(ctx context.Context, session string) error {
	if err := checkSession(session); err != nil {
		return err
	}
	keys, err := s.tables.List(ctx, session)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.tables.Delete(ctx, key); err != nil {
			return err
		}
	}
	if err := s.uploads.RemoveSession(session); err != nil {
		return fmt.Errorf("remove uploads: %w", err)
	}
	logging.FromContext(ctx).Info("session deleted", "session", session, "tables", len(keys))
	return nil
}

func checkSession(session string) error {
	if !store.ValidSession(session) {
		return fmt.Errorf("%w: %q", ErrInvalidSession, session)
	}
	return nil
}
