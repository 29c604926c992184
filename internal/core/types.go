package core

import (
	"errors"
	"time"

	"github.com/JonMunkholm/tabwork/internal/clean"
	"github.com/JonMunkholm/tabwork/internal/dialect"
	"github.com/JonMunkholm/tabwork/internal/join"
	"github.com/JonMunkholm/tabwork/internal/mutate"
	"github.com/JonMunkholm/tabwork/internal/store"
	"github.com/JonMunkholm/tabwork/internal/table"
)

// Upload slots. A session holds at most one file per slot.
const (
	SlotA = "file1"
	SlotB = "file2"
)

// Slots lists the upload slots in display order.
var Slots = []string{SlotA, SlotB}

// importMeta names the document holding the last import report.
const importMeta = "import"

var (
	ErrNoFiles         = errors.New("no file provided")
	ErrEmptyFile       = errors.New("empty file")
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrInvalidSession  = errors.New("invalid session")
	ErrNothingImported = errors.New("no file could be imported")
	ErrInvalidChanges  = errors.New("invalid change batch")
	ErrJoinNeedsTables = errors.New("join needs two tables")
	ErrBadRequest      = errors.New("malformed request")
)

// UploadFile is one file received for a slot.
type UploadFile struct {
	Slot string
	Name string
	Data []byte
}

// SessionFiles describes the raw files waiting for import and the parsing
// options the configure page starts from.
type SessionFiles struct {
	Session  string          `json:"session"`
	Files    []store.RawFile `json:"files"`
	Defaults dialect.Options `json:"defaults"`
}

// Preview is the first rows of a raw file parsed with candidate options.
type Preview struct {
	Slot     string
	Table    *table.Table
	Warnings []dialect.Warning
}

// FileReport is the outcome of importing one raw file. Error and Code are
// set instead of Key when the file failed.
type FileReport struct {
	Slot     string            `json:"slot"`
	Name     string            `json:"name"`
	Key      string            `json:"key,omitempty"`
	Options  dialect.Options   `json:"options"`
	Rows     int               `json:"rows"`
	Warnings []dialect.Warning `json:"warnings,omitempty"`
	Clean    *clean.Report     `json:"clean,omitempty"`
	Error    string            `json:"error,omitempty"`
	Code     string            `json:"code,omitempty"`
}

// Failed reports whether the file was not imported.
func (f FileReport) Failed() bool {
	return f.Key == ""
}

// ImportReport collects the per-file outcomes of a final import.
type ImportReport struct {
	Session    string       `json:"session"`
	Files      []FileReport `json:"files"`
	ImportedAt time.Time    `json:"imported_at"`
}

// Imported counts the files that became working tables.
func (r *ImportReport) Imported() int {
	n := 0
	for _, f := range r.Files {
		if !f.Failed() {
			n++
		}
	}
	return n
}

// forKey returns the file report that produced key, if any.
func (r *ImportReport) forKey(key string) (FileReport, bool) {
	if r == nil {
		return FileReport{}, false
	}
	for _, f := range r.Files {
		if f.Key == key {
			return f, true
		}
	}
	return FileReport{}, false
}

// NamedTable is a working table with the label shown to users.
type NamedTable struct {
	Key      string
	Name     string
	Label    string
	Table    *table.Table
	Warnings []dialect.Warning
}

// Display is everything the results page shows for a session.
type Display struct {
	Session string
	Tables  []NamedTable
	Failed  []FileReport
}

// ChangeResult is a table after a change batch plus the skipped operations.
type ChangeResult struct {
	Table    *table.Table
	Warnings []mutate.Warning
}

// JoinRequest names two working tables by key and how to combine them.
type JoinRequest struct {
	TableA string
	TableB string
	Spec   join.Spec
	Force  bool
}

// JoinOutcome is the result of a join request. Key and Table are set only
// when Status is success.
type JoinOutcome struct {
	Status        join.Status
	Message       string
	PredictedRows int64
	Key           string
	Table         *table.Table
}
