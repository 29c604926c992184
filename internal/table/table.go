// Package table defines the in-memory tabular model shared by every engine
// package: ordered, uniquely named columns and ordered rows of nullable cells.
//
// Cells are untyped at rest. A column's effective type is only decided when an
// operation needs it, through [InferKind], so that cleaning and summarization
// agree on what counts as numeric.
package table

import (
	"errors"
	"fmt"
)

// FlagColumn is the boolean annotation column added by the cleaning pipeline.
const FlagColumn = "inconsistency_flag"

// Boolean cell literals. These match the spelling used when flags are written
// to CSV so that exported files re-import as booleans.
const (
	TrueText  = "True"
	FalseText = "False"
)

var (
	// ErrColumnNotFound is returned when an operation names a column the table does not have.
	ErrColumnNotFound = errors.New("column not found")

	// ErrDuplicateColumn is returned when a column name is already in use.
	ErrDuplicateColumn = errors.New("duplicate column name")
)

// Value is a single cell. The zero Value is null.
type Value struct {
	text  string
	valid bool
}

// Text returns a non-null cell holding s.
func Text(s string) Value {
	return Value{text: s, valid: true}
}

// Null returns a null cell.
func Null() Value {
	return Value{}
}

// Bool returns the boolean cell literal for b.
func Bool(b bool) Value {
	if b {
		return Text(TrueText)
	}
	return Text(FalseText)
}

// IsNull reports whether the cell is absent.
func (v Value) IsNull() bool {
	return !v.valid
}

// String returns the textual form of the cell. Null renders as "".
func (v Value) String() string {
	return v.text
}

// Equal reports whether two cells are identical, null only equal to null.
func (v Value) Equal(o Value) bool {
	return v.valid == o.valid && v.text == o.text
}

// Table is an ordered set of named columns and rows. Every row has exactly
// len(Columns) cells.
type Table struct {
	Columns []string
	Rows    [][]Value
}

// New creates an empty table with the given columns.
// Returns ErrDuplicateColumn if a name repeats.
func New(columns []string) (*Table, error) {
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if _, ok := seen[c]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, c)
		}
		seen[c] = struct{}{}
	}
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{Columns: cols}, nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of the named column or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Column returns a copy of the named column's cells.
func (t *Table) Column(name string) ([]Value, error) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	out := make([]Value, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// AppendRow adds a row. The row must have one cell per column.
func (t *Table) AppendRow(row []Value) error {
	if len(row) != len(t.Columns) {
		return fmt.Errorf("row has %d cells, table has %d columns", len(row), len(t.Columns))
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// AppendColumn adds a column at the end with every cell set to fill.
func (t *Table) AppendColumn(name string, fill Value) error {
	if t.HasColumn(name) {
		return fmt.Errorf("%w: %q", ErrDuplicateColumn, name)
	}
	t.Columns = append(t.Columns, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], fill)
	}
	return nil
}

// DropColumn removes the named column. Returns false if it was absent.
func (t *Table) DropColumn(name string) bool {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return false
	}
	t.Columns = append(t.Columns[:idx:idx], t.Columns[idx+1:]...)
	for i, row := range t.Rows {
		t.Rows[i] = append(row[:idx:idx], row[idx+1:]...)
	}
	return true
}

// Clone returns a deep copy. Engine operations work on clones so that the
// caller's table is never modified.
func (t *Table) Clone() *Table {
	out := &Table{
		Columns: make([]string, len(t.Columns)),
		Rows:    make([][]Value, len(t.Rows)),
	}
	copy(out.Columns, t.Columns)
	for i, row := range t.Rows {
		r := make([]Value, len(row))
		copy(r, row)
		out.Rows[i] = r
	}
	return out
}

// Equal reports whether two tables have the same columns and cells.
func (t *Table) Equal(o *Table) bool {
	if len(t.Columns) != len(o.Columns) || len(t.Rows) != len(o.Rows) {
		return false
	}
	for i := range t.Columns {
		if t.Columns[i] != o.Columns[i] {
			return false
		}
	}
	for i := range t.Rows {
		for j := range t.Rows[i] {
			if !t.Rows[i][j].Equal(o.Rows[i][j]) {
				return false
			}
		}
	}
	return true
}
