// Package mutate applies ordered change batches to a table.
//
// An Operation is a closed set of variants; Apply switches over every one of
// them. Operations that cannot be applied are skipped and reported as
// warnings, the rest of the batch still applies.
package mutate

import (
	"errors"
	"fmt"
)

// ErrOperationSkipped is wrapped by every Warning.
var ErrOperationSkipped = errors.New("operation skipped")

// Operation is one edit in a batch. The unexported method keeps the set of
// variants closed to this package.
type Operation interface {
	Kind() string
	operation()
}

// Edit sets a single cell. Row is read after the batch's row deletions.
type Edit struct {
	Row    int
	Column string
	Value  string
}

// AddRow appends a row of empty strings.
type AddRow struct{}

// DeleteRow removes the row at a pre-batch position.
type DeleteRow struct {
	Row int
}

// DeleteGroup removes every row whose cell in Column, as text, equals Value.
type DeleteGroup struct {
	Column string
	Value  string
}

// AddColumn appends a column of empty strings.
type AddColumn struct {
	Name string
}

// DeleteColumn removes a column.
type DeleteColumn struct {
	Name string
}

// FindReplace replaces cells whose text equals Find. An empty Column means
// every column.
type FindReplace struct {
	Find    string
	Replace string
	Column  string
}

func (Edit) Kind() string         { return "edit" }
func (AddRow) Kind() string       { return "add_row" }
func (DeleteRow) Kind() string    { return "delete_row" }
func (DeleteGroup) Kind() string  { return "delete_group" }
func (AddColumn) Kind() string    { return "add_column" }
func (DeleteColumn) Kind() string { return "delete_column" }
func (FindReplace) Kind() string  { return "find_replace" }

func (Edit) operation()         {}
func (AddRow) operation()       {}
func (DeleteRow) operation()    {}
func (DeleteGroup) operation()  {}
func (AddColumn) operation()    {}
func (DeleteColumn) operation() {}
func (FindReplace) operation()  {}

// Batch is an ordered list of operations for one table.
type Batch []Operation

// Warning reports a skipped operation. Index is its position in the batch.
type Warning struct {
	Index  int    `json:"index"`
	Op     string `json:"op"`
	Reason string `json:"reason"`
}

func (w Warning) Error() string {
	return fmt.Sprintf("%s #%d: %s", w.Op, w.Index, w.Reason)
}

func (w Warning) Unwrap() error {
	return ErrOperationSkipped
}
