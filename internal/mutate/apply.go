package mutate

import (
	"fmt"
	"sort"

	"github.com/JonMunkholm/tabwork/internal/table"
)

// Apply runs batch against a copy of t and returns the copy with a warning
// for every skipped operation. t is never modified, so callers persist the
// result only when they accept the whole batch.
//
// Row deletions run first as one set against the pre-batch positions and the
// rows are renumbered. Every other operation then runs in batch order and
// sees the result of the operations before it.
func Apply(t *table.Table, batch Batch) (*table.Table, []Warning) {
	out := t.Clone()
	var warnings []Warning

	skip := func(i int, op Operation, format string, args ...any) {
		warnings = append(warnings, Warning{Index: i, Op: op.Kind(), Reason: fmt.Sprintf(format, args...)})
	}

	deleteRows(out, batch, skip)

	for i, op := range batch {
		switch op := op.(type) {
		case DeleteRow:
			// Handled above.
		case DeleteGroup:
			deleteGroup(out, i, op, skip)
		case DeleteColumn:
			if !out.DropColumn(op.Name) {
				skip(i, op, "column %q not found", op.Name)
			}
		case AddRow:
			addRow(out)
		case AddColumn:
			if op.Name == "" {
				skip(i, op, "column name is empty")
				continue
			}
			if err := out.AppendColumn(op.Name, table.Text("")); err != nil {
				skip(i, op, "column %q already exists", op.Name)
			}
		case Edit:
			edit(out, i, op, skip)
		case FindReplace:
			findReplace(out, i, op, skip)
		default:
			panic(fmt.Sprintf("mutate: unhandled operation %T", op))
		}
	}

	sort.SliceStable(warnings, func(a, b int) bool { return warnings[a].Index < warnings[b].Index })
	return out, warnings
}

type skipFunc func(i int, op Operation, format string, args ...any)

// deleteRows removes every DeleteRow position as one set, then renumbers.
func deleteRows(t *table.Table, batch Batch, skip skipFunc) {
	drop := make(map[int]bool)
	for i, op := range batch {
		d, ok := op.(DeleteRow)
		if !ok {
			continue
		}
		if d.Row < 0 || d.Row >= t.Len() {
			skip(i, d, "%s", rowRange(d.Row, t.Len()))
			continue
		}
		drop[d.Row] = true
	}
	if len(drop) == 0 {
		return
	}
	kept := t.Rows[:0]
	for i, row := range t.Rows {
		if !drop[i] {
			kept = append(kept, row)
		}
	}
	t.Rows = kept
}

// rowRange describes why row is not a valid position in a table of n rows.
func rowRange(row, n int) string {
	if n == 0 {
		return fmt.Sprintf("row %d out of range: the table has no rows", row)
	}
	return fmt.Sprintf("row %d out of range (0-%d)", row, n-1)
}

func deleteGroup(t *table.Table, i int, op DeleteGroup, skip skipFunc) {
	idx := t.ColumnIndex(op.Column)
	if idx < 0 {
		skip(i, op, "column %q not found", op.Column)
		return
	}
	kept := t.Rows[:0]
	for _, row := range t.Rows {
		if row[idx].String() != op.Value {
			kept = append(kept, row)
		}
	}
	t.Rows = kept
}

func addRow(t *table.Table) {
	row := make([]table.Value, len(t.Columns))
	for j, c := range t.Columns {
		if c == table.FlagColumn {
			row[j] = table.Bool(false)
		} else {
			row[j] = table.Text("")
		}
	}
	t.Rows = append(t.Rows, row)
}

func edit(t *table.Table, i int, op Edit, skip skipFunc) {
	if op.Row < 0 || op.Row >= t.Len() {
		skip(i, op, "%s", rowRange(op.Row, t.Len()))
		return
	}
	idx := t.ColumnIndex(op.Column)
	if idx < 0 {
		skip(i, op, "column %q not found", op.Column)
		return
	}
	if op.Column == table.FlagColumn && !table.IsBoolText(op.Value) {
		skip(i, op, "%s only accepts %s or %s", table.FlagColumn, table.TrueText, table.FalseText)
		return
	}
	t.Rows[op.Row][idx] = table.Text(op.Value)
}

func findReplace(t *table.Table, i int, op FindReplace, skip skipFunc) {
	if op.Find == op.Replace {
		return
	}
	var cols []int
	if op.Column == "" {
		for j, c := range t.Columns {
			if c == table.FlagColumn && !table.IsBoolText(op.Replace) {
				continue
			}
			cols = append(cols, j)
		}
	} else {
		idx := t.ColumnIndex(op.Column)
		if idx < 0 {
			skip(i, op, "column %q not found", op.Column)
			return
		}
		if op.Column == table.FlagColumn && !table.IsBoolText(op.Replace) {
			skip(i, op, "%s only accepts %s or %s", table.FlagColumn, table.TrueText, table.FalseText)
			return
		}
		cols = []int{idx}
	}
	for _, row := range t.Rows {
		for _, j := range cols {
			if row[j].String() == op.Find {
				row[j] = table.Text(op.Replace)
			}
		}
	}
}
