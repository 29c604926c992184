// Package clean implements the cleaning pipeline run once per file at import.
//
// The pipeline never modifies its input. Steps, in order:
//
//  1. trim surrounding whitespace in text and numeric columns
//  2. drop exact duplicate rows, keeping first occurrences
//  3. reset the inconsistency flag to False for every row
//  4. flag numeric outliers (|z| > 3 against the column's sample mean and
//     standard deviation); zero-variance columns are skipped
//  5. flag rows missing a value in either of the first two columns
package clean

import (
	"log/slog"
	"math"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/JonMunkholm/tabwork/internal/table"
)

// ZScoreThreshold is the absolute z-score above which a value is an outlier.
const ZScoreThreshold = 3.0

// criticalColumnCount is how many leading columns must be populated.
const criticalColumnCount = 2

// Report summarizes what a cleaning run changed.
type Report struct {
	DuplicatesRemoved int      `json:"duplicates_removed"`
	OutlierRows       int      `json:"outlier_rows"`
	MissingRows       int      `json:"missing_critical_rows"`
	Flagged           int      `json:"flagged"`
	NumericColumns    []string `json:"numeric_columns"`
	CriticalColumns   []string `json:"critical_columns"`
}

// Clean runs the pipeline and returns the cleaned copy. A nil logger discards
// step logging.
func Clean(t *table.Table, logger *slog.Logger) (*table.Table, Report) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	out := t.Clone()
	var rep Report

	trimText(out)

	// A flag left over from an earlier run must not keep rows apart.
	if idx := out.ColumnIndex(table.FlagColumn); idx >= 0 {
		for _, row := range out.Rows {
			row[idx] = table.Bool(false)
		}
	}

	before := out.Len()
	out.Rows = dedupe(out.Rows)
	rep.DuplicatesRemoved = before - out.Len()
	logger.Debug("duplicates removed", "count", rep.DuplicatesRemoved, "rows", out.Len())

	flagIdx := out.ColumnIndex(table.FlagColumn)
	if flagIdx < 0 {
		// Cannot collide: the name was just checked.
		_ = out.AppendColumn(table.FlagColumn, table.Bool(false))
		flagIdx = len(out.Columns) - 1
	}
	flags := make([]bool, out.Len())

	kinds := out.Kinds()
	for j, k := range kinds {
		if k != table.KindNumeric || j == flagIdx {
			continue
		}
		rep.NumericColumns = append(rep.NumericColumns, out.Columns[j])
		n := flagOutliers(out.Rows, j, flags)
		logger.Debug("outliers flagged", "column", out.Columns[j], "rows", n)
	}
	for _, f := range flags {
		if f {
			rep.OutlierRows++
		}
	}

	if len(out.Columns) >= criticalColumnCount {
		rep.CriticalColumns = append([]string(nil), out.Columns[:criticalColumnCount]...)
		for i, row := range out.Rows {
			for j := 0; j < criticalColumnCount; j++ {
				if row[j].IsNull() {
					rep.MissingRows++
					flags[i] = true
					break
				}
			}
		}
	}

	for i, row := range out.Rows {
		row[flagIdx] = table.Bool(flags[i])
		if flags[i] {
			rep.Flagged++
		}
	}

	logger.Info("table cleaned",
		"rows", out.Len(),
		"duplicates_removed", rep.DuplicatesRemoved,
		"flagged", rep.Flagged,
	)
	return out, rep
}

// trimText trims surrounding whitespace in text and numeric columns.
func trimText(t *table.Table) {
	for j, k := range t.Kinds() {
		if k != table.KindText && k != table.KindNumeric {
			continue
		}
		for _, row := range t.Rows {
			if v := row[j]; !v.IsNull() {
				row[j] = table.Text(strings.TrimSpace(v.String()))
			}
		}
	}
}

// dedupe keeps the first occurrence of every distinct row. Rows are bucketed
// by an xxh3 fingerprint and compared cell by cell within a bucket.
func dedupe(rows [][]table.Value) [][]table.Value {
	seen := make(map[uint64][]int, len(rows))
	out := rows[:0:0]
	var buf []byte
	for _, row := range rows {
		buf = fingerprint(buf[:0], row)
		h := xxh3.Hash(buf)

		dup := false
		for _, k := range seen[h] {
			if rowsEqual(out[k], row) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		seen[h] = append(seen[h], len(out))
		out = append(out, row)
	}
	return out
}

// fingerprint serializes a row so that null and "" hash differently.
func fingerprint(buf []byte, row []table.Value) []byte {
	for _, v := range row {
		if v.IsNull() {
			buf = append(buf, 0x00)
			continue
		}
		buf = append(buf, 0x01)
		buf = append(buf, v.String()...)
		buf = append(buf, 0x1f)
	}
	return buf
}

func rowsEqual(a, b []table.Value) bool {
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// flagOutliers ORs outlier marks for column j into flags and returns how many
// rows the column marked. Nulls are ignored.
func flagOutliers(rows [][]table.Value, j int, flags []bool) int {
	mean, std, ok := sampleStats(rows, j)
	if !ok || std == 0 {
		return 0
	}
	marked := 0
	for i, row := range rows {
		x, ok := table.ParseNumber(row[j])
		if !ok {
			continue
		}
		if math.Abs((x-mean)/std) > ZScoreThreshold {
			flags[i] = true
			marked++
		}
	}
	return marked
}

// sampleStats returns the mean and sample standard deviation (n-1) of the
// numeric cells in column j. ok is false with fewer than two values.
func sampleStats(rows [][]table.Value, j int) (mean, std float64, ok bool) {
	var n int
	var sum float64
	for _, row := range rows {
		if x, ok := table.ParseNumber(row[j]); ok {
			sum += x
			n++
		}
	}
	if n < 2 {
		return 0, 0, false
	}
	mean = sum / float64(n)

	var ss float64
	for _, row := range rows {
		if x, ok := table.ParseNumber(row[j]); ok {
			d := x - mean
			ss += d * d
		}
	}
	return mean, math.Sqrt(ss / float64(n-1)), true
}
