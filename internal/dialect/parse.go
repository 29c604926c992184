package dialect

import (
	"fmt"
	"strconv"

	"github.com/JonMunkholm/tabwork/internal/table"
)

// Result is a parsed table plus the records that were dropped on the way.
type Result struct {
	Table    *table.Table
	Warnings []Warning
}

// Parse decodes data with opts and splits it into a table. When limit is
// positive, parsing stops after that many data rows have been accepted.
//
// Empty fields become null cells. Blank lines are ignored. A record whose
// field count differs from the header's is dropped with a warning.
func Parse(data []byte, opts Options, limit int) (*Result, error) {
	delim, quote, err := opts.runes()
	if err != nil {
		return nil, &ParseError{Reason: "invalid parsing options", Err: err}
	}

	text, err := decode(data, opts.Encoding)
	if err != nil {
		return nil, err
	}

	text = skipLines(text, opts.SkipRows)
	records, unterminated := splitter{delim: delim, quote: quote}.split(text, opts.SkipRows+1)

	res := &Result{}
	var columns []string
	i := 0
	for ; i < len(records); i++ {
		if records[i].blank {
			continue
		}
		if opts.HasHeader {
			columns = headerNames(records[i].fields)
			i++
		} else {
			columns = positionalNames(len(records[i].fields))
		}
		break
	}
	if len(columns) == 0 {
		return nil, &ParseError{Reason: "no columns to parse from file"}
	}

	tbl, err := table.New(columns)
	if err != nil {
		return nil, &ParseError{Reason: "invalid header", Err: err}
	}

	for ; i < len(records); i++ {
		if limit > 0 && tbl.Len() >= limit {
			break
		}
		rec := records[i]
		if rec.blank {
			continue
		}
		if len(rec.fields) != len(columns) {
			res.Warnings = append(res.Warnings, Warning{
				Line:    rec.line,
				Message: fmt.Sprintf("expected %d fields, saw %d", len(columns), len(rec.fields)),
			})
			continue
		}
		row := make([]table.Value, len(rec.fields))
		for j, f := range rec.fields {
			if f == "" {
				row[j] = table.Null()
			} else {
				row[j] = table.Text(f)
			}
		}
		// Lengths were checked above.
		_ = tbl.AppendRow(row)
	}

	if unterminated && (limit <= 0 || tbl.Len() < limit) && len(records) > 0 {
		res.Warnings = append(res.Warnings, Warning{
			Line:    records[len(records)-1].line,
			Message: "quoted field not terminated before end of file",
		})
	}

	res.Table = tbl
	return res, nil
}

// headerNames makes header fields usable as column names: blanks become
// "Unnamed: i" and repeats get ".1", ".2" suffixes.
func headerNames(fields []string) []string {
	names := make([]string, len(fields))
	used := make(map[string]bool, len(fields))
	for i, f := range fields {
		if f == "" {
			f = "Unnamed: " + strconv.Itoa(i)
		}
		name := f
		for n := 1; used[name]; n++ {
			name = f + "." + strconv.Itoa(n)
		}
		used[name] = true
		names[i] = name
	}
	return names
}

func positionalNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = "Column " + strconv.Itoa(i+1)
	}
	return names
}
