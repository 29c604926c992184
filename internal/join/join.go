// Package join combines two tables on a column pair, or computes their
// symmetric difference ("compare").
//
// Every run is preceded by a cardinality estimate. When the estimate exceeds
// the row ceiling and the caller has not forced the run, no table is built
// and a confirmation result is returned instead.
package join

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/JonMunkholm/tabwork/internal/table"
)

// DefaultMaxRows is the estimated output size above which a join needs force.
const DefaultMaxRows = 1_000_000

// Column suffixes for names present in both inputs.
const (
	SuffixA = "_A"
	SuffixB = "_B"
)

// StatusColumn is added by compare to say which side a row came from.
const StatusColumn = "comparison_status"

// Compare status values.
const (
	UniqueToA = "Unique to A"
	UniqueToB = "Unique to B"
)

// ErrInvalidMode is returned for a mode outside inner, left, right and outer.
var ErrInvalidMode = errors.New("invalid join mode")

// Mode selects which unmatched rows are kept.
type Mode string

const (
	Inner Mode = "inner"
	Left  Mode = "left"
	Right Mode = "right"
	Outer Mode = "outer"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case Inner, Left, Right, Outer:
		return true
	}
	return false
}

// Spec describes one join between table A and table B.
type Spec struct {
	LeftColumn  string `json:"left_column"`
	RightColumn string `json:"right_column"`
	Mode        Mode   `json:"mode"`
	Compare     bool   `json:"is_compare"`
}

// Status is the outcome of a run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusConfirm Status = "confirm"
	StatusError   Status = "error"
)

// Options control the cardinality safeguard.
type Options struct {
	// Force runs the join even when the estimate exceeds MaxRows.
	Force bool
	// MaxRows defaults to DefaultMaxRows when zero or negative.
	MaxRows int64
}

// Result is the outcome of Run. Table is nil unless Status is success.
type Result struct {
	Status        Status
	Table         *table.Table
	PredictedRows int64
	Message       string
}

// keyed holds the validated inputs of a run.
type keyed struct {
	a, b       *table.Table
	ai, bi     int
	keysA      []key
	keysB      []key
	sharedName bool
}

type key struct {
	s     string
	valid bool
}

func prepare(a, b *table.Table, spec Spec) (*keyed, error) {
	mode := spec.Mode
	if spec.Compare {
		mode = Outer
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, spec.Mode)
	}
	ai := a.ColumnIndex(spec.LeftColumn)
	if ai < 0 {
		return nil, fmt.Errorf("table A: %w: %q", table.ErrColumnNotFound, spec.LeftColumn)
	}
	bi := b.ColumnIndex(spec.RightColumn)
	if bi < 0 {
		return nil, fmt.Errorf("table B: %w: %q", table.ErrColumnNotFound, spec.RightColumn)
	}

	colA, _ := a.Column(spec.LeftColumn)
	colB, _ := b.Column(spec.RightColumn)
	numeric := table.InferKind(colA) == table.KindNumeric && table.InferKind(colB) == table.KindNumeric

	return &keyed{
		a: a, b: b, ai: ai, bi: bi,
		keysA:      keysOf(colA, numeric),
		keysB:      keysOf(colB, numeric),
		sharedName: spec.LeftColumn == spec.RightColumn,
	}, nil
}

// keysOf builds join keys. When both key columns are numeric, "1" and "1.0"
// match; otherwise keys compare as text. Null keys never match.
func keysOf(col []table.Value, numeric bool) []key {
	keys := make([]key, len(col))
	for i, v := range col {
		if v.IsNull() {
			continue
		}
		if numeric {
			f, _ := table.ParseNumber(v)
			keys[i] = key{s: strconv.FormatFloat(f, 'g', -1, 64), valid: true}
			continue
		}
		keys[i] = key{s: v.String(), valid: true}
	}
	return keys
}

// Estimate predicts the output row count without building the result.
// Outer joins and compares are bounded by |A|x|B|; the other modes count
// matching pairs.
func Estimate(a, b *table.Table, spec Spec) (int64, error) {
	k, err := prepare(a, b, spec)
	if err != nil {
		return 0, err
	}
	return k.estimate(spec), nil
}

func (k *keyed) estimate(spec Spec) int64 {
	if spec.Compare || spec.Mode == Outer {
		return int64(k.a.Len()) * int64(k.b.Len())
	}
	freqB := make(map[string]int64)
	for _, kb := range k.keysB {
		if kb.valid {
			freqB[kb.s]++
		}
	}
	var total int64
	for _, ka := range k.keysA {
		if ka.valid {
			total += freqB[ka.s]
		}
	}
	return total
}

// Run estimates and, unless the safeguard trips, materializes the join.
// Invalid specs return an error and no result.
func Run(a, b *table.Table, spec Spec, opts Options) (*Result, error) {
	k, err := prepare(a, b, spec)
	if err != nil {
		return nil, err
	}

	limit := opts.MaxRows
	if limit <= 0 {
		limit = DefaultMaxRows
	}
	predicted := k.estimate(spec)
	if predicted > limit && !opts.Force {
		return &Result{
			Status:        StatusConfirm,
			PredictedRows: predicted,
			Message: fmt.Sprintf(
				"This operation is predicted to produce %s rows, more than the limit of %s. Confirm to run it anyway.",
				humanize.Comma(predicted), humanize.Comma(limit)),
		}, nil
	}

	var out *table.Table
	if spec.Compare {
		out = k.compare()
	} else {
		out = k.join(spec.Mode)
	}
	return &Result{
		Status:        StatusSuccess,
		Table:         out,
		PredictedRows: predicted,
		Message:       fmt.Sprintf("Created table with %s rows.", humanize.Comma(int64(out.Len()))),
	}, nil
}
