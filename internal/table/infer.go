package table

// infer.go decides the effective type of a column from its cells.
//
// Cleaning and summarization both call InferKind so that a column is treated
// as numeric by one exactly when it is numeric for the other.

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Kind is the inferred type of a column.
type Kind int

const (
	// KindEmpty means the column has no non-null cells.
	KindEmpty Kind = iota
	// KindNumeric means every non-null cell parses as a finite number.
	KindNumeric
	// KindBool means every non-null cell is a boolean literal.
	KindBool
	// KindText is everything else.
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindNumeric:
		return "numeric"
	case KindBool:
		return "bool"
	default:
		return "text"
	}
}

// numericRegex matches integers, decimals and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// ParseNumber returns the numeric value of a cell. Surrounding whitespace is
// ignored. Null cells, non-numeric text, NaN and infinities are rejected.
func ParseNumber(v Value) (float64, bool) {
	if v.IsNull() {
		return 0, false
	}
	s := strings.TrimSpace(v.String())
	if !numericRegex.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// IsBoolText reports whether s is one of the boolean cell literals.
func IsBoolText(s string) bool {
	return s == TrueText || s == FalseText
}

// InferKind classifies a column from its cells. Nulls do not vote.
func InferKind(values []Value) Kind {
	seen := false
	numeric, boolean := true, true
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		seen = true
		if numeric {
			if _, ok := ParseNumber(v); !ok {
				numeric = false
			}
		}
		if boolean && !IsBoolText(v.String()) {
			boolean = false
		}
		if !numeric && !boolean {
			return KindText
		}
	}
	switch {
	case !seen:
		return KindEmpty
	case numeric:
		return KindNumeric
	case boolean:
		return KindBool
	default:
		return KindText
	}
}

// Kinds infers the kind of every column, in column order.
func (t *Table) Kinds() []Kind {
	kinds := make([]Kind, len(t.Columns))
	col := make([]Value, len(t.Rows))
	for j := range t.Columns {
		for i, row := range t.Rows {
			col[i] = row[j]
		}
		kinds[j] = InferKind(col)
	}
	return kinds
}
