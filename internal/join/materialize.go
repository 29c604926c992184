package join

import (
	"strconv"

	"github.com/JonMunkholm/tabwork/internal/table"
)

// layout maps output columns to their sources.
type layout struct {
	columns []string
	fromA   []int
	fromB   []int
	// key is the output index of the coalesced key column, or -1 when the
	// two key columns have different names and are both kept.
	key int
}

func (k *keyed) layout() *layout {
	l := &layout{key: -1}

	inA := make(map[string]bool, len(k.a.Columns))
	for j, c := range k.a.Columns {
		if k.sharedName && j == k.ai {
			continue
		}
		inA[c] = true
	}
	inB := make(map[string]bool, len(k.b.Columns))
	for j, c := range k.b.Columns {
		if k.sharedName && j == k.bi {
			continue
		}
		inB[c] = true
	}

	used := make(map[string]bool)
	add := func(name string, a, b int) {
		name = unique(name, used)
		l.columns = append(l.columns, name)
		l.fromA = append(l.fromA, a)
		l.fromB = append(l.fromB, b)
	}

	for j, c := range k.a.Columns {
		switch {
		case k.sharedName && j == k.ai:
			l.key = len(l.columns)
			add(c, j, k.bi)
		case inB[c]:
			add(c+SuffixA, j, -1)
		default:
			add(c, j, -1)
		}
	}
	for j, c := range k.b.Columns {
		switch {
		case k.sharedName && j == k.bi:
		case inA[c]:
			add(c+SuffixB, -1, j)
		default:
			add(c, -1, j)
		}
	}
	return l
}

// unique returns name, or name with a numeric suffix if it is taken, and
// marks the result as used.
func unique(name string, used map[string]bool) string {
	out := name
	for n := 2; used[out]; n++ {
		out = name + "_" + strconv.Itoa(n)
	}
	used[out] = true
	return out
}

// row builds one output row from row ra of A and row rb of B. A negative
// index means the side is absent and its cells are null.
func (k *keyed) row(l *layout, ra, rb int) []table.Value {
	out := make([]table.Value, len(l.columns))
	for j := range l.columns {
		switch {
		case j == l.key:
			if ra >= 0 {
				out[j] = k.a.Rows[ra][k.ai]
			} else {
				out[j] = k.b.Rows[rb][k.bi]
			}
		case l.fromA[j] >= 0 && ra >= 0:
			out[j] = k.a.Rows[ra][l.fromA[j]]
		case l.fromB[j] >= 0 && rb >= 0:
			out[j] = k.b.Rows[rb][l.fromB[j]]
		default:
			out[j] = table.Null()
		}
	}
	return out
}

func index(keys []key) map[string][]int {
	idx := make(map[string][]int)
	for i, kk := range keys {
		if kk.valid {
			idx[kk.s] = append(idx[kk.s], i)
		}
	}
	return idx
}

// join materializes an equality join. Inner and left follow A's row order,
// right follows B's, and outer is the left join followed by B's unmatched
// rows in B order.
func (k *keyed) join(mode Mode) *table.Table {
	l := k.layout()
	out := &table.Table{Columns: l.columns}

	if mode == Right {
		idxA := index(k.keysA)
		for rb, kb := range k.keysB {
			var matches []int
			if kb.valid {
				matches = idxA[kb.s]
			}
			for _, ra := range matches {
				out.Rows = append(out.Rows, k.row(l, ra, rb))
			}
			if len(matches) == 0 {
				out.Rows = append(out.Rows, k.row(l, -1, rb))
			}
		}
		return out
	}

	idxB := index(k.keysB)
	matchedB := make([]bool, len(k.keysB))
	for ra, ka := range k.keysA {
		var matches []int
		if ka.valid {
			matches = idxB[ka.s]
		}
		for _, rb := range matches {
			matchedB[rb] = true
			out.Rows = append(out.Rows, k.row(l, ra, rb))
		}
		if len(matches) == 0 && (mode == Left || mode == Outer) {
			out.Rows = append(out.Rows, k.row(l, ra, -1))
		}
	}
	if mode == Outer {
		for rb, matched := range matchedB {
			if !matched {
				out.Rows = append(out.Rows, k.row(l, -1, rb))
			}
		}
	}
	return out
}

// compare keeps only the rows of a full outer join that found no partner and
// labels each with the side it came from.
func (k *keyed) compare() *table.Table {
	l := k.layout()
	used := make(map[string]bool, len(l.columns))
	for _, c := range l.columns {
		used[c] = true
	}
	columns := append(append([]string(nil), l.columns...), unique(StatusColumn, used))
	out := &table.Table{Columns: columns}

	idxB := index(k.keysB)
	idxA := index(k.keysA)
	for ra, ka := range k.keysA {
		if ka.valid && len(idxB[ka.s]) > 0 {
			continue
		}
		out.Rows = append(out.Rows, append(k.row(l, ra, -1), table.Text(UniqueToA)))
	}
	for rb, kb := range k.keysB {
		if kb.valid && len(idxA[kb.s]) > 0 {
			continue
		}
		out.Rows = append(out.Rows, append(k.row(l, -1, rb), table.Text(UniqueToB)))
	}
	return out
}
