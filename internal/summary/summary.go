// Package summary builds chart data for a single column: a histogram for
// numeric columns with many distinct values, otherwise a frequency bar chart.
package summary

import (
	"fmt"
	"math"
	"sort"

	"github.com/JonMunkholm/tabwork/internal/table"
)

const (
	// HistogramThreshold is the distinct-value count above which a numeric
	// column is summarized as a histogram.
	HistogramThreshold = 15
	// HistogramBins is the number of equal-width histogram buckets.
	HistogramBins = 10
	// TopValues caps the number of bars in a frequency chart.
	TopValues = 20
)

// Chart types.
const (
	TypeHistogram = "histogram"
	TypeBar       = "bar"
)

// Summary is chart-ready data for one column.
type Summary struct {
	Type   string   `json:"type"`
	Labels []string `json:"labels"`
	Data   []int    `json:"data"`
}

// Summarize returns the summary of the named column. Null cells are ignored.
// Returns table.ErrColumnNotFound if the column does not exist.
func Summarize(t *table.Table, column string) (Summary, error) {
	cells, err := t.Column(column)
	if err != nil {
		return Summary{}, err
	}

	values := cells[:0]
	for _, v := range cells {
		if !v.IsNull() {
			values = append(values, v)
		}
	}

	if table.InferKind(values) == table.KindNumeric {
		nums := make([]float64, len(values))
		distinct := make(map[float64]struct{})
		for i, v := range values {
			nums[i], _ = table.ParseNumber(v)
			distinct[nums[i]] = struct{}{}
		}
		if len(distinct) > HistogramThreshold {
			return histogram(nums), nil
		}
	}
	return frequencies(values), nil
}

// histogram buckets nums into HistogramBins equal-width bins over [min, max].
// Every bin is half-open except the last, which includes max.
func histogram(nums []float64) Summary {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range nums {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	width := (hi - lo) / HistogramBins

	edges := make([]float64, HistogramBins+1)
	for i := range edges {
		edges[i] = lo + float64(i)*width
	}
	edges[HistogramBins] = hi

	s := Summary{
		Type:   TypeHistogram,
		Labels: make([]string, HistogramBins),
		Data:   make([]int, HistogramBins),
	}
	for i := 0; i < HistogramBins; i++ {
		s.Labels[i] = fmt.Sprintf("%.1f-%.1f", edges[i], edges[i+1])
	}
	for _, x := range nums {
		b := int((x - lo) / width)
		if b >= HistogramBins {
			b = HistogramBins - 1
		}
		// Guard against rounding placing x below its bin's lower edge.
		for b > 0 && x < edges[b] {
			b--
		}
		s.Data[b]++
	}
	return s
}

// frequencies counts the textual values and keeps the TopValues most common,
// ties broken by first appearance.
func frequencies(values []table.Value) Summary {
	counts := make(map[string]int)
	var order []string
	for _, v := range values {
		k := v.String()
		if _, ok := counts[k]; !ok {
			order = append(order, k)
		}
		counts[k]++
	}
	sort.SliceStable(order, func(a, b int) bool { return counts[order[a]] > counts[order[b]] })
	if len(order) > TopValues {
		order = order[:TopValues]
	}

	s := Summary{
		Type:   TypeBar,
		Labels: make([]string, len(order)),
		Data:   make([]int, len(order)),
	}
	for i, k := range order {
		s.Labels[i] = k
		s.Data[i] = counts[k]
	}
	return s
}
