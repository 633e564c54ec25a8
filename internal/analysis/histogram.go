package analysis

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/KaramelBytes/tablechat/internal/dataset"
)

// Histogram bins the numeric values of one column.
type Histogram struct {
	Column string    `json:"column"`
	Edges  []float64 `json:"edges"` // len(Counts)+1
	Counts []int     `json:"counts"`
	// Skipped counts non-empty cells that were not numeric.
	Skipped int `json:"skipped"`
}

// MaxBins caps the bucket count a caller may request.
const MaxBins = 1000

var (
	// ErrNoNumericData is returned when a column has no numeric values.
	ErrNoNumericData = errors.New("column has no numeric values")
	// ErrTooManyBins is returned when more than MaxBins buckets are requested.
	ErrTooManyBins = fmt.Errorf("at most %d bins are supported", MaxBins)
)

// NewHistogram bins column into equal-width buckets. bins <= 0 picks
// Sturges' rule.
func NewHistogram(t *dataset.Table, column string, bins int) (*Histogram, error) {
	if bins > MaxBins {
		return nil, ErrTooManyBins
	}
	idx, ok := t.ColumnIndex(column)
	if !ok {
		return nil, fmt.Errorf("column %q not found", column)
	}
	h := &Histogram{Column: t.Columns[idx]}
	var vals []float64
	for _, row := range t.Rows {
		v := strings.TrimSpace(row[idx])
		if v == "" {
			continue
		}
		x, ok := parseNumeric(v, Options{})
		if !ok {
			h.Skipped++
			continue
		}
		vals = append(vals, x)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%s: %w", h.Column, ErrNoNumericData)
	}
	if bins <= 0 {
		bins = int(math.Ceil(math.Log2(float64(len(vals))))) + 1
	}
	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		bins = 1
		hi = lo + 1
	}
	// Scaling each bound first keeps the width finite when hi-lo overflows.
	width := hi/float64(bins) - lo/float64(bins)
	h.Edges = make([]float64, bins+1)
	for i := range h.Edges {
		f := float64(i) / float64(bins)
		h.Edges[i] = lo*(1-f) + hi*f
	}
	h.Counts = make([]int, bins)
	for _, v := range vals {
		h.Counts[binIndex(v, lo, width, bins)]++
	}
	return h, nil
}

// binIndex places v in [0, bins-1]. A NaN position, which only arises from a
// degenerate width, lands in the last bin.
func binIndex(v, lo, width float64, bins int) int {
	pos := v/width - lo/width
	switch {
	case math.IsNaN(pos) || pos >= float64(bins):
		return bins - 1
	case pos < 0:
		return 0
	}
	return int(pos)
}

// Labels names each bin by its range.
func (h *Histogram) Labels() []string {
	out := make([]string, len(h.Counts))
	for i := range h.Counts {
		out[i] = fmt.Sprintf("%s–%s", fmtEdge(h.Edges[i]), fmtEdge(h.Edges[i+1]))
	}
	return out
}

// Values returns the counts as floats for charting.
func (h *Histogram) Values() []float64 {
	out := make([]float64, len(h.Counts))
	for i, c := range h.Counts {
		out[i] = float64(c)
	}
	return out
}

func fmtEdge(v float64) string { return strconv.FormatFloat(v, 'g', 4, 64) }
