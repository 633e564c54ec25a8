// Package analysis builds a descriptive profile of a loaded dataset.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/tablechat/internal/dataset"
)

// Column kinds.
const (
	KindNumeric     = "numeric"
	KindDatetime    = "datetime"
	KindCategorical = "categorical"
	KindText        = "text"
	KindEmpty       = "empty"
)

// Options controls analysis behavior for tabular data.
type Options struct {
	// SampleRows determines how many example rows to include in the report.
	SampleRows int
	// TopValues caps the categorical value counts kept per column.
	TopValues int
	// Correlations computes Pearson correlations among numeric columns.
	Correlations bool
	// Numeric parsing locale. If DecimalSeparator is 0, auto-detect per value.
	DecimalSeparator   rune
	ThousandsSeparator rune
	// Outlier detection via robust Z-score (MAD). If Outliers is true, counts |z|>threshold.
	Outliers         bool
	OutlierThreshold float64
}

// DefaultOptions returns reasonable defaults for dataset analysis.
func DefaultOptions() Options {
	return Options{
		SampleRows:       5,
		TopValues:        8,
		Correlations:     true,
		Outliers:         true,
		OutlierThreshold: 3.5,
	}
}

// Overview holds the headline metrics shown above the schema.
type Overview struct {
	Rows           int     `json:"rows"`
	Columns        int     `json:"columns"`
	NumericColumns int     `json:"numeric_columns"`
	MissingCells   int     `json:"missing_cells"`
	MissingPct     float64 `json:"missing_pct"`
}

// Describe mirrors the usual count/mean/std/quartile summary.
type Describe struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Q25    float64 `json:"q25"`
	Median float64 `json:"median"`
	Q75    float64 `json:"q75"`
	Max    float64 `json:"max"`
}

// ColumnSummary captures inferred type and statistics per column.
type ColumnSummary struct {
	Name     string    `json:"name"`
	Kind     string    `json:"kind"`
	Unit     string    `json:"unit,omitempty"`
	NonNull  int       `json:"non_null"`
	Missing  int       `json:"missing"`
	Unique   int       `json:"unique"`
	Describe *Describe `json:"describe,omitempty"`
	// Outliers (robust Z via MAD)
	OutliersCount    int     `json:"outliers_count,omitempty"`
	OutliersMaxAbsZ  float64 `json:"outliers_max_abs_z,omitempty"`
	OutlierThreshold float64 `json:"outlier_threshold,omitempty"`
	// Categorical top values
	TopValues    []CategoryCount `json:"top_values,omitempty"`
	ExampleTexts []string        `json:"example_texts,omitempty"`
}

type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// CorrMatrix holds a symmetric Pearson correlation matrix across numeric columns.
type CorrMatrix struct {
	Columns []string    `json:"columns"`
	Values  [][]float64 `json:"values"` // row-major, Values[i][j]
}

// Profile is a markdown-friendly analysis of a tabular dataset.
type Profile struct {
	Name      string          `json:"name"`
	Sheet     string          `json:"sheet,omitempty"`
	Overview  Overview        `json:"overview"`
	TotalRows int             `json:"total_rows"`
	Cols      []ColumnSummary `json:"columns"`
	Samples   [][]string      `json:"samples"`
	Corr      *CorrMatrix     `json:"correlations,omitempty"`
	Warnings  []string        `json:"warnings,omitempty"`
}

// Analyze profiles every column of t.
func Analyze(t *dataset.Table, opt Options) *Profile {
	p := &Profile{Name: t.Name, Sheet: t.Sheet, TotalRows: t.TotalRows}
	ncol := len(t.Columns)
	p.Overview = Overview{Rows: len(t.Rows), Columns: ncol}
	if ncol == 0 {
		return p
	}
	sampleRows := opt.SampleRows
	if sampleRows <= 0 {
		sampleRows = 5
	}
	if sampleRows > len(t.Rows) {
		sampleRows = len(t.Rows)
	}
	p.Samples = t.Rows[:sampleRows]

	// nums[j][i] is NaN where row i of column j is not numeric.
	nums := make([][]float64, ncol)
	var numCols []int
	for j := 0; j < ncol; j++ {
		s, col := summarizeColumn(t, j, opt)
		p.Overview.MissingCells += s.Missing
		if s.Kind == KindNumeric {
			p.Overview.NumericColumns++
			nums[j] = col
			numCols = append(numCols, j)
		}
		p.Cols = append(p.Cols, s)
	}
	if cells := len(t.Rows) * ncol; cells > 0 {
		p.Overview.MissingPct = float64(p.Overview.MissingCells) * 100 / float64(cells)
	}
	if opt.Correlations && len(numCols) >= 2 {
		p.Corr = correlations(p.Cols, nums, numCols)
	}
	if t.Truncated() {
		p.Warnings = append(p.Warnings, fmt.Sprintf("only the first %d of %d rows were loaded", len(t.Rows), t.TotalRows))
	}
	return p
}

// summarizeColumn infers the kind of column j and returns its summary plus
// the per-row numeric values (NaN where missing or not numeric).
func summarizeColumn(t *dataset.Table, j int, opt Options) (ColumnSummary, []float64) {
	name, unit := splitUnits(t.Columns[j])
	s := ColumnSummary{Name: name, Unit: unit}
	col := make([]float64, len(t.Rows))
	var numbers []float64
	var dtCnt, txtCnt int
	cats := map[string]int{}
	for i, row := range t.Rows {
		col[i] = math.NaN()
		v := strings.TrimSpace(row[j])
		if v == "" {
			s.Missing++
			continue
		}
		s.NonNull++
		if strings.Contains(v, "%") && s.Unit == "" {
			s.Unit = "%"
		}
		if len(cats) <= 10000 && len(v) <= 64 {
			cats[v]++
		}
		if x, ok := parseNumeric(v, opt); ok {
			col[i] = x
			numbers = append(numbers, x)
			continue
		}
		if _, ok := parseTimeMaybe(v); ok {
			dtCnt++
			continue
		}
		txtCnt++
		if len(s.ExampleTexts) < 3 {
			s.ExampleTexts = append(s.ExampleTexts, v)
		}
	}
	s.Unique = len(cats)
	numCnt := len(numbers)
	switch {
	case s.NonNull == 0:
		s.Kind = KindEmpty
	case numCnt >= dtCnt && numCnt >= txtCnt:
		s.Kind = KindNumeric
		s.ExampleTexts = nil
		s.Describe = describe(numbers)
		if opt.Outliers && len(numbers) >= 8 {
			s.OutlierThreshold = opt.OutlierThreshold
			if s.OutlierThreshold <= 0 {
				s.OutlierThreshold = 3.5
			}
			s.OutliersCount, s.OutliersMaxAbsZ = robustOutliers(numbers, s.OutlierThreshold)
		}
	case dtCnt >= txtCnt:
		s.Kind = KindDatetime
		s.ExampleTexts = nil
	case s.Unique <= 50 || s.Unique*2 <= s.NonNull:
		s.Kind = KindCategorical
		s.ExampleTexts = nil
		s.TopValues = topValues(cats, opt.TopValues)
	default:
		s.Kind = KindText
	}
	return s, col
}

func describe(vals []float64) *Describe {
	d := &Describe{Count: len(vals)}
	if len(vals) == 0 {
		return d
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	// Welford for a numerically stable variance.
	var mean, m2 float64
	for i, x := range vals {
		delta := x - mean
		mean += delta / float64(i+1)
		m2 += delta * (x - mean)
	}
	d.Mean = mean
	if len(vals) > 1 {
		d.Std = math.Sqrt(m2 / float64(len(vals)-1))
	}
	d.Min, d.Max = sorted[0], sorted[len(sorted)-1]
	d.Q25 = quantile(sorted, 0.25)
	d.Median = quantile(sorted, 0.5)
	d.Q75 = quantile(sorted, 0.75)
	return d
}

func topValues(cats map[string]int, limit int) []CategoryCount {
	if limit <= 0 {
		limit = 8
	}
	tops := make([]CategoryCount, 0, len(cats))
	for k, v := range cats {
		tops = append(tops, CategoryCount{Value: k, Count: v})
	}
	sort.Slice(tops, func(i, j int) bool {
		if tops[i].Count == tops[j].Count {
			return tops[i].Value < tops[j].Value
		}
		return tops[i].Count > tops[j].Count
	})
	if len(tops) > limit {
		tops = tops[:limit]
	}
	return tops
}

func robustOutliers(vals []float64, thr float64) (int, float64) {
	median, mad := medianMAD(vals)
	if mad == 0 {
		return 0, 0
	}
	var cnt int
	maxAbsZ := 0.0
	for _, v := range vals {
		az := math.Abs(0.6745 * (v - median) / mad)
		if az > thr {
			cnt++
		}
		maxAbsZ = math.Max(maxAbsZ, az)
	}
	return cnt, maxAbsZ
}

// correlations computes pairwise Pearson r over rows where both columns are
// numeric.
func correlations(cols []ColumnSummary, nums [][]float64, numCols []int) *CorrMatrix {
	n := len(numCols)
	m := &CorrMatrix{Columns: make([]string, n), Values: make([][]float64, n)}
	for a, ia := range numCols {
		m.Columns[a] = cols[ia].Name
		m.Values[a] = make([]float64, n)
		m.Values[a][a] = 1
	}
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			r := pearson(nums[numCols[a]], nums[numCols[b]])
			m.Values[a][b], m.Values[b][a] = r, r
		}
	}
	return m
}

func pearson(xs, ys []float64) float64 {
	var n, sumX, sumY, sumXX, sumYY, sumXY float64
	for i := range xs {
		x, y := xs[i], ys[i]
		if math.IsNaN(x) || math.IsNaN(y) {
			continue
		}
		n++
		sumX += x
		sumY += y
		sumXX += x * x
		sumYY += y * y
		sumXY += x * y
	}
	if n < 2 {
		return 0
	}
	denom := math.Sqrt((n*sumXX - sumX*sumX) * (n*sumYY - sumY*sumY))
	if denom == 0 || math.IsNaN(denom) {
		return 0
	}
	r := (n*sumXY - sumX*sumY) / denom
	return math.Max(-1, math.Min(1, r))
}
