package analysis

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/KaramelBytes/tablechat/internal/dataset"
)

const (
	// MovingAverageWindow is the number of periods in the rolling mean.
	MovingAverageWindow = 7
	// SeasonalMinPoints is the fewest points needed for monthly means.
	SeasonalMinPoints = 30
)

var (
	// ErrNoDateColumn is returned when no column parses as dates.
	ErrNoDateColumn = errors.New("no datetime column found")
	// ErrNoTimeData is returned when no row has both a date and a number.
	ErrNoTimeData = errors.New("no rows with both a date and a numeric value")
)

// TimePoint is one observation of a series.
type TimePoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Label formats the time as a date, adding the clock only when it is set.
func (p TimePoint) Label() string {
	if h, m, s := p.Time.Clock(); h == 0 && m == 0 && s == 0 {
		return p.Time.Format("2006-01-02")
	}
	return p.Time.Format("2006-01-02 15:04")
}

// MonthlyMean averages every observation falling in a calendar month,
// whatever the year.
type MonthlyMean struct {
	Month time.Month `json:"month"`
	Mean  float64    `json:"mean"`
	Count int        `json:"count"`
}

// TimeSeries is a value column ordered by a datetime column.
type TimeSeries struct {
	DateColumn  string      `json:"date_column"`
	ValueColumn string      `json:"value_column"`
	Points      []TimePoint `json:"points"`
	// MovingAverage holds the trailing mean ending at each point from the
	// Window-th on; empty when there are fewer points than Window.
	Window        int           `json:"window"`
	MovingAverage []TimePoint   `json:"moving_average,omitempty"`
	Monthly       []MonthlyMean `json:"monthly,omitempty"`
	// Skipped counts rows missing a parsable date or number.
	Skipped int `json:"skipped"`
}

// DetectDateColumn returns the first column whose values are mostly dates.
func DetectDateColumn(t *dataset.Table) (string, bool) {
	opt := DefaultOptions()
	opt.Outliers = false
	for j := range t.Columns {
		if s, _ := summarizeColumn(t, j, opt); s.Kind == KindDatetime {
			return t.Columns[j], true
		}
	}
	return "", false
}

// NewTimeSeries orders valueCol by dateCol. An empty dateCol picks the first
// datetime column. Points are sorted by time; rows sharing a timestamp keep
// their file order.
func NewTimeSeries(t *dataset.Table, dateCol, valueCol string) (*TimeSeries, error) {
	if strings.TrimSpace(dateCol) == "" {
		col, ok := DetectDateColumn(t)
		if !ok {
			return nil, ErrNoDateColumn
		}
		dateCol = col
	}
	di, ok := t.ColumnIndex(dateCol)
	if !ok {
		return nil, fmt.Errorf("column %q not found", dateCol)
	}
	vi, ok := t.ColumnIndex(valueCol)
	if !ok {
		return nil, fmt.Errorf("column %q not found", valueCol)
	}
	ts := &TimeSeries{DateColumn: t.Columns[di], ValueColumn: t.Columns[vi], Window: MovingAverageWindow}
	for _, row := range t.Rows {
		when, okT := parseTimeMaybe(strings.TrimSpace(row[di]))
		v, okV := parseNumeric(row[vi], Options{})
		if !okT || !okV {
			ts.Skipped++
			continue
		}
		ts.Points = append(ts.Points, TimePoint{Time: when, Value: v})
	}
	if len(ts.Points) == 0 {
		return nil, fmt.Errorf("%s by %s: %w", ts.ValueColumn, ts.DateColumn, ErrNoTimeData)
	}
	sort.SliceStable(ts.Points, func(i, j int) bool { return ts.Points[i].Time.Before(ts.Points[j].Time) })
	ts.MovingAverage = rollingMean(ts.Points, ts.Window)
	if len(ts.Points) >= SeasonalMinPoints {
		ts.Monthly = monthlyMeans(ts.Points)
	}
	return ts, nil
}

func rollingMean(pts []TimePoint, window int) []TimePoint {
	if window <= 0 || len(pts) < window {
		return nil
	}
	out := make([]TimePoint, 0, len(pts)-window+1)
	sum := 0.0
	for i, p := range pts {
		sum += p.Value
		if i >= window {
			sum -= pts[i-window].Value
		}
		if i >= window-1 {
			out = append(out, TimePoint{Time: p.Time, Value: sum / float64(window)})
		}
	}
	return out
}

func monthlyMeans(pts []TimePoint) []MonthlyMean {
	var sums [13]float64
	var counts [13]int
	for _, p := range pts {
		m := p.Time.Month()
		sums[m] += p.Value
		counts[m]++
	}
	var out []MonthlyMean
	for m := time.January; m <= time.December; m++ {
		if counts[m] > 0 {
			out = append(out, MonthlyMean{Month: m, Mean: sums[m] / float64(counts[m]), Count: counts[m]})
		}
	}
	return out
}

// Labels returns the point labels in order.
func (ts *TimeSeries) Labels() []string {
	return pointLabels(ts.Points)
}

// Values returns the point values in order.
func (ts *TimeSeries) Values() []float64 {
	return pointValues(ts.Points)
}

// MovingAverageLabels and MovingAverageValues describe the rolling mean.
func (ts *TimeSeries) MovingAverageLabels() []string  { return pointLabels(ts.MovingAverage) }
func (ts *TimeSeries) MovingAverageValues() []float64 { return pointValues(ts.MovingAverage) }

// MonthlyLabels and MonthlyValues describe the monthly means.
func (ts *TimeSeries) MonthlyLabels() []string {
	out := make([]string, len(ts.Monthly))
	for i, m := range ts.Monthly {
		out[i] = m.Month.String()[:3]
	}
	return out
}

func (ts *TimeSeries) MonthlyValues() []float64 {
	out := make([]float64, len(ts.Monthly))
	for i, m := range ts.Monthly {
		out[i] = m.Mean
	}
	return out
}

func pointLabels(pts []TimePoint) []string {
	out := make([]string, len(pts))
	for i, p := range pts {
		out[i] = p.Label()
	}
	return out
}

func pointValues(pts []TimePoint) []float64 {
	out := make([]float64, len(pts))
	for i, p := range pts {
		out[i] = p.Value
	}
	return out
}
