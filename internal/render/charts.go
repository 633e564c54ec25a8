package render

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

func labelWidth(labels []string) int {
	w := 0
	for _, l := range labels {
		if n := utf8.RuneCountInString(l); n > w {
			w = n
		}
	}
	if w > 24 {
		w = 24
	}
	return w
}

func padLabel(l string, w int) string {
	n := utf8.RuneCountInString(l)
	if n > w {
		r := []rune(l)
		return string(r[:w-1]) + "…"
	}
	return l + strings.Repeat(" ", w-n)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// barChart draws one horizontal bar per label. Negative values draw no bar.
func barChart(c Chart, width int) string {
	if len(c.Values) == 0 {
		return "(no data)"
	}
	maxV := 0.0
	for _, v := range c.Values {
		if v > maxV {
			maxV = v
		}
	}
	lw := labelWidth(c.Labels)
	var b strings.Builder
	for i, v := range c.Values {
		n := 0
		if maxV > 0 && v > 0 {
			n = int(math.Round(v / maxV * float64(width)))
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s │%s %s", padLabel(c.Labels[i], lw), strings.Repeat("█", n), formatValue(v))
	}
	return b.String()
}

// lineChart draws a sparkline with the first and last label underneath.
func lineChart(c Chart) string {
	if len(c.Values) == 0 {
		return "(no data)"
	}
	lo, hi := c.Values[0], c.Values[0]
	for _, v := range c.Values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	spark := make([]rune, len(c.Values))
	for i, v := range c.Values {
		spark[i] = sparkRunes[scale(v, lo, hi, len(sparkRunes)-1)]
	}
	var b strings.Builder
	b.WriteString(string(spark))
	fmt.Fprintf(&b, "\n%s … %s  (min %s, max %s)", c.Labels[0], c.Labels[len(c.Labels)-1], formatValue(lo), formatValue(hi))
	return b.String()
}

// pieChart lists each slice with its share of the total.
func pieChart(c Chart, width int) (string, error) {
	total := 0.0
	for _, v := range c.Values {
		if v < 0 {
			return "", errors.New("pie values must not be negative")
		}
		total += v
	}
	if total == 0 {
		return "", errors.New("pie values sum to zero")
	}
	lw := labelWidth(c.Labels)
	var b strings.Builder
	for i, v := range c.Values {
		share := v / total
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %5.1f%% %s", padLabel(c.Labels[i], lw), share*100, strings.Repeat("■", int(math.Round(share*float64(width)))))
	}
	return b.String(), nil
}

// scatterChart plots values against labels on a character grid. Labels that
// parse as numbers are used as x positions; otherwise the index is.
func scatterChart(c Chart, width, height int) string {
	n := len(c.Values)
	if n == 0 {
		return "(no data)"
	}
	xs := make([]float64, n)
	for i, l := range c.Labels {
		x, err := strconv.ParseFloat(strings.TrimSpace(l), 64)
		if err != nil || math.IsInf(x, 0) || math.IsNaN(x) {
			x = float64(i)
		}
		xs[i] = x
	}
	xlo, xhi := minMax(xs)
	ylo, yhi := minMax(c.Values)
	grid := make([][]rune, height)
	for r := range grid {
		grid[r] = []rune(strings.Repeat(" ", width))
	}
	for i := range xs {
		col := scale(xs[i], xlo, xhi, width-1)
		row := height - 1 - scale(c.Values[i], ylo, yhi, height-1)
		grid[row][col] = '•'
	}
	var b strings.Builder
	for r, line := range grid {
		if r > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("│" + string(line))
	}
	fmt.Fprintf(&b, "\n└%s\n x %s…%s  y %s…%s", strings.Repeat("─", width), formatValue(xlo), formatValue(xhi), formatValue(ylo), formatValue(yhi))
	return b.String()
}

func minMax(vs []float64) (float64, float64) {
	lo, hi := vs[0], vs[0]
	for _, v := range vs {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// scale maps v from [lo, hi] onto [0, steps]. Both ends are divided before
// subtracting so spans wider than the float64 range stay finite.
func scale(v, lo, hi float64, steps int) int {
	if hi <= lo || steps <= 0 {
		return 0
	}
	pos := (v/2 - lo/2) / (hi/2 - lo/2) * float64(steps)
	switch {
	case math.IsNaN(pos) || pos < 0:
		return 0
	case pos > float64(steps):
		return steps
	}
	return int(math.Round(pos))
}
