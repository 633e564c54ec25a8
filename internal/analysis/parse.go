package analysis

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
	"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
	"2006年1月2日",
}

func parseTimeMaybe(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// separators picks the decimal and thousands marks for raw. Explicit options
// win; otherwise the rightmost of '.' and ',' is the decimal mark, and a lone
// comma followed by exactly three digits groups thousands.
func separators(raw string, opt Options) (dec, thou rune) {
	if opt.DecimalSeparator != 0 {
		return opt.DecimalSeparator, opt.ThousandsSeparator
	}
	comma, dot := strings.LastIndexByte(raw, ','), strings.LastIndexByte(raw, '.')
	switch {
	case comma < 0:
		return '.', 0
	case dot >= 0 && comma > dot:
		return ',', '.'
	case dot >= 0:
		return '.', ','
	case strings.Count(raw, ",") == 1 && len(raw)-comma-1 != 3:
		return ',', 0
	default:
		return '.', ','
	}
}

// parseNumeric accepts locale-formatted numbers such as "1.234,5", "1,234.5",
// "1 000,25" and "12%". NaN and infinities are rejected.
func parseNumeric(s string, opt Options) (float64, bool) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, false
	}
	dec, thou := separators(raw, opt)
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r == dec:
			b.WriteByte('.')
		case r == '%', r == ' ', r == '\u00a0', r == '\u202f', r == thou:
		case thou == 0 && (r == ',' || r == '.'):
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

var unitBrackets = [][2]string{{"(", ")"}, {"[", "]"}, {"（", "）"}}

// splitUnits separates a trailing bracketed unit from a header, so
// "Mass [mg/L]" becomes ("Mass", "mg/L") and "销量（件）" becomes ("销量", "件").
func splitUnits(name string) (clean string, unit string) {
	s := strings.TrimSpace(name)
	for _, br := range unitBrackets {
		if !strings.HasSuffix(s, br[1]) {
			continue
		}
		open := strings.LastIndex(s, br[0])
		if open < 0 {
			continue
		}
		base := strings.TrimSpace(s[:open])
		u := strings.TrimSpace(s[open+len(br[0]) : len(s)-len(br[1])])
		if base != "" && u != "" {
			return base, u
		}
	}
	return s, ""
}

// medianMAD returns the median and the median absolute deviation of vals.
func medianMAD(vals []float64) (median, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	median = quantile(sorted, 0.5)
	dev := make([]float64, len(sorted))
	for i, v := range sorted {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	return median, quantile(dev, 0.5)
}

// quantile interpolates linearly between the closest ranks of sorted.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return 0
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[n-1]
	}
	pos := q * float64(n-1)
	lo := int(pos)
	frac := pos - float64(lo)
	if frac == 0 || lo+1 >= n {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}
