package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Markdown renders a compact report suitable for prompts or standalone docs.
func (p *Profile) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if p.Name != "" {
		fmt.Fprintf(&b, "File: %s\n", p.Name)
	}
	if p.Sheet != "" {
		fmt.Fprintf(&b, "Sheet: %s\n", p.Sheet)
	}
	ov := p.Overview
	if p.TotalRows > ov.Rows {
		fmt.Fprintf(&b, "Rows: %d (loaded %d)\n", p.TotalRows, ov.Rows)
	} else {
		fmt.Fprintf(&b, "Rows: %d\n", ov.Rows)
	}
	fmt.Fprintf(&b, "Columns: %d (numeric %d)\n", ov.Columns, ov.NumericColumns)
	fmt.Fprintf(&b, "Missing cells: %d (%.1f%%)\n\n", ov.MissingCells, ov.MissingPct)

	b.WriteString("[SCHEMA]\n")
	for _, c := range p.Cols {
		total := c.NonNull + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		name := safeName(c.Name)
		if c.Unit != "" {
			name = fmt.Sprintf("%s [%s]", name, c.Unit)
		}
		fmt.Fprintf(&b, "- %s: %s (non-null %d, missing %.1f%%)", name, c.Kind, c.NonNull, missPct)
		switch c.Kind {
		case KindNumeric:
			if d := c.Describe; d != nil {
				fmt.Fprintf(&b, ": mean %.4g, std %.4g, min %.4g, q25 %.4g, median %.4g, q75 %.4g, max %.4g",
					d.Mean, d.Std, d.Min, d.Q25, d.Median, d.Q75, d.Max)
			}
			if c.OutlierThreshold > 0 && c.OutliersCount > 0 {
				fmt.Fprintf(&b, "; outliers: %d above |z|>%.1f", c.OutliersCount, c.OutlierThreshold)
			}
		case KindCategorical:
			if len(c.TopValues) > 0 {
				b.WriteString(": top ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					fmt.Fprintf(&b, "%s(%d)", safeVal(kv.Value), kv.Count)
				}
				if c.Unique > len(c.TopValues) {
					fmt.Fprintf(&b, "; unique=%d", c.Unique)
				}
			}
		case KindText:
			if len(c.ExampleTexts) > 0 {
				b.WriteString(": e.g. ")
				for i, ex := range c.ExampleTexts {
					if i > 0 {
						b.WriteString(" | ")
					}
					b.WriteString(safeVal(ex))
				}
			}
		}
		b.WriteString("\n")
	}
	if p.Corr != nil && len(p.Corr.Columns) >= 2 {
		b.WriteString("\n[CORRELATIONS]\n")
		for _, pr := range p.TopCorrelations(10) {
			fmt.Fprintf(&b, "- %s ~ %s: r=%.3f\n", pr.A, pr.B, pr.R)
		}
	}
	if len(p.Samples) > 0 {
		b.WriteString("\n[HEAD AND SAMPLE ROWS]\n| ")
		for i, c := range p.Cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeName(c.Name))
		}
		b.WriteString(" |\n|")
		for range p.Cols {
			b.WriteString(" --- |")
		}
		b.WriteString("\n")
		for _, row := range p.Samples {
			b.WriteString("| ")
			for i := range p.Cols {
				if i > 0 {
					b.WriteString(" | ")
				}
				val := ""
				if i < len(row) {
					val = row[i]
				}
				if r := []rune(val); len(r) > 80 {
					val = string(r[:77]) + "..."
				}
				b.WriteString(safeVal(val))
			}
			b.WriteString(" |\n")
		}
	}
	if len(p.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range p.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// PairCorr is a simple correlation pair summary.
type PairCorr struct {
	A, B string
	R    float64
}

// TopCorrelations lists up to limit column pairs ordered by |r|.
func (p *Profile) TopCorrelations(limit int) []PairCorr {
	if p.Corr == nil {
		return nil
	}
	var pairs []PairCorr
	n := len(p.Corr.Columns)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, PairCorr{A: p.Corr.Columns[i], B: p.Corr.Columns[j], R: p.Corr.Values[i][j]})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		ai, aj := math.Abs(pairs[i].R), math.Abs(pairs[j].R)
		if ai == aj {
			return pairs[i].A+pairs[i].B < pairs[j].A+pairs[j].B
		}
		return ai > aj
	})
	if limit > 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
