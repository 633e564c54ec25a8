package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/KaramelBytes/tablechat/internal/analysis"
	"github.com/KaramelBytes/tablechat/internal/analyst"
	cfgpkg "github.com/KaramelBytes/tablechat/internal/config"
	"github.com/KaramelBytes/tablechat/internal/dataset"
	"github.com/KaramelBytes/tablechat/internal/logging"
	"github.com/KaramelBytes/tablechat/internal/render"
	"github.com/KaramelBytes/tablechat/internal/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// analyzeOptions carries the analyze flags so the command body can be
// driven from tests.
type analyzeOptions struct {
	Sheet      string
	ListSheets bool
	Histogram  string
	Bins       int
	TimeSeries string
	DateColumn string
	Question   string
	JSON       bool
	SaveTables string
	OutputPath string
	Vendor     string
	Model      string
	Load       dataset.Options
	Analysis   analysis.Options
}

var (
	anaOpts       analyzeOptions
	anaDelimiter  string
	anaDecimal    string
	anaThousands  string
	anaSampleRows int
	anaMaxRows    int
	anaNoCorr     bool
	anaOutliers   bool
	anaOutlierThr float64
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Profile a CSV/TSV/XLSX file or ask a question about it",
	Example: `  tablechat analyze sales.csv
  tablechat analyze report.xlsx --list-sheets
  tablechat analyze report.xlsx --sheet Q3 --histogram revenue --bins 12
  tablechat analyze daily.csv --timeseries revenue --date-column day
  tablechat analyze sales.csv --question "Which region grew fastest?" --save-tables ./out`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o := anaOpts
		o.Load = dataset.Options{Sheet: o.Sheet, MaxRows: anaMaxRows}
		switch anaDelimiter {
		case "":
		case ",":
			o.Load.Delimiter = ','
		case "\t", "tab":
			o.Load.Delimiter = '\t'
		case ";":
			o.Load.Delimiter = ';'
		default:
			return fmt.Errorf("unsupported --delimiter: %s", anaDelimiter)
		}
		o.Analysis = analysis.DefaultOptions()
		if anaSampleRows > 0 {
			o.Analysis.SampleRows = anaSampleRows
		}
		o.Analysis.Correlations = !anaNoCorr
		o.Analysis.Outliers = anaOutliers
		if anaOutlierThr > 0 {
			o.Analysis.OutlierThreshold = anaOutlierThr
		}
		// Locale separators
		switch strings.ToLower(strings.TrimSpace(anaDecimal)) {
		case ",", "comma":
			o.Analysis.DecimalSeparator = ','
		case ".", "dot":
			o.Analysis.DecimalSeparator = '.'
		case "":
		default:
			return fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", anaDecimal)
		}
		switch strings.ToLower(strings.TrimSpace(anaThousands)) {
		case ",":
			o.Analysis.ThousandsSeparator = ','
		case ".":
			o.Analysis.ThousandsSeparator = '.'
		case "space", " ":
			o.Analysis.ThousandsSeparator = ' '
		case "":
		default:
			return fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", anaThousands)
		}
		return runAnalyze(cmd.Context(), cmd.OutOrStdout(), args[0], o, cfg)
	},
}

func runAnalyze(ctx context.Context, out io.Writer, path string, o analyzeOptions, c *cfgpkg.Global) error {
	if o.ListSheets {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		sheets, err := dataset.Sheets(path, f)
		if err != nil {
			return err
		}
		if len(sheets) == 0 {
			fmt.Fprintln(out, "⚠ flat file: no sheets")
			return nil
		}
		for i, s := range sheets {
			fmt.Fprintf(out, "%d. %s\n", i+1, s)
		}
		return nil
	}

	t, err := dataset.LoadFile(path, o.Load)
	if err != nil {
		return err
	}
	logging.L().Debug("dataset loaded",
		zap.String("file", t.Name),
		zap.String("sheet", t.Sheet),
		zap.Int("rows", len(t.Rows)),
		zap.Int("total_rows", t.TotalRows))

	if o.Histogram != "" {
		return printHistogram(out, t, o)
	}
	if o.TimeSeries != "" {
		return printTimeSeries(out, t, o)
	}

	profile := analysis.Analyze(t, o.Analysis)
	if strings.TrimSpace(o.Question) != "" {
		return askQuestion(ctx, out, profile, o, c)
	}

	if o.JSON {
		b, err := utils.PrettyJSON(profile)
		if err != nil {
			return err
		}
		return writeOutput(out, o.OutputPath, b)
	}
	return writeOutput(out, o.OutputPath, []byte(profile.Markdown()))
}

func printHistogram(out io.Writer, t *dataset.Table, o analyzeOptions) error {
	h, err := analysis.NewHistogram(t, o.Histogram, o.Bins)
	if err != nil {
		return err
	}
	if o.JSON {
		b, err := utils.PrettyJSON(h)
		if err != nil {
			return err
		}
		return writeOutput(out, o.OutputPath, b)
	}
	term := render.NewTerminal(out)
	fmt.Fprintf(out, "Histogram of %s (%d bins", h.Column, len(h.Counts))
	if h.Skipped > 0 {
		fmt.Fprintf(out, ", %d non-numeric skipped", h.Skipped)
	}
	fmt.Fprintln(out, ")")
	return term.Chart(render.Chart{Kind: render.KeyBar, Labels: h.Labels(), Values: h.Values()})
}

func printTimeSeries(out io.Writer, t *dataset.Table, o analyzeOptions) error {
	ts, err := analysis.NewTimeSeries(t, o.DateColumn, o.TimeSeries)
	if err != nil {
		return err
	}
	if o.JSON {
		b, err := utils.PrettyJSON(ts)
		if err != nil {
			return err
		}
		return writeOutput(out, o.OutputPath, b)
	}
	term := render.NewTerminal(out)
	fmt.Fprintf(out, "%s by %s (%d points", ts.ValueColumn, ts.DateColumn, len(ts.Points))
	if ts.Skipped > 0 {
		fmt.Fprintf(out, ", %d rows skipped", ts.Skipped)
	}
	fmt.Fprintln(out, ")")
	if err := term.Chart(render.Chart{Kind: render.KeyLine, Labels: ts.Labels(), Values: ts.Values()}); err != nil {
		return err
	}
	if len(ts.MovingAverage) > 0 {
		fmt.Fprintf(out, "%d-period moving average\n", ts.Window)
		if err := term.Chart(render.Chart{Kind: render.KeyLine, Labels: ts.MovingAverageLabels(), Values: ts.MovingAverageValues()}); err != nil {
			return err
		}
	}
	if len(ts.Monthly) > 0 {
		fmt.Fprintln(out, "Monthly averages")
		return term.Chart(render.Chart{Kind: render.KeyBar, Labels: ts.MonthlyLabels(), Values: ts.MonthlyValues()})
	}
	return nil
}

func askQuestion(ctx context.Context, out io.Writer, profile *analysis.Profile, o analyzeOptions, c *cfgpkg.Global) error {
	if c == nil {
		return errors.New("no usable configuration (fix the config file or run with --config)")
	}
	rr, err := buildRuntime(c, runtimeOptions{VendorFlag: o.Vendor, ModelFlag: o.Model})
	if err != nil {
		return err
	}
	a := analyst.New(rr.Runtime, analyst.Options{
		Model:              rr.Model,
		MaxTokens:          c.MaxTokens,
		Language:           analyst.ParseLanguage(c.AnalysisLanguage),
		ContextTokenBudget: c.ContextTokenBudget,
		Logger:             logging.L(),
	})
	res := a.Ask(ctx, profile, o.Question)

	if o.JSON {
		b, err := utils.PrettyJSON(struct {
			Result   json.RawMessage  `json:"result"`
			Sections []render.Section `json:"sections"`
		}{res.JSON(), render.Sections(res, false)})
		if err != nil {
			return err
		}
		return writeOutput(out, o.OutputPath, b)
	}
	term := render.NewTerminal(out)
	term.SaveDir = o.SaveTables
	report := render.Render(res, term)
	for _, f := range report.Failures {
		logging.L().Warn("result key not rendered", zap.String("key", string(f.Key)), zap.Error(f.Err))
	}
	return nil
}

// writeOutput writes to path when set, otherwise to out.
func writeOutput(out io.Writer, path string, b []byte) error {
	if path == "" {
		_, err := fmt.Fprintln(out, string(b))
		return err
	}
	if err := utils.SafeWriteFile(path, b); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintf(out, "✓ Wrote analysis to %s\n", path)
	return nil
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	f := analyzeCmd.Flags()
	f.StringVar(&anaOpts.Sheet, "sheet", "", "XLSX: sheet name to analyze (default: first sheet)")
	f.BoolVar(&anaOpts.ListSheets, "list-sheets", false, "list worksheet names and exit")
	f.StringVar(&anaOpts.Histogram, "histogram", "", "print a histogram of this numeric column")
	f.IntVar(&anaOpts.Bins, "bins", 0, "histogram bins (0 = Sturges' rule)")
	f.StringVar(&anaOpts.TimeSeries, "timeseries", "", "plot this numeric column over time with a moving average")
	f.StringVar(&anaOpts.DateColumn, "date-column", "", "datetime column for --timeseries (default: first detected)")
	f.StringVarP(&anaOpts.Question, "question", "q", "", "ask the model a question about the data")
	f.BoolVar(&anaOpts.JSON, "json", false, "print JSON instead of Markdown / terminal output")
	f.StringVar(&anaOpts.SaveTables, "save-tables", "", "directory to save result tables as CSV")
	f.StringVarP(&anaOpts.OutputPath, "output", "o", "", "optional path to write the profile or JSON")
	f.StringVar(&anaOpts.Vendor, "vendor", "", "vendor preset for --question")
	f.StringVar(&anaOpts.Model, "model", "", "model id for --question")
	f.StringVar(&anaDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab'")
	f.StringVar(&anaDecimal, "decimal", "", "decimal separator for numbers: '.'|'comma' (auto-detect if omitted)")
	f.StringVar(&anaThousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space' (auto-detect if omitted)")
	f.IntVar(&anaSampleRows, "sample-rows", 5, "number of sample rows to include")
	f.IntVar(&anaMaxRows, "max-rows", 100000, "maximum rows to load (0 = unlimited)")
	f.BoolVar(&anaNoCorr, "no-correlations", false, "skip Pearson correlations among numeric columns")
	f.BoolVar(&anaOutliers, "outliers", true, "compute robust outlier counts (MAD)")
	f.Float64Var(&anaOutlierThr, "outlier-threshold", 3.5, "robust |z| threshold for outliers (MAD-based)")
}
