package render

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/KaramelBytes/tablechat/internal/utils"
)

type terminalStyles struct {
	heading lipgloss.Style
	answer  lipgloss.Style
	debug   lipgloss.Style
	err     lipgloss.Style
	header  lipgloss.Style
	cell    lipgloss.Style
	bar     lipgloss.Style
	dim     lipgloss.Style
	raw     lipgloss.Style
}

func newTerminalStyles(r *lipgloss.Renderer) terminalStyles {
	return terminalStyles{
		heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		answer:  r.NewStyle().Foreground(lipgloss.Color("255")),
		debug:   r.NewStyle().Foreground(lipgloss.Color("243")).Italic(true),
		err:     r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("62")).Padding(0, 1),
		cell:    r.NewStyle().Padding(0, 1),
		bar:     r.NewStyle().Foreground(lipgloss.Color("42")),
		dim:     r.NewStyle().Foreground(lipgloss.Color("240")),
		raw:     r.NewStyle().Foreground(lipgloss.Color("135")),
	}
}

// Terminal renders results as styled text. Charts are drawn with block
// characters; tables go through lipgloss/table.
type Terminal struct {
	w      io.Writer
	styles terminalStyles
	// Width is the chart drawing width in cells.
	Width int
	// SaveDir, when set, receives a CSV export of every rendered table.
	SaveDir string
	// ShowRaw prints the full raw result after the rendered keys.
	ShowRaw bool
}

// NewTerminal writes to w, styled for w's color profile.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w, styles: newTerminalStyles(lipgloss.NewRenderer(w)), Width: 40}
}

func (t *Terminal) println(s string) error {
	_, err := fmt.Fprintln(t.w, s)
	return err
}

func (t *Terminal) Debug(text string) error {
	return t.println(t.styles.debug.Render("debug: " + text))
}

func (t *Terminal) Error(text string) error {
	return t.println(t.styles.err.Render("✗ " + text))
}

func (t *Terminal) Answer(text string) error {
	return t.println(t.styles.answer.Render(text))
}

func (t *Terminal) Table(tb Table) error {
	st := t.styles
	out := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(st.dim).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return st.header
			}
			return st.cell
		}).
		Headers(tb.Columns...).
		Rows(tb.Rows...)
	if err := t.println(out.String()); err != nil {
		return err
	}
	if t.SaveDir == "" {
		return nil
	}
	name, err := tb.FileName()
	if err != nil {
		return err
	}
	data, err := tb.CSV()
	if err != nil {
		return err
	}
	path := filepath.Join(t.SaveDir, name)
	if err := utils.SafeWriteFile(path, data); err != nil {
		return fmt.Errorf("save table: %w", err)
	}
	return t.println(st.dim.Render("✓ saved " + path))
}

func (t *Terminal) Chart(c Chart) error {
	var body string
	var err error
	switch c.Kind {
	case KeyBar:
		body = barChart(c, t.Width)
	case KeyLine:
		body = lineChart(c)
	case KeyPie:
		body, err = pieChart(c, t.Width/2)
	case KeyScatter:
		body = scatterChart(c, t.Width, 10)
	default:
		err = fmt.Errorf("unsupported chart kind %q", c.Kind)
	}
	if err != nil {
		return err
	}
	lines := []string{t.styles.heading.Render(strings.ToUpper(string(c.Kind)) + " chart")}
	for _, l := range strings.Split(body, "\n") {
		lines = append(lines, t.styles.bar.Render(l))
	}
	return t.println(strings.Join(lines, "\n"))
}

func (t *Terminal) Failure(key Key, err error, raw json.RawMessage) {
	_ = t.println(t.styles.err.Render(fmt.Sprintf("✗ could not render %s: %v", key, err)))
	if pretty, perr := utils.PrettyJSON(raw); perr == nil {
		_ = t.println(t.styles.raw.Render(string(pretty)))
	} else {
		_ = t.println(t.styles.raw.Render(string(raw)))
	}
}

func (t *Terminal) Raw(result json.RawMessage) {
	if !t.ShowRaw {
		return
	}
	_ = t.println(t.styles.dim.Render("raw result:"))
	if pretty, err := utils.PrettyJSON(result); err == nil {
		_ = t.println(t.styles.raw.Render(string(pretty)))
	}
}
