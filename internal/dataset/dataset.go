// Package dataset loads spreadsheet and delimited files into in-memory tables.
package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Table is a loaded dataset. Every cell is kept as text; Rows are padded or
// truncated to the header width.
type Table struct {
	Name    string     `json:"name"`
	Sheet   string     `json:"sheet,omitempty"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
	// TotalRows counts data rows in the source, including those dropped by MaxRows.
	TotalRows int `json:"total_rows"`
}

// Truncated reports whether MaxRows dropped rows.
func (t *Table) Truncated() bool { return t.TotalRows > len(t.Rows) }

// ColumnIndex finds a column by name, ignoring case and surrounding space.
func (t *Table) ColumnIndex(name string) (int, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	for i, c := range t.Columns {
		if strings.ToLower(strings.TrimSpace(c)) == want {
			return i, true
		}
	}
	return -1, false
}

// Options controls loading.
type Options struct {
	// Sheet selects a worksheet; empty means the first.
	Sheet string
	// MaxRows limits rows kept; 0 means unlimited.
	MaxRows int
	// Delimiter for CSV. If 0, sniffed among ',', ';', '\t'.
	Delimiter rune
}

// Loader reads one family of formats.
type Loader interface {
	CanLoad(name string) bool
	Load(name string, data []byte, opt Options) (*Table, error)
}

// SheetLister is implemented by loaders of multi-sheet workbooks.
type SheetLister interface {
	Sheets(data []byte) ([]string, error)
}

// ErrUnsupported indicates a format is not supported.
var ErrUnsupported = errors.New("unsupported data format")

// LoadError wraps a failure with the file and step involved.
type LoadError struct {
	Path string
	Op   string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

var registry []Loader

// Register adds a loader to the registry.
func Register(l Loader) {
	registry = append(registry, l)
}

func init() {
	Register(csvLoader{})
	Register(xlsxLoader{})
}

func lookup(name string) (Loader, error) {
	for _, l := range registry {
		if l.CanLoad(name) {
			return l, nil
		}
	}
	return nil, &LoadError{Path: name, Op: "select loader", Err: ErrUnsupported}
}

// Supported reports whether some loader accepts name.
func Supported(name string) bool {
	_, err := lookup(name)
	return err == nil
}

// Load reads r and parses it with the loader matching name's extension.
func Load(name string, r io.Reader, opt Options) (*Table, error) {
	l, err := lookup(name)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &LoadError{Path: name, Op: "read", Err: err}
	}
	t, err := l.Load(name, data, opt)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			return nil, err
		}
		return nil, &LoadError{Path: name, Op: "parse", Err: err}
	}
	t.Name = filepath.Base(name)
	return t, nil
}

// LoadFile opens path and loads it.
func LoadFile(path string, opt Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Op: "open", Err: err}
	}
	defer f.Close()
	return Load(path, f, opt)
}

// Sheets lists worksheet names for workbook formats and nil for flat files.
func Sheets(name string, r io.Reader) ([]string, error) {
	l, err := lookup(name)
	if err != nil {
		return nil, err
	}
	sl, ok := l.(SheetLister)
	if !ok {
		return nil, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &LoadError{Path: name, Op: "read", Err: err}
	}
	names, err := sl.Sheets(data)
	if err != nil {
		return nil, &LoadError{Path: name, Op: "list sheets", Err: err}
	}
	return names, nil
}

// build turns raw records (header first) into a Table.
func build(records [][]string, opt Options) *Table {
	t := &Table{}
	if len(records) == 0 {
		return t
	}
	header := records[0]
	t.Columns = make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		t.Columns[i] = h
	}
	ncol := len(t.Columns)
	for _, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		t.TotalRows++
		if opt.MaxRows > 0 && len(t.Rows) >= opt.MaxRows {
			continue
		}
		row := make([]string, ncol)
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
