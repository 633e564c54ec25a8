package render

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"hash/fnv"
)

// utf8BOM makes spreadsheet tools pick UTF-8 when opening the export.
const utf8BOM = "\ufeff"

// CSV encodes the table as UTF-8 CSV with a byte-order mark.
func (t Table) CSV() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(utf8BOM)
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Columns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return nil, fmt.Errorf("write rows: %w", err)
	}
	return buf.Bytes(), nil
}

// FileName derives a stable file name from the table content.
func (t Table) FileName() (string, error) {
	b, err := t.CSV()
	if err != nil {
		return "", err
	}
	h := fnv.New32a()
	_, _ = h.Write(b)
	return fmt.Sprintf("table-%08x.csv", h.Sum32()), nil
}
