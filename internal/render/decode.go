package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Status tags the outcome of decoding one key.
type Status int

const (
	Absent Status = iota
	Present
	Malformed
)

func (s Status) String() string {
	switch s {
	case Present:
		return "present"
	case Malformed:
		return "malformed"
	default:
		return "absent"
	}
}

// Field is the decoded form of one key. Raw always holds the original
// uncoerced value when the key was present.
type Field[T any] struct {
	Status Status
	Value  T
	Err    error
	Raw    json.RawMessage
}

// Table is a row-major grid with every cell rendered as text.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Chart is a labelled numeric series.
type Chart struct {
	Kind   Key       `json:"kind"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// Decoded holds one Field per recognised key. Every key is decoded on its
// own; a malformed key never affects its siblings.
type Decoded struct {
	DebugInfo Field[string]
	Error     Field[string]
	Answer    Field[string]
	Table     Field[Table]
	Bar       Field[Chart]
	Line      Field[Chart]
	Pie       Field[Chart]
	Scatter   Field[Chart]
}

// Chart returns the chart field for k (bar, line, pie or scatter).
func (d Decoded) Chart(k Key) Field[Chart] {
	switch k {
	case KeyBar:
		return d.Bar
	case KeyLine:
		return d.Line
	case KeyPie:
		return d.Pie
	case KeyScatter:
		return d.Scatter
	}
	return Field[Chart]{}
}

// Status reports the decode status of k.
func (d Decoded) Status(k Key) Status {
	switch k {
	case KeyDebugInfo:
		return d.DebugInfo.Status
	case KeyError:
		return d.Error.Status
	case KeyAnswer:
		return d.Answer.Status
	case KeyTable:
		return d.Table.Status
	}
	return d.Chart(k).Status
}

// Decode classifies every recognised key of r as absent, present or
// malformed.
func Decode(r Result) Decoded {
	return Decoded{
		DebugInfo: decodeField(r, KeyDebugInfo, decodeText),
		Error:     decodeField(r, KeyError, decodeText),
		Answer:    decodeField(r, KeyAnswer, decodeText),
		Table:     decodeField(r, KeyTable, decodeTable),
		Bar:       decodeField(r, KeyBar, chartDecoder(KeyBar)),
		Line:      decodeField(r, KeyLine, chartDecoder(KeyLine)),
		Pie:       decodeField(r, KeyPie, chartDecoder(KeyPie)),
		Scatter:   decodeField(r, KeyScatter, chartDecoder(KeyScatter)),
	}
}

func decodeField[T any](r Result, k Key, fn func(json.RawMessage) (T, error)) (f Field[T]) {
	raw, ok := r[string(k)]
	if !ok {
		return f
	}
	f.Raw = raw
	defer func() {
		if p := recover(); p != nil {
			var zero T
			f.Status, f.Value, f.Err = Malformed, zero, fmt.Errorf("%s: panic while decoding: %v", k, p)
		}
	}()
	v, err := fn(raw)
	if err != nil {
		f.Status, f.Err = Malformed, fmt.Errorf("%s: %w", k, err)
		return f
	}
	f.Status, f.Value = Present, v
	return f
}

// decodeText takes strings as-is and shows any other value as compact JSON.
func decodeText(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	if !json.Valid(raw) {
		return "", fmt.Errorf("invalid JSON value")
	}
	return string(compact(raw)), nil
}

type gridShape struct {
	Columns json.RawMessage `json:"columns"`
	Data    json.RawMessage `json:"data"`
}

func decodeGrid(raw json.RawMessage) ([]json.RawMessage, []json.RawMessage, error) {
	var g gridShape
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, nil, fmt.Errorf("expected an object with columns and data")
	}
	if len(g.Columns) == 0 || isNull(g.Columns) {
		return nil, nil, fmt.Errorf("missing columns")
	}
	if len(g.Data) == 0 || isNull(g.Data) {
		return nil, nil, fmt.Errorf("missing data")
	}
	var cols, data []json.RawMessage
	if err := json.Unmarshal(g.Columns, &cols); err != nil {
		return nil, nil, fmt.Errorf("columns is not an array")
	}
	if err := json.Unmarshal(g.Data, &data); err != nil {
		return nil, nil, fmt.Errorf("data is not an array")
	}
	return cols, data, nil
}

func decodeTable(raw json.RawMessage) (Table, error) {
	cols, data, err := decodeGrid(raw)
	if err != nil {
		return Table{}, err
	}
	t := Table{Columns: make([]string, len(cols)), Rows: make([][]string, 0, len(data))}
	for i, c := range cols {
		t.Columns[i] = cellText(c)
	}
	for i, rowRaw := range data {
		var row []json.RawMessage
		if err := json.Unmarshal(rowRaw, &row); err != nil {
			return Table{}, fmt.Errorf("row %d is not an array", i)
		}
		if len(row) != len(cols) {
			return Table{}, fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(cols))
		}
		cells := make([]string, len(row))
		for j, c := range row {
			cells[j] = cellText(c)
		}
		t.Rows = append(t.Rows, cells)
	}
	return t, nil
}

func chartDecoder(k Key) func(json.RawMessage) (Chart, error) {
	return func(raw json.RawMessage) (Chart, error) {
		cols, data, err := decodeGrid(raw)
		if err != nil {
			return Chart{}, err
		}
		if len(cols) != len(data) {
			return Chart{}, fmt.Errorf("%d labels but %d values", len(cols), len(data))
		}
		c := Chart{Kind: k, Labels: make([]string, len(cols)), Values: make([]float64, len(data))}
		for i := range cols {
			c.Labels[i] = cellText(cols[i])
			c.Values[i] = numberOr0(data[i])
		}
		return c, nil
	}
}

// cellText renders a JSON scalar for display: strings unquoted, null empty,
// everything else as compact JSON.
func cellText(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(compact(raw))
}

// numberOr0 accepts JSON numbers only; strings, booleans and the rest are 0.
func numberOr0(raw json.RawMessage) float64 {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 || (t[0] != '-' && (t[0] < '0' || t[0] > '9')) {
		return 0
	}
	f, err := strconv.ParseFloat(string(t), 64)
	if err != nil {
		return 0
	}
	return f
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
