package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func mustParse(t *testing.T, s string) Result {
	t.Helper()
	r, err := ParseResult(s)
	if err != nil {
		t.Fatalf("ParseResult(%q): %v", s, err)
	}
	return r
}

func TestParseResultAcceptsFencedObject(t *testing.T) {
	r := mustParse(t, "```json\n{\"answer\": \"42\"}\n```")
	if !r.Has(KeyAnswer) {
		t.Fatalf("expected answer key, got %v", r)
	}
}

func TestParseResultRejectsNonObjects(t *testing.T) {
	for _, in := range []string{"not json", "", "[1,2]", "\"text\"", "null", "{\"answer\": "} {
		if _, err := ParseResult(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestRaggedTableFailsButSiblingAnswerRenders(t *testing.T) {
	r := mustParse(t, `{"table": {"columns": ["a","b"], "data": [["x","y"], ["z"]]}, "answer": "still here"}`)
	v := &View{}
	rep := Render(r, v)

	if len(rep.Failures) != 1 || rep.Failures[0].Key != KeyTable {
		t.Fatalf("expected a single table failure, got %+v", rep.Failures)
	}
	if len(rep.Rendered) != 1 || rep.Rendered[0] != KeyAnswer {
		t.Fatalf("expected answer rendered, got %+v", rep.Rendered)
	}
	var sawAnswer, sawFailure bool
	for _, s := range v.Sections {
		switch s.Kind {
		case SectionAnswer:
			sawAnswer = s.Text == "still here"
		case SectionFailure:
			sawFailure = s.Key == KeyTable && strings.Contains(s.Text, "row 1") && len(s.Raw) > 0
		}
	}
	if !sawAnswer || !sawFailure {
		t.Fatalf("unexpected sections: %+v", v.Sections)
	}
}

func TestBarCoercesNonNumericToZero(t *testing.T) {
	d := Decode(mustParse(t, `{"bar": {"columns": ["A","B"], "data": ["oops", 5]}}`))
	if d.Bar.Status != Present {
		t.Fatalf("expected bar present, got %v (%v)", d.Bar.Status, d.Bar.Err)
	}
	want := Chart{Kind: KeyBar, Labels: []string{"A", "B"}, Values: []float64{0, 5}}
	if !reflect.DeepEqual(d.Bar.Value, want) {
		t.Fatalf("unexpected chart: %+v", d.Bar.Value)
	}
}

func TestChartLabelsAndValuesCoercion(t *testing.T) {
	d := Decode(mustParse(t, `{"line": {"columns": [2020, "2021", null, true], "data": [1.5, null, false, -2]}}`))
	if d.Line.Status != Present {
		t.Fatalf("expected line present: %v", d.Line.Err)
	}
	if !reflect.DeepEqual(d.Line.Value.Labels, []string{"2020", "2021", "", "true"}) {
		t.Fatalf("unexpected labels: %q", d.Line.Value.Labels)
	}
	if !reflect.DeepEqual(d.Line.Value.Values, []float64{1.5, 0, 0, -2}) {
		t.Fatalf("unexpected values: %v", d.Line.Value.Values)
	}
}

func TestChartLengthMismatchIsMalformed(t *testing.T) {
	d := Decode(mustParse(t, `{"pie": {"columns": ["a","b","c"], "data": [1,2]}, "scatter": {"columns": [1]}}`))
	if d.Pie.Status != Malformed || d.Scatter.Status != Malformed {
		t.Fatalf("expected malformed charts, got pie=%v scatter=%v", d.Pie.Status, d.Scatter.Status)
	}
	if d.Bar.Status != Absent {
		t.Fatalf("absent key decoded as %v", d.Bar.Status)
	}
}

func TestTextKeysAcceptAnyJSON(t *testing.T) {
	d := Decode(mustParse(t, `{"answer": {"n": 1}, "error": "upstream said no", "debug_info": 3}`))
	if d.Answer.Value != `{"n":1}` || d.Error.Value != "upstream said no" || d.DebugInfo.Value != "3" {
		t.Fatalf("unexpected text decode: %+v", d)
	}
}

func TestAllKeysDispatchedInOrder(t *testing.T) {
	r := mustParse(t, `{
		"scatter": {"columns": [1,2], "data": [3,4]},
		"answer": "a",
		"debug_info": "d",
		"bar": {"columns": ["x"], "data": [1]},
		"error": "e",
		"unknown": 1
	}`)
	v := &View{IncludeRaw: true}
	rep := Render(r, v)
	want := []Key{KeyDebugInfo, KeyError, KeyAnswer, KeyBar, KeyScatter}
	if !reflect.DeepEqual(rep.Rendered, want) {
		t.Fatalf("unexpected dispatch order: %v", rep.Rendered)
	}
	last := v.Sections[len(v.Sections)-1]
	if last.Kind != SectionRaw || !bytes.Contains(last.Raw, []byte(`"unknown":1`)) {
		t.Fatalf("expected trailing raw dump with unknown key, got %+v", last)
	}
}

func TestRenderIsIdempotent(t *testing.T) {
	r := mustParse(t, `{"answer": "ok", "table": {"columns": ["k","v"], "data": [["a", 1], ["b", 2.5]]}, "pie": {"columns": ["x","y"], "data": [1, 3]}}`)

	a, _ := json.Marshal(Sections(r, true))
	b, _ := json.Marshal(Sections(r, true))
	if !bytes.Equal(a, b) {
		t.Fatalf("view output differs between renders:\n%s\n%s", a, b)
	}

	dir := t.TempDir()
	var out1, out2 bytes.Buffer
	t1 := NewTerminal(&out1)
	t1.SaveDir = dir
	t2 := NewTerminal(&out2)
	t2.SaveDir = dir
	Render(r, t1)
	Render(r, t2)
	if out1.String() != out2.String() {
		t.Fatalf("terminal output differs:\n%s\n---\n%s", out1.String(), out2.String())
	}
}

type panickySurface struct {
	View
}

func (p *panickySurface) Chart(c Chart) error {
	if c.Kind == KeyLine {
		panic("index out of range")
	}
	return p.View.Chart(c)
}

func (p *panickySurface) Answer(string) error { return errors.New("widget gone") }

func TestSurfaceFailuresAreIsolated(t *testing.T) {
	r := mustParse(t, `{"answer": "a", "line": {"columns": ["x"], "data": [1]}, "bar": {"columns": ["y"], "data": [2]}}`)
	s := &panickySurface{}
	rep := Render(r, s)
	if len(rep.Failures) != 2 {
		t.Fatalf("expected answer and line failures, got %+v", rep.Failures)
	}
	if len(rep.Rendered) != 1 || rep.Rendered[0] != KeyBar {
		t.Fatalf("expected bar rendered, got %v", rep.Rendered)
	}
}

func TestTerminalDrawsChartsAndSavesTables(t *testing.T) {
	r := mustParse(t, `{
		"table": {"columns": ["城市","销量"], "data": [["北京", 10]]},
		"bar": {"columns": ["A","B"], "data": [1, 2]},
		"line": {"columns": [1,2,3], "data": [1, 5, 3]},
		"pie": {"columns": ["p","q"], "data": [1, 1]},
		"scatter": {"columns": [0, 10], "data": [0, 10]}
	}`)
	dir := t.TempDir()
	var out bytes.Buffer
	term := NewTerminal(&out)
	term.SaveDir = dir
	rep := Render(r, term)
	if !rep.OK() {
		t.Fatalf("unexpected failures: %+v", rep.Failures)
	}
	s := out.String()
	for _, want := range []string{"北京", "BAR chart", "█", "50.0%", "•"} {
		if !strings.Contains(s, want) {
			t.Fatalf("expected %q in output:\n%s", want, s)
		}
	}
	files, _ := filepath.Glob(filepath.Join(dir, "table-*.csv"))
	if len(files) != 1 {
		t.Fatalf("expected one saved table, got %v", files)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("\xef\xbb\xbf")) || !bytes.Contains(data, []byte("北京,10")) {
		t.Fatalf("unexpected csv export: %q", data)
	}
}

func TestPieWithZeroTotalFails(t *testing.T) {
	r := mustParse(t, `{"pie": {"columns": ["a"], "data": ["n/a"]}}`)
	var out bytes.Buffer
	rep := Render(r, NewTerminal(&out))
	if rep.OK() || !strings.Contains(out.String(), "could not render pie") {
		t.Fatalf("expected pie failure, got %+v\n%s", rep, out.String())
	}
}

func TestFallbackResult(t *testing.T) {
	d := Decode(FallbackResult())
	if d.Answer.Status != Present || d.Answer.Value != FallbackAnswer {
		t.Fatalf("unexpected fallback: %+v", d.Answer)
	}
	if len(FallbackResult()) != 1 {
		t.Fatalf("fallback must only carry an answer")
	}
}

func TestChartsWithExtremeSpanRender(t *testing.T) {
	r := mustParse(t, `{
		"line": {"columns": ["a","b","c"], "data": [-1e308, 0, 1e308]},
		"scatter": {"columns": [-1e308, 1e308, "inf"], "data": [-1e308, 1e308, 0]}
	}`)
	var out bytes.Buffer
	rep := Render(r, NewTerminal(&out))
	if !rep.OK() {
		t.Fatalf("extreme values should still render, got %+v\n%s", rep.Failures, out.String())
	}
	if !strings.Contains(out.String(), "▁") || !strings.Contains(out.String(), "█") {
		t.Fatalf("expected the sparkline to span both ends:\n%s", out.String())
	}
}

func TestScaleClampsIntoRange(t *testing.T) {
	cases := []struct {
		v, lo, hi float64
		want      int
	}{
		{-1e308, -1e308, 1e308, 0},
		{1e308, -1e308, 1e308, 7},
		{0, -1e308, 1e308, 4},
		{5, 0, 10, 4},
		{3, 3, 3, 0},
		{math.NaN(), 0, 1, 0},
		{math.Inf(1), 0, 1, 7},
	}
	for _, c := range cases {
		if got := scale(c.v, c.lo, c.hi, 7); got != c.want {
			t.Fatalf("scale(%v, %v, %v) = %d, want %d", c.v, c.lo, c.hi, got, c.want)
		}
	}
}

func TestKeyIsChart(t *testing.T) {
	for _, k := range Keys {
		want := k == KeyBar || k == KeyLine || k == KeyPie || k == KeyScatter
		if k.IsChart() != want {
			t.Fatalf("%s.IsChart() = %v", k, !want)
		}
	}
}
