package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/tablechat/internal/ai"
	"github.com/KaramelBytes/tablechat/internal/analysis"
	"github.com/KaramelBytes/tablechat/internal/chat"
	cfgpkg "github.com/KaramelBytes/tablechat/internal/config"
	"gopkg.in/yaml.v3"
)

// stubStreamRuntime returns the same fragments blocking or streamed.
type stubStreamRuntime struct {
	fragments []string
	lastReq   ai.GenerateRequest
}

func (s *stubStreamRuntime) Generate(_ context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	s.lastReq = req
	return &ai.GenerateResponse{Choices: []ai.Choice{{Message: ai.Message{Role: "assistant", Content: strings.Join(s.fragments, "")}}}}, nil
}

func (s *stubStreamRuntime) OpenStream(_ context.Context, req ai.GenerateRequest) (*ai.Stream, error) {
	s.lastReq = req
	return ai.StreamOf(s.fragments...), nil
}

// useRuntime swaps the runtime factory for the duration of the test and
// records the provider and config it was asked for.
func useRuntime(t *testing.T, rt ai.Runtime) (*string, *ai.RuntimeConfig) {
	t.Helper()
	var provider string
	var rc ai.RuntimeConfig
	old := newRuntime
	newRuntime = func(name string, c ai.RuntimeConfig) (ai.Runtime, error) {
		provider, rc = name, c
		return rt, nil
	}
	t.Cleanup(func() { newRuntime = old })
	return &provider, &rc
}

func testConfig() *cfgpkg.Global {
	return &cfgpkg.Global{
		Vendor:           "deepseek",
		Stream:           cfgpkg.StreamAuto,
		Greeting:         "Hello, how can I help you?",
		MaxTokens:        8192,
		AnalysisLanguage: "en",
		OllamaHost:       "http://127.0.0.1:11434",
	}
}

func TestResolveStream(t *testing.T) {
	streaming := ai.Vendor{Stream: true}
	blocking := ai.Vendor{}
	cases := []struct {
		mode string
		v    ai.Vendor
		want bool
	}{
		{"auto", streaming, true},
		{"", blocking, false},
		{"on", blocking, true},
		{"OFF", streaming, false},
	}
	for _, c := range cases {
		got, err := resolveStream(c.mode, c.v)
		if err != nil || got != c.want {
			t.Fatalf("resolveStream(%q) = %v, %v; want %v", c.mode, got, err, c.want)
		}
	}
	if _, err := resolveStream("sometimes", streaming); err == nil {
		t.Fatalf("expected error for bad mode")
	}
}

func TestBuildRuntimePrecedence(t *testing.T) {
	provider, rc := useRuntime(t, &stubStreamRuntime{})
	t.Setenv("DEEPSEEK_API_KEY", "env-key")
	c := testConfig()
	c.APIKey = "cfg-key"

	rr, err := buildRuntime(c, runtimeOptions{})
	if err != nil {
		t.Fatalf("buildRuntime: %v", err)
	}
	if *provider != ai.ProviderOpenAI || rr.Vendor.ID != "deepseek" || rr.Model != "deepseek-chat" || !rr.Stream {
		t.Fatalf("unexpected resolution: %s %+v", *provider, rr)
	}
	if rc.APIKey != "env-key" || rc.BaseURL != "https://api.deepseek.com" || rc.RetryMax != 1 {
		t.Fatalf("unexpected runtime config: %+v", *rc)
	}

	c.OllamaHost = "http://gpu-box:11434"
	rr, err = buildRuntime(c, runtimeOptions{VendorFlag: "Ollama", ModelFlag: "qwen2.5:7b", StreamFlag: "off"})
	if err != nil {
		t.Fatalf("buildRuntime: %v", err)
	}
	if *provider != ai.ProviderOllama || rc.Host != "http://gpu-box:11434" || rr.Model != "qwen2.5:7b" || rr.Stream {
		t.Fatalf("flags not applied: %s %+v %+v", *provider, *rc, rr)
	}

	if _, err := buildRuntime(c, runtimeOptions{VendorFlag: "acme"}); err == nil || !strings.Contains(err.Error(), "deepseek") {
		t.Fatalf("expected unknown vendor error listing presets, got %v", err)
	}
}

func TestBuildRuntimeConfigScopedToConfiguredVendor(t *testing.T) {
	_, rc := useRuntime(t, &stubStreamRuntime{})
	t.Setenv("DEEPSEEK_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	c := testConfig()
	c.Vendor = "openai"
	c.Model = "gpt-4o"
	c.APIKey = "openai-key"
	c.BaseURL = "https://proxy.example/v1"

	rr, err := buildRuntime(c, runtimeOptions{})
	if err != nil {
		t.Fatalf("buildRuntime: %v", err)
	}
	if rc.BaseURL != "https://proxy.example/v1" || rc.APIKey != "openai-key" || rr.Model != "gpt-4o" {
		t.Fatalf("configured vendor lost its settings: %+v %+v", *rc, rr)
	}

	rr, err = buildRuntime(c, runtimeOptions{VendorFlag: "deepseek"})
	if err != nil {
		t.Fatalf("buildRuntime: %v", err)
	}
	if rc.BaseURL != "https://api.deepseek.com" {
		t.Fatalf("base_url leaked to another vendor: %q", rc.BaseURL)
	}
	if rc.APIKey != "" || rr.Model != "deepseek-chat" {
		t.Fatalf("openai settings leaked to deepseek: key=%q model=%q", rc.APIKey, rr.Model)
	}
}

func TestRunREPL(t *testing.T) {
	rt := &stubStreamRuntime{fragments: []string{"hello ", "there"}}
	relay := chat.NewRelay(rt, chat.Options{Model: "m"})
	sess := chat.NewSession("Hi!")
	in := strings.NewReader("how are you?\n\n/history\n/reset\n/exit\n")
	var out bytes.Buffer

	if err := runREPL(context.Background(), in, &out, relay, sess, true, "Hi!"); err != nil {
		t.Fatalf("runREPL: %v", err)
	}
	got := out.String()
	for _, want := range []string{"Hi!", "hello there", "  2 ", "how are you?", "✓ history cleared"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	if h := sess.History(); len(h) != 1 || h[0].Content != "Hi!" {
		t.Fatalf("expected reset history, got %+v", h)
	}
	if n := len(rt.lastReq.Messages); n != 2 {
		t.Fatalf("expected greeting and question upstream, got %d messages", n)
	}
}

func TestRunREPLStopsAtEOF(t *testing.T) {
	relay := chat.NewRelay(&stubStreamRuntime{fragments: []string{"ok"}}, chat.Options{Model: "m"})
	sess := chat.NewSession("")
	var out bytes.Buffer
	if err := runREPL(context.Background(), strings.NewReader("ping"), &out, relay, sess, false, ""); err != nil {
		t.Fatalf("runREPL: %v", err)
	}
	if h := sess.History(); len(h) != 2 || h[1].Content != "ok" {
		t.Fatalf("unexpected history: %+v", h)
	}
}

func writeCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sales.csv")
	data := "region;units;price\nnorth;10;2,5\nsouth;20;3,5\neast;30;4,5\nwest;40;5,5\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestRunAnalyzeProfile(t *testing.T) {
	path := writeCSV(t)
	var out bytes.Buffer
	if err := runAnalyze(context.Background(), &out, path, analyzeOptions{Analysis: analysis.DefaultOptions()}, nil); err != nil {
		t.Fatalf("runAnalyze: %v", err)
	}
	if !strings.Contains(out.String(), "[DATASET SUMMARY]") || !strings.Contains(out.String(), "- price: numeric") {
		t.Fatalf("unexpected profile:\n%s", out.String())
	}

	outPath := filepath.Join(t.TempDir(), "profile.json")
	out.Reset()
	o := analyzeOptions{Analysis: analysis.DefaultOptions(), JSON: true, OutputPath: outPath}
	if err := runAnalyze(context.Background(), &out, path, o, nil); err != nil {
		t.Fatalf("runAnalyze json: %v", err)
	}
	b, err := os.ReadFile(outPath)
	if err != nil || !strings.Contains(string(b), `"numeric_columns": 2`) {
		t.Fatalf("unexpected json profile: %s, %v", b, err)
	}
}

func TestRunAnalyzeHistogramAndSheets(t *testing.T) {
	path := writeCSV(t)
	var out bytes.Buffer
	if err := runAnalyze(context.Background(), &out, path, analyzeOptions{Histogram: "units", Bins: 3}, nil); err != nil {
		t.Fatalf("histogram: %v", err)
	}
	if !strings.Contains(out.String(), "Histogram of units (3 bins)") || !strings.Contains(out.String(), "BAR chart") {
		t.Fatalf("unexpected histogram output:\n%s", out.String())
	}
	if err := runAnalyze(context.Background(), &out, path, analyzeOptions{Histogram: "region"}, nil); err == nil {
		t.Fatalf("expected error for non-numeric column")
	}

	out.Reset()
	if err := runAnalyze(context.Background(), &out, path, analyzeOptions{ListSheets: true}, nil); err != nil {
		t.Fatalf("list sheets: %v", err)
	}
	if !strings.Contains(out.String(), "no sheets") {
		t.Fatalf("unexpected sheets output: %q", out.String())
	}
}

func TestRunAnalyzeTimeSeries(t *testing.T) {
	var b strings.Builder
	b.WriteString("day;revenue\n")
	for d := 1; d <= 31; d++ {
		fmt.Fprintf(&b, "2024-01-%02d;%d\n", d, d)
	}
	b.WriteString("2024-02-01;100\nlater;1\n")
	path := filepath.Join(t.TempDir(), "daily.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := runAnalyze(context.Background(), &out, path, analyzeOptions{TimeSeries: "revenue"}, nil); err != nil {
		t.Fatalf("timeseries: %v", err)
	}
	got := out.String()
	for _, want := range []string{"revenue by day (32 points, 1 rows skipped)", "7-period moving average", "Monthly averages", "Feb"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	if err := runAnalyze(context.Background(), &out, writeCSV(t), analyzeOptions{TimeSeries: "units"}, nil); err == nil {
		t.Fatalf("expected an error for a file without dates")
	}
}

func TestRunAnalyzeQuestionRendersAndSavesTables(t *testing.T) {
	reply := `{"answer":"West leads.","table":{"columns":["region","units"],"data":[["west",40],["east",30]]}}`
	rt := &stubStreamRuntime{fragments: []string{reply}}
	useRuntime(t, rt)
	path := writeCSV(t)
	dir := filepath.Join(t.TempDir(), "tables")
	var out bytes.Buffer

	o := analyzeOptions{Analysis: analysis.DefaultOptions(), Question: "Which region leads?", SaveTables: dir}
	if err := runAnalyze(context.Background(), &out, path, o, testConfig()); err != nil {
		t.Fatalf("runAnalyze: %v", err)
	}
	if !strings.Contains(out.String(), "West leads.") || !strings.Contains(out.String(), "✓ saved") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 || !strings.HasSuffix(entries[0].Name(), ".csv") {
		t.Fatalf("expected one saved csv, got %v, %v", entries, err)
	}
	if tp := rt.lastReq.Temperature; tp == nil || *tp != 0 {
		t.Fatalf("analysis must run at temperature 0")
	}

	if err := runAnalyze(context.Background(), &out, path, o, nil); err == nil {
		t.Fatalf("expected error without configuration")
	}
}

func TestPrintVendors(t *testing.T) {
	var out bytes.Buffer
	if err := printVendors(&out, true); err != nil {
		t.Fatalf("printVendors: %v", err)
	}
	var vs []ai.Vendor
	if err := yaml.Unmarshal(out.Bytes(), &vs); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if len(vs) != len(ai.Vendors()) || vs[0].ID != ai.Vendors()[0].ID {
		t.Fatalf("unexpected vendors: %+v", vs)
	}

	out.Reset()
	if err := printVendors(&out, false); err != nil {
		t.Fatalf("printVendors: %v", err)
	}
	if !strings.Contains(out.String(), "deepseek-chat") || !strings.Contains(out.String(), "$GEMINI_API_KEY") {
		t.Fatalf("unexpected table:\n%s", out.String())
	}
}

func TestShowConfigMasksKey(t *testing.T) {
	c := testConfig()
	c.APIKey = "sk-1234567890"
	var out bytes.Buffer
	showConfig(&out, c)
	if strings.Contains(out.String(), "1234567890") || !strings.Contains(out.String(), "api_key: sk-****890") {
		t.Fatalf("key not masked:\n%s", out.String())
	}
	if mask("abc") != "******" || mask("") != "" {
		t.Fatalf("unexpected short mask")
	}
}
