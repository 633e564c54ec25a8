package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KaramelBytes/tablechat/internal/ai"
	"github.com/KaramelBytes/tablechat/internal/analyst"
	"github.com/KaramelBytes/tablechat/internal/chat"
	"github.com/KaramelBytes/tablechat/internal/render"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeRuntime answers every request with the same fragments, both blocking
// and streamed.
type fakeRuntime struct {
	mu        sync.Mutex
	fragments []string
	lastReq   ai.GenerateRequest
}

func (f *fakeRuntime) Generate(_ context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	f.mu.Lock()
	f.lastReq = req
	f.mu.Unlock()
	return &ai.GenerateResponse{Choices: []ai.Choice{{Message: ai.Message{Role: "assistant", Content: strings.Join(f.fragments, "")}}}}, nil
}

func (f *fakeRuntime) OpenStream(_ context.Context, req ai.GenerateRequest) (*ai.Stream, error) {
	f.mu.Lock()
	f.lastReq = req
	f.mu.Unlock()
	return ai.StreamOf(f.fragments...), nil
}

const salesCSV = "region,units,price\nnorth,10,2.5\nsouth,20,3.5\neast,30,4.5\nwest,40,5.5\n"

func newTestServer(t *testing.T, chatRT, analysisRT ai.Runtime) (*Server, *httptest.Server) {
	t.Helper()
	s := New(Options{
		Relay:     chat.NewRelay(chatRT, chat.Options{Model: "m", Logger: zap.NewNop()}),
		Streaming: true,
		Analyst:   analyst.New(analysisRT, analyst.Options{Model: "m", Logger: zap.NewNop()}),
		Greeting:  "Hello, how can I help you?",
		Logger:    zap.NewNop(),
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func createSession(t *testing.T, base string) sessionResponse {
	t.Helper()
	var sess sessionResponse
	if code := doJSON(t, http.MethodPost, base+"/api/v1/sessions", nil, &sess); code != http.StatusCreated {
		t.Fatalf("create session: status %d", code)
	}
	return sess
}

func TestHealthAndVendors(t *testing.T) {
	_, ts := newTestServer(t, &fakeRuntime{}, &fakeRuntime{})
	var health map[string]any
	if code := doJSON(t, http.MethodGet, ts.URL+"/api/v1/health", nil, &health); code != http.StatusOK || health["status"] != "ok" {
		t.Fatalf("health: %d %v", code, health)
	}
	var vendors []ai.Vendor
	if code := doJSON(t, http.MethodGet, ts.URL+"/api/v1/vendors", nil, &vendors); code != http.StatusOK {
		t.Fatalf("vendors: status %d", code)
	}
	if len(vendors) != len(ai.Vendors()) || vendors[0].ID != ai.Vendors()[0].ID {
		t.Fatalf("unexpected vendors: %+v", vendors)
	}
}

func TestSessionMessageRoundTrip(t *testing.T) {
	rt := &fakeRuntime{fragments: []string{"hel", "lo"}}
	_, ts := newTestServer(t, rt, &fakeRuntime{})
	sess := createSession(t, ts.URL)
	if len(sess.History) != 1 || sess.History[0].Role != chat.RoleAI {
		t.Fatalf("expected greeting only, got %+v", sess.History)
	}

	var out messageResponse
	code := doJSON(t, http.MethodPost, ts.URL+"/api/v1/sessions/"+sess.ID+"/messages", messageRequest{Text: "hi"}, &out)
	if code != http.StatusOK || out.Reply != "hello" {
		t.Fatalf("message: %d %+v", code, out)
	}
	if len(out.History) != 3 || out.History[1].Content != "hi" || out.History[2].Content != "hello" {
		t.Fatalf("unexpected history: %+v", out.History)
	}
	// The request carries the greeting plus the new question.
	if n := len(rt.lastReq.Messages); n != 2 {
		t.Fatalf("expected 2 upstream messages, got %d", n)
	}

	var got sessionResponse
	if code := doJSON(t, http.MethodGet, ts.URL+"/api/v1/sessions/"+sess.ID, nil, &got); code != http.StatusOK || len(got.History) != 3 {
		t.Fatalf("get session: %d %+v", code, got)
	}
}

func TestSessionErrors(t *testing.T) {
	_, ts := newTestServer(t, &fakeRuntime{}, &fakeRuntime{})
	if code := doJSON(t, http.MethodGet, ts.URL+"/api/v1/sessions/missing", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	sess := createSession(t, ts.URL)
	if code := doJSON(t, http.MethodPost, ts.URL+"/api/v1/sessions/"+sess.ID+"/messages", messageRequest{Text: "  "}, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank text, got %d", code)
	}
}

func TestStreamSendsFragmentsThenDone(t *testing.T) {
	s, ts := newTestServer(t, &fakeRuntime{fragments: []string{"Par", "is", "."}}, &fakeRuntime{})
	sess := createSession(t, ts.URL)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sessions/" + sess.ID + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(messageRequest{Text: "capital of France?"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var frames []Frame
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read: %v", err)
		}
		frames = append(frames, f)
		if f.Type == FrameDone {
			break
		}
	}
	want := []Frame{
		{Type: FrameFragment, Text: "Par"},
		{Type: FrameFragment, Text: "is"},
		{Type: FrameFragment, Text: "."},
		{Type: FrameDone, Text: "Paris."},
	}
	if len(frames) != len(want) {
		t.Fatalf("got %d frames, want %d: %+v", len(frames), len(want), frames)
	}
	for i := range want {
		if frames[i] != want[i] {
			t.Fatalf("frame %d = %+v, want %+v", i, frames[i], want[i])
		}
	}

	stored, _ := s.sessions.get(sess.ID)
	h := stored.History()
	if len(h) != 3 || h[2].Content != "Paris." {
		t.Fatalf("unexpected history after stream: %+v", h)
	}

	if err := conn.WriteJSON(messageRequest{Text: ""}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var f Frame
	if err := conn.ReadJSON(&f); err != nil || f.Type != FrameError {
		t.Fatalf("expected error frame, got %+v, %v", f, err)
	}
}

func upload(t *testing.T, base, name, content string) (int, datasetResponse) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write([]byte(content))
	_ = mw.Close()
	resp, err := http.Post(base+"/api/v1/datasets", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	var out datasetResponse
	if resp.StatusCode == http.StatusCreated {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode upload: %v", err)
		}
	}
	return resp.StatusCode, out
}

func TestDatasetUploadProfileAndHistogram(t *testing.T) {
	_, ts := newTestServer(t, &fakeRuntime{}, &fakeRuntime{})
	code, ds := upload(t, ts.URL, "sales.csv", salesCSV)
	if code != http.StatusCreated {
		t.Fatalf("upload status %d", code)
	}
	if ds.ID == "" || ds.Name != "sales.csv" || ds.Profile == nil || ds.Profile.Overview.Rows != 4 {
		t.Fatalf("unexpected upload response: %+v", ds)
	}
	if ds.Profile.Overview.NumericColumns != 2 {
		t.Fatalf("expected 2 numeric columns, got %d", ds.Profile.Overview.NumericColumns)
	}

	var again datasetResponse
	if code := doJSON(t, http.MethodGet, ts.URL+"/api/v1/datasets/"+ds.ID, nil, &again); code != http.StatusOK || again.ID != ds.ID {
		t.Fatalf("get dataset: %d %+v", code, again)
	}

	var hist histogramResponse
	if code := doJSON(t, http.MethodGet, ts.URL+"/api/v1/datasets/"+ds.ID+"/histogram?column=units&bins=2", nil, &hist); code != http.StatusOK {
		t.Fatalf("histogram status %d", code)
	}
	if len(hist.Histogram.Counts) != 2 || hist.Histogram.Counts[0] != 2 || hist.Chart.Kind != render.KeyBar {
		t.Fatalf("unexpected histogram: %+v", hist)
	}
	if code := doJSON(t, http.MethodGet, ts.URL+"/api/v1/datasets/"+ds.ID+"/histogram?column=region", nil, nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for text column, got %d", code)
	}
	if code := doJSON(t, http.MethodGet, ts.URL+"/api/v1/datasets/"+ds.ID+"/histogram", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 without column, got %d", code)
	}
}

func TestHistogramBinCountIsCapped(t *testing.T) {
	_, ts := newTestServer(t, &fakeRuntime{}, &fakeRuntime{})
	_, ds := upload(t, ts.URL, "sales.csv", salesCSV)
	base := ts.URL + "/api/v1/datasets/" + ds.ID + "/histogram?column=units&bins="
	for _, bins := range []string{"2000000000", "1001", "-1", "many"} {
		if code := doJSON(t, http.MethodGet, base+bins, nil, nil); code != http.StatusBadRequest {
			t.Fatalf("bins=%s: expected 400, got %d", bins, code)
		}
	}
	var hist histogramResponse
	if code := doJSON(t, http.MethodGet, base+"1000", nil, &hist); code != http.StatusOK || len(hist.Histogram.Counts) != 1000 {
		t.Fatalf("bins=1000: status %d, %d bins", code, len(hist.Histogram.Counts))
	}
}

func TestDatasetTimeSeries(t *testing.T) {
	_, ts := newTestServer(t, &fakeRuntime{}, &fakeRuntime{})
	var csv strings.Builder
	csv.WriteString("day,revenue\n")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&csv, "%s,%d\n", start.AddDate(0, 0, i).Format("2006-01-02"), i+1)
	}
	_, ds := upload(t, ts.URL, "daily.csv", csv.String())
	base := ts.URL + "/api/v1/datasets/" + ds.ID + "/timeseries"

	var out timeSeriesResponse
	if code := doJSON(t, http.MethodGet, base+"?value=revenue", nil, &out); code != http.StatusOK {
		t.Fatalf("timeseries status %d", code)
	}
	if out.TimeSeries.DateColumn != "day" || len(out.TimeSeries.Points) != 10 {
		t.Fatalf("unexpected series: %+v", out.TimeSeries)
	}
	if len(out.Charts) != 2 || out.Charts[0].Kind != render.KeyLine || len(out.Charts[1].Values) != 4 {
		t.Fatalf("expected trend and moving average charts, got %+v", out.Charts)
	}
	if code := doJSON(t, http.MethodGet, base, nil, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 without value, got %d", code)
	}
	if code := doJSON(t, http.MethodGet, base+"?value=revenue&date=nope", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown date column, got %d", code)
	}

	_, sales := upload(t, ts.URL, "sales.csv", salesCSV)
	if code := doJSON(t, http.MethodGet, ts.URL+"/api/v1/datasets/"+sales.ID+"/timeseries?value=units", nil, nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without a date column, got %d", code)
	}
}

func TestDatasetUploadRejectsUnknownFormat(t *testing.T) {
	_, ts := newTestServer(t, &fakeRuntime{}, &fakeRuntime{})
	if code, _ := upload(t, ts.URL, "notes.pdf", "%PDF"); code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", code)
	}
}

func TestAnalyzeReturnsResultAndSections(t *testing.T) {
	reply := "```json\n{\"answer\":\"West sells most.\",\"bar\":{\"columns\":[\"north\",\"west\"],\"data\":[10,40]}}\n```"
	analysisRT := &fakeRuntime{fragments: []string{reply}}
	_, ts := newTestServer(t, &fakeRuntime{}, analysisRT)
	_, ds := upload(t, ts.URL, "sales.csv", salesCSV)

	var out struct {
		Result   map[string]json.RawMessage `json:"result"`
		Sections []render.Section           `json:"sections"`
	}
	code := doJSON(t, http.MethodPost, ts.URL+"/api/v1/datasets/"+ds.ID+"/analyze", analyzeRequest{Question: "Which region sells most?"}, &out)
	if code != http.StatusOK {
		t.Fatalf("analyze status %d", code)
	}
	if _, ok := out.Result["answer"]; !ok {
		t.Fatalf("raw result missing answer: %v", out.Result)
	}
	if len(out.Sections) != 2 || out.Sections[0].Kind != render.SectionAnswer || out.Sections[1].Kind != render.SectionChart {
		t.Fatalf("unexpected sections: %+v", out.Sections)
	}
	if got := out.Sections[1].Chart.Values; len(got) != 2 || got[1] != 40 {
		t.Fatalf("unexpected chart values: %v", got)
	}
	if tp := analysisRT.lastReq.Temperature; tp == nil || *tp != 0 {
		t.Fatalf("analysis must run at temperature 0")
	}
	if !strings.Contains(analysisRT.lastReq.Messages[1].Content, "[DATASET SUMMARY]") {
		t.Fatalf("profile markdown not passed as context")
	}
}

func TestAnalyzeFallsBackOnUnusableReply(t *testing.T) {
	_, ts := newTestServer(t, &fakeRuntime{}, &fakeRuntime{fragments: []string{"not json"}})
	_, ds := upload(t, ts.URL, "sales.csv", salesCSV)
	var out analyzeResponse
	if code := doJSON(t, http.MethodPost, ts.URL+"/api/v1/datasets/"+ds.ID+"/analyze", analyzeRequest{Question: "q"}, &out); code != http.StatusOK {
		t.Fatalf("analyze status %d", code)
	}
	if len(out.Sections) != 1 || out.Sections[0].Text != render.FallbackAnswer {
		t.Fatalf("expected fallback answer, got %+v", out.Sections)
	}
}

func TestRequestIDReachesAnalystLog(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	s := New(Options{
		Analyst: analyst.New(&fakeRuntime{fragments: []string{"not json"}}, analyst.Options{Model: "m", Logger: zap.New(core)}),
		Logger:  zap.NewNop(),
	})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	_, ds := upload(t, ts.URL, "sales.csv", salesCSV)

	body, _ := json.Marshal(analyzeRequest{Question: "q"})
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/datasets/"+ds.ID+"/analyze", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderXRequestID, "req-abc")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get(echo.HeaderXRequestID) != "req-abc" {
		t.Fatalf("request id not echoed: %q", resp.Header.Get(echo.HeaderXRequestID))
	}

	entries := logs.FilterMessage("analysis reply unusable").All()
	if len(entries) != 1 || entries[0].ContextMap()["request_id"] != "req-abc" {
		t.Fatalf("expected the failure logged with the request id, got %+v", logs.All())
	}
}
