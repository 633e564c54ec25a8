package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/KaramelBytes/tablechat/internal/analysis"
	"github.com/KaramelBytes/tablechat/internal/dataset"
	"github.com/KaramelBytes/tablechat/internal/render"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type datasetEntry struct {
	table   *dataset.Table
	profile *analysis.Profile
	sheets  []string
}

type datasetResponse struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Sheet   string            `json:"sheet,omitempty"`
	Sheets  []string          `json:"sheets,omitempty"`
	Profile *analysis.Profile `json:"profile"`
}

type histogramResponse struct {
	Histogram *analysis.Histogram `json:"histogram"`
	Chart     render.Chart        `json:"chart"`
}

type timeSeriesResponse struct {
	TimeSeries *analysis.TimeSeries `json:"timeseries"`
	// Charts holds the trend, then the moving average and monthly means
	// when the series is long enough for them.
	Charts []render.Chart `json:"charts"`
}

type analyzeRequest struct {
	Question string `json:"question"`
}

type analyzeResponse struct {
	Result   json.RawMessage  `json:"result"`
	Sections []render.Section `json:"sections"`
}

func (e *datasetEntry) view(id string) datasetResponse {
	return datasetResponse{ID: id, Name: e.table.Name, Sheet: e.table.Sheet, Sheets: e.sheets, Profile: e.profile}
}

func (s *Server) uploadDataset(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field \"file\" is required")
	}
	if !dataset.Supported(fh.Filename) {
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, "unsupported file type: "+fh.Filename)
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot open upload")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read upload")
	}

	log := s.requestLog(c)
	sheets, err := dataset.Sheets(fh.Filename, bytes.NewReader(data))
	if err != nil {
		log.Warn("list sheets failed", zap.String("file", fh.Filename), zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t, err := dataset.Load(fh.Filename, bytes.NewReader(data), dataset.Options{
		Sheet:   c.FormValue("sheet"),
		MaxRows: s.opts.MaxRows,
	})
	if err != nil {
		log.Warn("load dataset failed", zap.String("file", fh.Filename), zap.Error(err))
		if errors.Is(err, dataset.ErrUnsupported) {
			return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	entry := &datasetEntry{table: t, profile: analysis.Analyze(t, analysis.DefaultOptions()), sheets: sheets}
	id := s.datasets.put("", entry)
	log.Info("dataset loaded",
		zap.String("dataset", id),
		zap.String("file", t.Name),
		zap.Int("rows", len(t.Rows)),
		zap.Int("columns", len(t.Columns)))
	return c.JSON(http.StatusCreated, entry.view(id))
}

func (s *Server) lookupDataset(c echo.Context) (string, *datasetEntry, error) {
	id := c.Param("id")
	e, ok := s.datasets.get(id)
	if !ok {
		return "", nil, echo.NewHTTPError(http.StatusNotFound, "dataset not found")
	}
	return id, e, nil
}

func (s *Server) getDataset(c echo.Context) error {
	id, e, err := s.lookupDataset(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, e.view(id))
}

func (s *Server) histogram(c echo.Context) error {
	_, e, err := s.lookupDataset(c)
	if err != nil {
		return err
	}
	column := strings.TrimSpace(c.QueryParam("column"))
	if column == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "column is required")
	}
	bins := 0
	if v := c.QueryParam("bins"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > analysis.MaxBins {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("bins must be an integer between 0 and %d", analysis.MaxBins))
		}
		bins = n
	}
	h, err := analysis.NewHistogram(e.table, column, bins)
	if err != nil {
		if errors.Is(err, analysis.ErrNoNumericData) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, histogramResponse{
		Histogram: h,
		Chart:     render.Chart{Kind: render.KeyBar, Labels: h.Labels(), Values: h.Values()},
	})
}

func (s *Server) timeSeries(c echo.Context) error {
	_, e, err := s.lookupDataset(c)
	if err != nil {
		return err
	}
	value := strings.TrimSpace(c.QueryParam("value"))
	if value == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "value is required")
	}
	ts, err := analysis.NewTimeSeries(e.table, c.QueryParam("date"), value)
	if err != nil {
		if errors.Is(err, analysis.ErrNoDateColumn) || errors.Is(err, analysis.ErrNoTimeData) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, timeSeriesResponse{TimeSeries: ts, Charts: timeSeriesCharts(ts)})
}

func timeSeriesCharts(ts *analysis.TimeSeries) []render.Chart {
	charts := []render.Chart{{Kind: render.KeyLine, Labels: ts.Labels(), Values: ts.Values()}}
	if len(ts.MovingAverage) > 0 {
		charts = append(charts, render.Chart{Kind: render.KeyLine, Labels: ts.MovingAverageLabels(), Values: ts.MovingAverageValues()})
	}
	if len(ts.Monthly) > 0 {
		charts = append(charts, render.Chart{Kind: render.KeyLine, Labels: ts.MonthlyLabels(), Values: ts.MonthlyValues()})
	}
	return charts
}

func (s *Server) analyze(c echo.Context) error {
	_, e, err := s.lookupDataset(c)
	if err != nil {
		return err
	}
	var req analyzeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(req.Question) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}
	if s.opts.Analyst == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no analysis runtime configured")
	}
	res := s.opts.Analyst.Ask(c.Request().Context(), e.profile, req.Question)
	return c.JSON(http.StatusOK, analyzeResponse{Result: res.JSON(), Sections: render.Sections(res, false)})
}
