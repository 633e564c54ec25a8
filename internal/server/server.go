// Package server exposes chat sessions and dataset analysis to browser
// front-ends over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/KaramelBytes/tablechat/internal/analyst"
	"github.com/KaramelBytes/tablechat/internal/chat"
	"github.com/KaramelBytes/tablechat/internal/logging"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Options wires the server to its collaborators.
type Options struct {
	Relay *chat.Relay
	// Streaming selects incremental replies on the WebSocket route.
	Streaming bool
	Analyst   *analyst.Analyst
	Greeting  string
	// MaxRows caps rows loaded per uploaded dataset; 0 means no cap.
	MaxRows int
	// BodyLimit is an echo size string such as "32M".
	BodyLimit string
	Logger    *zap.Logger
}

// Server owns the echo instance and the in-memory stores.
type Server struct {
	e        *echo.Echo
	opts     Options
	log      *zap.Logger
	upgrader websocket.Upgrader
	sessions *store[*chat.Session]
	datasets *store[*datasetEntry]
}

// New builds a server with every route registered.
func New(opts Options) *Server {
	if opts.BodyLimit == "" {
		opts.BodyLimit = "32M"
	}
	log := opts.Logger
	if log == nil {
		log = logging.L()
	}
	s := &Server{
		e:        echo.New(),
		opts:     opts,
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		sessions: newStore[*chat.Session](),
		datasets: newStore[*datasetEntry](),
	}
	s.e.HideBanner = true
	s.e.HidePort = true

	s.e.Use(middleware.Recover())
	s.e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logging.ContextWithRequestID(req.Context(), id)))
		},
	}))
	s.e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				s.log.Warn("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			s.log.Info("request", fields...)
			return nil
		},
	}))
	s.e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
	s.e.Use(middleware.BodyLimit(opts.BodyLimit))

	api := s.e.Group("/api/v1")
	api.GET("/health", s.health)
	api.GET("/vendors", s.vendors)

	api.POST("/sessions", s.createSession)
	api.GET("/sessions/:id", s.getSession)
	api.POST("/sessions/:id/messages", s.postMessage)
	api.GET("/sessions/:id/stream", s.stream)

	api.POST("/datasets", s.uploadDataset)
	api.GET("/datasets/:id", s.getDataset)
	api.GET("/datasets/:id/histogram", s.histogram)
	api.GET("/datasets/:id/timeseries", s.timeSeries)
	api.POST("/datasets/:id/analyze", s.analyze)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.e }

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.log.Info("server listening", zap.String("addr", addr))
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}
	return s.e.Shutdown(ctx)
}

// requestLog tags the server logger with the request id echo assigned.
func (s *Server) requestLog(c echo.Context) *zap.Logger {
	return logging.FromContext(c.Request().Context(), s.log)
}
