package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/KaramelBytes/tablechat/internal/ai"
	"github.com/KaramelBytes/tablechat/internal/chat"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type sessionResponse struct {
	ID        string      `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	History   []chat.Turn `json:"history"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type messageResponse struct {
	Reply   string      `json:"reply"`
	History []chat.Turn `json:"history"`
}

// Frame types sent on the stream socket.
const (
	FrameFragment = "fragment"
	FrameDone     = "done"
	FrameError    = "error"
)

// Frame is one WebSocket message from server to client.
type Frame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"time":     time.Now().UTC(),
		"sessions": s.sessions.len(),
		"datasets": s.datasets.len(),
	})
}

func (s *Server) vendors(c echo.Context) error {
	return c.JSON(http.StatusOK, ai.Vendors())
}

func sessionView(sess *chat.Session) sessionResponse {
	return sessionResponse{ID: sess.ID, CreatedAt: sess.CreatedAt, History: sess.History()}
}

func (s *Server) createSession(c echo.Context) error {
	sess := chat.NewSession(s.opts.Greeting)
	s.sessions.put(sess.ID, sess)
	s.requestLog(c).Debug("session created", zap.String("session", sess.ID))
	return c.JSON(http.StatusCreated, sessionView(sess))
}

func (s *Server) lookupSession(c echo.Context) (*chat.Session, error) {
	sess, ok := s.sessions.get(c.Param("id"))
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return sess, nil
}

func (s *Server) getSession(c echo.Context) error {
	sess, err := s.lookupSession(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sessionView(sess))
}

func (s *Server) postMessage(c echo.Context) error {
	sess, err := s.lookupSession(c)
	if err != nil {
		return err
	}
	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	if s.opts.Relay == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no chat runtime configured")
	}
	reply := s.opts.Relay.Exchange(c.Request().Context(), sess, req.Text, false, nil)
	return c.JSON(http.StatusOK, messageResponse{Reply: reply, History: sess.History()})
}

// stream upgrades to a WebSocket and runs one exchange per client message:
// a fragment frame per piece of the reply, then a done frame with the full
// text.
func (s *Server) stream(c echo.Context) error {
	sess, err := s.lookupSession(c)
	if err != nil {
		return err
	}
	if s.opts.Relay == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no chat runtime configured")
	}
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log := s.requestLog(c).With(zap.String("session", sess.ID))
	ctx := c.Request().Context()

	for {
		var req messageRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("stream read ended", zap.Error(err))
			}
			return nil
		}
		if strings.TrimSpace(req.Text) == "" {
			if err := conn.WriteJSON(Frame{Type: FrameError, Text: "text is required"}); err != nil {
				return nil
			}
			continue
		}
		var writeErr error
		reply := s.opts.Relay.Exchange(ctx, sess, req.Text, s.opts.Streaming, func(frag string) {
			if writeErr == nil {
				writeErr = conn.WriteJSON(Frame{Type: FrameFragment, Text: frag})
			}
		})
		if writeErr == nil {
			writeErr = conn.WriteJSON(Frame{Type: FrameDone, Text: reply})
		}
		if writeErr != nil {
			log.Warn("stream write failed", zap.Error(writeErr))
			return nil
		}
	}
}
