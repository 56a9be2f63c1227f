package server

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/pharmaverse/internal/queue/streams"
	"golang.org/x/net/websocket"
)

// WSHandler attaches WebSocket clients to a session's live events.
type WSHandler struct {
	Hub    *streams.Broadcaster
	Logger *log.Logger
}

func (h *WSHandler) Register(g *echo.Group) {
	g.GET("/:session_id", h.serve)
}

// serve upgrades the connection, delivers the snapshot and live events, and
// answers any client message with a pong event.
func (h *WSHandler) serve(c echo.Context) error {
	sessionID := strings.TrimSpace(c.Param("session_id"))
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id required")
	}
	logger := h.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[WS] ", log.LstdFlags)
	}
	// Non-browser clients send no Origin header; websocket.Handler would refuse them.
	srv := websocket.Server{Handshake: func(*websocket.Config, *http.Request) error { return nil }}
	srv.Handler = func(ws *websocket.Conn) {
		defer ws.Close()
		sub := &wsSubscriber{conn: ws}
		detach, err := h.Hub.Attach(c.Request().Context(), sessionID, sub)
		if err != nil {
			logger.Printf("attach %s: %v", sessionID, err)
			return
		}
		defer detach()
		for {
			var msg string
			if err := websocket.Message.Receive(ws, &msg); err != nil {
				return
			}
			if err := sub.Send(context.Background(), streams.Pong(sessionID)); err != nil {
				return
			}
		}
	}
	srv.ServeHTTP(c.Response(), c.Request())
	return nil
}

type wsSubscriber struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSubscriber) Send(ctx context.Context, ev streams.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(deadline)
		defer s.conn.SetWriteDeadline(time.Time{})
	}
	return websocket.JSON.Send(s.conn, ev)
}
