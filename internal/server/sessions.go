package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/pharmaverse/internal/agent/core"
	"github.com/mohammad-safakhou/pharmaverse/internal/export"
	"github.com/mohammad-safakhou/pharmaverse/internal/queue/streams"
	"github.com/mohammad-safakhou/pharmaverse/session"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var serverTracer = otel.Tracer("pharmaverse/server")

// SessionsHandler serves analysis runs, their status and follow-up questions.
type SessionsHandler struct {
	Orch  *core.Orchestrator
	Store session.Store
	Hub   *streams.Broadcaster
	// Events serves mirrored event history; nil when the mirror is off.
	Events EventHistory
	// KeepAlive is the SSE comment interval; zero means 15 seconds.
	KeepAlive time.Duration
}

// EventHistory reads back the mirrored events of a session.
type EventHistory interface {
	History(ctx context.Context, sessionID string, count int64) ([]streams.Envelope, error)
}

func (h *SessionsHandler) Register(g *echo.Group) {
	g.POST("/orchestrate", h.orchestrate)
	g.POST("/chat", h.chat)
	g.GET("/session/:id", h.get)
	g.GET("/session/:id/status", h.status)
	g.GET("/session/:id/stream", h.stream)
	g.GET("/session/:id/export", h.export)
	g.GET("/session/:id/events", h.events)
	g.GET("/dossier/:id", h.dossier)
}

type OrchestrateRequest struct {
	MoleculeName      string `json:"molecule_name"`
	Indication        string `json:"indication"`
	Geography         string `json:"geography"`
	Timeframe         string `json:"timeframe"`
	StrategicQuestion string `json:"strategic_question"`
}

type OrchestrateResponse struct {
	SessionID      string   `json:"session_id"`
	Status         string   `json:"status"`
	AgentsLaunched []string `json:"agents_launched"`
}

type StatusResponse struct {
	Status       session.Status `json:"status"`
	Stage        session.Stage  `json:"stage"`
	AgentResults []string       `json:"agent_results"`
	Progress     int            `json:"progress"`
}

type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type ChatResponse struct {
	Response string `json:"response"`
	Sender   string `json:"sender"`
}

// orchestrate starts an analysis in the background and returns immediately.
//
//	@Summary	Start an analysis
//	@Tags		sessions
//	@Accept		json
//	@Produce	json
//	@Param		body	body		OrchestrateRequest	true	"Subject"
//	@Success	202		{object}	OrchestrateResponse
//	@Failure	400		{object}	HTTPError
//	@Router		/api/orchestrate [post]
func (h *SessionsHandler) orchestrate(c echo.Context) error {
	ctx, span := serverTracer.Start(c.Request().Context(), "SessionsHandler.orchestrate")
	defer span.End()

	var req OrchestrateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.MoleculeName = strings.TrimSpace(req.MoleculeName)
	if req.MoleculeName == "" {
		span.SetStatus(codes.Error, "molecule_name required")
		return echo.NewHTTPError(http.StatusBadRequest, "molecule_name required")
	}
	if strings.TrimSpace(req.Geography) == "" {
		req.Geography = "Global"
	}
	if strings.TrimSpace(req.Timeframe) == "" {
		req.Timeframe = "2024-2026"
	}
	subject := session.Subject{
		Molecule:          req.MoleculeName,
		Indication:        strings.TrimSpace(req.Indication),
		Geography:         strings.TrimSpace(req.Geography),
		Timeframe:         strings.TrimSpace(req.Timeframe),
		StrategicQuestion: strings.TrimSpace(req.StrategicQuestion),
	}
	subject.Query = core.BuildQuery(subject)

	sess, err := h.Orch.Start(ctx, subject)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	span.SetAttributes(attribute.String("session_id", sess.ID))
	return c.JSON(http.StatusAccepted, OrchestrateResponse{
		SessionID:      sess.ID,
		Status:         string(session.StatusProcessing),
		AgentsLaunched: h.Orch.WorkerIDs(),
	})
}

func (h *SessionsHandler) load(c echo.Context) (*session.Session, error) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "session id required")
	}
	s, err := h.Store.Get(c.Request().Context(), id)
	if err != nil {
		return nil, sessionError(err)
	}
	return s, nil
}

func sessionError(err error) error {
	if errors.Is(err, session.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// status is the polling view of a run.
//
//	@Summary	Session status
//	@Tags		sessions
//	@Produce	json
//	@Param		id	path		string	true	"Session ID"
//	@Success	200	{object}	StatusResponse
//	@Failure	404	{object}	HTTPError
//	@Router		/api/session/{id}/status [get]
func (h *SessionsHandler) status(c echo.Context) error {
	s, err := h.load(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, StatusResponse{
		Status:       s.Status,
		Stage:        s.Stage,
		AgentResults: s.CompletedWorkers(),
		Progress:     s.Progress(),
	})
}

func (h *SessionsHandler) get(c echo.Context) error {
	s, err := h.load(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

// chat answers a follow-up question from a session's stored results.
//
//	@Summary	Follow-up question
//	@Tags		sessions
//	@Accept		json
//	@Produce	json
//	@Param		body	body		ChatRequest	true	"Question"
//	@Success	200		{object}	ChatResponse
//	@Failure	400		{object}	HTTPError
//	@Failure	404		{object}	HTTPError
//	@Router		/api/chat [post]
func (h *SessionsHandler) chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id and message required")
	}
	answer, err := h.Orch.FollowUp(c.Request().Context(), req.SessionID, strings.TrimSpace(req.Message))
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(http.StatusOK, ChatResponse{Response: answer, Sender: core.SenderMaster})
}

func (h *SessionsHandler) dossier(c echo.Context) error {
	s, err := h.load(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, BuildDossier(s))
}

// events returns the mirrored event log of a session, oldest first.
//
//	@Summary	Session event history
//	@Tags		sessions
//	@Param		id		path	string	true	"Session ID"
//	@Param		count	query	int		false	"Maximum number of events"
//	@Produce	json
//	@Success	200	{array}		streams.Envelope
//	@Failure	404	{object}	HTTPError
//	@Router		/api/session/{id}/events [get]
func (h *SessionsHandler) events(c echo.Context) error {
	if h.Events == nil {
		return echo.NewHTTPError(http.StatusNotFound, "event history is not enabled")
	}
	s, err := h.load(c)
	if err != nil {
		return err
	}
	var count int64
	if raw := c.QueryParam("count"); raw != "" {
		count, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || count < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "count must be a non-negative integer")
		}
	}
	envs, err := h.Events.History(c.Request().Context(), s.ID, count)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, envs)
}

func (h *SessionsHandler) export(c echo.Context) error {
	s, err := h.load(c)
	if err != nil {
		return err
	}
	exp, err := export.NewExporter(c.QueryParam("format"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	data, err := exp.Export(s)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="session-%s%s"`, s.ID, exp.Extension()))
	return c.Blob(http.StatusOK, exp.ContentType(), data)
}

// stream pushes live session events as server-sent events. The snapshot comes
// first; the stream ends after a terminal session_data event.
//
//	@Summary	Session event stream
//	@Tags		sessions
//	@Param		id	path	string	true	"Session ID"
//	@Produce	text/event-stream
//	@Success	200	{string}	string
//	@Failure	404	{object}	HTTPError
//	@Router		/api/session/{id}/stream [get]
func (h *SessionsHandler) stream(c echo.Context) error {
	req := c.Request()
	ctx, span := serverTracer.Start(req.Context(), "SessionsHandler.stream")
	defer span.End()
	c.SetRequest(req.WithContext(ctx))

	s, err := h.load(c)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("session_id", s.ID))

	resp := c.Response()
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		span.SetStatus(codes.Error, "streaming unsupported")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := newSSESubscriber(resp, flusher)
	detach, err := h.Hub.Attach(ctx, s.ID, sub)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil
	}
	defer detach()

	interval := h.KeepAlive
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sub.done:
			return nil
		case <-ticker.C:
			if err := sub.comment("keepalive"); err != nil {
				return nil
			}
		}
	}
}

// sseSubscriber writes events to an open event-stream response.
type sseSubscriber struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	done    chan struct{}
	once    sync.Once
}

func newSSESubscriber(w http.ResponseWriter, f http.Flusher) *sseSubscriber {
	return &sseSubscriber{w: w, flusher: f, done: make(chan struct{})}
}

func (s *sseSubscriber) Send(ctx context.Context, ev streams.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	s.flusher.Flush()
	if terminal(ev) {
		s.once.Do(func() { close(s.done) })
	}
	return nil
}

func (s *sseSubscriber) comment(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// terminal reports whether ev carries a session that will not change any more
// through the pipeline.
func terminal(ev streams.Event) bool {
	if ev.Type != streams.EventSessionData {
		return false
	}
	p, ok := ev.Payload.(streams.SessionPayload)
	return ok && p.Session != nil && p.Session.Status != session.StatusProcessing
}
