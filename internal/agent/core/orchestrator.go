package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/mohammad-safakhou/pharmaverse/internal/budget"
	"github.com/mohammad-safakhou/pharmaverse/internal/queue/streams"
	"github.com/mohammad-safakhou/pharmaverse/session"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var coreTracer = otel.Tracer("pharmaverse/agent/core")

// Chat senders.
const (
	SenderMaster = "master"
	SenderUser   = "user"
)

const (
	planningMessage = "🧭 Planning the analysis and selecting agents..."
	closingMessage  = "Analysis complete! I've gathered insights from all agents. You can explore the results in the tabs on the right, or ask me specific questions."
	errorMessage    = "⚠️ An error occurred during analysis: "
	previewLength   = 150
)

// Broadcaster pushes live events to a session's subscribers.
type Broadcaster interface {
	Broadcast(ctx context.Context, sessionID string, ev streams.Event)
}

// ReportCompiler turns a session into a persisted report. Compile is called
// before the narrative exists; Amend re-renders once it does.
type ReportCompiler interface {
	Compile(ctx context.Context, s *session.Session) (*session.ReportRef, error)
	Amend(ctx context.Context, s *session.Session, ref *session.ReportRef) (*session.ReportRef, error)
}

// Deps wires an Orchestrator.
type Deps struct {
	Store       session.Store
	Broadcaster Broadcaster
	Planner     *Planner
	Workers     []*Worker
	Deriver     *Deriver
	Compiler    ReportCompiler
	Narrator    *Narrator
	Logger      *log.Logger
	// RunTimeout bounds a background run; zero means 15 minutes.
	RunTimeout time.Duration
	// Budget caps completion usage per run. Calls refused by the budget fail
	// like any other completion error, so stages fall back.
	Budget budget.Limits
}

// Orchestrator drives Plan -> Dispatch -> Derive -> Compile -> Synthesize for a session
// and answers follow-up questions against completed ones.
type Orchestrator struct {
	store    session.Store
	hub      Broadcaster
	planner  *Planner
	workers  []*Worker
	deriver  *Deriver
	compiler ReportCompiler
	narrator *Narrator
	router   Router
	logger   *log.Logger
	timeout  time.Duration
	budget   budget.Limits
	running  sync.WaitGroup
}

func NewOrchestrator(d Deps) (*Orchestrator, error) {
	if d.Store == nil {
		return nil, errors.New("orchestrator: session store required")
	}
	if d.Planner == nil || d.Deriver == nil || d.Narrator == nil {
		return nil, errors.New("orchestrator: planner, deriver and narrator required")
	}
	if len(d.Workers) == 0 {
		return nil, errors.New("orchestrator: at least one worker required")
	}
	if d.Logger == nil {
		d.Logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}
	if d.RunTimeout <= 0 {
		d.RunTimeout = 15 * time.Minute
	}
	if d.Broadcaster == nil {
		d.Broadcaster = nopBroadcaster{}
	}
	if err := d.Budget.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	return &Orchestrator{
		store:    d.Store,
		hub:      d.Broadcaster,
		planner:  d.Planner,
		workers:  d.Workers,
		deriver:  d.Deriver,
		compiler: d.Compiler,
		narrator: d.Narrator,
		logger:   d.Logger,
		timeout:  d.RunTimeout,
		budget:   d.Budget,
	}, nil
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(context.Context, string, streams.Event) {}

// WorkerIDs lists every registered worker in dispatch order.
func (o *Orchestrator) WorkerIDs() []string {
	ids := make([]string, len(o.workers))
	for i, w := range o.workers {
		ids[i] = w.desc.ID
	}
	return ids
}

// Descriptors returns the registered worker descriptors in dispatch order.
func (o *Orchestrator) Descriptors() []Descriptor {
	out := make([]Descriptor, len(o.workers))
	for i, w := range o.workers {
		out[i] = w.desc
	}
	return out
}

// Start creates a session for subject and runs its pipeline in the background.
// It returns as soon as the session is stored.
func (o *Orchestrator) Start(ctx context.Context, subject session.Subject) (*session.Session, error) {
	sess := session.New(subject)
	if err := o.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	o.running.Add(1)
	go func() {
		defer o.running.Done()
		runCtx, cancel := context.WithTimeout(context.Background(), o.timeout)
		defer cancel()
		if err := o.Run(runCtx, sess.ID); err != nil {
			o.logger.Printf("session %s ended with error: %v", sess.ID, err)
		}
	}()
	return sess, nil
}

// Wait blocks until every background run started by Start has finished.
func (o *Orchestrator) Wait() { o.running.Wait() }

// Run executes the pipeline for an existing session. Failures that escape a
// stage's own fallback, including panics, move the session to status error.
func (o *Orchestrator) Run(ctx context.Context, sessionID string) (err error) {
	ctx, span := coreTracer.Start(ctx, "Orchestrator.Run")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sessionID))
	if !o.budget.IsZero() {
		mon := budget.NewMonitor(o.budget)
		ctx = budget.WithMonitor(ctx, mon)
		defer func() {
			calls, tokens := mon.Usage()
			span.SetAttributes(attribute.Int("llm.calls", calls), attribute.Int64("llm.tokens", tokens))
		}()
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Printf("pipeline panic for %s: %v\n%s", sessionID, r, debug.Stack())
			err = fmt.Errorf("pipeline panic: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.fail(ctx, sessionID, err)
			recordPipeline(ctx, string(session.StatusError))
			return
		}
		recordPipeline(ctx, string(session.StatusCompleted))
	}()

	sess, err := o.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	subject := sess.Subject

	// Planning
	started := time.Now()
	if _, err := o.store.Update(ctx, sessionID, func(s *session.Session) error {
		s.Stage = session.StagePlanning
		s.AppendChat(SenderMaster, planningMessage)
		return nil
	}); err != nil {
		return fmt.Errorf("planning: %w", err)
	}
	o.hub.Broadcast(ctx, sessionID, streams.ChatMessage(sessionID, SenderMaster, planningMessage))
	plan := o.planner.Plan(ctx, subject.Query)
	if _, err := o.store.Update(ctx, sessionID, func(s *session.Session) error {
		s.Plan = plan
		s.Stage = session.StageDispatching
		return nil
	}); err != nil {
		return fmt.Errorf("store plan: %w", err)
	}
	recordStage(ctx, string(session.StagePlanning), started)

	// Dispatching, one worker at a time in registry order.
	started = time.Now()
	query := workerQuery(subject, plan)
	for _, w := range o.workers {
		if !plan.Selected(w.desc.ID) {
			continue
		}
		if err := o.dispatch(ctx, sessionID, w, query); err != nil {
			return err
		}
	}
	recordStage(ctx, string(session.StageDispatching), started)

	// Deriving
	started = time.Now()
	current, err := o.store.Update(ctx, sessionID, func(s *session.Session) error {
		s.Stage = session.StageDeriving
		return nil
	})
	if err != nil {
		return fmt.Errorf("deriving: %w", err)
	}
	charts := o.deriver.Derive(ctx, current.Results())
	current, err = o.store.Update(ctx, sessionID, func(s *session.Session) error {
		s.ChartSpecs = charts
		s.Stage = session.StageCompiling
		return nil
	})
	if err != nil {
		return fmt.Errorf("store charts: %w", err)
	}
	recordStage(ctx, string(session.StageDeriving), started)

	// Compiling
	started = time.Now()
	ref := o.compile(ctx, current)
	current, err = o.store.Update(ctx, sessionID, func(s *session.Session) error {
		s.ReportRef = ref
		s.Stage = session.StageSynthesizing
		return nil
	})
	if err != nil {
		return fmt.Errorf("store report ref: %w", err)
	}
	recordStage(ctx, string(session.StageCompiling), started)

	// Synthesizing
	started = time.Now()
	narrative := o.narrator.Synthesize(ctx, current)
	current.Narrative = narrative
	if o.compiler != nil && ref != nil && ref.ReportID != "" {
		if amended, err := o.compiler.Amend(ctx, current, ref); err != nil {
			o.logger.Printf("session %s: keeping report without narrative: %v", sessionID, err)
		} else if amended != nil {
			ref = amended
		}
	}
	final, err := o.store.Update(ctx, sessionID, func(s *session.Session) error {
		s.Narrative = narrative
		s.ReportRef = ref
		s.Status = session.StatusCompleted
		s.Stage = session.StageCompleted
		s.AppendChat(SenderMaster, closingMessage)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store narrative: %w", err)
	}
	recordStage(ctx, string(session.StageSynthesizing), started)

	o.hub.Broadcast(ctx, sessionID, streams.ChatMessage(sessionID, SenderMaster, closingMessage))
	o.hub.Broadcast(ctx, sessionID, streams.SessionData(final))
	return nil
}

// dispatch runs one worker and stores its result before returning. Worker errors
// and panics become an error-marked result; only store failures are returned.
func (o *Orchestrator) dispatch(ctx context.Context, sessionID string, w *Worker, query string) error {
	d := w.desc
	started := time.Now()
	o.hub.Broadcast(ctx, sessionID, streams.AgentStatus(sessionID, d.ID, streams.AgentRunning, d.StartMessage))
	o.hub.Broadcast(ctx, sessionID, streams.ChatMessage(sessionID, d.DisplayName, d.StartMessage))

	res, runErr := o.runWorker(ctx, w, query)
	outcome := "ok"
	if runErr != nil {
		outcome = "error"
		o.logger.Printf("session %s: worker %s failed: %v", sessionID, d.ID, runErr)
		res = session.WorkerResult{
			WorkerID:    d.ID,
			DisplayName: d.DisplayName,
			Params:      res.Params,
			Raw:         map[string]any{},
			Summary:     "",
			Error:       runErr.Error(),
			StartedAt:   res.StartedAt,
			FinishedAt:  time.Now().UTC(),
		}
	}
	recordWorker(ctx, d.ID, outcome, started)

	var chat string
	if res.Failed() {
		chat = fmt.Sprintf("%s could not complete: %s", d.DisplayName, res.Error)
	} else {
		chat = preview(res.Summary)
	}
	if _, err := o.store.Update(ctx, sessionID, func(s *session.Session) error {
		s.PutResult(res)
		s.AppendChat(d.DisplayName, chat)
		return nil
	}); err != nil {
		return fmt.Errorf("store %s result: %w", d.ID, err)
	}

	if res.Failed() {
		o.hub.Broadcast(ctx, sessionID, streams.AgentStatus(sessionID, d.ID, streams.AgentError, res.Error))
		o.hub.Broadcast(ctx, sessionID, streams.ChatMessage(sessionID, d.DisplayName, chat))
		return nil
	}
	o.hub.Broadcast(ctx, sessionID, streams.AgentStatus(sessionID, d.ID, streams.AgentDone, d.DisplayName+" completed"))
	o.hub.Broadcast(ctx, sessionID, streams.ChatMessage(sessionID, d.DisplayName, chat))
	o.hub.Broadcast(ctx, sessionID, streams.AgentResult(sessionID, d.ID, res.Raw, res.Summary, d.DisplayName+" completed"))
	return nil
}

func (o *Orchestrator) runWorker(ctx context.Context, w *Worker, query string) (res session.WorkerResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Printf("worker %s panic: %v\n%s", w.desc.ID, r, debug.Stack())
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return w.Run(ctx, query)
}

// compile never fails the pipeline; a compiler error yields a placeholder ref.
func (o *Orchestrator) compile(ctx context.Context, s *session.Session) *session.ReportRef {
	if o.compiler == nil {
		return &session.ReportRef{Status: session.ReportPlaceholder, Error: "report compiler not configured"}
	}
	ref, err := o.compiler.Compile(ctx, s)
	if err != nil {
		o.logger.Printf("session %s: report compilation failed: %v", s.ID, err)
		placeholder := &session.ReportRef{Status: session.ReportPlaceholder, Error: err.Error()}
		if ref != nil {
			placeholder.ReportID = ref.ReportID
			placeholder.DownloadPath = ref.DownloadPath
		}
		return placeholder
	}
	return ref
}

func (o *Orchestrator) fail(ctx context.Context, sessionID string, cause error) {
	msg := errorMessage + cause.Error()
	if _, err := o.store.Update(context.WithoutCancel(ctx), sessionID, func(s *session.Session) error {
		s.Status = session.StatusError
		s.Stage = session.StageErrored
		s.Error = cause.Error()
		s.AppendChat(SenderMaster, msg)
		return nil
	}); err != nil {
		o.logger.Printf("session %s: could not record failure: %v", sessionID, err)
	}
	o.hub.Broadcast(context.WithoutCancel(ctx), sessionID, streams.ChatMessage(sessionID, SenderMaster, msg))
}

// FollowUp answers question from the stored results of a session and appends the
// exchange to its transcript. It never calls a provider or the completion service.
func (o *Orchestrator) FollowUp(ctx context.Context, sessionID, question string) (string, error) {
	ctx, span := coreTracer.Start(ctx, "Orchestrator.FollowUp")
	defer span.End()

	sess, err := o.store.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	answer, workerID := o.router.Answer(sess, question)
	recordFollowUp(ctx, workerID)
	if _, err := o.store.Update(ctx, sessionID, func(s *session.Session) error {
		s.AppendChat(SenderUser, question)
		s.AppendChat(SenderMaster, answer)
		return nil
	}); err != nil {
		return "", err
	}
	o.hub.Broadcast(ctx, sessionID, streams.ChatMessage(sessionID, SenderMaster, answer))
	return answer, nil
}

// BuildQuery renders the free-text request workers and the planner read.
func BuildQuery(subject session.Subject) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Evaluate the innovation opportunity for %s", subject.Molecule)
	if subject.Indication != "" {
		fmt.Fprintf(&b, " in %s", subject.Indication)
	}
	b.WriteString(".")
	if subject.Geography != "" {
		fmt.Fprintf(&b, " Geography: %s.", subject.Geography)
	}
	if subject.Timeframe != "" {
		fmt.Fprintf(&b, " Timeframe: %s.", subject.Timeframe)
	}
	if subject.StrategicQuestion != "" {
		fmt.Fprintf(&b, " Strategic Question: %s", subject.StrategicQuestion)
	}
	return b.String()
}

func workerQuery(subject session.Subject, plan session.Plan) string {
	q := subject.Query
	if q == "" {
		q = BuildQuery(subject)
	}
	if m := firstNonEmpty(plan.Molecule, subject.Molecule); m != "" {
		q += "\nPrimary molecule: " + m
	}
	if i := firstNonEmpty(plan.Indication, subject.Indication); i != "" {
		q += "\nPrimary indication: " + i
	}
	return q
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func preview(summary string) string {
	r := []rune(strings.TrimSpace(summary))
	if len(r) <= previewLength {
		return string(r)
	}
	return string(r[:previewLength]) + "..."
}
