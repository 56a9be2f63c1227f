package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExists   = errors.New("session already exists")
)

// Store persists Sessions. Update is a full-record replace-on-write: the stored
// record is read, copied, handed to mutate and written back with a fresh UpdatedAt.
// Implementations never hand out their internal copy.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, id string, mutate func(*Session) error) (*Session, error)
	List(ctx context.Context) ([]*Session, error)
}

type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Stage is the orchestrator state a session is in.
type Stage string

const (
	StageCreated      Stage = "created"
	StagePlanning     Stage = "planning"
	StageDispatching  Stage = "dispatching"
	StageDeriving     Stage = "deriving"
	StageCompiling    Stage = "compiling"
	StageSynthesizing Stage = "synthesizing"
	StageCompleted    Stage = "completed"
	StageErrored      Stage = "errored"
)

// Subject describes what a run evaluates.
type Subject struct {
	Molecule          string `json:"molecule"`
	Indication        string `json:"indication"`
	Geography         string `json:"geography"`
	Timeframe         string `json:"timeframe"`
	StrategicQuestion string `json:"strategic_question,omitempty"`
	Query             string `json:"query"`
}

// Plan selects workers by id and carries the entities shared by all of them.
type Plan struct {
	Molecule   string          `json:"molecule,omitempty"`
	Indication string          `json:"indication,omitempty"`
	Workers    map[string]bool `json:"workers"`
	Fallback   bool            `json:"fallback,omitempty"`
}

// Selected reports whether the plan runs the worker.
func (p Plan) Selected(workerID string) bool { return p.Workers[workerID] }

// IsZero is true until the planner has produced a plan.
func (p Plan) IsZero() bool { return p.Workers == nil }

// SelectedCount returns how many workers the plan runs.
func (p Plan) SelectedCount() int {
	n := 0
	for _, on := range p.Workers {
		if on {
			n++
		}
	}
	return n
}

// WorkerResult is immutable once stored on a Session; clones share its maps.
type WorkerResult struct {
	WorkerID    string         `json:"worker_id"`
	DisplayName string         `json:"display_name"`
	Params      map[string]any `json:"params"`
	Raw         map[string]any `json:"raw"`
	Summary     string         `json:"summary"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
}

// Failed reports whether the worker ended with an error note.
func (r WorkerResult) Failed() bool { return r.Error != "" }

type ChartKind string

const (
	ChartBar   ChartKind = "bar"
	ChartLine  ChartKind = "line"
	ChartPie   ChartKind = "pie"
	ChartDonut ChartKind = "donut"
)

// Valid reports whether k is a renderable chart kind.
func (k ChartKind) Valid() bool {
	switch k {
	case ChartBar, ChartLine, ChartPie, ChartDonut:
		return true
	}
	return false
}

type ChartSpec struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Kind    ChartKind `json:"chart_kind"`
	Labels  []string  `json:"labels"`
	Values  []float64 `json:"values"`
	Unit    string    `json:"unit,omitempty"`
	Insight string    `json:"insight"`
}

type ChatMessage struct {
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Report statuses.
const (
	ReportReady       = "ready"
	ReportPlaceholder = "placeholder"
)

// ReportRef points at a compiled report. A placeholder ref has no artifact.
type ReportRef struct {
	ReportID     string `json:"report_id"`
	Status       string `json:"status"`
	DownloadPath string `json:"download_path"`
	Error        string `json:"error,omitempty"`
}

// Session is the full record of one orchestration run.
type Session struct {
	ID            string                  `json:"id"`
	Subject       Subject                 `json:"subject"`
	Status        Status                  `json:"status"`
	Stage         Stage                   `json:"stage"`
	Plan          Plan                    `json:"plan"`
	WorkerResults map[string]WorkerResult `json:"worker_results"`
	WorkerOrder   []string                `json:"worker_order"`
	ChartSpecs    map[string][]ChartSpec  `json:"chart_specs"`
	Narrative     string                  `json:"narrative"`
	ReportRef     *ReportRef              `json:"report_ref,omitempty"`
	ChatHistory   []ChatMessage           `json:"chat_history"`
	Error         string                  `json:"error,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// New returns a processing session with a fresh id.
func New(subject Subject) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:            uuid.NewString(),
		Subject:       subject,
		Status:        StatusProcessing,
		Stage:         StageCreated,
		WorkerResults: map[string]WorkerResult{},
		ChartSpecs:    map[string][]ChartSpec{},
		ChatHistory:   []ChatMessage{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// PutResult stores a worker result, keeping first-insertion order.
func (s *Session) PutResult(r WorkerResult) {
	if s.WorkerResults == nil {
		s.WorkerResults = map[string]WorkerResult{}
	}
	if _, ok := s.WorkerResults[r.WorkerID]; !ok {
		s.WorkerOrder = append(s.WorkerOrder, r.WorkerID)
	}
	s.WorkerResults[r.WorkerID] = r
}

// Results returns worker results in dispatch order.
func (s *Session) Results() []WorkerResult {
	out := make([]WorkerResult, 0, len(s.WorkerOrder))
	for _, id := range s.WorkerOrder {
		if r, ok := s.WorkerResults[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

// CompletedWorkers lists worker ids with a stored result, in dispatch order.
func (s *Session) CompletedWorkers() []string {
	out := make([]string, 0, len(s.WorkerOrder))
	for _, id := range s.WorkerOrder {
		if _, ok := s.WorkerResults[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// AppendChat adds a transcript entry.
func (s *Session) AppendChat(sender, message string) {
	s.ChatHistory = append(s.ChatHistory, ChatMessage{Sender: sender, Message: message, Timestamp: time.Now().UTC()})
}

// Progress is the share of selected workers that have reported, as a percentage.
// It stays below 100 while the session is processing and is 100 once it is not.
func (s *Session) Progress() int {
	if s.Status != StatusProcessing {
		return 100
	}
	selected := s.Plan.SelectedCount()
	if selected == 0 {
		return 0
	}
	done := 0
	for id := range s.WorkerResults {
		if s.Plan.Selected(id) {
			done++
		}
	}
	pct := done * 100 / selected
	if pct > 99 {
		pct = 99
	}
	return pct
}

// Clone returns a copy that shares nothing mutable with s. Stored WorkerResults
// are immutable, so their payload maps are shared.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Plan.Workers != nil {
		c.Plan.Workers = make(map[string]bool, len(s.Plan.Workers))
		for k, v := range s.Plan.Workers {
			c.Plan.Workers[k] = v
		}
	}
	c.WorkerResults = make(map[string]WorkerResult, len(s.WorkerResults))
	for k, v := range s.WorkerResults {
		c.WorkerResults[k] = v
	}
	c.WorkerOrder = append([]string(nil), s.WorkerOrder...)
	c.ChartSpecs = make(map[string][]ChartSpec, len(s.ChartSpecs))
	for k, v := range s.ChartSpecs {
		c.ChartSpecs[k] = append([]ChartSpec(nil), v...)
	}
	c.ChatHistory = append([]ChatMessage{}, s.ChatHistory...)
	if s.ReportRef != nil {
		ref := *s.ReportRef
		c.ReportRef = &ref
	}
	return &c
}
