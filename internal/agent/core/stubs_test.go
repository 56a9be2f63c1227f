package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/pharmaverse/internal/budget"
	"github.com/mohammad-safakhou/pharmaverse/session"
)

// stubLLM answers by prompt role: planning, extraction, summary, charts or narrative.
type stubLLM struct {
	mu        sync.Mutex
	calls     []Prompt
	plan      string
	charts    string
	narrative string
	fail      map[string]bool // keyed by role
	extract   map[string]string
	budgeted  bool // consult the run budget like OpenAIProvider
}

func newStubLLM() *stubLLM {
	return &stubLLM{
		plan:      `{"molecule":"Metformin","indication":"IPF","call_market":true,"call_trade":true,"call_patent":true,"call_trials":true,"call_internal":true,"call_web":true}`,
		charts:    `{"agents":{}}`,
		narrative: "Metformin shows a credible repurposing case in IPF.",
		fail:      map[string]bool{},
		extract:   map[string]string{},
	}
}

func (s *stubLLM) role(p Prompt) (string, string) {
	if strings.Contains(p.System, "planning step") {
		return "plan", ""
	}
	if p.System == chartInstruction {
		return "charts", ""
	}
	if p.System == narrativeInstruction {
		return "narrative", ""
	}
	for _, d := range DefaultDescriptors() {
		if p.System == d.Extraction {
			return "extract", d.ID
		}
		if p.System == d.Summary {
			return "summary", d.ID
		}
	}
	return "unknown", ""
}

func (s *stubLLM) Complete(ctx context.Context, p Prompt) (string, error) {
	if s.budgeted {
		if err := budget.FromContext(ctx).Allow(); err != nil {
			return "", err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, p)
	role, id := s.role(p)
	if s.fail[role] || s.fail[role+":"+id] {
		return "", errors.New("completion unavailable")
	}
	switch role {
	case "plan":
		return s.plan, nil
	case "charts":
		return s.charts, nil
	case "narrative":
		return s.narrative, nil
	case "extract":
		if out, ok := s.extract[id]; ok {
			return out, nil
		}
		return `{"molecule":"Metformin","indication":"IPF","product":"Metformin","topic":"metformin IPF","query":"metformin IPF guideline"}`, nil
	case "summary":
		return fmt.Sprintf("%s summary sentence one. Sentence two has 3.5%% growth. Sentence three. Sentence four.", id), nil
	}
	return "", errors.New("unexpected prompt")
}

func (s *stubLLM) count(role string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.calls {
		if r, _ := s.role(p); r == role {
			n++
		}
	}
	return n
}

type providerCall struct {
	Endpoint string
	Params   map[string]string
}

type stubProvider struct {
	mu     sync.Mutex
	calls  []providerCall
	fail   map[string]error
	panics map[string]bool
	before func(endpoint string)
}

func (p *stubProvider) Fetch(_ context.Context, endpoint string, params map[string]string) (map[string]any, error) {
	if p.before != nil {
		p.before(endpoint)
	}
	p.mu.Lock()
	p.calls = append(p.calls, providerCall{Endpoint: endpoint, Params: params})
	err := p.fail[endpoint]
	panics := p.panics[endpoint]
	p.mu.Unlock()
	if panics {
		panic("provider exploded")
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"endpoint": endpoint, "value": 42.0}, nil
}

func (p *stubProvider) endpoints() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	for i, c := range p.calls {
		out[i] = c.Endpoint
	}
	return out
}

type stubCompiler struct {
	compileErr error
	amendErr   error
	compiled   int
	amended    int
	narrative  string
}

func (c *stubCompiler) Compile(_ context.Context, s *session.Session) (*session.ReportRef, error) {
	c.compiled++
	if c.compileErr != nil {
		return nil, c.compileErr
	}
	return &session.ReportRef{ReportID: "RPT_1", Status: session.ReportReady, DownloadPath: "/downloads/reports/RPT_1"}, nil
}

func (c *stubCompiler) Amend(_ context.Context, s *session.Session, ref *session.ReportRef) (*session.ReportRef, error) {
	c.amended++
	c.narrative = s.Narrative
	if c.amendErr != nil {
		return nil, c.amendErr
	}
	return ref, nil
}
