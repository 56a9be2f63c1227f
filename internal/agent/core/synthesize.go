package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/pharmaverse/internal/helpers"
	"github.com/mohammad-safakhou/pharmaverse/session"
)

const narrativeInstruction = `You are the lead analyst of a pharmaceutical intelligence team.
Write an executive answer to the strategic question using only the agent findings provided.
Structure: a short overview paragraph, then "- " bullets for market, supply, IP, clinical, internal and external signals that matter, then a recommendation paragraph.
Do not invent numbers that are not in the findings.`

// Narrator synthesizes the final narrative of a session.
type Narrator struct {
	llm    TextCompleter
	logger *log.Logger
}

func NewNarrator(llm TextCompleter, logger *log.Logger) *Narrator {
	if logger == nil {
		logger = log.New(log.Writer(), "[NARRATIVE] ", log.LstdFlags)
	}
	return &Narrator{llm: llm, logger: logger}
}

// Synthesize always returns non-empty text; a failed completion falls back to a
// digest of the worker summaries.
func (n *Narrator) Synthesize(ctx context.Context, s *session.Session) string {
	ctx, span := coreTracer.Start(ctx, "Narrator.Synthesize")
	defer span.End()

	results := s.Results()
	var b strings.Builder
	fmt.Fprintf(&b, "Request: %s\n\n", s.Subject.Query)
	if plan, err := json.Marshal(s.Plan); err == nil {
		fmt.Fprintf(&b, "Plan: %s\n\n", plan)
	}
	b.WriteString("Agent findings:\n")
	for _, r := range results {
		summary := r.Summary
		if r.Failed() {
			summary = "(no data: " + r.Error + ")"
		}
		fmt.Fprintf(&b, "\n[%s]\n%s\n", r.DisplayName, summary)
	}

	text, err := n.llm.Complete(ctx, Prompt{System: narrativeInstruction, User: b.String()})
	if err != nil {
		span.RecordError(err)
		n.logger.Printf("narrative completion failed for %s: %v", s.ID, err)
	}
	text = helpers.SanitizeHTMLStrict(text)
	if text == "" {
		return fallbackNarrative(s.Subject, results)
	}
	return text
}

func fallbackNarrative(subject session.Subject, results []session.WorkerResult) string {
	var b strings.Builder
	topic := strings.TrimSpace(subject.Molecule + " " + subject.Indication)
	if topic == "" {
		topic = "the request"
	}
	fmt.Fprintf(&b, "Summary of collected findings for %s.\n", topic)
	n := 0
	for _, r := range results {
		if r.Failed() || strings.TrimSpace(r.Summary) == "" {
			continue
		}
		fmt.Fprintf(&b, "\n- %s: %s", r.DisplayName, FirstSentences(r.Summary, 2))
		n++
	}
	if n == 0 {
		b.WriteString("\nNo agent returned usable data for this request.")
	}
	return b.String()
}
