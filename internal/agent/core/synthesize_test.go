package core

import (
	"context"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/pharmaverse/session"
)

func TestSynthesizeUsesCompletion(t *testing.T) {
	llm := newStubLLM()
	llm.narrative = "<p>Proceed with a <b>Phase 2</b> study.</p>"
	s := completedSession()
	got := NewNarrator(llm, nil).Synthesize(context.Background(), s)
	if got != "Proceed with a Phase 2 study." {
		t.Fatalf("expected sanitized narrative, got %q", got)
	}
}

func TestSynthesizeFallsBackToDigest(t *testing.T) {
	llm := newStubLLM()
	llm.fail["narrative"] = true
	got := NewNarrator(llm, nil).Synthesize(context.Background(), completedSession())
	if !strings.Contains(got, "Patent Landscape Agent: Metformin has 2 active patents. The composition patent expired in 2002.") {
		t.Fatalf("expected patent digest, got %q", got)
	}
	if strings.Contains(got, "EXIM") {
		t.Fatalf("failed workers must not appear in the digest: %q", got)
	}
}

func TestSynthesizeWithoutResults(t *testing.T) {
	llm := newStubLLM()
	llm.narrative = "   "
	got := NewNarrator(llm, nil).Synthesize(context.Background(), session.New(session.Subject{}))
	if !strings.Contains(got, "No agent returned usable data") {
		t.Fatalf("unexpected fallback %q", got)
	}
}
