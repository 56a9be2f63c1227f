package core

import (
	"context"
	"strings"
	"testing"
)

func TestPlannerSelectsRelevantWorkers(t *testing.T) {
	llm := newStubLLM()
	llm.plan = "```json\n" + `{"molecule":"Metformin","indication":"IPF","call_market":true,"call_trade":false,"call_patent":"yes","call_trials":"false","call_internal":0,"call_web":true}` + "\n```"
	p := NewPlanner(llm, DefaultDescriptors(), nil)

	plan := p.Plan(context.Background(), "metformin in IPF")
	if plan.Fallback {
		t.Fatalf("parsed plan must not be marked as fallback")
	}
	if plan.Molecule != "Metformin" || plan.Indication != "IPF" {
		t.Fatalf("unexpected entities %+v", plan)
	}
	want := map[string]bool{WorkerMarket: true, WorkerTrade: false, WorkerPatent: true, WorkerTrials: false, WorkerInternal: false, WorkerWeb: true}
	for id, w := range want {
		if plan.Workers[id] != w {
			t.Fatalf("worker %s: expected %v, got %v", id, w, plan.Workers[id])
		}
	}
}

func TestPlannerMalformedOutputRunsEveryWorker(t *testing.T) {
	llm := newStubLLM()
	llm.plan = "I think market and patents matter most."
	p := NewPlanner(llm, DefaultDescriptors(), nil)

	plan := p.Plan(context.Background(), "q")
	if !plan.Fallback {
		t.Fatalf("expected fallback plan")
	}
	if plan.SelectedCount() != 6 {
		t.Fatalf("expected all six workers, got %d", plan.SelectedCount())
	}
	if plan.Molecule != "" || plan.Indication != "" {
		t.Fatalf("fallback plan carries no entities, got %+v", plan)
	}
}

func TestPlannerOffSchemaDocumentRunsEveryWorker(t *testing.T) {
	cases := []string{
		`{"answer":42,"workers":["market"]}`,
		`{"molecule":5,"call_market":false}`,
		`{"indication":"IPF","call_trade":{"run":false}}`,
	}
	for _, doc := range cases {
		llm := newStubLLM()
		llm.plan = doc
		plan := NewPlanner(llm, DefaultDescriptors(), nil).Plan(context.Background(), "q")
		if !plan.Fallback || plan.SelectedCount() != 6 {
			t.Fatalf("%s: expected default plan, got %+v", doc, plan)
		}
	}
}

func TestPlannerCompletionErrorRunsEveryWorker(t *testing.T) {
	llm := newStubLLM()
	llm.fail["plan"] = true
	plan := NewPlanner(llm, DefaultDescriptors(), nil).Plan(context.Background(), "q")
	if !plan.Fallback || plan.SelectedCount() != 6 {
		t.Fatalf("expected default plan, got %+v", plan)
	}
}

func TestPlannerMissingFlagsDefaultToRun(t *testing.T) {
	llm := newStubLLM()
	llm.plan = `{"molecule":null,"call_trade":false,"call_web":"maybe"}`
	plan := NewPlanner(llm, DefaultDescriptors(), nil).Plan(context.Background(), "q")
	if plan.Workers[WorkerTrade] {
		t.Fatalf("explicit false must be honored")
	}
	for _, id := range []string{WorkerMarket, WorkerPatent, WorkerTrials, WorkerInternal, WorkerWeb} {
		if !plan.Workers[id] {
			t.Fatalf("expected %s to default to true", id)
		}
	}
	if plan.Molecule != "" {
		t.Fatalf("null molecule must be empty, got %q", plan.Molecule)
	}
}

func TestPlanningInstructionListsEveryFlag(t *testing.T) {
	text := planningInstruction(DefaultDescriptors())
	for _, d := range DefaultDescriptors() {
		if !strings.Contains(text, d.PlanKey()) {
			t.Fatalf("instruction missing %s", d.PlanKey())
		}
	}
}
