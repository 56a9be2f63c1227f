package core

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/pharmaverse/internal/helpers"
	"github.com/mohammad-safakhou/pharmaverse/session"
)

// Planner decides which workers run and extracts the shared entities.
type Planner struct {
	llm    TextCompleter
	descs  []Descriptor
	logger *log.Logger
	system string
}

func NewPlanner(llm TextCompleter, descs []Descriptor, logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.New(log.Writer(), "[PLANNER] ", log.LstdFlags)
	}
	return &Planner{llm: llm, descs: descs, logger: logger, system: planningInstruction(descs)}
}

func planningInstruction(descs []Descriptor) string {
	var b strings.Builder
	b.WriteString("You are the planning step of a pharmaceutical intelligence system. ")
	b.WriteString("Decide which data agents are relevant to the user's request and extract the primary molecule and indication.\n\nAgents:\n")
	for _, d := range descs {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", d.PlanKey(), d.DisplayName, d.Focus)
	}
	b.WriteString("\nRespond with a single JSON object only, no prose: {\"molecule\": string|null, \"indication\": string|null")
	for _, d := range descs {
		fmt.Fprintf(&b, ", \"%s\": true|false", d.PlanKey())
	}
	b.WriteString("}. When unsure whether an agent is relevant, set it to true.")
	return b.String()
}

// DefaultPlan runs every worker and carries no entities.
func DefaultPlan(descs []Descriptor) session.Plan {
	p := session.Plan{Workers: make(map[string]bool, len(descs)), Fallback: true}
	for _, d := range descs {
		p.Workers[d.ID] = true
	}
	return p
}

// Plan never fails: unusable completion output degrades to DefaultPlan.
func (p *Planner) Plan(ctx context.Context, query string) session.Plan {
	ctx, span := coreTracer.Start(ctx, "Planner.Plan")
	defer span.End()

	text, err := p.llm.Complete(ctx, Prompt{System: p.system, User: query})
	if err != nil {
		span.RecordError(err)
		p.logger.Printf("planning completion failed, running every worker: %v", err)
		return DefaultPlan(p.descs)
	}
	var doc map[string]any
	if err := helpers.DecodeLenient(text, &doc); err != nil || doc == nil {
		p.logger.Printf("planning output unparseable, running every worker")
		return DefaultPlan(p.descs)
	}
	if err := validatePlanDocument(doc); err != nil {
		span.RecordError(err)
		p.logger.Printf("plan document off-schema, running every worker: %v", err)
		return DefaultPlan(p.descs)
	}
	return p.fromDocument(doc)
}

func (p *Planner) fromDocument(doc map[string]any) session.Plan {
	plan := session.Plan{
		Molecule:   entity(doc["molecule"]),
		Indication: entity(doc["indication"]),
		Workers:    make(map[string]bool, len(p.descs)),
	}
	for _, d := range p.descs {
		plan.Workers[d.ID] = flag(doc[d.PlanKey()])
	}
	return plan
}

func entity(v any) string {
	s, _ := v.(string)
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
		return ""
	}
	return s
}

// flag coerces a planner flag; anything missing or unreadable means "run".
func flag(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(strings.ToLower(t))); err == nil {
			return b
		}
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "yes", "y":
			return true
		case "no", "n":
			return false
		}
	case float64:
		return t != 0
	}
	return true
}
