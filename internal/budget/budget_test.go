package budget

import (
	"context"
	"errors"
	"testing"
)

func TestLimitsValidate(t *testing.T) {
	if err := (Limits{MaxCalls: -1}).Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
	if err := (Limits{MaxTokens: 100}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !(Limits{}).IsZero() {
		t.Fatalf("expected zero limits")
	}
}

func TestMonitorCallLimit(t *testing.T) {
	mon := NewMonitor(Limits{MaxCalls: 2})
	for i := 0; i < 2; i++ {
		if err := mon.Allow(); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
	}
	err := mon.Allow()
	var exceeded ErrExceeded
	if !errors.As(err, &exceeded) || exceeded.Kind != KindCalls {
		t.Fatalf("expected calls budget breach, got %v", err)
	}
	if calls, _ := mon.Usage(); calls != 2 {
		t.Fatalf("refused call must not be counted, got %d", calls)
	}
}

func TestMonitorTokenLimit(t *testing.T) {
	mon := NewMonitor(Limits{MaxTokens: 1000})
	if err := mon.Allow(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mon.Add(400)
	if err := mon.Allow(); err != nil {
		t.Fatalf("still under budget: %v", err)
	}
	mon.Add(700)
	if err := mon.Allow(); err == nil {
		t.Fatalf("expected token budget breach")
	}
	if _, tokens := mon.Usage(); tokens != 1100 {
		t.Fatalf("expected 1100 tokens, got %d", tokens)
	}
}

func TestNilMonitorIsUnbounded(t *testing.T) {
	mon := FromContext(context.Background())
	if mon != nil {
		t.Fatalf("expected no monitor")
	}
	if err := mon.Allow(); err != nil {
		t.Fatalf("nil monitor must allow: %v", err)
	}
	mon.Add(10)

	ctx := WithMonitor(context.Background(), NewMonitor(Limits{MaxCalls: 1}))
	if FromContext(ctx) == nil {
		t.Fatalf("expected monitor from context")
	}
}
