package budget

import (
	"fmt"
	"sync"
)

// Monitor tracks completion usage of a run against its limits. Workers run
// sequentially but the deriver and narrator share it, so it is locked.
type Monitor struct {
	limits Limits
	calls  int
	tokens int64
	mu     sync.Mutex
}

func NewMonitor(l Limits) *Monitor {
	return &Monitor{limits: l}
}

// Allow reserves one completion call, or fails when a limit is already reached.
func (m *Monitor) Allow() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.limits.MaxCalls > 0 && m.calls >= m.limits.MaxCalls {
		return ErrExceeded{
			Kind:  KindCalls,
			Usage: fmt.Sprintf("%d calls", m.calls),
			Limit: fmt.Sprintf("%d calls", m.limits.MaxCalls),
		}
	}
	if m.limits.MaxTokens > 0 && m.tokens >= m.limits.MaxTokens {
		return ErrExceeded{
			Kind:  KindTokens,
			Usage: fmt.Sprintf("%d tokens", m.tokens),
			Limit: fmt.Sprintf("%d tokens", m.limits.MaxTokens),
		}
	}
	m.calls++
	return nil
}

// Add records tokens consumed by a completed call.
func (m *Monitor) Add(tokens int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.tokens += tokens
	m.mu.Unlock()
}

// Usage returns the accumulated calls and tokens.
func (m *Monitor) Usage() (calls int, tokens int64) {
	if m == nil {
		return 0, 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, m.tokens
}
