package budget

import (
	"context"
	"fmt"
)

// Limits caps text completion usage for one run. Zero means unlimited.
type Limits struct {
	MaxCalls  int
	MaxTokens int64
}

// Validate ensures the limits are sane before use.
func (l Limits) Validate() error {
	if l.MaxCalls < 0 {
		return fmt.Errorf("max_calls cannot be negative")
	}
	if l.MaxTokens < 0 {
		return fmt.Errorf("max_tokens cannot be negative")
	}
	return nil
}

// IsZero reports whether no limit is set.
func (l Limits) IsZero() bool { return l.MaxCalls == 0 && l.MaxTokens == 0 }

type monitorKey struct{}

// WithMonitor returns a context carrying m.
func WithMonitor(ctx context.Context, m *Monitor) context.Context {
	return context.WithValue(ctx, monitorKey{}, m)
}

// FromContext returns the run monitor, or nil when the run is unbounded.
// All Monitor methods accept a nil receiver.
func FromContext(ctx context.Context) *Monitor {
	m, _ := ctx.Value(monitorKey{}).(*Monitor)
	return m
}
