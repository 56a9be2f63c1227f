package budget

import "fmt"

// Kind names the limit a run ran into.
type Kind string

const (
	KindCalls  Kind = "calls"
	KindTokens Kind = "tokens"
)

// ErrExceeded is returned by Monitor.Allow once a run has used up a limit.
// Usage and Limit are rendered with their unit, e.g. "12 calls".
type ErrExceeded struct {
	Kind  Kind
	Usage string
	Limit string
}

func (e ErrExceeded) Error() string {
	if e.Limit == "" {
		return fmt.Sprintf("run %s budget spent (%s used)", e.Kind, e.Usage)
	}
	return fmt.Sprintf("run %s budget spent: %s used of %s allowed", e.Kind, e.Usage, e.Limit)
}
