package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrQueueFull is TrySubmit's answer when no admission slot is free.
	ErrQueueFull = errors.New("orchestrator: queue full")
	// ErrStopped rejects submissions after Stop began.
	ErrStopped = errors.New("orchestrator: stopped")
	// ErrUnknownTask reports a cancel for an id the orchestrator is not
	// tracking (never submitted, or already terminal and pruned).
	ErrUnknownTask = errors.New("orchestrator: unknown task")
	// ErrUnknownGroup is the group-level counterpart.
	ErrUnknownGroup = errors.New("orchestrator: unknown group")
	// ErrDeadlineExceeded is wrapped into timed-out envelopes.
	ErrDeadlineExceeded = errors.New("orchestrator: task deadline exceeded")
	// ErrCancelled is wrapped into cancelled envelopes.
	ErrCancelled = errors.New("orchestrator: task cancelled")
)

// AggregateError carries the member failures of a fail-fast group. Member
// timeouts and cancellations stay inside the report envelopes; only Failed
// members contribute here.
type AggregateError struct {
	GroupID string
	Errs    []error
}

func (e *AggregateError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("group %s: %d task(s) failed: %s", e.GroupID, len(e.Errs), strings.Join(msgs, "; "))
}

func (e *AggregateError) Unwrap() []error { return e.Errs }
