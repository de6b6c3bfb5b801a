package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pairflow/pairflow/internal/state"
)

// RepoResolutionError reports that a directory is not inside a git
// repository, or the repository root could not be determined.
type RepoResolutionError struct {
	Dir string
	Err error
}

func (e *RepoResolutionError) Error() string {
	return fmt.Sprintf("not inside a git repository (from %s): %v", e.Dir, e.Err)
}

func (e *RepoResolutionError) Unwrap() error { return e.Err }

// InvalidStateError reports a handler precondition violation: the operation
// is not legal in the bubble's current lifecycle state.
type InvalidStateError struct {
	BubbleID string
	Op       string
	Expected []state.Lifecycle
	Actual   state.Lifecycle
}

func (e *InvalidStateError) Error() string {
	names := make([]string, len(e.Expected))
	for i, s := range e.Expected {
		names[i] = string(s)
	}
	return fmt.Sprintf("bubble %s: %s requires state %s, but bubble is %s",
		e.BubbleID, e.Op, strings.Join(names, " or "), e.Actual)
}

// NotActiveAgentError reports that an agent tried to act without holding the
// turn.
type NotActiveAgentError struct {
	BubbleID string
	Agent    string
	Active   string // agent currently holding the turn, empty when none
}

func (e *NotActiveAgentError) Error() string {
	if e.Active == "" {
		return fmt.Sprintf("bubble %s: no agent holds the turn, %s cannot act", e.BubbleID, e.Agent)
	}
	return fmt.Sprintf("bubble %s: turn is held by %s, not %s", e.BubbleID, e.Active, e.Agent)
}

// RoundLimitError reports that a revise decision would exceed the bubble's
// configured round ceiling.
type RoundLimitError struct {
	BubbleID  string
	MaxRounds int
}

func (e *RoundLimitError) Error() string {
	return fmt.Sprintf("bubble %s: revise would exceed max_rounds=%d; approve, reject, or raise the limit",
		e.BubbleID, e.MaxRounds)
}

// ErrStateDiverged means the transcript and the state snapshot disagree in a
// way trailing-envelope recovery cannot explain. It indicates manual editing
// of the bubble directory or a bug.
var ErrStateDiverged = errors.New("state snapshot diverged from transcript")
