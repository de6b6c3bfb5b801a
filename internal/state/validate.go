package state

import (
	"fmt"
	"strings"
)

// FieldError locates one schema violation. Path is machine-readable, e.g.
// "active_*" or "round_role_history[2].switched_at".
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError reports every schema violation found in a snapshot.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "state schema violation"
	}
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fmt.Sprintf("%s: %s", fe.Path, fe.Message)
	}
	return "state schema violation: " + strings.Join(parts, "; ")
}

// Validate checks a snapshot against the schema. It collects all violations
// rather than stopping at the first, so callers can surface a complete
// diagnostic for a hand-edited or corrupted file.
func Validate(s *Snapshot) error {
	var errs []FieldError
	add := func(path, format string, args ...any) {
		errs = append(errs, FieldError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if s.BubbleID == "" {
		add("bubble_id", "must not be empty")
	}
	if !ValidLifecycle(s.State) {
		add("state", "unknown state %q", s.State)
	}
	if s.Round < 0 {
		add("round", "must be non-negative, got %d", s.Round)
	}

	set := 0
	for _, p := range []*string{s.ActiveAgent, s.ActiveSince, s.ActiveRole} {
		if p != nil {
			set++
		}
	}
	switch {
	case set != 0 && set != 3:
		add("active_*", "active_agent, active_since, active_role must be all set or all null (%d of 3 set)", set)
	case set == 3:
		if ValidLifecycle(s.State) && !s.State.RequiresActiveTurn() {
			add("active_*", "must be null in state %s", s.State)
		}
		if *s.ActiveRole != RoleImplementer && *s.ActiveRole != RoleReviewer {
			add("active_role", "unknown role %q", *s.ActiveRole)
		}
		if _, err := ParseTime(*s.ActiveSince); err != nil {
			add("active_since", "not RFC-3339: %q", *s.ActiveSince)
		}
	default: // all null
		if ValidLifecycle(s.State) && s.State.RequiresActiveTurn() {
			add("active_*", "must be set in state %s", s.State)
		}
	}

	prevRound := 0
	for i, h := range s.RoundRoleHistory {
		p := func(field string) string {
			return fmt.Sprintf("round_role_history[%d].%s", i, field)
		}
		if h.Round <= prevRound && i > 0 {
			add(p("round"), "rounds must be strictly increasing, got %d after %d", h.Round, prevRound)
		}
		if h.Round < 0 {
			add(p("round"), "must be non-negative, got %d", h.Round)
		}
		if h.Implementer == "" {
			add(p("implementer"), "must not be empty")
		}
		if h.Reviewer == "" {
			add(p("reviewer"), "must not be empty")
		}
		if h.Implementer != "" && h.Implementer == h.Reviewer {
			add(p("reviewer"), "implementer and reviewer must differ, both %q", h.Reviewer)
		}
		if _, err := ParseTime(h.SwitchedAt); err != nil {
			add(p("switched_at"), "not RFC-3339: %q", h.SwitchedAt)
		}
		prevRound = h.Round
	}

	if s.LastCommandAt != nil {
		if _, err := ParseTime(*s.LastCommandAt); err != nil {
			add("last_command_at", "not RFC-3339: %q", *s.LastCommandAt)
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}
