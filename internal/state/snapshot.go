// Package state defines the bubble state snapshot, its schema validation,
// and the fingerprint-guarded store that persists it.
package state

import "time"

// Lifecycle is the bubble's finite-state-machine state.
type Lifecycle string

const (
	Created            Lifecycle = "CREATED"
	PreparingWorkspace Lifecycle = "PREPARING_WORKSPACE"
	Running            Lifecycle = "RUNNING"
	WaitingHuman       Lifecycle = "WAITING_HUMAN"
	ReadyForApproval   Lifecycle = "READY_FOR_APPROVAL"
	ApprovedForCommit  Lifecycle = "APPROVED_FOR_COMMIT"
	Committed          Lifecycle = "COMMITTED"
	Done               Lifecycle = "DONE"
	Failed             Lifecycle = "FAILED"
	Cancelled          Lifecycle = "CANCELLED"
)

// ValidLifecycle reports whether s names a known state.
func ValidLifecycle(s Lifecycle) bool {
	switch s {
	case Created, PreparingWorkspace, Running, WaitingHuman, ReadyForApproval,
		ApprovedForCommit, Committed, Done, Failed, Cancelled:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s Lifecycle) Terminal() bool {
	return s == Done || s == Failed || s == Cancelled
}

// RequiresActiveTurn reports whether the active_* triple must be populated
// in state s. The triple is all-null exactly in the remaining states.
func (s Lifecycle) RequiresActiveTurn() bool {
	switch s {
	case Running, WaitingHuman, ReadyForApproval, ApprovedForCommit, Committed:
		return true
	}
	return false
}

// Collaboration roles held by the active agent.
const (
	RoleImplementer = "implementer"
	RoleReviewer    = "reviewer"
)

// RoleHistoryEntry records which agent held which role during one round.
// A new entry is appended whenever the round advances.
type RoleHistoryEntry struct {
	Round       int    `json:"round"`
	Implementer string `json:"implementer"`
	Reviewer    string `json:"reviewer"`
	SwitchedAt  string `json:"switched_at"`
}

// Snapshot is the persisted bubble state. Timestamps are RFC-3339 UTC
// strings; the three active_* fields are all set or all null (invariant
// enforced by Validate).
type Snapshot struct {
	BubbleID         string             `json:"bubble_id"`
	State            Lifecycle          `json:"state"`
	Round            int                `json:"round"`
	ActiveAgent      *string            `json:"active_agent"`
	ActiveSince      *string            `json:"active_since"`
	ActiveRole       *string            `json:"active_role"`
	RoundRoleHistory []RoleHistoryEntry `json:"round_role_history"`
	LastCommandAt    *string            `json:"last_command_at"`
}

// NewSnapshot returns the initial snapshot for a freshly created bubble.
func NewSnapshot(bubbleID string) *Snapshot {
	return &Snapshot{
		BubbleID:         bubbleID,
		State:            Created,
		Round:            0,
		RoundRoleHistory: []RoleHistoryEntry{},
	}
}

// Clone returns a deep copy, so handlers can mutate a working snapshot while
// keeping the loaded one for conflict diagnostics.
func (s *Snapshot) Clone() *Snapshot {
	out := *s
	out.RoundRoleHistory = append([]RoleHistoryEntry(nil), s.RoundRoleHistory...)
	out.ActiveAgent = cloneStr(s.ActiveAgent)
	out.ActiveSince = cloneStr(s.ActiveSince)
	out.ActiveRole = cloneStr(s.ActiveRole)
	out.LastCommandAt = cloneStr(s.LastCommandAt)
	return &out
}

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// SetActive populates the active_* triple.
func (s *Snapshot) SetActive(agent, role string, at time.Time) {
	since := FormatTime(at)
	s.ActiveAgent = &agent
	s.ActiveRole = &role
	s.ActiveSince = &since
}

// ClearActive nulls the active_* triple, required before entering a state
// with no turn holder.
func (s *Snapshot) ClearActive() {
	s.ActiveAgent = nil
	s.ActiveRole = nil
	s.ActiveSince = nil
}

// Touch records that an envelope affected state at the given instant.
func (s *Snapshot) Touch(at time.Time) {
	ts := FormatTime(at)
	s.LastCommandAt = &ts
}

// CurrentMapping returns the role mapping in force for the current round:
// the last round_role_history entry.
func (s *Snapshot) CurrentMapping() (RoleHistoryEntry, bool) {
	if len(s.RoundRoleHistory) == 0 {
		return RoleHistoryEntry{}, false
	}
	return s.RoundRoleHistory[len(s.RoundRoleHistory)-1], true
}

// AgentForRole maps a role through the current round's mapping.
func (s *Snapshot) AgentForRole(role string) (string, bool) {
	m, ok := s.CurrentMapping()
	if !ok {
		return "", false
	}
	if role == RoleReviewer {
		return m.Reviewer, true
	}
	return m.Implementer, true
}

// FormatTime renders a timestamp the way every persisted pairflow file does:
// RFC-3339, UTC, second precision.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// ParseTime parses a persisted timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
