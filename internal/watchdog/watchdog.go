// Package watchdog derives a liveness verdict for a bubble from its state
// snapshot and the wall clock. It is purely observational: expiry is
// reported to humans and dashboards, never acted on by the engine.
package watchdog

import (
	"time"

	"github.com/pairflow/pairflow/internal/state"
)

// Status is the watchdog verdict for one bubble at one instant.
type Status struct {
	// Monitored is true when the bubble is in a tracked state and an agent
	// holds the turn. Unmonitored bubbles never expire.
	Monitored bool `json:"monitored"`
	// Expired is true when the reference timestamp plus the timeout lies at
	// or before now.
	Expired bool `json:"expired"`
	// Deadline is reference + timeout. Nil when unmonitored or when the
	// reference timestamp cannot be parsed.
	Deadline *time.Time `json:"deadline,omitempty"`
	// RemainingSeconds counts up to the deadline, rounded up, floored at 0.
	RemainingSeconds int `json:"remaining_seconds"`
	// Reference is the timestamp the deadline is computed from:
	// last_command_at when set, otherwise active_since.
	Reference *time.Time `json:"reference,omitempty"`
}

// Evaluate computes the watchdog status. The tracked states are exactly
// those that may hold a turn; a bubble is monitored only while some agent
// actually holds it.
func Evaluate(snap *state.Snapshot, timeout time.Duration, now time.Time) Status {
	if !snap.State.RequiresActiveTurn() || snap.ActiveAgent == nil {
		return Status{}
	}

	refText := ""
	if snap.LastCommandAt != nil {
		refText = *snap.LastCommandAt
	} else if snap.ActiveSince != nil {
		refText = *snap.ActiveSince
	}
	ref, err := state.ParseTime(refText)
	if err != nil {
		// An unreadable reference must not page anyone.
		return Status{Monitored: true}
	}

	deadline := ref.Add(timeout)
	remaining := deadline.Sub(now)

	st := Status{
		Monitored: true,
		Deadline:  &deadline,
		Reference: &ref,
	}
	if remaining <= 0 {
		st.Expired = true
		return st
	}
	st.RemainingSeconds = int((remaining + time.Second - 1) / time.Second)
	return st
}
