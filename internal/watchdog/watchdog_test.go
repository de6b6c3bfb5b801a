package watchdog

import (
	"testing"
	"time"

	"github.com/pairflow/pairflow/internal/state"
)

var (
	t0      = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	timeout = 5 * time.Minute
)

func runningAt(active time.Time) *state.Snapshot {
	s := state.NewSnapshot("b_01")
	s.State = state.Running
	s.Round = 1
	s.RoundRoleHistory = []state.RoleHistoryEntry{
		{Round: 1, Implementer: "codex", Reviewer: "claude", SwitchedAt: state.FormatTime(active)},
	}
	s.SetActive("codex", state.RoleImplementer, active)
	return s
}

func TestEvaluateCountsDown(t *testing.T) {
	s := runningAt(t0)
	st := Evaluate(s, timeout, t0.Add(2*time.Minute))
	if !st.Monitored || st.Expired {
		t.Fatalf("status = %+v", st)
	}
	if st.RemainingSeconds != 180 {
		t.Errorf("RemainingSeconds = %d, want 180", st.RemainingSeconds)
	}
	if st.Deadline == nil || !st.Deadline.Equal(t0.Add(timeout)) {
		t.Errorf("Deadline = %v", st.Deadline)
	}
}

func TestEvaluateRoundsUp(t *testing.T) {
	s := runningAt(t0)
	st := Evaluate(s, timeout, t0.Add(timeout).Add(-1500*time.Millisecond))
	if st.Expired {
		t.Fatal("expired before deadline")
	}
	if st.RemainingSeconds != 2 {
		t.Errorf("RemainingSeconds = %d, want 2 (ceil of 1.5)", st.RemainingSeconds)
	}
}

func TestEvaluateAtExactDeadline(t *testing.T) {
	s := runningAt(t0)
	st := Evaluate(s, timeout, t0.Add(timeout))
	if !st.Expired {
		t.Error("Expired = false at now == deadline")
	}
	if st.RemainingSeconds != 0 {
		t.Errorf("RemainingSeconds = %d, want 0", st.RemainingSeconds)
	}
}

func TestEvaluateExpired(t *testing.T) {
	s := runningAt(t0)
	st := Evaluate(s, timeout, t0.Add(timeout).Add(30*time.Second))
	if !st.Monitored || !st.Expired || st.RemainingSeconds != 0 {
		t.Fatalf("status = %+v", st)
	}
}

func TestEvaluatePrefersLastCommandAt(t *testing.T) {
	s := runningAt(t0)
	s.Touch(t0.Add(3 * time.Minute))
	st := Evaluate(s, timeout, t0.Add(6*time.Minute))
	// active_since alone would have expired at t0+5m.
	if st.Expired {
		t.Fatal("expired despite recent command")
	}
	if st.RemainingSeconds != 120 {
		t.Errorf("RemainingSeconds = %d, want 120", st.RemainingSeconds)
	}
	if st.Reference == nil || !st.Reference.Equal(t0.Add(3*time.Minute)) {
		t.Errorf("Reference = %v", st.Reference)
	}
}

func TestEvaluateUnmonitoredStates(t *testing.T) {
	for _, lc := range []state.Lifecycle{state.Created, state.PreparingWorkspace, state.Done, state.Failed, state.Cancelled} {
		s := state.NewSnapshot("b_01")
		s.State = lc
		st := Evaluate(s, timeout, t0)
		if st.Monitored || st.Expired {
			t.Errorf("state %s: status = %+v", lc, st)
		}
	}
}

func TestEvaluateNoActiveAgent(t *testing.T) {
	// A snapshot can be in a tracked state with no turn holder only when the
	// file is being hand-repaired; the watchdog must still answer.
	s := state.NewSnapshot("b_01")
	s.State = state.Running
	st := Evaluate(s, timeout, t0)
	if st.Monitored {
		t.Errorf("status = %+v", st)
	}
}

func TestEvaluateUnparseableReference(t *testing.T) {
	s := runningAt(t0)
	bad := "last tuesday"
	s.LastCommandAt = &bad
	st := Evaluate(s, timeout, t0.Add(time.Hour))
	if !st.Monitored {
		t.Error("Monitored = false")
	}
	if st.Expired {
		t.Error("Expired = true for unparseable reference")
	}
	if st.Deadline != nil {
		t.Errorf("Deadline = %v, want nil", st.Deadline)
	}
}
