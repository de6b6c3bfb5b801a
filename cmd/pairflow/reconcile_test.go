package main

import (
	"strings"
	"testing"

	"github.com/pairflow/pairflow/internal/runtime"
)

func TestRenderPlan(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		got := renderPlan(runtime.Plan{}, false)
		if !strings.Contains(got, "nothing to do") {
			t.Errorf("expected all-clear line, got %q", got)
		}
	})

	t.Run("Repairs", func(t *testing.T) {
		plan := runtime.Plan{
			KillSessions:  []string{"pf-b_gone"},
			RemoveEntries: []string{"b_gone"},
			AddEntries:    []runtime.Entry{{BubbleID: "b_new"}},
			Issues:        []runtime.Issue{{Kind: runtime.IssueVersionSkew, Detail: "engine 0.2.0 behind entry 0.3.0"}},
		}
		got := renderPlan(plan, false)
		for _, want := range []string{
			"Repaired: kill orphan session pf-b_gone",
			"Repaired: drop stale registry entry for b_gone",
			"Repaired: restore registry entry for b_new",
			"engine 0.2.0 behind entry 0.3.0",
		} {
			if !strings.Contains(got, want) {
				t.Errorf("missing %q in:\n%s", want, got)
			}
		}
	})

	t.Run("DryRunVerb", func(t *testing.T) {
		plan := runtime.Plan{KillSessions: []string{"pf-b_gone"}}
		got := renderPlan(plan, true)
		if !strings.Contains(got, "Would repair") {
			t.Errorf("expected conditional verb, got %q", got)
		}
		if strings.Contains(got, "Repaired:") {
			t.Errorf("dry run must not claim completed repairs: %q", got)
		}
	})
}
