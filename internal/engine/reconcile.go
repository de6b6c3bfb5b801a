package engine

import (
	"context"
	"os"

	"github.com/pairflow/pairflow/internal/bubble"
	"github.com/pairflow/pairflow/internal/metrics"
	"github.com/pairflow/pairflow/internal/runtime"
	"github.com/pairflow/pairflow/internal/state"
)

// Reconcile compares the session registry, the live tmux server, and the
// on-disk bubble states, then repairs the differences: orphan sessions are
// killed, dead registry rows dropped, missing rows restored. On-disk state
// is the source of truth throughout. With dryRun the plan is computed and
// returned but nothing changes.
func (e *Engine) Reconcile(ctx context.Context, dryRun bool) (runtime.Plan, error) {
	entries, err := e.reg.List()
	if err != nil {
		return runtime.Plan{}, err
	}
	// Without a tmux binary there are no sessions to reconcile against.
	var live []string
	if e.tm.Available() {
		live, err = e.tm.ListSessions(ctx)
		if err != nil {
			return runtime.Plan{}, err
		}
	}
	bubbles, err := e.scanBubbles()
	if err != nil {
		return runtime.Plan{}, err
	}

	plan := runtime.Reconcile(entries, live, bubbles, e.engineVersion())
	if dryRun || plan.Empty() {
		return plan, nil
	}

	for _, session := range plan.KillSessions {
		if err := e.tm.KillSession(ctx, session); err != nil {
			e.log.Warn("orphan session kill failed", "session", session, "error", err)
		}
	}
	if err := e.reg.Apply(plan); err != nil {
		return plan, err
	}

	e.emitMetric(metrics.EventReconcile, "", map[string]any{
		"killed":  len(plan.KillSessions),
		"removed": len(plan.RemoveEntries),
		"added":   len(plan.AddEntries),
		"issues":  len(plan.Issues),
	})
	return plan, nil
}

// scanBubbles reads every bubble's state to decide which ones should be
// holding a session. Unreadable bubbles are skipped: reconcile must not let
// one corrupt state file stop repair of the rest.
func (e *Engine) scanBubbles() (map[string]runtime.Bubble, error) {
	dir := bubble.BubblesDir(e.repo)
	names, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]runtime.Bubble{}, nil
		}
		return nil, err
	}

	bubbles := make(map[string]runtime.Bubble, len(names))
	for _, entry := range names {
		if !entry.IsDir() || bubble.ValidateID(entry.Name()) != nil {
			continue
		}
		id := entry.Name()
		h, err := e.open(id)
		if err != nil {
			e.log.Warn("skipping unreadable bubble during reconcile", "bubble", id, "error", err)
			continue
		}
		snap, _, err := h.store.Read()
		if err != nil {
			e.log.Warn("skipping unreadable bubble during reconcile", "bubble", id, "error", err)
			continue
		}
		bubbles[id] = runtime.Bubble{
			RepoPath:      e.repo,
			WorktreePath:  h.paths.WorktreePath,
			SessionWanted: sessionWanted(snap.State),
		}
	}
	return bubbles, nil
}

// sessionWanted reports whether a bubble in this state should have a live
// tmux session: started and not yet finished.
func sessionWanted(s state.Lifecycle) bool {
	switch s {
	case state.Running, state.WaitingHuman, state.ReadyForApproval, state.ApprovedForCommit, state.Committed:
		return true
	}
	return false
}
