package runtime

import (
	"testing"
)

func planIssueKinds(p Plan) map[string]int {
	kinds := make(map[string]int)
	for _, i := range p.Issues {
		kinds[i.Kind]++
	}
	return kinds
}

func TestReconcileKillsOrphanSessions(t *testing.T) {
	live := []string{"pf-b_gone99", "pf-b_done88", "not-ours", "pf-garbage id"}
	bubbles := map[string]Bubble{
		"b_done88": {RepoPath: "/repo", SessionWanted: false}, // terminal
	}

	plan := Reconcile(nil, live, bubbles, "0.1.0")

	if len(plan.KillSessions) != 2 {
		t.Fatalf("KillSessions = %v, want the two pf- orphans", plan.KillSessions)
	}
	got := map[string]bool{}
	for _, s := range plan.KillSessions {
		got[s] = true
	}
	if !got["pf-b_gone99"] || !got["pf-b_done88"] {
		t.Errorf("KillSessions = %v", plan.KillSessions)
	}
	if kinds := planIssueKinds(plan); kinds[IssueOrphanSession] != 2 {
		t.Errorf("issues = %+v", plan.Issues)
	}
}

func TestReconcileRemovesStaleEntries(t *testing.T) {
	entries := []Entry{
		{BubbleID: "b_gone99", TmuxSession: "pf-b_gone99", EngineVersion: "0.1.0"},
		{BubbleID: "b_dead77", TmuxSession: "pf-b_dead77", EngineVersion: "0.1.0"},
	}
	bubbles := map[string]Bubble{
		"b_dead77": {RepoPath: "/repo", SessionWanted: true},
	}
	// No live sessions at all.
	plan := Reconcile(entries, nil, bubbles, "0.1.0")

	if len(plan.RemoveEntries) != 2 {
		t.Fatalf("RemoveEntries = %v, want both rows", plan.RemoveEntries)
	}
	kinds := planIssueKinds(plan)
	if kinds[IssueStaleEntry] != 1 || kinds[IssueDeadSession] != 1 {
		t.Errorf("issues = %+v", plan.Issues)
	}
}

func TestReconcileAddsMissingEntries(t *testing.T) {
	live := []string{"pf-b_live11"}
	bubbles := map[string]Bubble{
		"b_live11": {RepoPath: "/repo", WorktreePath: "/wt/b_live11", SessionWanted: true},
	}

	plan := Reconcile(nil, live, bubbles, "0.3.0")

	if len(plan.AddEntries) != 1 {
		t.Fatalf("AddEntries = %v, want one row", plan.AddEntries)
	}
	add := plan.AddEntries[0]
	if add.BubbleID != "b_live11" || add.TmuxSession != "pf-b_live11" {
		t.Errorf("AddEntries[0] = %+v", add)
	}
	if add.EngineVersion != "0.3.0" {
		t.Errorf("EngineVersion = %q", add.EngineVersion)
	}
	if kinds := planIssueKinds(plan); kinds[IssueMissingEntry] != 1 {
		t.Errorf("issues = %+v", plan.Issues)
	}
}

func TestReconcileVersionSkew(t *testing.T) {
	entries := []Entry{
		{BubbleID: "b_live11", TmuxSession: "pf-b_live11", EngineVersion: "0.1.0"},
		{BubbleID: "b_live22", TmuxSession: "pf-b_live22", EngineVersion: "1.2.0"},
	}
	live := []string{"pf-b_live11", "pf-b_live22"}
	bubbles := map[string]Bubble{
		"b_live11": {SessionWanted: true},
		"b_live22": {SessionWanted: true},
	}

	plan := Reconcile(entries, live, bubbles, "1.0.0")

	if len(plan.KillSessions) != 0 || len(plan.RemoveEntries) != 0 || len(plan.AddEntries) != 0 {
		t.Fatalf("healthy rows should not be repaired: %+v", plan)
	}
	kinds := planIssueKinds(plan)
	if kinds[IssueVersionSkew] != 1 {
		t.Errorf("issues = %+v, want one version skew (0.1.0 vs 1.0.0)", plan.Issues)
	}
}

func TestReconcileHealthyIsEmpty(t *testing.T) {
	entries := []Entry{
		{BubbleID: "b_live11", TmuxSession: "pf-b_live11", EngineVersion: "0.1.0"},
	}
	live := []string{"pf-b_live11"}
	bubbles := map[string]Bubble{
		"b_live11": {SessionWanted: true},
	}

	plan := Reconcile(entries, live, bubbles, "0.1.0")
	if !plan.Empty() {
		t.Errorf("healthy system produced plan %+v", plan)
	}
}
