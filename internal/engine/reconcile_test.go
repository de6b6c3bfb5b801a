package engine

import (
	"context"
	"testing"

	"github.com/pairflow/pairflow/internal/runtime"
)

func TestReconcileKillsOrphansAndPrunesRows(t *testing.T) {
	ctx := context.Background()
	eng, tm, _ := newTestEngine(t)
	mustCreate(t, eng, "b_aa")
	mustStart(t, eng, "b_aa")

	// An orphan session with no bubble behind it, and a registry row whose
	// bubble is gone.
	tm.addSession("pf-b_zz")
	if err := eng.reg.Register(runtime.Entry{
		BubbleID: "b_gone", RepoPath: eng.Repo(), TmuxSession: "pf-b_gone", EngineVersion: "0.1.0",
	}); err != nil {
		t.Fatal(err)
	}

	plan, err := eng.Reconcile(ctx, true)
	if err != nil {
		t.Fatalf("Reconcile dry run: %v", err)
	}
	if len(plan.KillSessions) != 1 || plan.KillSessions[0] != "pf-b_zz" {
		t.Fatalf("kill plan = %v", plan.KillSessions)
	}
	if len(plan.RemoveEntries) != 1 || plan.RemoveEntries[0] != "b_gone" {
		t.Fatalf("remove plan = %v", plan.RemoveEntries)
	}
	// Dry run changes nothing.
	if alive, _ := tm.HasSession(ctx, "pf-b_zz"); !alive {
		t.Fatal("dry run killed a session")
	}
	if _, ok, _ := eng.reg.Get("b_gone"); !ok {
		t.Fatal("dry run removed a registry row")
	}

	if _, err := eng.Reconcile(ctx, false); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if alive, _ := tm.HasSession(ctx, "pf-b_zz"); alive {
		t.Fatal("orphan session survived")
	}
	if _, ok, _ := eng.reg.Get("b_gone"); ok {
		t.Fatal("stale row survived")
	}
	if _, ok, _ := eng.reg.Get("b_aa"); !ok {
		t.Fatal("healthy row was removed")
	}
	if alive, _ := tm.HasSession(ctx, "pf-b_aa"); !alive {
		t.Fatal("healthy session was killed")
	}
}

func TestReconcileRestoresMissingRow(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t)
	mustCreate(t, eng, "b_aa")
	mustStart(t, eng, "b_aa")

	if err := eng.reg.Unregister("b_aa"); err != nil {
		t.Fatal(err)
	}
	plan, err := eng.Reconcile(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.AddEntries) != 1 || plan.AddEntries[0].BubbleID != "b_aa" {
		t.Fatalf("add plan = %+v", plan.AddEntries)
	}
	row, ok, _ := eng.reg.Get("b_aa")
	if !ok || row.TmuxSession != "pf-b_aa" {
		t.Fatalf("row not restored: ok=%v row=%+v", ok, row)
	}
}

func TestReconcileDropsRowForDeadSession(t *testing.T) {
	ctx := context.Background()
	eng, tm, _ := newTestEngine(t)
	mustCreate(t, eng, "b_aa")
	mustStart(t, eng, "b_aa")

	// Reboot: tmux lost every session, the registry remembers it.
	tm.dropSession("pf-b_aa")

	plan, err := eng.Reconcile(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.RemoveEntries) != 1 || plan.RemoveEntries[0] != "b_aa" {
		t.Fatalf("remove plan = %v", plan.RemoveEntries)
	}
	foundDead := false
	for _, issue := range plan.Issues {
		if issue.Kind == runtime.IssueDeadSession && issue.BubbleID == "b_aa" {
			foundDead = true
		}
	}
	if !foundDead {
		t.Fatalf("issues = %+v, want dead-session for b_aa", plan.Issues)
	}
	// On-disk state is the source of truth: the bubble itself stays RUNNING
	// and can be revived with resume.
	if view := statusOf(t, eng, "b_aa"); view.State != "RUNNING" {
		t.Fatalf("state = %s", view.State)
	}
}

func TestReconcileHealthyIsEmpty(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t)
	mustCreate(t, eng, "b_aa")
	mustStart(t, eng, "b_aa")

	plan, err := eng.Reconcile(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if !plan.Empty() {
		t.Fatalf("plan = %+v, want empty", plan)
	}
}
