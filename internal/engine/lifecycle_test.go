package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pairflow/pairflow/internal/bubble"
	"github.com/pairflow/pairflow/internal/envelope"
	"github.com/pairflow/pairflow/internal/state"
	"github.com/pairflow/pairflow/internal/workspace"
)

const testTask = "# Add healthz endpoint\n\nExpose GET /healthz returning 200 with build info."

func mustCreate(t *testing.T, eng *Engine, id string) *OpResult {
	t.Helper()
	res, err := eng.Create(context.Background(), CreateOptions{
		ID:         id,
		BaseBranch: "main",
		Task:       testTask,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return res
}

func mustStart(t *testing.T, eng *Engine, id string) *OpResult {
	t.Helper()
	res, err := eng.Start(context.Background(), id)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return res
}

func statusOf(t *testing.T, eng *Engine, id string) *StatusView {
	t.Helper()
	view, err := eng.Status(context.Background(), id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	return view
}

func TestCreateInitializesBubble(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	res := mustCreate(t, eng, "b_01")
	if res.Snapshot.State != state.Created {
		t.Fatalf("state = %s, want CREATED", res.Snapshot.State)
	}
	if res.Envelope.Type != envelope.TypeTask {
		t.Fatalf("first envelope = %s, want TASK", res.Envelope.Type)
	}
	if res.Envelope.Round != 0 {
		t.Fatalf("TASK round = %d, want 0", res.Envelope.Round)
	}
	if res.Envelope.Payload.Summary != "Add healthz endpoint" {
		t.Fatalf("TASK summary = %q", res.Envelope.Payload.Summary)
	}

	paths, err := bubble.Layout(eng.Repo(), "b_01")
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{paths.ConfigFile, paths.StateFile, paths.TranscriptFile, paths.TaskFile} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing %s after create", filepath.Base(p))
		}
	}
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	mustCreate(t, eng, "b_01")

	_, err := eng.Create(context.Background(), CreateOptions{ID: "b_01", BaseBranch: "main", Task: testTask})
	var exists *bubble.AlreadyExistsError
	if !errors.As(err, &exists) {
		t.Fatalf("err = %v, want AlreadyExistsError", err)
	}
}

func TestCreateRequiresTask(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	if _, err := eng.Create(context.Background(), CreateOptions{ID: "b_01", BaseBranch: "main"}); err == nil {
		t.Fatal("expected error for missing task brief")
	}
}

func TestCreateOutsideRepo(t *testing.T) {
	eng, _, ws := newTestEngine(t)
	ws.notRepo = true

	_, err := eng.Create(context.Background(), CreateOptions{ID: "b_01", BaseBranch: "main", Task: testTask})
	var repoErr *RepoResolutionError
	if !errors.As(err, &repoErr) {
		t.Fatalf("err = %v, want RepoResolutionError", err)
	}
	if _, err := os.Stat(filepath.Join(eng.Repo(), ".pairflow")); !os.IsNotExist(err) {
		t.Fatal("refused create must not scaffold state")
	}
}

func TestCreateDefaultsBaseToCurrentBranch(t *testing.T) {
	eng, _, ws := newTestEngine(t)
	ws.branch = "develop"

	if _, err := eng.Create(context.Background(), CreateOptions{ID: "b_02", Task: testTask}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	view := statusOf(t, eng, "b_02")
	if view.BaseBranch != "develop" {
		t.Fatalf("base branch = %q, want develop", view.BaseBranch)
	}
}

func TestStartBringsBubbleToRoundOne(t *testing.T) {
	eng, tm, ws := newTestEngine(t)
	mustCreate(t, eng, "b_01")
	res := mustStart(t, eng, "b_01")

	snap := res.Snapshot
	if snap.State != state.Running {
		t.Fatalf("state = %s, want RUNNING", snap.State)
	}
	if snap.Round != 1 {
		t.Fatalf("round = %d, want 1", snap.Round)
	}
	if snap.ActiveAgent == nil || *snap.ActiveAgent != "codex" {
		t.Fatalf("active agent = %v, want codex", snap.ActiveAgent)
	}
	if snap.ActiveRole == nil || *snap.ActiveRole != state.RoleImplementer {
		t.Fatalf("active role = %v, want implementer", snap.ActiveRole)
	}
	if len(snap.RoundRoleHistory) != 1 {
		t.Fatalf("history length = %d, want 1", len(snap.RoundRoleHistory))
	}
	entry := snap.RoundRoleHistory[0]
	if entry.Round != 1 || entry.Implementer != "codex" || entry.Reviewer != "claude" {
		t.Fatalf("history entry = %+v", entry)
	}

	if alive, _ := tm.HasSession(context.Background(), "pf-b_01"); !alive {
		t.Fatal("session pf-b_01 not created")
	}
	if len(ws.bootstraps) != 1 {
		t.Fatalf("bootstraps = %d, want 1", len(ws.bootstraps))
	}
	if got := tm.linesFor("pf-b_01:0.0"); len(got) != 1 {
		t.Fatalf("implementer briefings = %d, want 1", len(got))
	}
	if got := tm.linesFor("pf-b_01:0.1"); len(got) != 1 {
		t.Fatalf("reviewer briefings = %d, want 1", len(got))
	}

	row, ok, err := eng.reg.Get("b_01")
	if err != nil || !ok {
		t.Fatalf("registry row missing: ok=%v err=%v", ok, err)
	}
	if row.TmuxSession != "pf-b_01" {
		t.Fatalf("registry session = %q", row.TmuxSession)
	}
}

func TestStartRejectsRunningBubble(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	mustCreate(t, eng, "b_01")
	mustStart(t, eng, "b_01")

	_, err := eng.Start(context.Background(), "b_01")
	var invalid *InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidStateError", err)
	}
}

func TestStartWithoutTmux(t *testing.T) {
	eng, tm, _ := newTestEngine(t)
	mustCreate(t, eng, "b_01")
	tm.unavailable = true

	_, err := eng.Start(context.Background(), "b_01")
	if err == nil || !strings.Contains(err.Error(), "tmux") {
		t.Fatalf("err = %v, want a missing-tmux error", err)
	}
	if got := statusOf(t, eng, "b_01").State; got != state.Created {
		t.Fatalf("state = %s, want CREATED untouched", got)
	}
}

// The full happy path: create, start, one pass, convergence, approval,
// commit. Exactly six envelopes end up in the transcript.
func TestGoldenFlow(t *testing.T) {
	ctx := context.Background()
	eng, tm, ws := newTestEngine(t)
	mustCreate(t, eng, "b_01")
	mustStart(t, eng, "b_01")

	if _, err := eng.Pass(ctx, "b_01", PassOptions{
		Agent: "codex", Intent: envelope.IntentReview, Summary: "implemented /healthz",
	}); err != nil {
		t.Fatalf("Pass: %v", err)
	}
	view := statusOf(t, eng, "b_01")
	if view.State != state.Running || view.ActiveAgent == nil || *view.ActiveAgent != "claude" {
		t.Fatalf("after pass: state=%s active=%v", view.State, view.ActiveAgent)
	}

	if _, err := eng.Converged(ctx, "b_01", ConvergedOptions{
		Agent: "claude", Summary: "looks correct, tests pass",
	}); err != nil {
		t.Fatalf("Converged: %v", err)
	}
	view = statusOf(t, eng, "b_01")
	if view.State != state.ReadyForApproval {
		t.Fatalf("after converged: state=%s, want READY_FOR_APPROVAL", view.State)
	}
	if view.Pending.ApprovalRequests != 1 {
		t.Fatalf("pending approval requests = %d, want 1", view.Pending.ApprovalRequests)
	}

	if _, err := eng.ApprovalDecision(ctx, "b_01", ApprovalDecisionOptions{
		Decision: envelope.DecisionApprove,
	}); err != nil {
		t.Fatalf("ApprovalDecision: %v", err)
	}
	view = statusOf(t, eng, "b_01")
	if view.State != state.ApprovedForCommit {
		t.Fatalf("after approve: state=%s", view.State)
	}
	if view.Pending.ApprovalRequests != 0 {
		t.Fatalf("approval request not resolved")
	}

	res, err := eng.Commit(ctx, "b_01", CommitOptions{})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if res.CommitSHA != ws.sha {
		t.Fatalf("commit sha = %q, want %q", res.CommitSHA, ws.sha)
	}
	if res.Snapshot.State != state.Done {
		t.Fatalf("final state = %s, want DONE", res.Snapshot.State)
	}
	if res.Envelope.Type != envelope.TypeDonePackage {
		t.Fatalf("final envelope = %s", res.Envelope.Type)
	}
	if res.Envelope.Payload.Metadata["commit_sha"] != ws.sha {
		t.Fatalf("done package metadata = %v", res.Envelope.Payload.Metadata)
	}

	entries, err := eng.Transcript(ctx, "b_01")
	if err != nil {
		t.Fatal(err)
	}
	wantTypes := []envelope.Type{
		envelope.TypeTask, envelope.TypePass, envelope.TypeConvergence,
		envelope.TypeApprovalRequest, envelope.TypeApprovalDecision, envelope.TypeDonePackage,
	}
	if len(entries) != len(wantTypes) {
		t.Fatalf("transcript length = %d, want %d", len(entries), len(wantTypes))
	}
	for i, want := range wantTypes {
		if entries[i].Envelope.Type != want {
			t.Errorf("envelope %d = %s, want %s", i, entries[i].Envelope.Type, want)
		}
	}

	if alive, _ := tm.HasSession(ctx, "pf-b_01"); alive {
		t.Fatal("session survived commit")
	}
	if _, ok, _ := eng.reg.Get("b_01"); ok {
		t.Fatal("registry row survived commit")
	}
}

func TestConvergedSkipsApprovalWhenDisabled(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t)

	off := false
	if _, err := eng.Create(ctx, CreateOptions{
		ID: "b_01", BaseBranch: "main", Task: testTask,
		CommitRequiresApproval: &off,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	mustStart(t, eng, "b_01")
	if _, err := eng.Pass(ctx, "b_01", PassOptions{Agent: "codex", Intent: envelope.IntentReview, Summary: "done"}); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Converged(ctx, "b_01", ConvergedOptions{Agent: "claude", Summary: "ship it"}); err != nil {
		t.Fatal(err)
	}

	view := statusOf(t, eng, "b_01")
	if view.State != state.ApprovedForCommit {
		t.Fatalf("state = %s, want APPROVED_FOR_COMMIT", view.State)
	}
	if view.Pending.ApprovalRequests != 0 {
		t.Fatal("approval request filed despite approval being disabled")
	}
}

func TestCommitNothingToCommit(t *testing.T) {
	ctx := context.Background()
	eng, _, ws := newTestEngine(t)
	mustCreate(t, eng, "b_01")
	mustStart(t, eng, "b_01")
	if _, err := eng.Pass(ctx, "b_01", PassOptions{Agent: "codex", Intent: envelope.IntentReview, Summary: "done"}); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Converged(ctx, "b_01", ConvergedOptions{Agent: "claude", Summary: "ok"}); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.ApprovalDecision(ctx, "b_01", ApprovalDecisionOptions{Decision: envelope.DecisionApprove}); err != nil {
		t.Fatal(err)
	}

	ws.commitErr = workspace.ErrNothingToCommit
	_, err := eng.Commit(ctx, "b_01", CommitOptions{})
	if !errors.Is(err, workspace.ErrNothingToCommit) {
		t.Fatalf("err = %v, want ErrNothingToCommit", err)
	}
	if view := statusOf(t, eng, "b_01"); view.State != state.ApprovedForCommit {
		t.Fatalf("state = %s, want APPROVED_FOR_COMMIT unchanged", view.State)
	}
}

func TestAbortFailsBubble(t *testing.T) {
	ctx := context.Background()
	eng, tm, _ := newTestEngine(t)
	mustCreate(t, eng, "b_01")
	mustStart(t, eng, "b_01")

	res, err := eng.Abort(ctx, "b_01", "stuck in a loop")
	if err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if res.Snapshot.State != state.Failed {
		t.Fatalf("state = %s, want FAILED", res.Snapshot.State)
	}
	if res.Snapshot.ActiveAgent != nil {
		t.Fatal("active agent survived abort")
	}
	if alive, _ := tm.HasSession(ctx, "pf-b_01"); alive {
		t.Fatal("session survived abort")
	}
	if _, err := eng.Abort(ctx, "b_01", "again"); err == nil {
		t.Fatal("abort on terminal bubble should fail")
	}
}

func TestDeleteRefusesBusyBubble(t *testing.T) {
	ctx := context.Background()
	eng, _, ws := newTestEngine(t)
	mustCreate(t, eng, "b_01")
	mustStart(t, eng, "b_01")
	ws.work = workspace.ExternalWork{Modified: []string{"main.go"}}

	err := eng.Delete(ctx, "b_01", false)
	var busy *workspace.BusyError
	if !errors.As(err, &busy) {
		t.Fatalf("err = %v, want BusyError", err)
	}
	// Live session plus dirty worktree: two distinct reasons.
	if len(busy.Reasons) != 2 {
		t.Fatalf("reasons = %v, want 2", busy.Reasons)
	}
}

func TestDeleteForceRemovesEverything(t *testing.T) {
	ctx := context.Background()
	eng, tm, ws := newTestEngine(t)
	mustCreate(t, eng, "b_01")
	mustStart(t, eng, "b_01")
	ws.work = workspace.ExternalWork{Modified: []string{"main.go"}}

	if err := eng.Delete(ctx, "b_01", true); err != nil {
		t.Fatalf("Delete --force: %v", err)
	}
	paths, _ := bubble.Layout(eng.Repo(), "b_01")
	if _, err := os.Stat(paths.BubbleDir); !os.IsNotExist(err) {
		t.Fatal("bubble directory survived delete")
	}
	if alive, _ := tm.HasSession(ctx, "pf-b_01"); alive {
		t.Fatal("session survived delete")
	}
	if ws.teardowns != 1 {
		t.Fatalf("teardowns = %d, want 1", ws.teardowns)
	}
	if _, ok, _ := eng.reg.Get("b_01"); ok {
		t.Fatal("registry row survived delete")
	}
}

func TestDeleteCleanBubble(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t)
	mustCreate(t, eng, "b_01")

	// Never started: no session, no worktree changes.
	if err := eng.Delete(ctx, "b_01", false); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, err := eng.Status(ctx, "b_01")
	var notFound *bubble.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("status after delete = %v, want NotFoundError", err)
	}
}

func TestDeleteMissingBubble(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	err := eng.Delete(context.Background(), "b_nope", false)
	var notFound *bubble.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

func TestOpenRequiresLiveSession(t *testing.T) {
	ctx := context.Background()
	eng, tm, _ := newTestEngine(t)
	mustCreate(t, eng, "b_01")

	if _, err := eng.Open(ctx, "b_01"); err == nil {
		t.Fatal("open before start should fail")
	}

	mustStart(t, eng, "b_01")
	session, err := eng.Open(ctx, "b_01")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if session != "pf-b_01" {
		t.Fatalf("session = %q", session)
	}

	tm.dropSession("pf-b_01")
	if _, err := eng.Open(ctx, "b_01"); err == nil {
		t.Fatal("open with dead session should fail")
	}
}
