package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pairflow/pairflow/internal/bubble"
	"github.com/pairflow/pairflow/internal/envelope"
	"github.com/pairflow/pairflow/internal/lockfile"
	"github.com/pairflow/pairflow/internal/metrics"
	"github.com/pairflow/pairflow/internal/runtime"
	"github.com/pairflow/pairflow/internal/state"
	"github.com/pairflow/pairflow/internal/tmux"
	"github.com/pairflow/pairflow/internal/transcript"
	"github.com/pairflow/pairflow/internal/workspace"
)

// CreateOptions parameterizes bubble creation. Zero fields inherit the
// bubble config defaults.
type CreateOptions struct {
	ID         string // generated when empty
	BaseBranch string // defaults to the repository's current branch
	Task       string // required task brief, stored as artifacts/task.md
	Title      string // one-line summary; defaults to the task's first line

	Implementer string
	Reviewer    string

	MaxRounds              int
	WatchdogTimeoutMinutes int
	CommitRequiresApproval *bool
	Commands               map[string]string
	LocalOverlay           *bubble.LocalOverlay
}

// Create materializes a new bubble: directory tree, immutable config, task
// brief, initial snapshot, and the opening TASK envelope. The bubble is
// inert until Start.
func (e *Engine) Create(ctx context.Context, opts CreateOptions) (*OpResult, error) {
	task := strings.TrimSpace(opts.Task)
	if task == "" {
		return nil, fmt.Errorf("a task brief is required (--task or --task-file)")
	}
	// With an explicit base branch creation never touches git, so check
	// here rather than littering a non-repo directory with state.
	if !e.ws.IsRepo(ctx) {
		return nil, &RepoResolutionError{Dir: e.repo, Err: errors.New("no git repository found")}
	}

	id := opts.ID
	if id == "" {
		id = bubble.NewID()
	}
	paths, err := bubble.Layout(e.repo, id)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(paths.ConfigFile); err == nil {
		return nil, &bubble.AlreadyExistsError{ID: id}
	}

	base := opts.BaseBranch
	if base == "" {
		base, err = e.ws.CurrentBranch(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolving base branch: %w", err)
		}
	}

	cfg := bubble.DefaultConfig(id, e.repo, base)
	if opts.Implementer != "" {
		cfg.Agents.Implementer = opts.Implementer
	}
	if opts.Reviewer != "" {
		cfg.Agents.Reviewer = opts.Reviewer
	}
	if opts.MaxRounds > 0 {
		cfg.MaxRounds = opts.MaxRounds
	}
	if opts.WatchdogTimeoutMinutes > 0 {
		cfg.WatchdogTimeoutMinutes = opts.WatchdogTimeoutMinutes
	}
	if opts.CommitRequiresApproval != nil {
		cfg.CommitRequiresApproval = *opts.CommitRequiresApproval
	}
	for name, cmd := range opts.Commands {
		cfg.Commands[name] = cmd
	}
	if opts.LocalOverlay != nil {
		cfg.LocalOverlay = *opts.LocalOverlay
	}

	if err := ensureDirs(paths); err != nil {
		return nil, err
	}

	title := opts.Title
	if title == "" {
		title = taskTitle(task)
	}

	var res *OpResult
	err = lockfile.WithLock(ctx, paths.LockFile, e.lockTimeout, 0, func() error {
		if err := cfg.WriteFile(paths.ConfigFile); err != nil {
			if errors.Is(err, os.ErrExist) {
				return &bubble.AlreadyExistsError{ID: id}
			}
			return err
		}
		if err := os.WriteFile(paths.TaskFile, []byte(task+"\n"), 0o644); err != nil {
			return fmt.Errorf("writing task brief: %w", err)
		}

		store := &state.Store{Path: paths.StateFile}
		snap := state.NewSnapshot(id)
		if _, err := store.Create(snap); err != nil {
			return err
		}

		log := &transcript.Log{Path: paths.TranscriptFile}
		env := envelope.New(id, envelope.TypeTask,
			envelope.PartyOrchestrator, envelope.Party(cfg.Agents.Implementer), 0,
			envelope.Payload{Summary: title},
			[]string{envelope.ArtifactRef("task.md")}, e.now())
		seq, err := log.Append(env)
		if err != nil {
			return err
		}
		res = &OpResult{Envelope: env, Seq: seq, Snapshot: snap}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.emitMetric(metrics.EventBubbleCreated, id, map[string]any{
		"base":        base,
		"implementer": cfg.Agents.Implementer,
		"reviewer":    cfg.Agents.Reviewer,
	})
	return res, nil
}

// Start takes a created bubble through workspace preparation into round 1:
// branch and worktree, tmux session with both agent panes, registry row,
// and the implementer holding the turn. Re-runnable after a failed attempt
// left the bubble in PREPARING_WORKSPACE.
func (e *Engine) Start(ctx context.Context, id string) (*OpResult, error) {
	if !e.tm.Available() {
		return nil, fmt.Errorf("tmux not found on PATH; bubbles host their agents in tmux panes")
	}
	var res *OpResult
	err := e.withBubble(ctx, id, func(h *handle) error {
		if err := h.requireState("start", state.Created, state.PreparingWorkspace); err != nil {
			return err
		}

		if h.snap.State == state.Created {
			work := h.snap.Clone()
			work.State = state.PreparingWorkspace
			work.Touch(e.now())
			if err := h.writeState(work, state.Created); err != nil {
				return err
			}
		}

		if err := e.ws.Bootstrap(ctx, h.cfg, h.paths.WorktreePath); err != nil {
			return fmt.Errorf("preparing workspace for %s: %w", id, err)
		}
		if err := e.startSession(ctx, h); err != nil {
			return fmt.Errorf("starting session for %s: %w", id, err)
		}

		now := e.now()
		work := h.snap.Clone()
		work.State = state.Running
		work.Round = 1
		work.SetActive(h.cfg.Agents.Implementer, state.RoleImplementer, now)
		work.RoundRoleHistory = append(work.RoundRoleHistory, state.RoleHistoryEntry{
			Round:       1,
			Implementer: h.cfg.Agents.Implementer,
			Reviewer:    h.cfg.Agents.Reviewer,
			SwitchedAt:  state.FormatTime(now),
		})
		work.Touch(now)
		if err := h.writeState(work, state.PreparingWorkspace); err != nil {
			return err
		}

		e.emitMetric(metrics.EventBubbleStarted, id, map[string]any{
			"branch":  h.cfg.BubbleBranch,
			"session": h.session(),
		})
		res = &OpResult{Snapshot: h.snap}
		return nil
	})
	return res, err
}

// startSession builds the bubble's pane pair from scratch, replacing any
// stale session carrying the same name, and registers the session.
func (e *Engine) startSession(ctx context.Context, h *handle) error {
	name := h.session()
	alive, err := e.tm.HasSession(ctx, name)
	if err != nil {
		return err
	}
	if alive {
		if err := e.tm.KillSession(ctx, name); err != nil {
			return err
		}
	}
	if err := e.tm.NewSession(ctx, name, h.paths.WorktreePath, e.agentCommand(h.cfg.Agents.Implementer)); err != nil {
		return err
	}
	if err := e.tm.SplitPane(ctx, name, h.paths.WorktreePath, e.agentCommand(h.cfg.Agents.Reviewer)); err != nil {
		return err
	}
	// Briefings go through the pty and are read when each agent starts
	// accepting input, so no readiness handshake is needed.
	if err := e.tm.SendLine(ctx, tmux.Target(name, tmux.PaneImplementer), startBriefing(h.cfg, h.paths, state.RoleImplementer)); err != nil {
		return err
	}
	if err := e.tm.SendLine(ctx, tmux.Target(name, tmux.PaneReviewer), startBriefing(h.cfg, h.paths, state.RoleReviewer)); err != nil {
		return err
	}
	return e.reg.Register(runtime.Entry{
		BubbleID:      h.cfg.ID,
		RepoPath:      e.repo,
		WorktreePath:  h.paths.WorktreePath,
		TmuxSession:   name,
		EngineVersion: e.engineVersion(),
	})
}

// ensureSession revives the bubble's session when it has died. Best effort.
func (e *Engine) ensureSession(ctx context.Context, h *handle) {
	alive, err := e.tm.HasSession(ctx, h.session())
	if err != nil {
		e.log.Warn("session probe failed", "bubble", h.cfg.ID, "error", err)
		return
	}
	if alive {
		return
	}
	if err := e.startSession(ctx, h); err != nil {
		e.log.Warn("session revival failed", "bubble", h.cfg.ID, "error", err)
	}
}

// Abort force-fails a bubble that is still in flight. The worktree and
// branch survive for post-mortem; delete removes them.
func (e *Engine) Abort(ctx context.Context, id, reason string) (*OpResult, error) {
	var res *OpResult
	err := e.withBubble(ctx, id, func(h *handle) error {
		if h.snap.State.Terminal() {
			return fmt.Errorf("bubble %s is already %s; abort applies to bubbles still in flight", id, h.snap.State)
		}
		work := h.snap.Clone()
		work.State = state.Failed
		work.ClearActive()
		work.Touch(e.now())
		if err := h.writeState(work, h.snap.State); err != nil {
			return err
		}

		e.dropSession(ctx, h)
		e.emitMetric(metrics.EventBubbleAborted, id, map[string]any{"reason": reason})
		res = &OpResult{Snapshot: h.snap}
		return nil
	})
	return res, err
}

// CommitOptions parameterizes the final commit.
type CommitOptions struct {
	Message       string // defaults to the task title
	IfFingerprint string
}

// Commit stages and commits everything in the worktree, then closes the
// bubble with a DONE_PACKAGE. Re-runnable from COMMITTED when a previous
// run died before the done package landed.
func (e *Engine) Commit(ctx context.Context, id string, opts CommitOptions) (*OpResult, error) {
	var res *OpResult
	err := e.withBubble(ctx, id, func(h *handle) error {
		if err := h.checkFingerprint(opts.IfFingerprint); err != nil {
			return err
		}
		if err := h.requireState("commit", state.ApprovedForCommit, state.Committed); err != nil {
			return err
		}

		message := opts.Message
		if message == "" {
			message = defaultCommitMessage(h)
		}

		sha, err := e.ws.CommitAll(ctx, h.cfg, h.paths.WorktreePath, message)
		if err != nil {
			if errors.Is(err, workspace.ErrNothingToCommit) {
				return fmt.Errorf("bubble %s: %w", id, err)
			}
			return err
		}

		if h.snap.State == state.ApprovedForCommit {
			work := h.snap.Clone()
			work.State = state.Committed
			work.Touch(e.now())
			if err := h.writeState(work, state.ApprovedForCommit); err != nil {
				return err
			}
		}

		env := envelope.New(h.cfg.ID, envelope.TypeDonePackage,
			envelope.PartyOrchestrator, envelope.PartyHuman, h.snap.Round,
			envelope.Payload{
				Summary: message,
				Metadata: map[string]any{
					"commit_sha":  sha,
					"branch":      h.cfg.BubbleBranch,
					"base_branch": h.cfg.BaseBranch,
				},
			}, nil, e.now())
		seq, err := h.transcript.Append(env)
		if err != nil {
			return err
		}
		if err := e.commitState(h, env, state.Committed); err != nil {
			return err
		}

		e.dropSession(ctx, h)
		e.emitMetric(metrics.EventCommitted, id, map[string]any{"sha": sha, "branch": h.cfg.BubbleBranch})
		e.emitMetric(metrics.EventBubbleDone, id, map[string]any{"rounds": h.snap.Round})
		res = &OpResult{Envelope: env, Seq: seq, Snapshot: h.snap, CommitSHA: sha}
		return nil
	})
	return res, err
}

func defaultCommitMessage(h *handle) string {
	title := ""
	if data, err := os.ReadFile(h.paths.TaskFile); err == nil {
		title = taskTitle(string(data))
	}
	if title == "" {
		title = "bubble " + h.cfg.ID
	}
	return fmt.Sprintf("%s (%s)", title, h.cfg.ID)
}

// taskTitle extracts the first non-empty line of a task brief, stripped of
// markdown heading markers.
func taskTitle(task string) string {
	for _, line := range strings.Split(task, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
		if line != "" {
			return line
		}
	}
	return ""
}

// Delete removes every trace of a bubble: session, worktree, branch, and
// state directory. Without force it refuses when anything of value would
// be lost; the returned BusyError lists the reasons.
func (e *Engine) Delete(ctx context.Context, id string, force bool) error {
	h, err := e.open(id)
	if err != nil {
		var nf *bubble.NotFoundError
		if !errors.As(err, &nf) {
			return err
		}
		paths, perr := bubble.Layout(e.repo, id)
		if perr != nil {
			return perr
		}
		if _, serr := os.Stat(paths.BubbleDir); serr != nil {
			return err
		}
		// Config never made it to disk, so nothing beyond the directory
		// can exist. Sweep it.
		if rerr := os.RemoveAll(paths.BubbleDir); rerr != nil {
			return fmt.Errorf("removing bubble directory: %w", rerr)
		}
		_ = e.reg.Unregister(id)
		return nil
	}

	err = lockfile.WithLock(ctx, h.paths.LockFile, e.lockTimeout, 0, func() error {
		snap, fp, rerr := h.store.Read()
		if rerr == nil {
			h.snap, h.fp = snap, fp
		} else if !force {
			return fmt.Errorf("%w (re-run with --force to delete anyway)", rerr)
		}

		if !force {
			var reasons []string
			if alive, aerr := e.tm.HasSession(ctx, h.session()); aerr == nil && alive {
				reasons = append(reasons, fmt.Sprintf("tmux session %s is still running", h.session()))
			}
			work, werr := e.ws.Inspect(ctx, h.cfg, h.paths.WorktreePath)
			if werr != nil {
				return werr
			}
			reasons = append(reasons, work.Reasons()...)
			if len(reasons) > 0 {
				return &workspace.BusyError{BubbleID: h.cfg.ID, Reasons: reasons}
			}
		}

		if h.snap != nil && !h.snap.State.Terminal() {
			work := h.snap.Clone()
			work.State = state.Cancelled
			work.ClearActive()
			work.Touch(e.now())
			if err := h.writeState(work, h.snap.State); err != nil {
				return err
			}
		}

		if err := e.tm.KillSession(ctx, h.session()); err != nil {
			e.log.Warn("session kill failed", "bubble", id, "error", err)
		}
		if err := e.ws.Teardown(ctx, h.cfg, h.paths.WorktreePath, true); err != nil {
			return err
		}
		if err := e.reg.Unregister(id); err != nil {
			e.log.Warn("registry unregister failed", "bubble", id, "error", err)
		}
		if err := os.RemoveAll(h.paths.BubbleDir); err != nil {
			return fmt.Errorf("removing bubble directory: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.emitMetric(metrics.EventBubbleDeleted, id, map[string]any{"force": force})
	return nil
}

// Open returns the tmux session name to attach for a bubble, verifying the
// session is live first.
func (e *Engine) Open(ctx context.Context, id string) (string, error) {
	h, err := e.open(id)
	if err != nil {
		return "", err
	}
	alive, err := e.tm.HasSession(ctx, h.session())
	if err != nil {
		return "", err
	}
	if !alive {
		return "", fmt.Errorf("bubble %s has no live session (run \"pairflow bubble start %s\" or \"pairflow bubble resume %s\")", id, id, id)
	}
	if err := e.reg.Touch(id); err != nil {
		e.log.Warn("registry touch failed", "bubble", id, "error", err)
	}
	return h.session(), nil
}
