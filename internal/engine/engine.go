// Package engine implements the bubble lifecycle: protocol handlers that
// append envelopes and advance state, plus the lifecycle commands composing
// them with git worktrees, tmux sessions, and the runtime registry.
//
// Every mutating operation follows one skeleton: resolve the bubble, take
// its file lock, read and validate the snapshot, replay a trailing
// transcript envelope if a previous run crashed between append and state
// write, validate the precondition, append envelope(s), CAS-write state,
// release. Read-only views skip the lock entirely.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pairflow/pairflow/internal/bubble"
	"github.com/pairflow/pairflow/internal/envelope"
	"github.com/pairflow/pairflow/internal/lockfile"
	"github.com/pairflow/pairflow/internal/logging"
	"github.com/pairflow/pairflow/internal/metrics"
	"github.com/pairflow/pairflow/internal/runtime"
	"github.com/pairflow/pairflow/internal/state"
	"github.com/pairflow/pairflow/internal/tmux"
	"github.com/pairflow/pairflow/internal/transcript"
	"github.com/pairflow/pairflow/internal/version"
	"github.com/pairflow/pairflow/internal/workspace"
)

// Sessions is the slice of the tmux driver the engine needs. tmux.Tmux
// implements it; tests substitute a fake.
type Sessions interface {
	Available() bool
	HasSession(ctx context.Context, name string) (bool, error)
	NewSession(ctx context.Context, name, workDir, command string) error
	SplitPane(ctx context.Context, session, workDir, command string) error
	KillSession(ctx context.Context, name string) error
	ListSessions(ctx context.Context) ([]string, error)
	SendLine(ctx context.Context, target, text string) error
	CapturePane(ctx context.Context, target string, lines int) (string, error)
	RespawnPane(ctx context.Context, target, command string) error
}

// Workspace is the slice of the worktree manager the engine needs.
// workspace.Manager implements it.
type Workspace interface {
	IsRepo(ctx context.Context) bool
	CurrentBranch(ctx context.Context) (string, error)
	Bootstrap(ctx context.Context, cfg *bubble.Config, worktree string) error
	Inspect(ctx context.Context, cfg *bubble.Config, worktree string) (workspace.ExternalWork, error)
	Teardown(ctx context.Context, cfg *bubble.Config, worktree string, force bool) error
	CommitAll(ctx context.Context, cfg *bubble.Config, worktree, message string) (string, error)
}

// Options configures an Engine. Zero fields get production defaults.
type Options struct {
	Workspace    Workspace
	Sessions     Sessions
	Registry     *runtime.Registry
	Metrics      *metrics.Emitter
	Logger       *slog.Logger
	Clock        func() time.Time
	LockTimeout  time.Duration
	AgentCommand func(agent string) string // pane launch command per agent
}

// Engine runs all bubble operations for one repository.
type Engine struct {
	repo         string
	ws           Workspace
	tm           Sessions
	reg          *runtime.Registry
	metrics      *metrics.Emitter
	log          *slog.Logger
	now          func() time.Time
	lockTimeout  time.Duration
	agentCommand func(string) string
}

// New builds an Engine for the repository at repoPath. The path is
// canonicalized so all processes agree on lock and state locations.
func New(repoPath string, opts Options) (*Engine, error) {
	resolved, err := filepath.EvalSymlinks(repoPath)
	if err != nil {
		return nil, &RepoResolutionError{Dir: repoPath, Err: err}
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return nil, &RepoResolutionError{Dir: repoPath, Err: err}
	}

	e := &Engine{
		repo:         abs,
		ws:           opts.Workspace,
		tm:           opts.Sessions,
		reg:          opts.Registry,
		metrics:      opts.Metrics,
		log:          opts.Logger,
		now:          opts.Clock,
		lockTimeout:  opts.LockTimeout,
		agentCommand: opts.AgentCommand,
	}
	if e.ws == nil {
		e.ws = workspace.NewManager(abs)
	}
	if e.tm == nil {
		e.tm = tmux.New()
	}
	if e.reg == nil {
		e.reg = runtime.NewRegistry(bubble.RuntimeSessionsFile(abs))
	}
	if e.log == nil {
		e.log = logging.Discard()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.lockTimeout <= 0 {
		e.lockTimeout = lockfile.DefaultTimeout
	}
	if e.agentCommand == nil {
		e.agentCommand = func(agent string) string { return agent }
	}
	return e, nil
}

// Repo returns the canonicalized repository root.
func (e *Engine) Repo() string { return e.repo }

// ResolveRepo finds the repository root containing dir.
func ResolveRepo(ctx context.Context, dir string) (string, error) {
	top, err := workspace.TopLevel(ctx, dir)
	if err != nil {
		return "", &RepoResolutionError{Dir: dir, Err: err}
	}
	return top, nil
}

// handle bundles everything a handler touches for one bubble. snap and fp
// are populated under the lock for mutating operations.
type handle struct {
	paths      bubble.Paths
	cfg        *bubble.Config
	store      *state.Store
	transcript *transcript.Log
	inbox      *transcript.Log
	snap       *state.Snapshot
	fp         string
}

func (h *handle) session() string { return bubble.SessionName(h.cfg.ID) }

// open loads a bubble's config and wires its file handles, without reading
// state or taking the lock.
func (e *Engine) open(id string) (*handle, error) {
	paths, err := bubble.Layout(e.repo, id)
	if err != nil {
		return nil, err
	}
	cfg, err := bubble.LoadConfig(paths.ConfigFile, id)
	if err != nil {
		return nil, err
	}
	return &handle{
		paths:      paths,
		cfg:        cfg,
		store:      &state.Store{Path: paths.StateFile},
		transcript: &transcript.Log{Path: paths.TranscriptFile},
		inbox:      &transcript.Log{Path: paths.InboxFile},
	}, nil
}

// withBubble runs fn holding the bubble lock, with a freshly read snapshot
// and any trailing envelope already replayed.
func (e *Engine) withBubble(ctx context.Context, id string, fn func(h *handle) error) error {
	h, err := e.open(id)
	if err != nil {
		return err
	}
	return lockfile.WithLock(ctx, h.paths.LockFile, e.lockTimeout, 0, func() error {
		snap, fp, err := h.store.Read()
		if err != nil {
			return err
		}
		h.snap, h.fp = snap, fp
		if err := e.replayTrailing(h); err != nil {
			return err
		}
		return fn(h)
	})
}

// replayTrailing re-applies the last transcript envelope when a previous
// process died between transcript append and state write. Applying an
// envelope the state already reflects is a no-op, so this runs on every
// locked operation.
func (e *Engine) replayTrailing(h *handle) error {
	last, err := h.transcript.Last()
	if err != nil {
		return err
	}
	if last == nil {
		return nil
	}
	work := h.snap.Clone()
	applied, err := applyEnvelope(work, last.Envelope, h.cfg)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	fp, err := h.store.Write(work, state.Guard{Fingerprint: h.fp})
	if err != nil {
		return err
	}
	e.log.Warn("recovered state from trailing envelope",
		"bubble", h.cfg.ID, "envelope", last.Envelope.ID, "type", last.Envelope.Type,
		"state", work.State)
	h.snap, h.fp = work, fp
	return nil
}

// commitState applies env to the handle's snapshot through the transition
// table and CAS-writes the result. Handlers validate preconditions first,
// so a non-applying envelope here is a bug.
func (e *Engine) commitState(h *handle, env envelope.Envelope, expect state.Lifecycle) error {
	work := h.snap.Clone()
	applied, err := applyEnvelope(work, env, h.cfg)
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("envelope %s (%s) had no state effect for bubble %s", env.ID, env.Type, h.cfg.ID)
	}
	fp, err := h.store.Write(work, state.Guard{Fingerprint: h.fp, ExpectedState: expect})
	if err != nil {
		return err
	}
	h.snap, h.fp = work, fp
	return nil
}

// writeState CAS-writes an already mutated snapshot (for transitions that
// have no driving envelope: start, abort, delete, commit's COMMITTED step).
func (h *handle) writeState(work *state.Snapshot, expect state.Lifecycle) error {
	fp, err := h.store.Write(work, state.Guard{Fingerprint: h.fp, ExpectedState: expect})
	if err != nil {
		return err
	}
	h.snap, h.fp = work, fp
	return nil
}

// ensureDirs creates the bubble directory tree for create.
func ensureDirs(paths bubble.Paths) error {
	for _, dir := range []string{paths.BubbleDir, paths.ArtifactsDir, paths.MessagesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating bubble directories: %w", err)
		}
	}
	return nil
}

func (e *Engine) emitMetric(event, bubbleID string, fields map[string]any) {
	if err := e.metrics.Emit(event, bubbleID, fields); err != nil {
		e.log.Warn("metrics emission failed", "event", event, "error", err)
	}
}

func (e *Engine) engineVersion() string { return version.Version }
