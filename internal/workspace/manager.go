package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pairflow/pairflow/internal/bubble"
)

// ExternalWork describes work sitting in a bubble worktree or on its branch
// that a teardown would destroy.
type ExternalWork struct {
	Modified     []string // tracked files with uncommitted changes
	Untracked    []string
	Stashes      int
	CommitsAhead int // commits on the bubble branch not reachable from base
}

// Busy reports whether any of the counted work exists.
func (w ExternalWork) Busy() bool {
	return len(w.Modified) > 0 || len(w.Untracked) > 0 || w.Stashes > 0 || w.CommitsAhead > 0
}

// Reasons renders each kind of pending work as a human-readable fragment.
func (w ExternalWork) Reasons() []string {
	var reasons []string
	if n := len(w.Modified); n > 0 {
		reasons = append(reasons, fmt.Sprintf("%d uncommitted file(s)", n))
	}
	if n := len(w.Untracked); n > 0 {
		reasons = append(reasons, fmt.Sprintf("%d untracked file(s)", n))
	}
	if w.Stashes > 0 {
		reasons = append(reasons, fmt.Sprintf("%d stash entr(ies)", w.Stashes))
	}
	if w.CommitsAhead > 0 {
		reasons = append(reasons, fmt.Sprintf("%d commit(s) not merged into the base branch", w.CommitsAhead))
	}
	return reasons
}

// BusyError is returned when a destructive operation would lose work and
// force was not given. Callers map it to exit code 2.
type BusyError struct {
	BubbleID string
	Reasons  []string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("bubble %s has unfinished work: %s (re-run with --force to discard)",
		e.BubbleID, strings.Join(e.Reasons, "; "))
}

// ErrNothingToCommit is returned by CommitAll when the worktree is clean and
// the bubble branch carries no commits beyond the base branch.
var ErrNothingToCommit = errors.New("nothing to commit")

// Manager bootstraps and tears down bubble worktrees. All branch and worktree
// bookkeeping runs against the main repository; file inspection runs inside
// the worktree itself.
type Manager struct {
	repo *Git
}

// NewManager returns a Manager rooted at the repository top level.
func NewManager(repoRoot string) *Manager {
	return &Manager{repo: NewGit(repoRoot)}
}

// IsRepo reports whether the managed root is inside a git repository.
func (m *Manager) IsRepo(ctx context.Context) bool {
	return m.repo.IsRepo(ctx)
}

// CurrentBranch returns the branch checked out in the main repository,
// which create uses as the default base branch.
func (m *Manager) CurrentBranch(ctx context.Context) (string, error) {
	return m.repo.CurrentBranch(ctx)
}

// Bootstrap makes the bubble branch and worktree exist, creating whichever is
// missing. It is idempotent and self-healing: stale worktree registrations
// are pruned, and a leftover directory git no longer tracks is removed before
// re-adding. The local overlay is (re)applied on every call.
func (m *Manager) Bootstrap(ctx context.Context, cfg *bubble.Config, worktree string) error {
	exists, err := m.repo.BranchExists(ctx, cfg.BubbleBranch)
	if err != nil {
		return err
	}
	if !exists {
		if err := m.repo.CreateBranchFrom(ctx, cfg.BubbleBranch, cfg.BaseBranch); err != nil {
			return fmt.Errorf("creating branch %s from %s: %w", cfg.BubbleBranch, cfg.BaseBranch, err)
		}
	}

	if err := m.repo.WorktreePrune(ctx); err != nil {
		return err
	}

	registered, err := m.worktreeFor(ctx, worktree)
	if err != nil {
		return err
	}
	if registered != nil {
		if registered.Branch != cfg.BubbleBranch {
			// The path is registered but checked out to something else.
			// That only happens after manual surgery; reclaim it.
			if err := m.repo.WorktreeRemove(ctx, worktree, true); err != nil {
				return err
			}
			registered = nil
		}
	}
	if registered == nil {
		// A directory git does not know about is a crash leftover.
		if _, err := os.Lstat(worktree); err == nil {
			if err := os.RemoveAll(worktree); err != nil {
				return fmt.Errorf("clearing stale worktree directory: %w", err)
			}
		}
		if err := os.MkdirAll(filepath.Dir(worktree), 0o755); err != nil {
			return fmt.Errorf("creating worktrees directory: %w", err)
		}
		if err := m.repo.WorktreeAdd(ctx, worktree, cfg.BubbleBranch); err != nil {
			return err
		}
	}

	return m.applyOverlay(cfg, worktree)
}

// Inspect reports the work currently sitting in the worktree and on the
// bubble branch. A missing worktree directory reports no work.
func (m *Manager) Inspect(ctx context.Context, cfg *bubble.Config, worktree string) (ExternalWork, error) {
	var work ExternalWork

	if _, err := os.Stat(worktree); err == nil {
		wt := NewGit(worktree)
		modified, untracked, err := wt.StatusPorcelain(ctx)
		if err != nil {
			return work, err
		}
		work.Modified = modified
		work.Untracked = untracked
		stashes, err := wt.StashCount(ctx)
		if err != nil {
			return work, err
		}
		work.Stashes = stashes
	}

	exists, err := m.repo.BranchExists(ctx, cfg.BubbleBranch)
	if err != nil {
		return work, err
	}
	if exists {
		ahead, err := m.repo.CountCommitsAhead(ctx, cfg.BaseBranch, cfg.BubbleBranch)
		if err != nil {
			return work, err
		}
		work.CommitsAhead = ahead
	}
	return work, nil
}

// Teardown removes the worktree and the bubble branch. Without force it
// refuses with BusyError when Inspect finds anything; with force it discards
// everything, falling back to plain directory removal if git refuses.
func (m *Manager) Teardown(ctx context.Context, cfg *bubble.Config, worktree string, force bool) error {
	if !force {
		work, err := m.Inspect(ctx, cfg, worktree)
		if err != nil {
			return err
		}
		if work.Busy() {
			return &BusyError{BubbleID: cfg.ID, Reasons: work.Reasons()}
		}
	}

	if _, err := os.Stat(worktree); err == nil {
		if err := m.repo.WorktreeRemove(ctx, worktree, force); err != nil {
			if !force {
				return err
			}
			if rmErr := os.RemoveAll(worktree); rmErr != nil {
				return fmt.Errorf("removing worktree directory: %w", rmErr)
			}
		}
	}
	if err := m.repo.WorktreePrune(ctx); err != nil {
		return err
	}

	exists, err := m.repo.BranchExists(ctx, cfg.BubbleBranch)
	if err != nil {
		return err
	}
	if exists {
		if err := m.repo.DeleteBranch(ctx, cfg.BubbleBranch, force); err != nil {
			return err
		}
	}
	return nil
}

// CommitAll stages and commits everything in the worktree and returns the
// resulting HEAD sha. When the worktree is already clean (the agents
// committed themselves) the current HEAD is returned, provided the branch
// actually carries commits beyond base; otherwise ErrNothingToCommit.
func (m *Manager) CommitAll(ctx context.Context, cfg *bubble.Config, worktree, message string) (string, error) {
	wt := NewGit(worktree)
	modified, untracked, err := wt.StatusPorcelain(ctx)
	if err != nil {
		return "", err
	}
	if len(modified) > 0 || len(untracked) > 0 {
		if err := wt.AddAll(ctx); err != nil {
			return "", err
		}
		if err := wt.Commit(ctx, message); err != nil {
			return "", err
		}
		return wt.HeadSHA(ctx)
	}

	ahead, err := m.repo.CountCommitsAhead(ctx, cfg.BaseBranch, cfg.BubbleBranch)
	if err != nil {
		return "", err
	}
	if ahead == 0 {
		return "", ErrNothingToCommit
	}
	return wt.HeadSHA(ctx)
}

// worktreeFor returns git's registration for path, or nil when git does not
// track a worktree there. Paths are compared through symlinks because macOS
// temp directories (and user setups) routinely alias them.
func (m *Manager) worktreeFor(ctx context.Context, path string) (*Worktree, error) {
	list, err := m.repo.WorktreeList(ctx)
	if err != nil {
		return nil, err
	}
	want := canonical(path)
	for i := range list {
		if canonical(list[i].Path) == want {
			return &list[i], nil
		}
	}
	return nil, nil
}

func canonical(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}

// applyOverlay mirrors configured repository files into the worktree, for
// things git does not carry (.env files, local caches). Missing sources are
// skipped; existing destinations are replaced so re-bootstrap converges.
func (m *Manager) applyOverlay(cfg *bubble.Config, worktree string) error {
	ov := cfg.LocalOverlay
	if !ov.Enabled {
		return nil
	}
	for _, entry := range ov.Entries {
		clean := filepath.Clean(entry)
		if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return fmt.Errorf("local overlay entry %q escapes the repository", entry)
		}
		src := filepath.Join(m.repo.WorkDir(), clean)
		if _, err := os.Lstat(src); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("local overlay entry %q: %w", entry, err)
		}
		dst := filepath.Join(worktree, clean)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("local overlay entry %q: %w", entry, err)
		}
		if _, err := os.Lstat(dst); err == nil {
			if err := os.RemoveAll(dst); err != nil {
				return fmt.Errorf("local overlay entry %q: %w", entry, err)
			}
		}
		var err error
		switch ov.Mode {
		case "copy":
			err = copyTree(src, dst)
		default: // symlink, enforced by config validation
			err = os.Symlink(src, dst)
		}
		if err != nil {
			return fmt.Errorf("local overlay entry %q: %w", entry, err)
		}
	}
	return nil
}

// copyTree copies a file or directory tree, preserving file modes and
// replicating symlinks by target.
func copyTree(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		return os.Symlink(target, dst)
	case info.IsDir():
		return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(src, path)
			if err != nil {
				return err
			}
			out := filepath.Join(dst, rel)
			if d.IsDir() {
				di, err := d.Info()
				if err != nil {
					return err
				}
				return os.MkdirAll(out, di.Mode().Perm())
			}
			if d.Type()&fs.ModeSymlink != 0 {
				target, err := os.Readlink(path)
				if err != nil {
					return err
				}
				return os.Symlink(target, out)
			}
			return copyFile(path, out)
		})
	default:
		return copyFile(src, dst)
	}
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
