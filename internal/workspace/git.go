// Package workspace manages bubble working copies: one git worktree on one
// bubble branch per bubble, bootstrapped from the base branch and torn down
// when the bubble ends. Git runs as a subprocess; errors carry its raw
// output for callers to inspect.
package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// GitError contains the raw output of a failed git command.
type GitError struct {
	Command string // the git subcommand that failed (e.g. "worktree")
	Args    []string
	Stdout  string
	Stderr  string
	Err     error // underlying error, usually an *exec.ExitError
}

func (e *GitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("git %s: %s", e.Command, e.Stderr)
	}
	return fmt.Sprintf("git %s: %v", e.Command, e.Err)
}

func (e *GitError) Unwrap() error {
	return e.Err
}

// ExitCode returns the subprocess exit code, or -1 when the command never
// ran.
func (e *GitError) ExitCode() int {
	var exitErr *exec.ExitError
	if errors.As(e.Err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Git wraps git operations for a working directory.
type Git struct {
	workDir string
}

// NewGit creates a Git wrapper rooted at workDir.
func NewGit(workDir string) *Git {
	return &Git{workDir: workDir}
}

// WorkDir returns the working directory for this Git instance.
func (g *Git) WorkDir() string {
	return g.workDir
}

// run executes a git command and returns trimmed stdout.
func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if g.workDir != "" {
		cmd.Dir = g.workDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", g.wrapError(err, stdout.String(), stderr.String(), args)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (g *Git) wrapError(err error, stdout, stderr string, args []string) error {
	command := ""
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") {
			command = arg
			break
		}
	}
	if command == "" && len(args) > 0 {
		command = args[0]
	}
	return &GitError{
		Command: command,
		Args:    args,
		Stdout:  strings.TrimSpace(stdout),
		Stderr:  strings.TrimSpace(stderr),
		Err:     err,
	}
}

// TopLevel resolves the repository root containing dir.
func TopLevel(ctx context.Context, dir string) (string, error) {
	g := NewGit(dir)
	return g.run(ctx, "rev-parse", "--show-toplevel")
}

// IsRepo reports whether the work dir is inside a git repository.
func (g *Git) IsRepo(ctx context.Context) bool {
	_, err := g.run(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// CurrentBranch returns the short name of the checked-out branch.
func (g *Git) CurrentBranch(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	if out == "HEAD" {
		return "", fmt.Errorf("repository is in detached HEAD state")
	}
	return out, nil
}

// BranchExists reports whether a local branch exists. show-ref exits 1 for
// a missing ref; that is an answer, not a failure.
func (g *Git) BranchExists(ctx context.Context, name string) (bool, error) {
	_, err := g.run(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	if err != nil {
		var gitErr *GitError
		if errors.As(err, &gitErr) && gitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateBranchFrom creates a branch pointing at ref.
func (g *Git) CreateBranchFrom(ctx context.Context, name, ref string) error {
	_, err := g.run(ctx, "branch", name, ref)
	return err
}

// DeleteBranch deletes a local branch. force uses -D, discarding unmerged
// commits.
func (g *Git) DeleteBranch(ctx context.Context, name string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := g.run(ctx, "branch", flag, name)
	return err
}

// WorktreeAdd attaches an existing branch at path.
func (g *Git) WorktreeAdd(ctx context.Context, path, branch string) error {
	_, err := g.run(ctx, "worktree", "add", path, branch)
	return err
}

// WorktreeRemove removes a worktree registration and its directory.
func (g *Git) WorktreeRemove(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	_, err := g.run(ctx, args...)
	return err
}

// WorktreePrune drops stale worktree registrations.
func (g *Git) WorktreePrune(ctx context.Context) error {
	_, err := g.run(ctx, "worktree", "prune")
	return err
}

// Worktree is one row of `git worktree list --porcelain`.
type Worktree struct {
	Path   string
	Commit string
	Branch string // short name, empty when detached
}

// WorktreeList returns all worktrees registered in the repository.
func (g *Git) WorktreeList(ctx context.Context) ([]Worktree, error) {
	out, err := g.run(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseWorktreeList(out), nil
}

func parseWorktreeList(out string) []Worktree {
	var list []Worktree
	var cur Worktree
	flush := func() {
		if cur.Path != "" {
			list = append(list, cur)
		}
		cur = Worktree{}
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			flush()
			cur.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "HEAD "):
			cur.Commit = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			cur.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		}
	}
	flush()
	return list
}

// AddAll stages every change in the work dir.
func (g *Git) AddAll(ctx context.Context) error {
	_, err := g.run(ctx, "add", "-A")
	return err
}

// Commit records staged changes and returns nothing; use HeadSHA for the
// resulting commit.
func (g *Git) Commit(ctx context.Context, message string) error {
	_, err := g.run(ctx, "commit", "-m", message)
	return err
}

// HeadSHA returns the full SHA of HEAD.
func (g *Git) HeadSHA(ctx context.Context) (string, error) {
	return g.run(ctx, "rev-parse", "HEAD")
}

// StatusPorcelain returns the modified and untracked paths in the work dir.
func (g *Git) StatusPorcelain(ctx context.Context) (modified, untracked []string, err error) {
	out, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return nil, nil, err
	}
	modified, untracked = parseStatusPorcelain(out)
	return modified, untracked, nil
}

func parseStatusPorcelain(out string) (modified, untracked []string) {
	for _, line := range strings.Split(out, "\n") {
		// run trims stdout, which can eat the leading space of the first
		// XY status column, so split on the first space instead of slicing.
		line = strings.TrimSpace(line)
		status, path, ok := strings.Cut(line, " ")
		if !ok || path == "" {
			continue
		}
		path = strings.TrimSpace(path)
		if strings.HasPrefix(status, "??") {
			untracked = append(untracked, path)
		} else {
			modified = append(modified, path)
		}
	}
	return modified, untracked
}

// StashCount returns the number of stash entries in the work dir.
func (g *Git) StashCount(ctx context.Context) (int, error) {
	out, err := g.run(ctx, "stash", "list")
	if err != nil {
		return 0, err
	}
	if out == "" {
		return 0, nil
	}
	return len(strings.Split(out, "\n")), nil
}

// CountCommitsAhead returns how many commits branch carries beyond base.
func (g *Git) CountCommitsAhead(ctx context.Context, base, branch string) (int, error) {
	out, err := g.run(ctx, "rev-list", "--count", base+".."+branch)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("parsing rev-list count %q: %w", out, err)
	}
	return n, nil
}
