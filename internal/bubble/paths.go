// Package bubble defines bubble identity, the on-disk layout of a bubble
// under a repository, and the immutable per-bubble configuration file.
package bubble

import (
	"fmt"
	"path/filepath"
)

const (
	// StateDirName is the root of all pairflow state inside a repository.
	StateDirName = ".pairflow"
	// WorktreesDirName is the directory, sibling to the repository, that
	// holds one worktree per bubble.
	WorktreesDirName = ".pairflow-worktrees"
	// SessionPrefix prefixes every tmux session owned by a bubble.
	SessionPrefix = "pf-"
	// BranchPrefix prefixes every bubble branch.
	BranchPrefix = "bubble/"
)

// Paths names every file and directory the engine touches for one bubble.
// All writes the engine performs are confined to these paths.
type Paths struct {
	RepoPath string // canonicalized repository root

	BubbleDir      string // .pairflow/bubbles/<id>
	ConfigFile     string // bubble.toml
	StateFile      string // state.json
	TranscriptFile string // transcript.ndjson
	InboxFile      string // inbox.ndjson
	ArtifactsDir   string // artifacts/
	TaskFile       string // artifacts/task.md
	MessagesDir    string // artifacts/messages/

	LocksDir string // .pairflow/locks
	LockFile string // .pairflow/locks/<id>.lock

	RuntimeDir   string // .pairflow/runtime
	SessionsFile string // .pairflow/runtime/sessions.json

	LogsDir string // .pairflow/logs
	LogFile string // .pairflow/logs/engine.log

	WorktreePath string // <repoParent>/.pairflow-worktrees/<repoName>/<id>
}

// Layout computes the complete path set for a bubble under repoPath.
// The repository path is canonicalized through symlinks first so that every
// process observes the same lock and state files no matter how the repo was
// addressed.
func Layout(repoPath, id string) (Paths, error) {
	if err := ValidateID(id); err != nil {
		return Paths{}, err
	}
	resolved, err := filepath.EvalSymlinks(repoPath)
	if err != nil {
		return Paths{}, fmt.Errorf("resolving repo path %s: %w", repoPath, err)
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return Paths{}, fmt.Errorf("resolving repo path %s: %w", repoPath, err)
	}

	root := filepath.Join(abs, StateDirName)
	bubbleDir := filepath.Join(root, "bubbles", id)
	artifacts := filepath.Join(bubbleDir, "artifacts")
	locks := filepath.Join(root, "locks")
	runtime := filepath.Join(root, "runtime")
	logs := filepath.Join(root, "logs")

	return Paths{
		RepoPath:       abs,
		BubbleDir:      bubbleDir,
		ConfigFile:     filepath.Join(bubbleDir, "bubble.toml"),
		StateFile:      filepath.Join(bubbleDir, "state.json"),
		TranscriptFile: filepath.Join(bubbleDir, "transcript.ndjson"),
		InboxFile:      filepath.Join(bubbleDir, "inbox.ndjson"),
		ArtifactsDir:   artifacts,
		TaskFile:       filepath.Join(artifacts, "task.md"),
		MessagesDir:    filepath.Join(artifacts, "messages"),
		LocksDir:       locks,
		LockFile:       filepath.Join(locks, id+".lock"),
		RuntimeDir:     runtime,
		SessionsFile:   filepath.Join(runtime, "sessions.json"),
		LogsDir:        logs,
		LogFile:        filepath.Join(logs, "engine.log"),
		WorktreePath:   filepath.Join(filepath.Dir(abs), WorktreesDirName, filepath.Base(abs), id),
	}, nil
}

// BubblesDir returns the directory that holds all bubble directories for a
// repository. Used by list and reconcile, which iterate bubbles without
// knowing their IDs up front.
func BubblesDir(repoPath string) string {
	return filepath.Join(repoPath, StateDirName, "bubbles")
}

// RuntimeSessionsFile returns the repo's session registry path. The registry
// is repo-wide, not per-bubble, so it does not live in Paths.
func RuntimeSessionsFile(repoPath string) string {
	return filepath.Join(repoPath, StateDirName, "runtime", "sessions.json")
}

// EngineLogFile returns the repo-wide engine log path.
func EngineLogFile(repoPath string) string {
	return filepath.Join(repoPath, StateDirName, "logs", "engine.log")
}

// SessionName returns the tmux session name owned by a bubble.
func SessionName(id string) string {
	return SessionPrefix + id
}

// BubbleIDFromSession reverses SessionName. The second return is false when
// the session does not belong to pairflow.
func BubbleIDFromSession(session string) (string, bool) {
	if len(session) <= len(SessionPrefix) || session[:len(SessionPrefix)] != SessionPrefix {
		return "", false
	}
	id := session[len(SessionPrefix):]
	if ValidateID(id) != nil {
		return "", false
	}
	return id, true
}

// BranchName returns the git branch owned by a bubble.
func BranchName(id string) string {
	return BranchPrefix + id
}
