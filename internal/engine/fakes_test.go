package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pairflow/pairflow/internal/bubble"
	"github.com/pairflow/pairflow/internal/workspace"
)

// fakeClock hands out strictly increasing timestamps so every state write
// differs from the last.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

// fakeSessions is an in-memory stand-in for the tmux driver.
type fakeSessions struct {
	mu          sync.Mutex
	sessions    map[string]bool
	sent        map[string][]string // target -> lines typed
	respawned   map[string][]string // target -> commands
	killed      []string
	unavailable bool // simulate a machine without tmux
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		sessions:  map[string]bool{},
		sent:      map[string][]string{},
		respawned: map[string][]string{},
	}
}

func (f *fakeSessions) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.unavailable
}

func (f *fakeSessions) HasSession(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[name], nil
}

func (f *fakeSessions) NewSession(ctx context.Context, name, workDir, command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessions[name] {
		return fmt.Errorf("duplicate session: %s", name)
	}
	f.sessions[name] = true
	return nil
}

func (f *fakeSessions) SplitPane(ctx context.Context, session, workDir, command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.sessions[session] {
		return fmt.Errorf("session not found: %s", session)
	}
	return nil
}

func (f *fakeSessions) KillSession(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.sessions[name] {
		return nil
	}
	delete(f.sessions, name)
	f.killed = append(f.killed, name)
	return nil
}

func (f *fakeSessions) ListSessions(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for name := range f.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeSessions) SendLine(ctx context.Context, target, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, _, _ := strings.Cut(target, ":")
	if !f.sessions[session] {
		return fmt.Errorf("session not found: %s", session)
	}
	f.sent[target] = append(f.sent[target], text)
	return nil
}

func (f *fakeSessions) CapturePane(ctx context.Context, target string, lines int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, _, _ := strings.Cut(target, ":")
	if !f.sessions[session] {
		return "", fmt.Errorf("session not found: %s", session)
	}
	return strings.Join(f.sent[target], "\n"), nil
}

func (f *fakeSessions) RespawnPane(ctx context.Context, target, command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, _, _ := strings.Cut(target, ":")
	if !f.sessions[session] {
		return fmt.Errorf("session not found: %s", session)
	}
	f.respawned[target] = append(f.respawned[target], command)
	return nil
}

func (f *fakeSessions) linesFor(target string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent[target]...)
}

func (f *fakeSessions) addSession(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[name] = true
}

func (f *fakeSessions) dropSession(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, name)
}

// fakeWorkspace is an in-memory stand-in for the worktree manager.
type fakeWorkspace struct {
	mu         sync.Mutex
	branch     string
	bootstraps []string
	work       workspace.ExternalWork
	inspectErr error
	sha        string
	commitErr  error
	messages   []string
	teardowns  int
	notRepo    bool
}

func newFakeWorkspace() *fakeWorkspace {
	return &fakeWorkspace{
		branch: "main",
		sha:    "0123456789abcdef0123456789abcdef01234567",
	}
}

func (f *fakeWorkspace) IsRepo(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.notRepo
}

func (f *fakeWorkspace) CurrentBranch(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.branch, nil
}

func (f *fakeWorkspace) Bootstrap(ctx context.Context, cfg *bubble.Config, worktree string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bootstraps = append(f.bootstraps, worktree)
	return nil
}

func (f *fakeWorkspace) Inspect(ctx context.Context, cfg *bubble.Config, worktree string) (workspace.ExternalWork, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.work, f.inspectErr
}

func (f *fakeWorkspace) Teardown(ctx context.Context, cfg *bubble.Config, worktree string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teardowns++
	return nil
}

func (f *fakeWorkspace) CommitAll(ctx context.Context, cfg *bubble.Config, worktree, message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return "", f.commitErr
	}
	f.messages = append(f.messages, message)
	return f.sha, nil
}

// newTestEngine wires an Engine over the fakes in a temp repository.
func newTestEngine(t *testing.T) (*Engine, *fakeSessions, *fakeWorkspace) {
	t.Helper()
	tm := newFakeSessions()
	ws := newFakeWorkspace()
	eng, err := New(t.TempDir(), Options{
		Workspace:    ws,
		Sessions:     tm,
		Clock:        newFakeClock().Now,
		AgentCommand: func(agent string) string { return agent + " --repl" },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng, tm, ws
}
