// Package tmux drives the tmux sessions that host agent panes. Each bubble
// owns one session with two panes: pane 0 for the implementer seat, pane 1
// for the reviewer seat. tmux runs as a subprocess; its stderr is classified
// into sentinel errors so callers can branch on the interesting failures.
package tmux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Sentinel errors recognized from tmux stderr.
var (
	ErrNotInstalled    = errors.New("tmux not installed")
	ErrNoServer        = errors.New("no tmux server running")
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
)

// Pane indexes within a bubble session's single window.
const (
	PaneImplementer = 0
	PaneReviewer    = 1
)

// Tmux executes tmux commands.
type Tmux struct {
	bin string
}

// New returns a Tmux driver using the tmux binary on PATH.
func New() *Tmux {
	return &Tmux{bin: "tmux"}
}

// Available reports whether the tmux binary can be found.
func (t *Tmux) Available() bool {
	_, err := exec.LookPath(t.bin)
	return err == nil
}

// IsInsideTmux reports whether the current process runs inside a tmux client.
func IsInsideTmux() bool {
	return os.Getenv("TMUX") != ""
}

// Target addresses a pane inside a bubble session's window.
func Target(session string, pane int) string {
	return session + ":0." + strconv.Itoa(pane)
}

func (t *Tmux) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, t.bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return "", t.classify(err, stderr.String(), args)
	}
	return strings.TrimRight(stdout.String(), "\n"), nil
}

// classify maps tmux stderr onto the sentinel errors. Unrecognized failures
// keep the raw stderr for diagnosis.
func (t *Tmux) classify(err error, stderr string, args []string) error {
	if errors.Is(err, exec.ErrNotFound) {
		return ErrNotInstalled
	}
	msg := strings.TrimSpace(stderr)
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "no server running"),
		strings.Contains(lower, "error connecting to"):
		return fmt.Errorf("%w: %s", ErrNoServer, msg)
	case strings.Contains(lower, "duplicate session"):
		return fmt.Errorf("%w: %s", ErrSessionExists, msg)
	case strings.Contains(lower, "session not found"),
		strings.Contains(lower, "can't find session"),
		strings.Contains(lower, "no such session"):
		return fmt.Errorf("%w: %s", ErrSessionNotFound, msg)
	}
	if msg != "" {
		return fmt.Errorf("tmux %s: %s", args[0], msg)
	}
	return fmt.Errorf("tmux %s: %w", args[0], err)
}

// HasSession reports whether a session with exactly this name exists. The
// "=" prefix disables tmux's prefix matching, which would otherwise let
// pf-b_1 match pf-b_1a.
func (t *Tmux) HasSession(ctx context.Context, name string) (bool, error) {
	_, err := t.run(ctx, "has-session", "-t", "="+name)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrNoServer) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// NewSession creates a detached session whose first pane runs command inside
// workDir.
func (t *Tmux) NewSession(ctx context.Context, name, workDir, command string) error {
	args := []string{"new-session", "-d", "-s", name, "-c", workDir}
	if command != "" {
		args = append(args, command)
	}
	_, err := t.run(ctx, args...)
	return err
}

// SplitPane adds a pane beside pane 0 of the session's window, running
// command inside workDir.
func (t *Tmux) SplitPane(ctx context.Context, session, workDir, command string) error {
	args := []string{"split-window", "-d", "-h", "-t", Target(session, 0), "-c", workDir}
	if command != "" {
		args = append(args, command)
	}
	_, err := t.run(ctx, args...)
	return err
}

// KillSession terminates a session. Killing a session that is already gone
// is not an error.
func (t *Tmux) KillSession(ctx context.Context, name string) error {
	_, err := t.run(ctx, "kill-session", "-t", "="+name)
	if err != nil && !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrNoServer) {
		return err
	}
	return nil
}

// ListSessions returns all session names. A stopped server means no
// sessions, not an error.
func (t *Tmux) ListSessions(ctx context.Context) ([]string, error) {
	out, err := t.run(ctx, "list-sessions", "-F", "#{session_name}")
	if err != nil {
		if errors.Is(err, ErrNoServer) {
			return nil, nil
		}
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// SendLine types text into a pane and presses Enter. The text is sent
// literally so tmux does not interpret key names inside it.
func (t *Tmux) SendLine(ctx context.Context, target, text string) error {
	if _, err := t.run(ctx, "send-keys", "-t", target, "-l", "--", text); err != nil {
		return err
	}
	_, err := t.run(ctx, "send-keys", "-t", target, "Enter")
	return err
}

// CapturePane returns the last lines of a pane's visible history.
func (t *Tmux) CapturePane(ctx context.Context, target string, lines int) (string, error) {
	return t.run(ctx, "capture-pane", "-p", "-t", target, "-S", "-"+strconv.Itoa(lines))
}

// RespawnPane kills whatever runs in a pane and starts command in its place.
// Used to hand the reviewer seat a fresh context each round.
func (t *Tmux) RespawnPane(ctx context.Context, target, command string) error {
	args := []string{"respawn-pane", "-k", "-t", target}
	if command != "" {
		args = append(args, command)
	}
	_, err := t.run(ctx, args...)
	return err
}

// Attach connects the current terminal to a session: switch-client when
// already inside tmux, attach-session otherwise. The subprocess inherits
// the terminal.
func (t *Tmux) Attach(ctx context.Context, session string) error {
	var cmd *exec.Cmd
	if IsInsideTmux() {
		cmd = exec.CommandContext(ctx, t.bin, "switch-client", "-t", "="+session)
	} else {
		cmd = exec.CommandContext(ctx, t.bin, "attach-session", "-t", "="+session)
	}
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
