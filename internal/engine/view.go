package engine

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pairflow/pairflow/internal/bubble"
	"github.com/pairflow/pairflow/internal/envelope"
	"github.com/pairflow/pairflow/internal/state"
	"github.com/pairflow/pairflow/internal/tmux"
	"github.com/pairflow/pairflow/internal/transcript"
	"github.com/pairflow/pairflow/internal/watchdog"
)

// StatusView is the full read-only picture of one bubble. It reads the
// snapshot as persisted, without taking the bubble lock: views must never
// block the agents.
type StatusView struct {
	ID          string          `json:"bubble_id"`
	State       state.Lifecycle `json:"state"`
	Round       int             `json:"round"`
	MaxRounds   int             `json:"max_rounds"`
	ActiveAgent *string         `json:"active_agent"`
	ActiveRole  *string         `json:"active_role"`
	ActiveSince *string         `json:"active_since"`

	// Fingerprint identifies the exact state.json content this view was
	// built from; agents echo it back via --if-fingerprint.
	Fingerprint string `json:"fingerprint"`

	Implementer string `json:"implementer"`
	Reviewer    string `json:"reviewer"`

	RoundRoleHistory []state.RoleHistoryEntry `json:"round_role_history"`

	Watchdog watchdog.Status          `json:"watchdog"`
	Pending  transcript.PendingCounts `json:"pending"`

	Envelopes        int           `json:"envelopes"`
	LastEnvelopeType envelope.Type `json:"last_envelope_type,omitempty"`
	LastEnvelopeAt   *time.Time    `json:"last_envelope_at,omitempty"`

	SessionName string `json:"tmux_session"`
	SessionLive bool   `json:"session_live"`

	Worktree       string `json:"worktree"`
	WorktreeExists bool   `json:"worktree_exists"`
	Branch         string `json:"branch"`
	BaseBranch     string `json:"base_branch"`
}

// Status assembles the view for one bubble.
func (e *Engine) Status(ctx context.Context, id string) (*StatusView, error) {
	h, err := e.open(id)
	if err != nil {
		return nil, err
	}
	snap, fp, err := h.store.Read()
	if err != nil {
		return nil, err
	}

	view := &StatusView{
		ID:               snap.BubbleID,
		State:            snap.State,
		Round:            snap.Round,
		MaxRounds:        h.cfg.MaxRounds,
		ActiveAgent:      snap.ActiveAgent,
		ActiveRole:       snap.ActiveRole,
		ActiveSince:      snap.ActiveSince,
		Fingerprint:      fp,
		Implementer:      h.cfg.Agents.Implementer,
		Reviewer:         h.cfg.Agents.Reviewer,
		RoundRoleHistory: snap.RoundRoleHistory,
		Watchdog:         watchdog.Evaluate(snap, h.cfg.WatchdogTimeout(), e.now()),
		SessionName:      h.session(),
		Worktree:         h.paths.WorktreePath,
		Branch:           h.cfg.BubbleBranch,
		BaseBranch:       h.cfg.BaseBranch,
	}

	entries, err := h.transcript.Read()
	if err != nil {
		return nil, err
	}
	view.Envelopes = len(entries)
	if len(entries) > 0 {
		last := entries[len(entries)-1].Envelope
		view.LastEnvelopeType = last.Type
		ts := last.TS
		view.LastEnvelopeAt = &ts
	}

	pending, err := transcript.Pending(h.inbox, h.transcript)
	if err != nil {
		return nil, err
	}
	view.Pending = transcript.CountPending(pending)

	if alive, err := e.tm.HasSession(ctx, h.session()); err == nil {
		view.SessionLive = alive
	}
	if _, err := os.Stat(h.paths.WorktreePath); err == nil {
		view.WorktreeExists = true
	}
	return view, nil
}

// ListFilter narrows List output. Zero values match everything.
type ListFilter struct {
	States []state.Lifecycle
	Since  time.Time
}

// ListItem is one row of the bubble listing.
type ListItem struct {
	ID            string                   `json:"bubble_id"`
	State         state.Lifecycle          `json:"state"`
	Round         int                      `json:"round"`
	ActiveAgent   string                   `json:"active_agent,omitempty"`
	ActiveRole    string                   `json:"active_role,omitempty"`
	Pending       transcript.PendingCounts `json:"pending"`
	Watchdog      watchdog.Status          `json:"watchdog"`
	SessionLive   bool                     `json:"session_live"`
	LastCommandAt *time.Time               `json:"last_command_at,omitempty"`

	// Err flags a bubble whose state could not be read. Such rows carry
	// only the ID and pass no state filter.
	Err string `json:"error,omitempty"`
}

// List scans every bubble under the repository and returns one row each,
// sorted by ID. Unreadable bubbles become error rows rather than failing
// the whole listing.
func (e *Engine) List(ctx context.Context, filter ListFilter) ([]ListItem, error) {
	dir := bubble.BubblesDir(e.repo)
	names, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading bubbles directory: %w", err)
	}

	live := map[string]bool{}
	if sessions, err := e.tm.ListSessions(ctx); err == nil {
		for _, s := range sessions {
			live[s] = true
		}
	}

	var items []ListItem
	for _, entry := range names {
		if !entry.IsDir() || bubble.ValidateID(entry.Name()) != nil {
			continue
		}
		id := entry.Name()
		item := e.listItem(id, live)
		if !matchFilter(item, filter) {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (e *Engine) listItem(id string, live map[string]bool) ListItem {
	item := ListItem{ID: id, SessionLive: live[bubble.SessionName(id)]}

	h, err := e.open(id)
	if err != nil {
		item.Err = err.Error()
		return item
	}
	snap, _, err := h.store.Read()
	if err != nil {
		item.Err = err.Error()
		return item
	}

	item.State = snap.State
	item.Round = snap.Round
	if snap.ActiveAgent != nil {
		item.ActiveAgent = *snap.ActiveAgent
	}
	if snap.ActiveRole != nil {
		item.ActiveRole = *snap.ActiveRole
	}
	if snap.LastCommandAt != nil {
		if ts, err := state.ParseTime(*snap.LastCommandAt); err == nil {
			item.LastCommandAt = &ts
		}
	}
	item.Watchdog = watchdog.Evaluate(snap, h.cfg.WatchdogTimeout(), e.now())

	if pending, err := transcript.Pending(h.inbox, h.transcript); err == nil {
		item.Pending = transcript.CountPending(pending)
	}
	return item
}

func matchFilter(item ListItem, f ListFilter) bool {
	if len(f.States) > 0 {
		if item.Err != "" {
			return false
		}
		found := false
		for _, s := range f.States {
			if item.State == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.Since.IsZero() {
		if item.LastCommandAt == nil || item.LastCommandAt.Before(f.Since) {
			return false
		}
	}
	return true
}

// Transcript returns every envelope of a bubble in order.
func (e *Engine) Transcript(ctx context.Context, id string) ([]transcript.Entry, error) {
	h, err := e.open(id)
	if err != nil {
		return nil, err
	}
	return h.transcript.Read()
}

// Inbox returns a bubble's human-attention items: all of them, or only
// those still pending.
func (e *Engine) Inbox(ctx context.Context, id string, pendingOnly bool) ([]transcript.Entry, error) {
	h, err := e.open(id)
	if err != nil {
		return nil, err
	}
	if pendingOnly {
		return transcript.Pending(h.inbox, h.transcript)
	}
	return h.inbox.Read()
}

// Task returns the bubble's task brief markdown.
func (e *Engine) Task(ctx context.Context, id string) (string, error) {
	h, err := e.open(id)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(h.paths.TaskFile)
	if err != nil {
		return "", fmt.Errorf("reading task brief: %w", err)
	}
	return string(data), nil
}

// PaneTail is the recent output of one agent pane.
type PaneTail struct {
	Role  string `json:"role"`
	Agent string `json:"agent"`
	Text  string `json:"text"`
}

// PaneTails captures the last lines of both agent panes. Returns nil when
// the bubble's session is not running. A single unreadable pane is skipped
// rather than failing the whole capture.
func (e *Engine) PaneTails(ctx context.Context, id string, lines int) ([]PaneTail, error) {
	h, err := e.open(id)
	if err != nil {
		return nil, err
	}
	session := h.session()
	live, err := e.tm.HasSession(ctx, session)
	if err != nil || !live {
		return nil, err
	}
	seats := []struct {
		role string
		pane int
	}{
		{state.RoleImplementer, tmux.PaneImplementer},
		{state.RoleReviewer, tmux.PaneReviewer},
	}
	tails := make([]PaneTail, 0, len(seats))
	for _, seat := range seats {
		text, err := e.tm.CapturePane(ctx, tmux.Target(session, seat.pane), lines)
		if err != nil {
			continue
		}
		tails = append(tails, PaneTail{
			Role:  seat.role,
			Agent: h.cfg.Agent(seat.role),
			Text:  strings.TrimRight(text, "\n"),
		})
	}
	return tails, nil
}
