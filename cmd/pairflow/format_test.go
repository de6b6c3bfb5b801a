package main

import (
	"strings"
	"testing"
	"time"

	"github.com/pairflow/pairflow/internal/engine"
	"github.com/pairflow/pairflow/internal/state"
	"github.com/pairflow/pairflow/internal/transcript"
	"github.com/pairflow/pairflow/internal/watchdog"
)

func TestHumanDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m"},
		{59 * time.Minute, "59m"},
		{time.Hour + 5*time.Minute, "1h05m"},
		{26 * time.Hour, "1d2h"},
		{-time.Minute, "0s"}, // clock skew reads as "just now"
	}
	for _, tc := range cases {
		if got := humanDuration(tc.d); got != tc.want {
			t.Errorf("humanDuration(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	got := relativeTime(now.Add(-10*time.Minute), now)
	if got != "10m ago" {
		t.Errorf("relativeTime = %q, want '10m ago'", got)
	}
}

func TestFirstLine(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"# Add healthz\n\ndetails", "Add healthz"},
		{"\n\n  ## Indented heading  \nrest", "Indented heading"},
		{"plain title", "plain title"},
		{"", ""},
		{"\n\n", ""},
	}
	for _, tc := range cases {
		if got := firstLine(tc.in); got != tc.want {
			t.Errorf("firstLine(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStatusReportMapping(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	agent, role := "codex", "implementer"
	since := "2025-06-01T11:30:00Z"
	ref := now.Add(-3 * time.Minute)
	lastAt := now.Add(-2 * time.Minute)

	view := &engine.StatusView{
		ID:               "b_x1",
		State:            state.Running,
		Round:            2,
		MaxRounds:        8,
		ActiveAgent:      &agent,
		ActiveRole:       &role,
		ActiveSince:      &since,
		Fingerprint:      "abc123",
		Implementer:      "codex",
		Reviewer:         "claude",
		Watchdog:         watchdog.Status{Monitored: true, Reference: &ref},
		Envelopes:        4,
		LastEnvelopeType: "PASS",
		LastEnvelopeAt:   &lastAt,
		SessionName:      "pf-b_x1",
		SessionLive:      true,
		Worktree:         "/tmp/wt",
		WorktreeExists:   true,
		Branch:           "bubble/b_x1",
		BaseBranch:       "main",
	}

	res := statusReport(view, "Add healthz", []string{"Question (e1)"}, nil, now)
	if res.ID != "b_x1" || res.State != "RUNNING" {
		t.Errorf("identity mapping wrong: %+v", res)
	}
	if res.ActiveAgent != "codex" || res.ActiveRole != "implementer" {
		t.Errorf("active mapping wrong: %q %q", res.ActiveAgent, res.ActiveRole)
	}
	if res.ActiveFor != "30m" {
		t.Errorf("expected ActiveFor '30m', got %q", res.ActiveFor)
	}
	if res.IdleFor != "3m" {
		t.Errorf("expected IdleFor '3m', got %q", res.IdleFor)
	}
	if res.LastEnvelope != "PASS 2m ago" {
		t.Errorf("expected LastEnvelope 'PASS 2m ago', got %q", res.LastEnvelope)
	}
	if res.MaxRounds != 8 {
		t.Errorf("expected MaxRounds 8, got %d", res.MaxRounds)
	}
	if res.Worktree != "/tmp/wt" {
		t.Errorf("expected worktree path, got %q", res.Worktree)
	}
	if len(res.PendingQuestions) != 1 {
		t.Errorf("expected one pending question, got %v", res.PendingQuestions)
	}
}

func TestStatusReportWithoutWorktree(t *testing.T) {
	view := &engine.StatusView{
		ID:       "b_x2",
		State:    state.Created,
		Worktree: "/tmp/never-made",
	}
	res := statusReport(view, "", nil, nil, time.Now())
	if res.Worktree != "" {
		t.Errorf("expected missing worktree to stay blank, got %q", res.Worktree)
	}
	if res.ActiveAgent != "" || res.ActiveFor != "" {
		t.Errorf("expected no active fields for CREATED, got %+v", res)
	}
}

func TestBubbleRows(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cmdAt := now.Add(-5 * time.Minute)
	items := []engine.ListItem{
		{
			ID: "b_aa", State: state.Running, Round: 2,
			ActiveAgent: "codex", ActiveRole: "implementer",
			Pending:       transcript.PendingCounts{HumanQuestions: 1, ApprovalRequests: 1},
			Watchdog:      watchdog.Status{Monitored: true, Expired: true},
			SessionLive:   true,
			LastCommandAt: &cmdAt,
		},
		{ID: "b_bb", State: state.Done, Round: 3},
		{ID: "b_cc", Err: "state.json: unexpected end of JSON input"},
	}

	rows := bubbleRows(items, now)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Active != "codex (implementer)" {
		t.Errorf("expected active cell 'codex (implementer)', got %q", rows[0].Active)
	}
	if rows[0].Pending != 2 {
		t.Errorf("expected pending 2, got %d", rows[0].Pending)
	}
	if rows[0].Idle != "5m" || rows[0].Session != "live" {
		t.Errorf("expected idle/session mapping, got %q/%q", rows[0].Idle, rows[0].Session)
	}
	if rows[0].Watchdog == "" {
		t.Error("expected a watchdog marker on the expired row")
	}
	if rows[1].Active != "-" || rows[1].Idle != "-" || rows[1].Session != "-" {
		t.Errorf("expected dashes for inactive bubble, got %+v", rows[1])
	}
	if rows[2].Err == "" || !strings.Contains(rows[2].Err, "JSON") {
		t.Errorf("expected error row to carry the message, got %+v", rows[2])
	}
}
