package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pairflow/pairflow/internal/bubble"
	"github.com/pairflow/pairflow/internal/engine"
	"github.com/pairflow/pairflow/internal/state"
	"github.com/pairflow/pairflow/internal/ui"
	"github.com/pairflow/pairflow/internal/utils"
)

// humanDuration renders a duration the way humans skim it: seconds under a
// minute, minutes under an hour, then hours and days.
func humanDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		days := int(d.Hours()) / 24
		return fmt.Sprintf("%dd%dh", days, int(d.Hours())%24)
	}
}

func relativeTime(t time.Time, now time.Time) string {
	return humanDuration(now.Sub(t)) + " ago"
}

// firstLine extracts a one-line title from a task brief, dropping heading
// markers.
func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
		if line != "" {
			return line
		}
	}
	return ""
}

// suggestOnNotFound decorates a bubble-not-found error with the closest
// existing bubble ID, so a typo costs one glance instead of a listing.
func suggestOnNotFound(eng *engine.Engine, err error) error {
	var nf *bubble.NotFoundError
	if !errors.As(err, &nf) {
		return err
	}
	items, listErr := eng.List(rootCtx, engine.ListFilter{})
	if listErr != nil || len(items) == 0 {
		return err
	}

	best, bestDist := "", 4 // farther than 3 edits is a different ID, not a typo
	for _, item := range items {
		if utils.FuzzyMatch(nf.ID, item.ID) {
			return fmt.Errorf("%w (did you mean %s?)", err, item.ID)
		}
		if d := utils.ComputeDistance(nf.ID, item.ID); d < bestDist {
			best, bestDist = item.ID, d
		}
	}
	if best != "" {
		return fmt.Errorf("%w (did you mean %s?)", err, best)
	}
	return err
}

// statusReport maps the engine view onto the renderer's shape.
func statusReport(view *engine.StatusView, title string, pendingQuestions, pendingApprovals []string, now time.Time) ui.StatusReport {
	res := ui.StatusReport{
		ID:               view.ID,
		Title:            title,
		State:            string(view.State),
		Round:            view.Round,
		Implementer:      view.Implementer,
		Reviewer:         view.Reviewer,
		WatchdogExpired:  view.Watchdog.Expired,
		Envelopes:        view.Envelopes,
		PendingQuestions: pendingQuestions,
		PendingApprovals: pendingApprovals,
		Session:          view.SessionName,
		SessionLive:      view.SessionLive,
		Branch:           view.Branch,
		BaseBranch:       view.BaseBranch,
		Fingerprint:      view.Fingerprint,
	}
	if view.WorktreeExists {
		res.Worktree = view.Worktree
	}
	if view.ActiveAgent != nil {
		res.ActiveAgent = *view.ActiveAgent
	}
	if view.ActiveRole != nil {
		res.ActiveRole = *view.ActiveRole
	}
	if view.ActiveSince != nil {
		if t, err := state.ParseTime(*view.ActiveSince); err == nil {
			res.ActiveFor = humanDuration(now.Sub(t))
		}
	}
	if view.Watchdog.Reference != nil {
		res.IdleFor = humanDuration(now.Sub(*view.Watchdog.Reference))
	}
	if view.LastEnvelopeType != "" && view.LastEnvelopeAt != nil {
		res.LastEnvelope = fmt.Sprintf("%s %s", view.LastEnvelopeType, relativeTime(*view.LastEnvelopeAt, now))
	}
	res.MaxRounds = view.MaxRounds
	return res
}

// bubbleRows maps list items onto the table renderer's shape.
func bubbleRows(items []engine.ListItem, now time.Time) []ui.BubbleRow {
	rows := make([]ui.BubbleRow, 0, len(items))
	for _, item := range items {
		row := ui.BubbleRow{
			ID:    item.ID,
			State: string(item.State),
			Round: item.Round,
			Err:   item.Err,
		}
		if item.ActiveAgent != "" {
			row.Active = fmt.Sprintf("%s (%s)", item.ActiveAgent, item.ActiveRole)
		} else {
			row.Active = "-"
		}
		row.Pending = item.Pending.HumanQuestions + item.Pending.ApprovalRequests
		if item.LastCommandAt != nil {
			row.Idle = humanDuration(now.Sub(*item.LastCommandAt))
		} else {
			row.Idle = "-"
		}
		if item.SessionLive {
			row.Session = "live"
		} else {
			row.Session = "-"
		}
		if item.Watchdog.Expired {
			row.Watchdog = ui.RenderWarn("⚠")
		}
		rows = append(rows, row)
	}
	return rows
}
