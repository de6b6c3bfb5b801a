package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/list"
)

// StatusReport aggregates everything the status command shows for one bubble.
type StatusReport struct {
	ID    string
	Title string

	State     string
	Round     int
	MaxRounds int

	Implementer string
	Reviewer    string
	ActiveAgent string
	ActiveRole  string
	ActiveFor   string // human duration, "" when no active seat

	WatchdogExpired bool
	IdleFor         string // human duration since last command

	Envelopes    int
	LastEnvelope string // e.g. "PASS, 3m ago"

	PendingQuestions []string
	PendingApprovals []string

	Session     string
	SessionLive bool
	Worktree    string
	Branch      string
	BaseBranch  string

	Fingerprint string
}

var statusLabelStyle = lipgloss.NewStyle().Foreground(ColorMuted).Width(12)

func statusLine(label, value string) string {
	return statusLabelStyle.Render(label) + value
}

func checkMark(ok bool) string {
	if ok {
		return RenderPass("live")
	}
	return RenderFail("down")
}

// RenderStatusReport generates the full status view for one bubble.
func RenderStatusReport(res StatusReport, width int) string {
	var sections []string

	header := StateGlyph(res.State) + " " + TitleStyle.Render(res.ID)
	if res.Title != "" {
		header += "  " + RenderMuted(res.Title)
	}
	sections = append(sections, header, "")

	state := RenderState(res.State)
	if res.Round > 0 {
		state += RenderMuted(fmt.Sprintf("  round %d/%d", res.Round, res.MaxRounds))
	}
	sections = append(sections, statusLine("State", state))

	pair := fmt.Sprintf("%s (implementer) / %s (reviewer)", res.Implementer, res.Reviewer)
	sections = append(sections, statusLine("Pair", pair))
	if res.ActiveAgent != "" {
		active := fmt.Sprintf("%s (%s)", res.ActiveAgent, res.ActiveRole)
		if res.ActiveFor != "" {
			active += RenderMuted(" for " + res.ActiveFor)
		}
		sections = append(sections, statusLine("Active", active))
	}

	if res.Session != "" {
		sections = append(sections, statusLine("Session", res.Session+"  "+checkMark(res.SessionLive)))
	}
	if res.Worktree != "" {
		branch := res.Branch
		if res.BaseBranch != "" {
			branch += RenderMuted(" (from " + res.BaseBranch + ")")
		}
		sections = append(sections, statusLine("Worktree", res.Worktree))
		sections = append(sections, statusLine("Branch", branch))
	}

	activity := fmt.Sprintf("%d envelopes", res.Envelopes)
	if res.LastEnvelope != "" {
		activity += RenderMuted(", last " + res.LastEnvelope)
	}
	sections = append(sections, statusLine("Activity", activity))

	if res.WatchdogExpired {
		idle := res.IdleFor
		if idle == "" {
			idle = "a while"
		}
		mark := "!"
		if ShouldUseEmoji() {
			mark = "⚠"
		}
		sections = append(sections, "", RenderWarn(fmt.Sprintf(
			"%s watchdog expired: no command for %s (pairflow bubble resume %s)", mark, idle, res.ID)))
	}

	if len(res.PendingQuestions) > 0 {
		sections = append(sections, "", TableHeaderStyle.Render("Pending questions"))
		sections = append(sections, renderPendingList(res.PendingQuestions))
	}
	if len(res.PendingApprovals) > 0 {
		sections = append(sections, "", TableHeaderStyle.Render("Awaiting approval"))
		sections = append(sections, renderPendingList(res.PendingApprovals))
	}

	if hint := nextStepHint(res); hint != "" {
		sections = append(sections, "", TableHintStyle.Render("→ "+hint))
	}

	sections = append(sections, "", RenderMuted("fingerprint "+res.Fingerprint))

	body := strings.Join(sections, "\n")
	boxWidth := width - 4
	if boxWidth < 40 {
		boxWidth = 40
	}
	return BoxStyle.Width(boxWidth).Render(body)
}

func renderPendingList(items []string) string {
	l := list.New().
		Enumerator(func(_ list.Items, _ int) string { return RenderWarn("•") }).
		EnumeratorStyle(lipgloss.NewStyle().MarginRight(1))
	for _, item := range items {
		l = l.Item(item)
	}
	return l.String()
}

// nextStepHint suggests the command that moves the bubble forward.
func nextStepHint(res StatusReport) string {
	switch res.State {
	case "CREATED", "PREPARING_WORKSPACE":
		return fmt.Sprintf("pairflow bubble start %s", res.ID)
	case "WAITING_HUMAN":
		return fmt.Sprintf("pairflow human reply %s --message \"...\"", res.ID)
	case "READY_FOR_APPROVAL":
		return fmt.Sprintf("pairflow approval-decision %s approve", res.ID)
	case "APPROVED_FOR_COMMIT", "COMMITTED":
		return fmt.Sprintf("pairflow bubble commit %s", res.ID)
	case "DONE", "FAILED", "CANCELLED":
		return fmt.Sprintf("pairflow bubble delete %s", res.ID)
	case "RUNNING":
		if res.WatchdogExpired {
			return fmt.Sprintf("pairflow bubble resume %s", res.ID)
		}
	}
	return ""
}
