package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// TranscriptEntry is one envelope prepared for display.
type TranscriptEntry struct {
	Time      string
	Round     int
	Type      string
	Sender    string
	Recipient string
	Summary   string
	Body      string // long-form detail, already resolved from artifacts
}

var envelopeTypeColors = map[string]lipgloss.AdaptiveColor{
	"TASK":              ColorAccent,
	"PASS":              ColorAccent,
	"CONVERGENCE":       ColorPass,
	"APPROVAL_REQUEST":  ColorWarn,
	"APPROVAL_DECISION": ColorPass,
	"HUMAN_QUESTION":    ColorWarn,
	"HUMAN_REPLY":       ColorWarn,
	"DONE_PACKAGE":      ColorPass,
}

func renderEnvelopeType(typ string) string {
	color, ok := envelopeTypeColors[typ]
	if !ok {
		color = ColorMuted
	}
	return lipgloss.NewStyle().Foreground(color).Bold(true).Render(typ)
}

// RenderTranscript renders envelopes in order, oldest first.
func RenderTranscript(entries []TranscriptEntry, width int) string {
	if len(entries) == 0 {
		return RenderMuted("Transcript is empty.")
	}

	bodyStyle := lipgloss.NewStyle().PaddingLeft(7).Width(width - 2)

	var out []string
	for _, e := range entries {
		head := fmt.Sprintf("%s  %s  %s %s %s",
			RenderMuted(e.Time),
			RenderMuted(fmt.Sprintf("r%d", e.Round)),
			e.Sender,
			RenderMuted("→"),
			e.Recipient,
		)
		out = append(out, head)
		out = append(out, bodyStyle.Render(renderEnvelopeType(e.Type)+"  "+e.Summary))
		if e.Body != "" {
			out = append(out, bodyStyle.Render(RenderMuted(e.Body)))
		}
		out = append(out, "")
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n")
}

// InboxEntry is one human-inbox item prepared for display.
type InboxEntry struct {
	Time     string
	Type     string
	Summary  string
	Resolved bool
}

// RenderInbox renders inbox items, marking which still need a human.
func RenderInbox(items []InboxEntry, width int) string {
	if len(items) == 0 {
		return RenderMuted("Inbox is empty.")
	}

	var out []string
	for _, item := range items {
		marker := RenderWarn("●")
		summary := item.Summary
		if item.Resolved {
			marker = RenderPass("✓")
			summary = RenderMuted(summary)
		}
		out = append(out, fmt.Sprintf("%s %s  %s  %s",
			marker, RenderMuted(item.Time), renderEnvelopeType(item.Type), summary))
	}
	return strings.Join(out, "\n")
}
