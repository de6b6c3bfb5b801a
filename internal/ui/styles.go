package ui

import "github.com/charmbracelet/lipgloss"

// Shared palette. Adaptive colors keep the output readable on both light
// and dark terminals.
var (
	ColorAccent = lipgloss.AdaptiveColor{Light: "63", Dark: "117"}
	ColorPass   = lipgloss.AdaptiveColor{Light: "28", Dark: "78"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "130", Dark: "214"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "124", Dark: "203"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "243", Dark: "245"}
)

var (
	passStyle  = lipgloss.NewStyle().Foreground(ColorPass)
	warnStyle  = lipgloss.NewStyle().Foreground(ColorWarn)
	failStyle  = lipgloss.NewStyle().Foreground(ColorFail)
	mutedStyle = lipgloss.NewStyle().Foreground(ColorMuted)

	// TitleStyle heads rendered boxes and reports.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)

	// BoxStyle wraps multi-line report output.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorMuted).
			Padding(0, 1)

	// TableHeaderStyle styles table header rows and section headings.
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorAccent).
				Align(lipgloss.Center)

	// TableHintStyle styles follow-up hints under reports.
	TableHintStyle = lipgloss.NewStyle().Foreground(ColorMuted)

	// TableBorderStyle styles table borders.
	TableBorderStyle = lipgloss.NewStyle().Foreground(ColorMuted)
)

// RenderPass styles text as a success marker.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn styles text as a warning.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail styles text as a failure.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderMuted styles de-emphasized text.
func RenderMuted(s string) string { return mutedStyle.Render(s) }

// stateColors maps bubble lifecycle states onto the palette. Unknown states
// render muted rather than loudly wrong.
var stateColors = map[string]lipgloss.AdaptiveColor{
	"CREATED":             ColorMuted,
	"PREPARING_WORKSPACE": ColorMuted,
	"RUNNING":             ColorAccent,
	"WAITING_HUMAN":       ColorWarn,
	"READY_FOR_APPROVAL":  ColorWarn,
	"APPROVED_FOR_COMMIT": ColorPass,
	"COMMITTED":           ColorPass,
	"DONE":                ColorPass,
	"FAILED":              ColorFail,
	"CANCELLED":           ColorMuted,
}

// RenderState styles a lifecycle state name.
func RenderState(state string) string {
	color, ok := stateColors[state]
	if !ok {
		color = ColorMuted
	}
	return lipgloss.NewStyle().Foreground(color).Render(state)
}

// StateGlyph returns a one-character marker for a lifecycle state, or its
// ASCII fallback when emoji are disabled.
func StateGlyph(state string) string {
	if !ShouldUseEmoji() {
		switch state {
		case "RUNNING":
			return ">"
		case "WAITING_HUMAN", "READY_FOR_APPROVAL":
			return "?"
		case "DONE", "COMMITTED", "APPROVED_FOR_COMMIT":
			return "*"
		case "FAILED":
			return "x"
		default:
			return "-"
		}
	}
	switch state {
	case "RUNNING":
		return "🔄"
	case "WAITING_HUMAN":
		return "💬"
	case "READY_FOR_APPROVAL":
		return "🟡"
	case "APPROVED_FOR_COMMIT", "COMMITTED":
		return "🟢"
	case "DONE":
		return "✅"
	case "FAILED":
		return "❌"
	case "CANCELLED":
		return "🚫"
	default:
		return "⚪"
	}
}
