package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// BubbleRow is one line of the bubble listing.
type BubbleRow struct {
	ID       string
	State    string
	Round    int
	Active   string // "agent (role)" or "-"
	Pending  int    // unresolved inbox items
	Idle     string // time since last command, human form
	Session  string // "live", "down", or "-"
	Watchdog string // "" unless expired
	Err      string // set when the bubble could not be read
}

// RenderBubbleTable renders bubble rows as a bordered table.
func RenderBubbleTable(rows []BubbleRow, width int) string {
	if len(rows) == 0 {
		return RenderMuted("No bubbles found.")
	}

	data := [][]string{}
	for _, r := range rows {
		if r.Err != "" {
			data = append(data, []string{r.ID, "UNREADABLE", "-", "-", "-", "-", "-"})
			continue
		}
		pending := "-"
		if r.Pending > 0 {
			pending = fmt.Sprintf("%d", r.Pending)
		}
		state := r.State
		if r.Watchdog != "" {
			state = state + " " + r.Watchdog
		}
		data = append(data, []string{
			StateGlyph(r.State) + " " + r.ID,
			state,
			fmt.Sprintf("%d", r.Round),
			r.Active,
			pending,
			r.Idle,
			r.Session,
		})
	}

	rowStates := make([]string, len(rows))
	rowBroken := make([]bool, len(rows))
	for i, r := range rows {
		rowStates[i] = r.State
		rowBroken[i] = r.Err != ""
	}

	return table.New().
		Headers("BUBBLE", "STATE", "ROUND", "ACTIVE", "PENDING", "IDLE", "SESSION").
		Border(lipgloss.RoundedBorder()).
		BorderStyle(TableBorderStyle).
		Width(width).
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			cell := lipgloss.NewStyle().Padding(0, 1)
			if row >= 0 && row < len(rows) {
				if rowBroken[row] {
					return cell.Foreground(ColorFail)
				}
				if col == 1 {
					if color, ok := stateColors[rowStates[row]]; ok {
						return cell.Foreground(color)
					}
				}
			}
			return cell
		}).
		String()
}
