package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pairflow/pairflow/internal/engine"
	"github.com/pairflow/pairflow/internal/envelope"
	"github.com/pairflow/pairflow/internal/ui"
)

var bubbleStatusCmd = &cobra.Command{
	Use:   "status <bubble-id>",
	Short: "Show one bubble's full state",
	Long: `Show everything about one bubble: lifecycle state, round, which agent
holds the turn, watchdog status, pending human work, session and
worktree health, and the state fingerprint agents echo back via
--if-fingerprint.

Read-only: never takes the bubble lock, never blocks the agents.`,
	Args: cobra.ExactArgs(1),
	RunE: runBubbleStatus,
}

func init() {
	bubbleStatusCmd.Flags().String("format", "", "output format: table, json, or yaml")
	bubbleCmd.AddCommand(bubbleStatusCmd)
}

func runBubbleStatus(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(rootCtx)
	if err != nil {
		return err
	}
	id := args[0]

	view, err := eng.Status(rootCtx, id)
	if err != nil {
		return suggestOnNotFound(eng, err)
	}

	format := mustString(cmd.Flags(), "format")
	return output(format, view, func() string {
		title := ""
		if task, err := eng.Task(rootCtx, id); err == nil {
			title = firstLine(task)
		}
		questions, approvals := pendingSummaries(eng, id)
		report := statusReport(view, title, questions, approvals, time.Now())
		return ui.RenderStatusReport(report, ui.GetWidth())
	})
}

// pendingSummaries pulls the still-unresolved inbox lines for display.
func pendingSummaries(eng *engine.Engine, id string) (questions, approvals []string) {
	entries, err := eng.Inbox(rootCtx, id, true)
	if err != nil {
		return nil, nil
	}
	for _, entry := range entries {
		switch entry.Envelope.Type {
		case envelope.TypeHumanQuestion:
			questions = append(questions, fmt.Sprintf("%s (%s)", entry.Envelope.Payload.Question, entry.Envelope.ID))
		case envelope.TypeApprovalRequest:
			approvals = append(approvals, entry.Envelope.Payload.Summary)
		}
	}
	return questions, approvals
}
