package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pairflow/pairflow/internal/runtime"
	"github.com/pairflow/pairflow/internal/ui"
)

var bubbleReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair drift between bubbles, sessions, and the registry",
	Long: `Compare on-disk bubble state against live tmux sessions and the
machine registry, then repair the drift: orphan sessions are killed,
stale registry rows dropped, missing rows restored. On-disk state is
authoritative and is never modified.

  pairflow bubble reconcile            # repair
  pairflow bubble reconcile --dry-run  # report only`,
	Args: cobra.NoArgs,
	RunE: runBubbleReconcile,
}

func init() {
	bubbleReconcileCmd.Flags().Bool("dry-run", false, "report what would change without changing it")
	bubbleCmd.AddCommand(bubbleReconcileCmd)
}

func runBubbleReconcile(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	eng, err := newEngine(rootCtx)
	if err != nil {
		return err
	}
	plan, err := eng.Reconcile(rootCtx, dryRun)
	if err != nil {
		return err
	}
	if jsonOutput {
		return outputJSON(plan)
	}
	fmt.Println(renderPlan(plan, dryRun))
	return nil
}

func renderPlan(plan runtime.Plan, dryRun bool) string {
	if plan.Empty() {
		return ui.RenderPass("✔") + " Everything consistent, nothing to do."
	}

	verb := "Repaired"
	if dryRun {
		verb = "Would repair"
	}
	var lines []string
	for _, session := range plan.KillSessions {
		lines = append(lines, fmt.Sprintf("%s: kill orphan session %s", verb, session))
	}
	for _, id := range plan.RemoveEntries {
		lines = append(lines, fmt.Sprintf("%s: drop stale registry entry for %s", verb, id))
	}
	for _, entry := range plan.AddEntries {
		lines = append(lines, fmt.Sprintf("%s: restore registry entry for %s", verb, entry.BubbleID))
	}
	for _, issue := range plan.Issues {
		lines = append(lines, ui.RenderWarn("⚠")+" "+issue.Detail)
	}
	return strings.Join(lines, "\n")
}
