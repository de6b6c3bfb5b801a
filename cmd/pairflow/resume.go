package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pairflow/pairflow/internal/state"
)

var bubbleResumeCmd = &cobra.Command{
	Use:   "resume <bubble-id>",
	Short: "Unstick a stalled bubble",
	Long: `Resume a bubble that has stalled. A bubble waiting on the human gets
a default "please continue" reply; a running bubble whose session died
(reboot, crash, tmux kill) gets its panes revived and the active agent
nudged.

  pairflow bubble resume b_01`,
	Args: cobra.ExactArgs(1),
	RunE: runBubbleResume,
}

func init() {
	bubbleCmd.AddCommand(bubbleResumeCmd)
}

func runBubbleResume(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(rootCtx)
	if err != nil {
		return err
	}
	id := args[0]

	res, err := eng.Resume(rootCtx, id)
	if err != nil {
		return suggestOnNotFound(eng, err)
	}
	if jsonOutput {
		return outputJSON(res)
	}
	if res.Snapshot != nil && res.Snapshot.State == state.Running {
		fmt.Printf("✔ Bubble %s resumed: %s (%s) is back to work\n",
			id, derefOr(res.Snapshot.ActiveAgent, "?"), derefOr(res.Snapshot.ActiveRole, "?"))
	} else {
		fmt.Printf("✔ Bubble %s resumed\n", id)
	}
	fmt.Printf("  Attach with: pairflow bubble open %s\n", id)
	return nil
}
