package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pairflow/pairflow/internal/ui"
)

var bubbleDeleteCmd = &cobra.Command{
	Use:   "delete <bubble-id>",
	Short: "Delete a bubble and all its workspace state",
	Long: `Delete a bubble: its tmux session, worktree, branch, and state
directory. Refuses when the session is live or the worktree holds
uncommitted or unpushed work; --force discards both.

  pairflow bubble delete b_01
  pairflow bubble delete b_01 --force`,
	Args: cobra.ExactArgs(1),
	RunE: runBubbleDelete,
}

func init() {
	bubbleDeleteCmd.Flags().Bool("force", false, "delete even with a live session or unsaved work")
	bubbleCmd.AddCommand(bubbleDeleteCmd)
}

func runBubbleDelete(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")

	eng, err := newEngine(rootCtx)
	if err != nil {
		return err
	}
	id := args[0]

	if !force {
		view, err := eng.Status(rootCtx, id)
		if err != nil {
			return suggestOnNotFound(eng, err)
		}
		if !view.State.Terminal() {
			question := fmt.Sprintf("Bubble %s is still %s. Delete it?", id, view.State)
			if !ui.PromptYesNo(question, true) {
				fmt.Println("Canceled.")
				return nil
			}
		}
	}

	if err := eng.Delete(rootCtx, id, force); err != nil {
		return suggestOnNotFound(eng, err)
	}
	fmt.Printf("✔ Deleted bubble %s\n", id)
	return nil
}
