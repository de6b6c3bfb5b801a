package main

import (
	"github.com/spf13/cobra"

	"github.com/pairflow/pairflow/internal/tmux"
)

var bubbleOpenCmd = &cobra.Command{
	Use:   "open <bubble-id>",
	Short: "Attach to a bubble's tmux session",
	Long: `Attach the current terminal to the bubble's tmux session. Inside an
existing tmux client this switches the client instead of nesting.

  pairflow bubble open b_01`,
	Args: cobra.ExactArgs(1),
	RunE: runBubbleOpen,
}

func init() {
	bubbleCmd.AddCommand(bubbleOpenCmd)
}

func runBubbleOpen(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(rootCtx)
	if err != nil {
		return err
	}
	session, err := eng.Open(rootCtx, args[0])
	if err != nil {
		return suggestOnNotFound(eng, err)
	}
	return tmux.New().Attach(rootCtx, session)
}
