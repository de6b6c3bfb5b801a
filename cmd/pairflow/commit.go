package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pairflow/pairflow/internal/engine"
)

var bubbleCommitCmd = &cobra.Command{
	Use:   "commit <bubble-id>",
	Short: "Commit the bubble's work and close it out",
	Long: `Stage and commit everything in the bubble's worktree on its branch,
then close the bubble with a done package. Requires human approval first
unless the bubble was created with approval disabled.

  pairflow bubble commit b_01
  pairflow bubble commit b_01 --message "auth: add token refresh"`,
	Args: cobra.ExactArgs(1),
	RunE: runBubbleCommit,
}

func init() {
	f := bubbleCommitCmd.Flags()
	f.String("message", "", "commit message (defaults to the task title)")
	f.String("if-fingerprint", "", "fail unless the bubble state still matches this fingerprint")
	bubbleCmd.AddCommand(bubbleCommitCmd)
}

func runBubbleCommit(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	opts := engine.CommitOptions{
		Message:       mustString(flags, "message"),
		IfFingerprint: mustString(flags, "if-fingerprint"),
	}

	eng, err := newEngine(rootCtx)
	if err != nil {
		return err
	}
	id := args[0]

	res, err := eng.Commit(rootCtx, id, opts)
	if err != nil {
		return suggestOnNotFound(eng, err)
	}
	if jsonOutput {
		return outputJSON(res)
	}
	branch, _ := res.Envelope.Payload.Metadata["branch"].(string)
	if branch != "" {
		fmt.Printf("✔ Bubble %s committed %.12s on %s\n", id, res.CommitSHA, branch)
	} else {
		fmt.Printf("✔ Bubble %s committed %.12s\n", id, res.CommitSHA)
	}
	fmt.Printf("  Merge the branch, then clean up with: pairflow bubble delete %s\n", id)
	return nil
}
