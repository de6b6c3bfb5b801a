package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pairflow/pairflow/internal/engine"
	"github.com/pairflow/pairflow/internal/state"
)

// agentCmd namespaces the protocol commands for agents that prefer an
// explicit prefix. The same commands are registered at the top level, so
// "pairflow pass" and "pairflow agent pass" are interchangeable.
var agentCmd = &cobra.Command{
	Use:     "agent",
	Aliases: []string{"orchestra"},
	GroupID: "protocol",
	Short:   "Agent protocol commands (pass, ask-human, converged, approval-request)",
}

func init() {
	for _, build := range []func() *cobra.Command{
		newPassCmd, newAskHumanCmd, newConvergedCmd, newApprovalRequestCmd,
	} {
		top := build()
		top.GroupID = "protocol"
		rootCmd.AddCommand(top)
		agentCmd.AddCommand(build())
	}
	rootCmd.AddCommand(agentCmd)
}

// Each builder returns a fresh command so the top-level and namespaced
// registrations do not share flag state.

func newPassCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pass <bubble-id>",
		Short: "Hand the turn to the other agent",
		Long: `Hand the turn to the other seat. The sender must hold the turn; the
engine flips the active role and nudges the receiving pane.

  pairflow pass b_01 --intent review --summary "auth middleware ready" --agent codex
  pairflow pass b_01 --intent fix_request --summary "nil deref in refresh path" \
      --details-file review.md --agent claude`,
		Args: cobra.ExactArgs(1),
		RunE: runPass,
	}
	f := cmd.Flags()
	f.String("intent", "", "why the turn moves: task, review, or fix_request")
	f.String("summary", "", "one-line summary of the hand-off")
	f.String("details", "", "long-form body, stored as a message artifact")
	f.String("details-file", "", "read the long-form body from a file")
	f.StringArray("ref", nil, "reference URI (artifact:// or envelope://), repeatable")
	f.String("if-fingerprint", "", "fail unless the bubble state still matches this fingerprint")
	_ = cmd.MarkFlagRequired("intent")
	_ = cmd.MarkFlagRequired("summary")
	return cmd
}

func runPass(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	details, err := resolveDetails(mustString(flags, "details"), mustString(flags, "details-file"))
	if err != nil {
		return err
	}
	refs, _ := flags.GetStringArray("ref")
	opts := engine.PassOptions{
		Agent:         actingAgent(),
		Intent:        mustString(flags, "intent"),
		Summary:       mustString(flags, "summary"),
		Details:       details,
		Refs:          refs,
		IfFingerprint: mustString(flags, "if-fingerprint"),
	}

	eng, err := newEngine(rootCtx)
	if err != nil {
		return err
	}
	id := args[0]
	res, err := eng.Pass(rootCtx, id, opts)
	if err != nil {
		return suggestOnNotFound(eng, err)
	}
	if jsonOutput {
		return outputJSON(res)
	}
	fmt.Printf("✔ Pass recorded: round %d handed to %s (%s)\n",
		res.Snapshot.Round, derefOr(res.Snapshot.ActiveAgent, "?"), derefOr(res.Snapshot.ActiveRole, "?"))
	return nil
}

func newAskHumanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask-human <bubble-id>",
		Short: "Suspend the bubble on a question for the human",
		Long: `File a question in the human inbox and park the bubble until the
human replies. The sender must hold the turn.

  pairflow ask-human b_01 --question "OK to drop the legacy endpoint?" --agent codex`,
		Args: cobra.ExactArgs(1),
		RunE: runAskHuman,
	}
	f := cmd.Flags()
	f.String("question", "", "the question for the human")
	f.String("details", "", "long-form context, stored as a message artifact")
	f.String("details-file", "", "read the long-form context from a file")
	f.StringArray("ref", nil, "reference URI (artifact:// or envelope://), repeatable")
	f.String("if-fingerprint", "", "fail unless the bubble state still matches this fingerprint")
	_ = cmd.MarkFlagRequired("question")
	return cmd
}

func runAskHuman(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	details, err := resolveDetails(mustString(flags, "details"), mustString(flags, "details-file"))
	if err != nil {
		return err
	}
	refs, _ := flags.GetStringArray("ref")
	opts := engine.AskHumanOptions{
		Agent:         actingAgent(),
		Question:      mustString(flags, "question"),
		Details:       details,
		Refs:          refs,
		IfFingerprint: mustString(flags, "if-fingerprint"),
	}

	eng, err := newEngine(rootCtx)
	if err != nil {
		return err
	}
	id := args[0]
	res, err := eng.AskHuman(rootCtx, id, opts)
	if err != nil {
		return suggestOnNotFound(eng, err)
	}
	if jsonOutput {
		return outputJSON(res)
	}
	fmt.Printf("✔ Question filed; bubble %s is waiting on the human\n", id)
	fmt.Printf("  They answer with: pairflow human reply %s --message \"...\"\n", id)
	return nil
}

func newConvergedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "converged <bubble-id>",
		Short: "Record that the reviewer accepts the work",
		Long: `Record convergence: the reviewer is satisfied with the implementer's
work. With the approval gate on, the bubble parks for a human decision;
with it off, the bubble is cleared for commit immediately.

  pairflow converged b_01 --summary "all review findings addressed" --agent claude`,
		Args: cobra.ExactArgs(1),
		RunE: runConverged,
	}
	f := cmd.Flags()
	f.String("summary", "", "one-line summary of the converged result")
	f.String("details", "", "long-form body, stored as a message artifact")
	f.String("details-file", "", "read the long-form body from a file")
	f.StringArray("ref", nil, "reference URI (artifact:// or envelope://), repeatable")
	f.String("if-fingerprint", "", "fail unless the bubble state still matches this fingerprint")
	_ = cmd.MarkFlagRequired("summary")
	return cmd
}

func runConverged(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	details, err := resolveDetails(mustString(flags, "details"), mustString(flags, "details-file"))
	if err != nil {
		return err
	}
	refs, _ := flags.GetStringArray("ref")
	opts := engine.ConvergedOptions{
		Agent:         actingAgent(),
		Summary:       mustString(flags, "summary"),
		Details:       details,
		Refs:          refs,
		IfFingerprint: mustString(flags, "if-fingerprint"),
	}

	eng, err := newEngine(rootCtx)
	if err != nil {
		return err
	}
	id := args[0]
	res, err := eng.Converged(rootCtx, id, opts)
	if err != nil {
		return suggestOnNotFound(eng, err)
	}
	if jsonOutput {
		return outputJSON(res)
	}
	switch res.Snapshot.State {
	case state.ReadyForApproval:
		fmt.Printf("✔ Converged; bubble %s awaits human approval\n", id)
		fmt.Printf("  Decide with: pairflow approval-decision %s approve\n", id)
	case state.ApprovedForCommit:
		fmt.Printf("✔ Converged; bubble %s is cleared for commit\n", id)
		fmt.Printf("  Land it with: pairflow bubble commit %s\n", id)
	default:
		fmt.Printf("✔ Converged; bubble %s is %s\n", id, res.Snapshot.State)
	}
	return nil
}

func newApprovalRequestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approval-request <bubble-id>",
		Short: "Re-send the pending approval request",
		Long: `Re-file the approval request for a bubble already awaiting approval.
Useful when the original notification was missed; the state does not
change.

  pairflow approval-request b_01 --summary "ready for your review"`,
		Args: cobra.ExactArgs(1),
		RunE: runApprovalRequest,
	}
	cmd.Flags().String("summary", "", "one-line summary for the approval request")
	return cmd
}

func runApprovalRequest(cmd *cobra.Command, args []string) error {
	summary := mustString(cmd.Flags(), "summary")

	eng, err := newEngine(rootCtx)
	if err != nil {
		return err
	}
	id := args[0]
	res, err := eng.ApprovalRequest(rootCtx, id, summary)
	if err != nil {
		return suggestOnNotFound(eng, err)
	}
	if jsonOutput {
		return outputJSON(res)
	}
	fmt.Printf("✔ Approval request filed for bubble %s\n", id)
	fmt.Printf("  Decide with: pairflow approval-decision %s approve\n", id)
	return nil
}

// resolveDetails loads the long-form body from --details or --details-file.
func resolveDetails(inline, file string) (string, error) {
	if inline != "" && file != "" {
		return "", fmt.Errorf("--details and --details-file are mutually exclusive")
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading details file: %w", err)
		}
		return string(data), nil
	}
	return inline, nil
}
