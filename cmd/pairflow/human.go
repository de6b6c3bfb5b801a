package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pairflow/pairflow/internal/engine"
	"github.com/pairflow/pairflow/internal/envelope"
	"github.com/pairflow/pairflow/internal/state"
	"github.com/pairflow/pairflow/internal/transcript"
	"github.com/pairflow/pairflow/internal/ui"
)

var humanCmd = &cobra.Command{
	Use:     "human",
	GroupID: "human",
	Short:   "Answer questions and review the inbox",
}

var humanReplyCmd = &cobra.Command{
	Use:   "reply <bubble-id>",
	Short: "Answer a waiting bubble",
	Long: `Answer the question a bubble is waiting on. By default the reply
resolves every pending question; --resolve narrows it to specific
envelope IDs.

  pairflow human reply b_01 --message "yes, drop the legacy endpoint"`,
	Args: cobra.ExactArgs(1),
	RunE: runHumanReply,
}

var humanInboxCmd = &cobra.Command{
	Use:   "inbox <bubble-id>",
	Short: "Show a bubble's human-attention items",
	Long: `Show the questions and approval requests filed for the human, with
their resolution status.

  pairflow human inbox b_01
  pairflow human inbox b_01 --pending`,
	Args: cobra.ExactArgs(1),
	RunE: runHumanInbox,
}

var approvalDecisionCmd = &cobra.Command{
	Use:     "approval-decision <bubble-id> <approve|reject|revise>",
	GroupID: "human",
	Short:   "Decide on converged work",
	Long: `Record the verdict on a bubble awaiting approval: approve clears it
for commit, revise sends it back to the implementer for another round,
reject cancels it.

  pairflow approval-decision b_01 approve
  pairflow approval-decision b_01 revise --message "split the migration into two commits"`,
	Args: cobra.ExactArgs(2),
	RunE: runApprovalDecision,
}

func init() {
	f := humanReplyCmd.Flags()
	f.String("message", "", "the reply text")
	f.StringArray("resolve", nil, "envelope ID this reply settles, repeatable (default: all pending questions)")
	f.String("if-fingerprint", "", "fail unless the bubble state still matches this fingerprint")
	_ = humanReplyCmd.MarkFlagRequired("message")

	humanInboxCmd.Flags().Bool("pending", false, "only items still awaiting the human")
	humanInboxCmd.Flags().String("format", "", "output format: table, json, or yaml")

	approvalDecisionCmd.Flags().String("message", "", "note attached to the decision")
	approvalDecisionCmd.Flags().String("if-fingerprint", "", "fail unless the bubble state still matches this fingerprint")

	humanCmd.AddCommand(humanReplyCmd)
	humanCmd.AddCommand(humanInboxCmd)
	rootCmd.AddCommand(humanCmd)
	rootCmd.AddCommand(approvalDecisionCmd)
}

func runHumanReply(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	resolve, _ := flags.GetStringArray("resolve")
	opts := engine.HumanReplyOptions{
		Message:       mustString(flags, "message"),
		Resolve:       resolve,
		IfFingerprint: mustString(flags, "if-fingerprint"),
	}

	eng, err := newEngine(rootCtx)
	if err != nil {
		return err
	}
	id := args[0]
	res, err := eng.HumanReply(rootCtx, id, opts)
	if err != nil {
		return suggestOnNotFound(eng, err)
	}
	if jsonOutput {
		return outputJSON(res)
	}
	fmt.Printf("✔ Reply delivered; %s (%s) is back to work on round %d\n",
		derefOr(res.Snapshot.ActiveAgent, "?"), derefOr(res.Snapshot.ActiveRole, "?"), res.Snapshot.Round)
	return nil
}

func runHumanInbox(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	pendingOnly, _ := flags.GetBool("pending")

	eng, err := newEngine(rootCtx)
	if err != nil {
		return err
	}
	id := args[0]

	entries, err := eng.Inbox(rootCtx, id, pendingOnly)
	if err != nil {
		return suggestOnNotFound(eng, err)
	}
	pending := map[string]bool{}
	if pendingOnly {
		for _, entry := range entries {
			pending[entry.Envelope.ID] = true
		}
	} else {
		open, err := eng.Inbox(rootCtx, id, true)
		if err != nil {
			return err
		}
		for _, entry := range open {
			pending[entry.Envelope.ID] = true
		}
	}

	return output(mustString(flags, "format"), map[string]any{"inbox": entries}, func() string {
		return ui.RenderInbox(inboxEntries(entries, pending), ui.GetWidth())
	})
}

// inboxEntries converts inbox log entries for rendering. pending holds the
// envelope IDs still awaiting the human.
func inboxEntries(entries []transcript.Entry, pending map[string]bool) []ui.InboxEntry {
	out := make([]ui.InboxEntry, 0, len(entries))
	for _, entry := range entries {
		env := entry.Envelope
		out = append(out, ui.InboxEntry{
			Time:     env.TS.Local().Format("Jan 02 15:04"),
			Type:     string(env.Type),
			Summary:  envelopeSummary(env.Payload.Summary, env.Payload.Question, env.Payload.Message, env.Payload.Decision),
			Resolved: !pending[env.ID],
		})
	}
	return out
}

func runApprovalDecision(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	decision := args[1]
	switch decision {
	case envelope.DecisionApprove, envelope.DecisionReject, envelope.DecisionRevise:
	default:
		return fmt.Errorf("unknown decision %q (approve, reject, revise)", decision)
	}
	opts := engine.ApprovalDecisionOptions{
		Decision:      decision,
		Message:       mustString(flags, "message"),
		IfFingerprint: mustString(flags, "if-fingerprint"),
	}

	eng, err := newEngine(rootCtx)
	if err != nil {
		return err
	}
	id := args[0]
	res, err := eng.ApprovalDecision(rootCtx, id, opts)
	if err != nil {
		return suggestOnNotFound(eng, err)
	}
	if jsonOutput {
		return outputJSON(res)
	}
	switch res.Snapshot.State {
	case state.ApprovedForCommit:
		fmt.Printf("✔ Approved; bubble %s is cleared for commit\n", id)
		fmt.Printf("  Land it with: pairflow bubble commit %s\n", id)
	case state.Running:
		fmt.Printf("✔ Revision requested; round %d handed to %s (%s)\n",
			res.Snapshot.Round, derefOr(res.Snapshot.ActiveAgent, "?"), derefOr(res.Snapshot.ActiveRole, "?"))
	case state.Cancelled:
		fmt.Printf("✔ Rejected; bubble %s is cancelled\n", id)
		fmt.Printf("  Clean up with: pairflow bubble delete %s\n", id)
	default:
		fmt.Printf("✔ Decision recorded; bubble %s is %s\n", id, res.Snapshot.State)
	}
	return nil
}
