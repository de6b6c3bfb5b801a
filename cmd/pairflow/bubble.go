package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pairflow/pairflow/internal/bubble"
	"github.com/pairflow/pairflow/internal/config"
	"github.com/pairflow/pairflow/internal/engine"
	"github.com/pairflow/pairflow/internal/state"
	"github.com/pairflow/pairflow/internal/ui"
)

var bubbleCmd = &cobra.Command{
	Use:     "bubble",
	GroupID: "lifecycle",
	Short:   "Create and manage bubbles",
	Long: `Manage the lifecycle of bubbles: paired-agent collaboration units.

A bubble owns a git worktree on its own branch, a tmux session with one
pane per agent, and a durable transcript. Create one with a task brief,
start it to launch the agents, and commit it once the pair converges and
the work is approved.`,
}

var bubbleCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new bubble from a task brief",
	Long: `Create a bubble: allocate its directory, freeze its configuration, and
log the opening TASK envelope. The worktree and tmux session appear at
start, not here.

The task brief is required. Give it inline with --task, from a file with
--task-file, or interactively with --interactive.

Examples:
  pairflow bubble create --task "Add a /healthz endpoint"
  pairflow bubble create --task-file docs/tasks/healthz.md --start
  pairflow bubble create -i`,
	Args: cobra.NoArgs,
	RunE: runBubbleCreate,
}

var bubbleStartCmd = &cobra.Command{
	Use:   "start <bubble-id>",
	Short: "Bootstrap the worktree and launch the agent panes",
	Long: `Start a created bubble: prepare the git worktree on the bubble branch,
spawn the tmux session with the implementer and reviewer panes, brief
both agents, and hand round 1 to the implementer.

Re-runnable: a bubble stuck in PREPARING_WORKSPACE after a crash picks
up where it left off.`,
	Args: cobra.ExactArgs(1),
	RunE: runBubbleStart,
}

var bubbleAbortCmd = &cobra.Command{
	Use:   "abort <bubble-id>",
	Short: "Abort a bubble, marking it FAILED",
	Long: `Abort a bubble that is still in flight. The state becomes FAILED, the
tmux session is killed, and the worktree is left in place for inspection
until 'bubble delete'.`,
	Args: cobra.ExactArgs(1),
	RunE: runBubbleAbort,
}

func init() {
	f := bubbleCreateCmd.Flags()
	f.String("id", "", "explicit bubble ID (default: generated)")
	f.String("task", "", "task brief text")
	f.String("task-file", "", "file containing the task brief")
	f.String("title", "", "one-line title (default: first line of the task)")
	f.String("base", "", "base branch (default: the repository's current branch)")
	f.String("implementer", "", "agent holding the implementer seat")
	f.String("reviewer", "", "agent holding the reviewer seat")
	f.Int("max-rounds", 0, "revision rounds before revise is refused")
	f.Int("watchdog-minutes", 0, "minutes of silence before the watchdog flags the bubble")
	f.Bool("no-approval", false, "skip the human approval gate after convergence")
	f.StringToString("command", nil, "verification command, repeatable (e.g. --command test='go test ./...')")
	f.StringArray("overlay", nil, "path copied or linked into the worktree, repeatable")
	f.String("overlay-mode", "symlink", "how overlay entries reach the worktree (symlink|copy)")
	f.BoolP("interactive", "i", false, "fill in the bubble with a terminal form")
	f.Bool("start", false, "start the bubble immediately after creating it")

	bubbleAbortCmd.Flags().String("reason", "", "why the bubble is being aborted")

	bubbleCmd.AddCommand(bubbleCreateCmd, bubbleStartCmd, bubbleAbortCmd)
	rootCmd.AddCommand(bubbleCmd)
}

// resolveTask loads the task brief from --task or --task-file.
func resolveTask(task, taskFile string) (string, error) {
	if task != "" && taskFile != "" {
		return "", fmt.Errorf("--task and --task-file are mutually exclusive")
	}
	if taskFile != "" {
		data, err := os.ReadFile(taskFile)
		if err != nil {
			return "", fmt.Errorf("reading task file: %w", err)
		}
		return string(data), nil
	}
	return task, nil
}

// createOptionsFromConfig seeds CreateOptions with the machine-level
// defaults; flags override per call.
func createOptionsFromConfig() engine.CreateOptions {
	approval := config.GetBool("commit-requires-approval")
	return engine.CreateOptions{
		Implementer:            config.GetString("agents.implementer"),
		Reviewer:               config.GetString("agents.reviewer"),
		MaxRounds:              config.GetInt("max-rounds"),
		WatchdogTimeoutMinutes: config.GetInt("watchdog-timeout-minutes"),
		CommitRequiresApproval: &approval,
	}
}

func runBubbleCreate(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	interactive, _ := flags.GetBool("interactive")

	task, err := resolveTask(
		mustString(flags, "task"),
		mustString(flags, "task-file"),
	)
	if err != nil {
		return err
	}

	opts := createOptionsFromConfig()
	opts.ID = mustString(flags, "id")
	opts.Task = task
	opts.Title = mustString(flags, "title")
	opts.BaseBranch = mustString(flags, "base")

	if v := mustString(flags, "implementer"); v != "" {
		opts.Implementer = v
	}
	if v := mustString(flags, "reviewer"); v != "" {
		opts.Reviewer = v
	}
	if flags.Changed("max-rounds") {
		opts.MaxRounds, _ = flags.GetInt("max-rounds")
	}
	if flags.Changed("watchdog-minutes") {
		opts.WatchdogTimeoutMinutes, _ = flags.GetInt("watchdog-minutes")
	}
	if noApproval, _ := flags.GetBool("no-approval"); noApproval {
		f := false
		opts.CommitRequiresApproval = &f
	}
	opts.Commands, _ = flags.GetStringToString("command")

	if overlay, _ := flags.GetStringArray("overlay"); len(overlay) > 0 {
		mode, _ := flags.GetString("overlay-mode")
		opts.LocalOverlay = &bubble.LocalOverlay{Enabled: true, Mode: mode, Entries: overlay}
	}

	// With no brief on the command line, fall into the form when we can.
	if strings.TrimSpace(opts.Task) == "" && (interactive || ui.IsTerminal()) {
		if err := runCreateForm(&opts); err != nil {
			return err
		}
	}

	eng, err := newEngine(rootCtx)
	if err != nil {
		return err
	}
	res, err := eng.Create(rootCtx, opts)
	if err != nil {
		return err
	}
	id := res.Snapshot.BubbleID

	if start, _ := flags.GetBool("start"); start {
		if _, err := eng.Start(rootCtx, id); err != nil {
			return fmt.Errorf("bubble %s created but start failed: %w", id, err)
		}
	}

	view, err := eng.Status(rootCtx, id)
	if err != nil {
		return err
	}
	if jsonOutput {
		return outputJSON(view)
	}
	fmt.Printf("%s Created bubble %s (%s)\n", ui.RenderPass("✔"), id, view.State)
	if view.State == state.Created {
		fmt.Println(ui.RenderMuted(fmt.Sprintf("  start it with: pairflow bubble start %s", id)))
	} else {
		fmt.Println(ui.RenderMuted(fmt.Sprintf("  attach with: pairflow bubble open %s", id)))
	}
	return nil
}

func runBubbleStart(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(rootCtx)
	if err != nil {
		return err
	}
	res, err := eng.Start(rootCtx, args[0])
	if err != nil {
		return suggestOnNotFound(eng, err)
	}
	if jsonOutput {
		return outputJSON(res.Snapshot)
	}
	fmt.Printf("%s Bubble %s is %s: round %d handed to %s (%s)\n",
		ui.RenderPass("✔"), args[0], res.Snapshot.State, res.Snapshot.Round,
		derefOr(res.Snapshot.ActiveAgent, "?"), derefOr(res.Snapshot.ActiveRole, "?"))
	fmt.Println(ui.RenderMuted(fmt.Sprintf("  attach with: pairflow bubble open %s", args[0])))
	return nil
}

func runBubbleAbort(cmd *cobra.Command, args []string) error {
	reason := mustString(cmd.Flags(), "reason")
	eng, err := newEngine(rootCtx)
	if err != nil {
		return err
	}
	res, err := eng.Abort(rootCtx, args[0], reason)
	if err != nil {
		return suggestOnNotFound(eng, err)
	}
	if jsonOutput {
		return outputJSON(res.Snapshot)
	}
	fmt.Printf("%s Bubble %s aborted\n", ui.RenderWarn("⚠"), args[0])
	return nil
}

func mustString(flags interface{ GetString(string) (string, error) }, name string) string {
	v, _ := flags.GetString(name)
	return v
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
