package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pairflow/pairflow/internal/bubble"
	"github.com/pairflow/pairflow/internal/config"
	"github.com/pairflow/pairflow/internal/engine"
	"github.com/pairflow/pairflow/internal/logging"
	"github.com/pairflow/pairflow/internal/metrics"
	"github.com/pairflow/pairflow/internal/ui"
	"github.com/pairflow/pairflow/internal/workspace"
)

// Exit codes. 2 is reserved for "confirmation required": the command would
// have destroyed something and wants an explicit --force.
const (
	exitFailure              = 1
	exitConfirmationRequired = 2
)

var (
	repoFlag   string
	agentFlag  string
	verbose    bool
	jsonOutput bool
)

var rootCtx = context.Background()

var rootCmd = &cobra.Command{
	Use:   "pairflow",
	Short: "Run pairs of coding agents in tmux bubbles",
	Long: `pairflow coordinates pairs of autonomous coding agents (an implementer
and a reviewer) collaborating on one change inside one git repository.

Each collaboration unit is a bubble: a dedicated git worktree, a tmux
session with one pane per agent, a durable message transcript, and a
state machine that walks from task brief to reviewed commit.

Agents hand the turn back and forth with 'pairflow pass', escalate to a
human with 'pairflow ask-human', and declare the work finished with
'pairflow converged'. Humans answer with 'pairflow human reply' and gate
commits with 'pairflow approval-decision'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return err
		}
		if config.GetBool("no-emoji") {
			ui.SetEmoji(false)
		}
		return nil
	},
}

// Execute runs the CLI and maps errors onto the exit-code contract.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		var busy *workspace.BusyError
		if errors.As(err, &busy) {
			os.Exit(exitConfirmationRequired)
		}
		os.Exit(exitFailure)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", "",
		"repository root (default: discovered from the working directory)")
	rootCmd.PersistentFlags().StringVar(&agentFlag, "agent", "",
		"acting agent identity for protocol commands (or PAIRFLOW_AGENT)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"mirror engine logs to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"machine-readable JSON output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "lifecycle", Title: "Bubble lifecycle:"},
		&cobra.Group{ID: "protocol", Title: "Agent protocol:"},
		&cobra.Group{ID: "human", Title: "Human loop:"},
	)
}

// repoRoot resolves the repository the command operates on: --repo wins,
// otherwise the enclosing git repo of the working directory.
func repoRoot(ctx context.Context) (string, error) {
	if repoFlag != "" {
		return repoFlag, nil
	}
	return engine.ResolveRepo(ctx, ".")
}

// newEngine builds the engine for the resolved repository with the full
// production stack: rotating file logs, opt-in metrics, configured agent
// launch commands.
func newEngine(ctx context.Context) (*engine.Engine, error) {
	root, err := repoRoot(ctx)
	if err != nil {
		return nil, err
	}
	return engine.New(root, engine.Options{
		Metrics:      metrics.FromEnv(root),
		Logger:       newLogger(root),
		LockTimeout:  config.GetDuration("lock-timeout"),
		AgentCommand: config.AgentCommand,
	})
}

// newLogger builds the command's logger, shared between the engine and the
// UI server so both write one trail.
func newLogger(root string) *slog.Logger {
	return logging.Setup(bubble.EngineLogFile(root), config.GetString("log-level"), verbose)
}

// actingAgent resolves the identity a protocol command speaks for.
func actingAgent() string {
	return config.ResolveAgent(agentFlag)
}

// output renders v in the requested format. Table rendering is the
// caller's; this handles json and yaml. format may come from --format or
// the global --json shorthand.
func output(format string, v any, renderTable func() string) error {
	if jsonOutput {
		format = "json"
	}
	switch format {
	case "", "table":
		fmt.Println(renderTable())
		return nil
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		out, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	default:
		return fmt.Errorf("unknown format %q (table, json, yaml)", format)
	}
}

// outputJSON prints v as indented JSON, for protocol commands whose result
// agents parse.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
