package engine

import (
	"fmt"

	"github.com/pairflow/pairflow/internal/bubble"
	"github.com/pairflow/pairflow/internal/state"
)

// Pane briefings are single lines typed into an agent's pane. They carry
// just enough to orient the agent: identity, round, where the task lives,
// and the command to hand the turn back. Paths are absolute because the
// engine state dir sits outside the worktree the pane runs in.

func startBriefing(cfg *bubble.Config, paths bubble.Paths, role string) string {
	agent := cfg.Agent(role)
	if role == state.RoleReviewer {
		return fmt.Sprintf(
			"[pairflow %s] You are %s, the reviewer. Task: %s. Wait for a pass, then review this worktree and run `pairflow pass --bubble %s --agent %s --intent fix_request --summary ...` or `pairflow converged --bubble %s --agent %s --summary ...`.",
			cfg.ID, agent, paths.TaskFile, cfg.ID, agent, cfg.ID, agent)
	}
	return fmt.Sprintf(
		"[pairflow %s] You are %s, the implementer. Read %s and implement it in this worktree. When ready: `pairflow pass --bubble %s --agent %s --intent review --summary ...`. Questions: `pairflow ask-human --bubble %s --agent %s --question ...`.",
		cfg.ID, agent, paths.TaskFile, cfg.ID, agent, cfg.ID, agent)
}

func passNudge(cfg *bubble.Config, round int, fromAgent, intent, summary string) string {
	return fmt.Sprintf("[pairflow %s] round %d: %s passed you the turn (%s): %s",
		cfg.ID, round, fromAgent, intent, summary)
}

func replyNudge(cfg *bubble.Config, message string) string {
	return fmt.Sprintf("[pairflow %s] human replied: %s", cfg.ID, message)
}

func reviseNudge(cfg *bubble.Config, round int, message string) string {
	text := fmt.Sprintf("[pairflow %s] round %d: the human asked for revisions. You are the implementer again.", cfg.ID, round)
	if message != "" {
		text += " Notes: " + message
	}
	return text
}
