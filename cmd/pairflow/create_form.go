package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/pairflow/pairflow/internal/bubble"
	"github.com/pairflow/pairflow/internal/engine"
)

// createFormInput holds the raw string values from the form UI before
// parsing, so the conversion logic can be tested without a terminal.
type createFormInput struct {
	Task        string
	Title       string
	Base        string
	Implementer string
	Reviewer    string
	MaxRounds   string // numeric input arrives as text
	Watchdog    string
	NoApproval  bool
}

// applyCreateForm parses raw form values onto opts. Empty fields leave the
// existing (config-derived) values alone.
func applyCreateForm(raw *createFormInput, opts *engine.CreateOptions) error {
	opts.Task = raw.Task
	opts.Title = strings.TrimSpace(raw.Title)
	if base := strings.TrimSpace(raw.Base); base != "" {
		opts.BaseBranch = base
	}
	if raw.Implementer != "" {
		opts.Implementer = raw.Implementer
	}
	if raw.Reviewer != "" {
		opts.Reviewer = raw.Reviewer
	}
	if s := strings.TrimSpace(raw.MaxRounds); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return fmt.Errorf("max rounds must be a positive number, got %q", s)
		}
		opts.MaxRounds = n
	}
	if s := strings.TrimSpace(raw.Watchdog); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return fmt.Errorf("watchdog minutes must be a positive number, got %q", s)
		}
		opts.WatchdogTimeoutMinutes = n
	}
	if raw.NoApproval {
		f := false
		opts.CommitRequiresApproval = &f
	}
	return nil
}

// runCreateForm collects bubble settings interactively and applies them to
// opts. Defaults shown in the form come from opts as seeded by config.
func runCreateForm(opts *engine.CreateOptions) error {
	raw := &createFormInput{
		Implementer: opts.Implementer,
		Reviewer:    opts.Reviewer,
	}

	agentOptions := []huh.Option[string]{
		huh.NewOption("codex", bubble.AgentCodex),
		huh.NewOption("claude", bubble.AgentClaude),
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Title("Task brief").
				Description("What should the pair build? First line becomes the title.").
				Placeholder("Add a /healthz endpoint returning build info...").
				CharLimit(5000).
				Value(&raw.Task).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("a task brief is required")
					}
					return nil
				}),

			huh.NewInput().
				Title("Title").
				Description("One-line summary (optional)").
				Value(&raw.Title),

			huh.NewInput().
				Title("Base branch").
				Description("Branch the bubble forks from (default: current)").
				Value(&raw.Base),
		),

		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Implementer").
				Description("Agent writing the change").
				Options(agentOptions...).
				Value(&raw.Implementer),

			huh.NewSelect[string]().
				Title("Reviewer").
				Description("Agent reviewing each round").
				Options(agentOptions...).
				Value(&raw.Reviewer),

			huh.NewInput().
				Title("Max rounds").
				Description(fmt.Sprintf("Revision rounds before revise is refused (default %d)", opts.MaxRounds)).
				Value(&raw.MaxRounds),

			huh.NewInput().
				Title("Watchdog minutes").
				Description(fmt.Sprintf("Silence tolerated before the bubble is flagged (default %d)", opts.WatchdogTimeoutMinutes)).
				Value(&raw.Watchdog),

			huh.NewConfirm().
				Title("Skip human approval gate?").
				Description("Converged work then goes straight to APPROVED_FOR_COMMIT").
				Affirmative("Skip it").
				Negative("Keep the gate").
				Value(&raw.NoApproval),
		),

		huh.NewGroup(
			huh.NewConfirm().
				Title("Create this bubble?").
				Affirmative("Create").
				Negative("Cancel"),
		),
	).WithTheme(huh.ThemeDracula())

	if err := form.Run(); err != nil {
		if err == huh.ErrUserAborted {
			fmt.Fprintln(os.Stderr, "Bubble creation canceled.")
			os.Exit(0)
		}
		return fmt.Errorf("form error: %w", err)
	}

	return applyCreateForm(raw, opts)
}
