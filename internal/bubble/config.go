package bubble

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Agent names understood by the engine. Each maps to an external CLI hosted
// inside a tmux pane.
const (
	AgentCodex  = "codex"
	AgentClaude = "claude"
)

// Config validation errors.
var (
	ErrMissingField = errors.New("missing required field")
	ErrInvalidField = errors.New("invalid field value")
)

// Agents maps the two collaboration roles to agent names. The mapping is
// fixed for the bubble's lifetime; which seat holds the turn lives in state.
type Agents struct {
	Implementer string `toml:"implementer"`
	Reviewer    string `toml:"reviewer"`
}

// LocalOverlay describes repository files mirrored into the bubble worktree
// after checkout, for things git does not carry (.env files, caches).
type LocalOverlay struct {
	Enabled bool     `toml:"enabled"`
	Mode    string   `toml:"mode"` // symlink | copy
	Entries []string `toml:"entries"`
}

// Config is the immutable per-bubble configuration, stored as bubble.toml.
// Created once by create, never mutated, deleted with the bubble.
type Config struct {
	ID                     string `toml:"id"`
	RepoPath               string `toml:"repo_path"`
	BaseBranch             string `toml:"base_branch"`
	BubbleBranch           string `toml:"bubble_branch"`
	WorkMode               string `toml:"work_mode"`
	QualityMode            string `toml:"quality_mode"`
	ReviewArtifactType     string `toml:"review_artifact_type"`
	ReviewerContextMode    string `toml:"reviewer_context_mode"`
	WatchdogTimeoutMinutes int    `toml:"watchdog_timeout_minutes"`
	MaxRounds              int    `toml:"max_rounds"`
	CommitRequiresApproval bool   `toml:"commit_requires_approval"`

	Agents Agents `toml:"agents"`

	// Commands holds the named verification commands agents run inside the
	// worktree. "test" and "typecheck" are conventional; extra keys pass
	// through untouched.
	Commands map[string]string `toml:"commands"`

	LocalOverlay LocalOverlay `toml:"local_overlay"`
}

// DefaultConfig returns a Config with every defaulted field populated.
func DefaultConfig(id, repoPath, baseBranch string) *Config {
	return &Config{
		ID:                     id,
		RepoPath:               repoPath,
		BaseBranch:             baseBranch,
		BubbleBranch:           BranchName(id),
		WorkMode:               "worktree",
		QualityMode:            "strict",
		ReviewArtifactType:     "auto",
		ReviewerContextMode:    "fresh",
		WatchdogTimeoutMinutes: 10,
		MaxRounds:              8,
		CommitRequiresApproval: true,
		Agents: Agents{
			Implementer: AgentCodex,
			Reviewer:    AgentClaude,
		},
		Commands: map[string]string{},
	}
}

// Validate checks enum fields, agent distinctness and numeric ranges.
func (c *Config) Validate() error {
	if err := ValidateID(c.ID); err != nil {
		return err
	}
	if c.RepoPath == "" {
		return fmt.Errorf("%w: repo_path", ErrMissingField)
	}
	if c.BaseBranch == "" {
		return fmt.Errorf("%w: base_branch", ErrMissingField)
	}
	if c.BubbleBranch != BranchName(c.ID) {
		return fmt.Errorf("%w: bubble_branch must be %s", ErrInvalidField, BranchName(c.ID))
	}
	if c.WorkMode != "worktree" {
		return fmt.Errorf("%w: work_mode %q (only \"worktree\" is supported)", ErrInvalidField, c.WorkMode)
	}
	if c.QualityMode != "strict" {
		return fmt.Errorf("%w: quality_mode %q (only \"strict\" is supported)", ErrInvalidField, c.QualityMode)
	}
	if c.ReviewArtifactType != "auto" {
		return fmt.Errorf("%w: review_artifact_type %q (only \"auto\" is supported)", ErrInvalidField, c.ReviewArtifactType)
	}
	if c.ReviewerContextMode != "fresh" {
		return fmt.Errorf("%w: reviewer_context_mode %q (only \"fresh\" is supported)", ErrInvalidField, c.ReviewerContextMode)
	}
	if c.WatchdogTimeoutMinutes <= 0 {
		return fmt.Errorf("%w: watchdog_timeout_minutes must be positive", ErrInvalidField)
	}
	if c.MaxRounds <= 0 {
		return fmt.Errorf("%w: max_rounds must be positive", ErrInvalidField)
	}
	if err := validateAgent(c.Agents.Implementer); err != nil {
		return err
	}
	if err := validateAgent(c.Agents.Reviewer); err != nil {
		return err
	}
	if c.Agents.Implementer == c.Agents.Reviewer {
		return fmt.Errorf("%w: agents.implementer and agents.reviewer must differ", ErrInvalidField)
	}
	if c.LocalOverlay.Enabled {
		if c.LocalOverlay.Mode != "symlink" && c.LocalOverlay.Mode != "copy" {
			return fmt.Errorf("%w: local_overlay.mode %q (want \"symlink\" or \"copy\")", ErrInvalidField, c.LocalOverlay.Mode)
		}
	}
	return nil
}

func validateAgent(name string) error {
	switch name {
	case AgentCodex, AgentClaude:
		return nil
	case "":
		return fmt.Errorf("%w: agents", ErrMissingField)
	default:
		return fmt.Errorf("%w: agent %q (want %q or %q)", ErrInvalidField, name, AgentCodex, AgentClaude)
	}
}

// WatchdogTimeout returns the configured watchdog window as a duration.
func (c *Config) WatchdogTimeout() time.Duration {
	return time.Duration(c.WatchdogTimeoutMinutes) * time.Minute
}

// Agent returns the agent name assigned to role.
func (c *Config) Agent(role string) string {
	if role == "reviewer" {
		return c.Agents.Reviewer
	}
	return c.Agents.Implementer
}

// LoadConfig reads and validates bubble.toml. A missing file maps to
// NotFoundError because the config file is what makes a bubble directory a
// bubble.
func LoadConfig(path, id string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("reading bubble config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("bubble config %s: %w", path, err)
	}
	return &cfg, nil
}

// WriteFile persists the config. Create-only: the config is immutable after
// creation, so overwriting an existing file is always a bug.
func (c *Config) WriteFile(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating bubble config: %w", err)
	}
	enc := toml.NewEncoder(f)
	if err := enc.Encode(c); err != nil {
		f.Close()
		return fmt.Errorf("encoding bubble config: %w", err)
	}
	return f.Close()
}
