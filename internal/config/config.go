// Package config holds the tool-level configuration singleton: everything
// that is about how pairflow runs on this machine, as opposed to the
// per-bubble settings frozen into bubble.toml at create time.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton. Called once at
// startup, before any command runs.
//
// Precedence: environment > config file > defaults. The config file is the
// first .pairflow/config.yaml found walking up from the working directory,
// falling back to ~/.config/pairflow/config.yaml.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	configFileSet := false

	// Walk up from CWD so commands work from repo subdirectories.
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".pairflow", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "pairflow", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// PAIRFLOW_LOCK_TIMEOUT maps to "lock-timeout", PAIRFLOW_UI_ADDR to
	// "ui.addr", and so on.
	v.SetEnvPrefix("PAIRFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("agent", "")
	v.SetDefault("format", "table")
	v.SetDefault("no-emoji", false)
	v.SetDefault("log-level", "info")
	v.SetDefault("lock-timeout", "5s")

	// Defaults baked into new bubbles by create.
	v.SetDefault("agents.implementer", "codex")
	v.SetDefault("agents.reviewer", "claude")
	v.SetDefault("watchdog-timeout-minutes", 10)
	v.SetDefault("max-rounds", 8)
	v.SetDefault("commit-requires-approval", true)

	// Launch commands for agent panes; override when the CLI is not on
	// PATH under its plain name.
	v.SetDefault("commands.codex", "codex")
	v.SetDefault("commands.claude", "claude")

	v.SetDefault("ui.addr", "127.0.0.1:7433")

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// ConfigFileUsed returns the path of the loaded config file, empty when
// running on defaults and environment only.
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// ResolveAgent resolves which agent identity this process speaks for.
// Priority: flag value, then PAIRFLOW_AGENT / config "agent" key. Empty
// means the caller must ask the user.
func ResolveAgent(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return GetString("agent")
}

// AgentCommand returns the launch command for an agent pane.
func AgentCommand(agent string) string {
	if cmd := GetString("commands." + agent); cmd != "" {
		return cmd
	}
	return agent
}

// GetString retrieves a string configuration value.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set overrides a configuration value. Used by flag plumbing and tests.
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// AllSettings returns every configuration setting as a map.
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}
