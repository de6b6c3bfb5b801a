package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pairflow/pairflow/internal/config"
	"github.com/pairflow/pairflow/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show effective tool configuration",
	Long: `Show the tool-level configuration pairflow runs with on this machine.

Values come from three layers, highest precedence first: PAIRFLOW_*
environment variables, the first .pairflow/config.yaml found walking up
from the working directory (falling back to ~/.config/pairflow/), and
built-in defaults. Per-bubble settings frozen into bubble.toml at create
time are not shown here; see bubble show.

Examples:
  pairflow config list
  pairflow config get agents.implementer
  PAIRFLOW_LOCK_TIMEOUT=30s pairflow config get lock-timeout`,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every effective setting",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := flattenSettings("", config.AllSettings())
		file := config.ConfigFileUsed()

		if jsonOutput {
			return outputJSON(map[string]any{
				"config_file": file,
				"settings":    settings,
			})
		}

		if file != "" {
			fmt.Println(ui.RenderMuted("# " + file))
		} else {
			fmt.Println(ui.RenderMuted("# defaults and environment only"))
		}
		keys := make([]string, 0, len(settings))
		for key := range settings {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Printf("%s = %s\n", key, settings[key])
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one effective setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		value, ok := flattenSettings("", config.AllSettings())[key]

		if jsonOutput {
			return outputJSON(map[string]any{"key": key, "value": value, "set": ok})
		}
		if !ok {
			fmt.Printf("%s %s\n", key, ui.RenderMuted("(not set)"))
			return nil
		}
		fmt.Println(value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configGetCmd)
	rootCmd.AddCommand(configCmd)
}

// flattenSettings turns viper's nested settings map into dotted keys, the
// shape users write in config.yaml and PAIRFLOW_* variables.
func flattenSettings(prefix string, in map[string]any) map[string]string {
	out := map[string]string{}
	for key, val := range in {
		name := key
		if prefix != "" {
			name = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			for k, v := range flattenSettings(name, nested) {
				out[k] = v
			}
			continue
		}
		out[name] = fmt.Sprintf("%v", val)
	}
	return out
}
