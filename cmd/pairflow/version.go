package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/pairflow/pairflow/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		commit := resolveCommit()
		if jsonOutput {
			result := map[string]string{"version": version.Version}
			if commit != "" {
				result["commit"] = commit
			}
			_ = outputJSON(result)
			return
		}
		if commit != "" {
			fmt.Printf("pairflow version %s (%s)\n", version.Version, shortCommit(commit))
		} else {
			fmt.Printf("pairflow version %s\n", version.Version)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func resolveCommit() string {
	if version.Commit != "" && version.Commit != "dev" {
		return version.Commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && setting.Value != "" {
				return setting.Value
			}
		}
	}
	return ""
}

func shortCommit(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
