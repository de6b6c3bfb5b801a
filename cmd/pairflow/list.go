package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pairflow/pairflow/internal/engine"
	"github.com/pairflow/pairflow/internal/state"
	"github.com/pairflow/pairflow/internal/timeparse"
	"github.com/pairflow/pairflow/internal/ui"
)

var bubbleListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List bubbles in this repository",
	Long: `List every bubble under the repository, one row each, including broken
ones (unreadable state shows as an error row rather than hiding the
bubble).

--since accepts natural language via the same parser agents use:
  pairflow bubble list --since yesterday
  pairflow bubble list --since "3 days ago" --state RUNNING,WAITING_HUMAN`,
	Args: cobra.NoArgs,
	RunE: runBubbleList,
}

func init() {
	f := bubbleListCmd.Flags()
	f.String("state", "", "comma-separated lifecycle states to keep")
	f.String("since", "", "only bubbles with activity at or after this time")
	f.String("format", "", "output format: table, json, or yaml")
	bubbleCmd.AddCommand(bubbleListCmd)
}

// parseStates turns a comma list into lifecycle values, rejecting unknowns.
func parseStates(raw string) ([]state.Lifecycle, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var states []state.Lifecycle
	for _, part := range strings.Split(raw, ",") {
		st := state.Lifecycle(strings.ToUpper(strings.TrimSpace(part)))
		if !state.ValidLifecycle(st) {
			return nil, fmt.Errorf("unknown state %q", part)
		}
		states = append(states, st)
	}
	return states, nil
}

// parseSince resolves a natural-language or RFC-3339 time expression.
func parseSince(raw string, now time.Time) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	return timeparse.Parse(raw, now)
}

func runBubbleList(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	states, err := parseStates(mustString(flags, "state"))
	if err != nil {
		return err
	}
	since, err := parseSince(mustString(flags, "since"), time.Now())
	if err != nil {
		return err
	}

	eng, err := newEngine(rootCtx)
	if err != nil {
		return err
	}
	items, err := eng.List(rootCtx, engine.ListFilter{States: states, Since: since})
	if err != nil {
		return err
	}

	format := mustString(flags, "format")
	return output(format, map[string]any{"bubbles": items}, func() string {
		return ui.RenderBubbleTable(bubbleRows(items, time.Now()), ui.GetWidth())
	})
}
