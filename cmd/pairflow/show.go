package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pairflow/pairflow/internal/bubble"
	"github.com/pairflow/pairflow/internal/engine"
	"github.com/pairflow/pairflow/internal/transcript"
	"github.com/pairflow/pairflow/internal/ui"
)

// paneTailLines is how much scrollback show captures per agent pane.
const paneTailLines = 15

var bubbleShowCmd = &cobra.Command{
	Use:   "show <bubble-id>",
	Short: "Show a bubble's task and conversation",
	Long: `Show the bubble's task brief and its full transcript, rendered for
reading. Long-form message bodies stored as artifacts are inlined.

  pairflow bubble show b_01            # task + transcript
  pairflow bubble show b_01 --task     # just the brief
  pairflow bubble show b_01 --panes    # include live pane output
  pairflow bubble show b_01 --transcript --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runBubbleShow,
}

func init() {
	f := bubbleShowCmd.Flags()
	f.Bool("task", false, "show only the task brief")
	f.Bool("transcript", false, "show only the transcript")
	f.Bool("panes", false, "also capture the tail of each live agent pane")
	f.String("format", "", "output format: table, json, or yaml")
	bubbleCmd.AddCommand(bubbleShowCmd)
}

func runBubbleShow(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	onlyTask, _ := flags.GetBool("task")
	onlyTranscript, _ := flags.GetBool("transcript")
	withPanes, _ := flags.GetBool("panes")

	eng, err := newEngine(rootCtx)
	if err != nil {
		return err
	}
	id := args[0]

	var task string
	if !onlyTranscript {
		if task, err = eng.Task(rootCtx, id); err != nil {
			return suggestOnNotFound(eng, err)
		}
	}
	var entries []transcript.Entry
	if !onlyTask {
		if entries, err = eng.Transcript(rootCtx, id); err != nil {
			return suggestOnNotFound(eng, err)
		}
	}
	var tails []engine.PaneTail
	if withPanes {
		if tails, err = eng.PaneTails(rootCtx, id, paneTailLines); err != nil {
			return suggestOnNotFound(eng, err)
		}
	}

	format := mustString(flags, "format")
	payload := map[string]any{}
	if !onlyTranscript {
		payload["task"] = task
	}
	if !onlyTask {
		payload["transcript"] = entries
	}
	if withPanes {
		payload["panes"] = tails
	}
	return output(format, payload, func() string {
		var sections []string
		if !onlyTranscript {
			sections = append(sections, ui.TitleStyle.Render("Task"), ui.RenderMarkdown(task))
		}
		if !onlyTask {
			sections = append(sections,
				ui.TitleStyle.Render("Transcript"),
				ui.RenderTranscript(displayEntries(eng, id, entries), ui.GetWidth()))
		}
		if withPanes {
			sections = append(sections, renderPaneTails(tails))
		}
		return strings.Join(sections, "\n")
	})
}

func renderPaneTails(tails []engine.PaneTail) string {
	sections := []string{ui.TitleStyle.Render("Panes")}
	if len(tails) == 0 {
		return strings.Join(append(sections, ui.RenderMuted("session is not running")), "\n")
	}
	width := ui.GetWidth() - 4
	for _, tail := range tails {
		sections = append(sections,
			ui.RenderMuted(fmt.Sprintf("%s (%s)", tail.Role, tail.Agent)),
			ui.BoxStyle.Width(width).Render(tail.Text))
	}
	return strings.Join(sections, "\n")
}

// displayEntries converts log entries for rendering, inlining artifact
// bodies stored under the bubble's artifacts directory.
func displayEntries(eng *engine.Engine, id string, entries []transcript.Entry) []ui.TranscriptEntry {
	var artifactsDir string
	if paths, err := bubble.Layout(eng.Repo(), id); err == nil {
		artifactsDir = paths.ArtifactsDir
	}

	out := make([]ui.TranscriptEntry, 0, len(entries))
	for _, entry := range entries {
		env := entry.Envelope
		item := ui.TranscriptEntry{
			Time:      env.TS.Local().Format("Jan 02 15:04"),
			Round:     env.Round,
			Type:      string(env.Type),
			Sender:    string(env.Sender),
			Recipient: string(env.Recipient),
			Summary:   envelopeSummary(env.Payload.Summary, env.Payload.Question, env.Payload.Message, env.Payload.Decision),
		}
		if artifactsDir != "" {
			item.Body = loadMessageBody(artifactsDir, env.ArtifactPaths())
		}
		out = append(out, item)
	}
	return out
}

// envelopeSummary picks the payload field that carries the human-readable
// line for this envelope type.
func envelopeSummary(summary, question, message, decision string) string {
	switch {
	case summary != "" && decision != "":
		return fmt.Sprintf("[%s] %s", decision, summary)
	case decision != "":
		return "[" + decision + "]"
	case summary != "":
		return summary
	case question != "":
		return question
	default:
		return message
	}
}

// loadMessageBody reads the first long-form message artifact, if any.
// Other artifact kinds (the task brief, review notes) stay as references.
func loadMessageBody(artifactsDir string, paths []string) string {
	for _, rel := range paths {
		if !strings.HasPrefix(rel, "messages/") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(artifactsDir, filepath.FromSlash(rel)))
		if err != nil {
			continue
		}
		return strings.TrimSpace(string(data))
	}
	return ""
}
