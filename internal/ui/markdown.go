package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// RenderMarkdown renders markdown for terminal display. When stdout is not
// a styled terminal, or rendering fails, it returns the source unchanged so
// piped output stays machine-readable.
func RenderMarkdown(source string) string {
	if !ShouldUseColor() {
		return source
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(GetWidth()),
	)
	if err != nil {
		return source
	}

	out, err := r.Render(source)
	if err != nil {
		return source
	}
	return strings.TrimRight(out, "\n") + "\n"
}
