// Package ui provides terminal styling and output helpers for the pairflow CLI.
package ui

import (
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal returns true if stdout is connected to a terminal (TTY).
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor determines if ANSI color codes should be used.
// Respects standard conventions:
//   - NO_COLOR: https://no-color.org/ - disables color if set
//   - CLICOLOR=0: disables color
//   - CLICOLOR_FORCE: forces color even in non-TTY
//   - Falls back to terminal capability detection
func ShouldUseColor() bool {
	// NO_COLOR standard - any value disables color
	if os.Getenv("NO_COLOR") != "" {
		return false
	}

	// CLICOLOR=0 disables color
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}

	// CLICOLOR_FORCE forces color even in non-TTY
	if os.Getenv("CLICOLOR_FORCE") != "" {
		return true
	}

	if !IsTerminal() {
		return false
	}

	// A dumb terminal gets no color even when attached.
	return termenv.EnvColorProfile() != termenv.Ascii
}

var emojiOverride *bool

// SetEmoji overrides emoji auto-detection, typically from the no-emoji
// config key at startup.
func SetEmoji(enabled bool) {
	emojiOverride = &enabled
}

// ShouldUseEmoji determines if emoji decorations should be used.
// Disabled in non-TTY mode to keep output machine-readable.
// Can be controlled with the PAIRFLOW_NO_EMOJI environment variable.
func ShouldUseEmoji() bool {
	if emojiOverride != nil {
		return *emojiOverride
	}

	// Explicit disable
	if os.Getenv("PAIRFLOW_NO_EMOJI") != "" {
		return false
	}

	// Default: use emoji only if stdout is a TTY
	return IsTerminal()
}

// GetWidth returns the width of the terminal or a default value.
func GetWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}
