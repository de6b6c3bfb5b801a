// Package timeparse turns human time expressions ("yesterday", "2 hours
// ago", "2026-03-01") into absolute times for filters like list --since.
package timeparse

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var absoluteFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Parse resolves expr relative to now. Absolute timestamps are tried first
// so machine-formatted input never depends on the NLP rules.
func Parse(expr string, now time.Time) (time.Time, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}

	for _, layout := range absoluteFormats {
		if ts, err := time.ParseInLocation(layout, expr, now.Location()); err == nil {
			return ts, nil
		}
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	result, err := w.Parse(expr, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time expression %q: %w", expr, err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("unrecognized time expression %q", expr)
	}
	return result.Time, nil
}
