package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnvelopeSummary(t *testing.T) {
	cases := []struct {
		name                                string
		summary, question, message, decision string
		want                                string
	}{
		{"PassSummary", "auth ready", "", "", "", "auth ready"},
		{"Question", "", "drop the endpoint?", "", "", "drop the endpoint?"},
		{"Reply", "", "", "yes, drop it", "", "yes, drop it"},
		{"BareDecision", "", "", "", "approve", "[approve]"},
		{"DecisionWithSummary", "looks good", "", "", "approve", "[approve] looks good"},
		{"Empty", "", "", "", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := envelopeSummary(tc.summary, tc.question, tc.message, tc.decision)
			if got != tc.want {
				t.Errorf("envelopeSummary = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLoadMessageBody(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "messages"), 0o755); err != nil {
		t.Fatal(err)
	}
	body := "## Findings\n\n- nil deref in refresh path\n"
	if err := os.WriteFile(filepath.Join(dir, "messages", "0003-pass.md"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("ReadsMessageArtifact", func(t *testing.T) {
		got := loadMessageBody(dir, []string{"messages/0003-pass.md"})
		if got != "## Findings\n\n- nil deref in refresh path" {
			t.Errorf("unexpected body: %q", got)
		}
	})

	t.Run("SkipsNonMessageArtifacts", func(t *testing.T) {
		if got := loadMessageBody(dir, []string{"task.md", "review/notes.md"}); got != "" {
			t.Errorf("expected non-message refs skipped, got %q", got)
		}
	})

	t.Run("MissingFileIsSilent", func(t *testing.T) {
		if got := loadMessageBody(dir, []string{"messages/gone.md"}); got != "" {
			t.Errorf("expected empty body for missing file, got %q", got)
		}
	})

	t.Run("NoRefs", func(t *testing.T) {
		if got := loadMessageBody(dir, nil); got != "" {
			t.Errorf("expected empty body, got %q", got)
		}
	})
}
