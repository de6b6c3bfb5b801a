package main

import "testing"

func TestFlattenSettings(t *testing.T) {
	flat := flattenSettings("", map[string]any{
		"format":     "table",
		"no-emoji":   false,
		"max-rounds": 8,
		"agents": map[string]any{
			"implementer": "codex",
			"reviewer":    "claude",
		},
	})

	want := map[string]string{
		"format":             "table",
		"no-emoji":           "false",
		"max-rounds":         "8",
		"agents.implementer": "codex",
		"agents.reviewer":    "claude",
	}
	if len(flat) != len(want) {
		t.Fatalf("got %d keys, want %d: %v", len(flat), len(want), flat)
	}
	for key, val := range want {
		if flat[key] != val {
			t.Errorf("flat[%q] = %q, want %q", key, flat[key], val)
		}
	}
}

func TestFlattenSettingsNestedPrefix(t *testing.T) {
	flat := flattenSettings("", map[string]any{
		"ui": map[string]any{
			"addr": "127.0.0.1:7433",
		},
	})
	if flat["ui.addr"] != "127.0.0.1:7433" {
		t.Fatalf("ui.addr = %q, want the nested value under a dotted key", flat["ui.addr"])
	}
	if _, ok := flat["ui"]; ok {
		t.Error("parent map key must not appear as a leaf")
	}
}
