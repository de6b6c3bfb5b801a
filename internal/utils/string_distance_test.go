package utils

import (
	"testing"
)

func TestComputeDistance(t *testing.T) {
	tests := []struct {
		s1       string
		s2       string
		expected int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"abc", "abc", 0},
		{"ABC", "abc", 0}, // case-insensitive
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"pf-a1b2c3d4", "pf-a1b2c3d5", 1},
		{"pf-a1b2c3d4", "pf-a1b2cd34", 2}, // transposed pair
	}

	for _, tc := range tests {
		t.Run(tc.s1+"/"+tc.s2, func(t *testing.T) {
			result := ComputeDistance(tc.s1, tc.s2)
			if result != tc.expected {
				t.Errorf("ComputeDistance(%q, %q) = %d; want %d",
					tc.s1, tc.s2, result, tc.expected)
			}
		})
	}
}

func TestFuzzyMatch(t *testing.T) {
	tests := []struct {
		source   string
		target   string
		expected bool
	}{
		{"", "anything", true},
		{"abc", "abc", true},
		{"ac", "abc", true},       // subsequence
		{"AC", "abc", true},       // case-insensitive
		{"ca", "abc", false},      // order matters
		{"abcd", "abc", false},    // source longer than target
		{"a1b2", "pf-a1b2c3d4", true},
		{"xyz", "pf-a1b2c3d4", false},
	}

	for _, tc := range tests {
		t.Run(tc.source+"/"+tc.target, func(t *testing.T) {
			result := FuzzyMatch(tc.source, tc.target)
			if result != tc.expected {
				t.Errorf("FuzzyMatch(%q, %q) = %v; want %v",
					tc.source, tc.target, result, tc.expected)
			}
		})
	}
}
