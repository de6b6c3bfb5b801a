package main

import (
	"testing"
	"time"

	"github.com/pairflow/pairflow/internal/envelope"
	"github.com/pairflow/pairflow/internal/transcript"
)

func TestInboxEntries(t *testing.T) {
	ts := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	entries := []transcript.Entry{
		{Seq: 1, Envelope: envelope.Envelope{
			ID: "e1", TS: ts, Type: envelope.TypeHumanQuestion,
			Payload: envelope.Payload{Question: "drop the endpoint?"},
		}},
		{Seq: 2, Envelope: envelope.Envelope{
			ID: "e2", TS: ts, Type: envelope.TypeApprovalRequest,
			Payload: envelope.Payload{Summary: "round 3 converged"},
		}},
	}
	pending := map[string]bool{"e2": true}

	rows := inboxEntries(entries, pending)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if !rows[0].Resolved {
		t.Error("expected e1 marked resolved")
	}
	if rows[0].Summary != "drop the endpoint?" {
		t.Errorf("expected question as summary, got %q", rows[0].Summary)
	}
	if rows[1].Resolved {
		t.Error("expected e2 still pending")
	}
	if rows[1].Type != "APPROVAL_REQUEST" {
		t.Errorf("expected type mapping, got %q", rows[1].Type)
	}
}
