package transcript

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pairflow/pairflow/internal/envelope"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testEnv(typ envelope.Type, round int, p envelope.Payload, refs ...string) envelope.Envelope {
	return envelope.New("b_01", typ, envelope.PartyOrchestrator, envelope.PartyHuman, round, p, refs, testTime)
}

func TestAppendAssignsSequence(t *testing.T) {
	log := &Log{Path: filepath.Join(t.TempDir(), "transcript.ndjson")}

	for i := 0; i < 3; i++ {
		seq, err := log.Append(testEnv(envelope.TypeTask, 0, envelope.Payload{Summary: "task"}))
		if err != nil {
			t.Fatalf("Append #%d: %v", i, err)
		}
		if seq != i {
			t.Errorf("Append #%d seq = %d", i, seq)
		}
	}

	n, err := log.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}

	entries, err := log.Read()
	if err != nil {
		t.Fatal(err)
	}
	for i, e := range entries {
		if e.Seq != i {
			t.Errorf("entry %d has seq %d", i, e.Seq)
		}
	}
}

func TestAppendWritesOneLinePerEnvelope(t *testing.T) {
	log := &Log{Path: filepath.Join(t.TempDir(), "t.ndjson")}
	if _, err := log.Append(testEnv(envelope.TypeTask, 0, envelope.Payload{Summary: "multi\nline\nsummary"})); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(log.Path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "\n"); got != 1 {
		t.Fatalf("file has %d newlines, want 1", got)
	}
	if !strings.HasSuffix(string(data), "\n") {
		t.Fatal("file does not end with newline")
	}
}

func TestReadMissingIsEmpty(t *testing.T) {
	log := &Log{Path: filepath.Join(t.TempDir(), "missing.ndjson")}
	entries, err := log.Read()
	if err != nil || entries != nil {
		t.Fatalf("Read = %v, %v; want nil, nil", entries, err)
	}
	last, err := log.Last()
	if err != nil || last != nil {
		t.Fatalf("Last = %v, %v; want nil, nil", last, err)
	}
	n, err := log.Count()
	if err != nil || n != 0 {
		t.Fatalf("Count = %d, %v", n, err)
	}
}

func TestReadReportsLineNumber(t *testing.T) {
	log := &Log{Path: filepath.Join(t.TempDir(), "t.ndjson")}
	if _, err := log.Append(testEnv(envelope.TypeTask, 0, envelope.Payload{Summary: "ok"})); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(log.Path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("   \n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	_, err = log.Read()
	var pe *envelope.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ParseError", err)
	}
	if pe.Line != 2 {
		t.Errorf("ParseError.Line = %d, want 2", pe.Line)
	}
}

func TestLast(t *testing.T) {
	log := &Log{Path: filepath.Join(t.TempDir(), "t.ndjson")}
	first := testEnv(envelope.TypeTask, 0, envelope.Payload{Summary: "one"})
	second := testEnv(envelope.TypePass, 1, envelope.Payload{Summary: "two", PassIntent: envelope.IntentReview})
	if _, err := log.Append(first); err != nil {
		t.Fatal(err)
	}
	if _, err := log.Append(second); err != nil {
		t.Fatal(err)
	}
	last, err := log.Last()
	if err != nil {
		t.Fatal(err)
	}
	if last == nil || last.Envelope.ID != second.ID || last.Seq != 1 {
		t.Fatalf("Last = %+v", last)
	}
}

func TestPending(t *testing.T) {
	dir := t.TempDir()
	inbox := &Log{Path: filepath.Join(dir, "inbox.ndjson")}
	tr := &Log{Path: filepath.Join(dir, "transcript.ndjson")}

	q1 := testEnv(envelope.TypeHumanQuestion, 1, envelope.Payload{Question: "db?"})
	q2 := testEnv(envelope.TypeHumanQuestion, 1, envelope.Payload{Question: "schema?"})
	req := testEnv(envelope.TypeApprovalRequest, 1, envelope.Payload{Summary: "done"})

	for _, e := range []envelope.Envelope{q1, q2, req} {
		if _, err := tr.Append(e); err != nil {
			t.Fatal(err)
		}
		if _, err := inbox.Append(e); err != nil {
			t.Fatal(err)
		}
	}

	// Everything pending before any resolution.
	pending, err := Pending(inbox, tr)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 3 {
		t.Fatalf("pending = %d, want 3", len(pending))
	}
	counts := CountPending(pending)
	if counts.HumanQuestions != 2 || counts.ApprovalRequests != 1 {
		t.Errorf("counts = %+v", counts)
	}

	// A reply resolving q1 leaves q2 and the approval request.
	reply := envelope.New("b_01", envelope.TypeHumanReply, envelope.PartyHuman, envelope.PartyCodex, 1,
		envelope.Payload{Message: "postgres"}, []string{envelope.EnvelopeRef(q1.ID)}, testTime)
	if _, err := tr.Append(reply); err != nil {
		t.Fatal(err)
	}
	pending, err = Pending(inbox, tr)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending after reply = %d, want 2", len(pending))
	}
	for _, p := range pending {
		if p.Envelope.ID == q1.ID {
			t.Error("q1 still pending after resolution")
		}
	}

	// A decision resolving the approval request leaves only q2.
	decision := envelope.New("b_01", envelope.TypeApprovalDecision, envelope.PartyHuman, envelope.PartyOrchestrator, 1,
		envelope.Payload{Decision: envelope.DecisionApprove}, []string{envelope.EnvelopeRef(req.ID)}, testTime)
	if _, err := tr.Append(decision); err != nil {
		t.Fatal(err)
	}
	pending, err = Pending(inbox, tr)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Envelope.ID != q2.ID {
		t.Fatalf("pending after decision = %+v", pending)
	}
}

func TestPendingEmptyInbox(t *testing.T) {
	dir := t.TempDir()
	pending, err := Pending(&Log{Path: filepath.Join(dir, "inbox.ndjson")}, &Log{Path: filepath.Join(dir, "transcript.ndjson")})
	if err != nil {
		t.Fatal(err)
	}
	if pending != nil {
		t.Fatalf("pending = %v, want nil", pending)
	}
}
