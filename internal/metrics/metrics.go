// Package metrics emits engine lifecycle events as append-only NDJSON.
// Emission is opt-in: it activates only when PAIRFLOW_METRICS_EVENTS_ROOT
// names a directory. It is always best-effort; a failing metrics write
// must never fail the operation that produced the event.
package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// EnvRoot is the environment variable that activates event emission.
const EnvRoot = "PAIRFLOW_METRICS_EVENTS_ROOT"

// Event names emitted by the engine.
const (
	EventBubbleCreated    = "bubble_created"
	EventBubbleStarted    = "bubble_started"
	EventPass             = "pass"
	EventHumanQuestion    = "human_question"
	EventHumanReply       = "human_reply"
	EventConverged        = "converged"
	EventApprovalDecision = "approval_decision"
	EventCommitted        = "committed"
	EventBubbleDone       = "bubble_done"
	EventBubbleAborted    = "bubble_aborted"
	EventBubbleDeleted    = "bubble_deleted"
	EventReconcile        = "reconcile"
)

// Event is one NDJSON line in a daily events file.
type Event struct {
	TS       string         `json:"ts"`
	Event    string         `json:"event"`
	BubbleID string         `json:"bubble_id,omitempty"`
	Repo     string         `json:"repo,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// Emitter appends events under a root directory, one file per UTC day.
// A nil Emitter, or one constructed without a root, drops every event.
type Emitter struct {
	root string
	repo string
	now  func() time.Time
}

// FromEnv builds an Emitter from PAIRFLOW_METRICS_EVENTS_ROOT. The repo
// path is stamped onto every event so one events root can serve many
// repositories.
func FromEnv(repo string) *Emitter {
	return New(os.Getenv(EnvRoot), repo)
}

// New builds an Emitter rooted at dir. An empty dir disables emission.
func New(dir, repo string) *Emitter {
	return &Emitter{root: dir, repo: repo, now: time.Now}
}

// Enabled reports whether events will actually be written.
func (e *Emitter) Enabled() bool {
	return e != nil && e.root != ""
}

// Emit appends one event. Returns the write error for callers that want to
// log it; most ignore it.
func (e *Emitter) Emit(event, bubbleID string, fields map[string]any) error {
	if !e.Enabled() {
		return nil
	}
	now := e.now().UTC()
	rec := Event{
		TS:       now.Format(time.RFC3339),
		Event:    event,
		BubbleID: bubbleID,
		Repo:     e.repo,
		Fields:   fields,
	}

	if err := os.MkdirAll(e.root, 0o755); err != nil {
		return fmt.Errorf("creating events root: %w", err)
	}
	path := filepath.Join(e.root, "events-"+now.Format("2006-01-02")+".ndjson")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening events file: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		f.Close()
		return fmt.Errorf("appending event: %w", err)
	}
	return f.Close()
}
