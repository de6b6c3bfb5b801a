// Package envelope defines the protocol record exchanged between agents,
// the orchestrator, and the human, together with its NDJSON wire codec.
// Envelopes are the atomic unit of the bubble transcript: one JSON object
// per line, append-only, never edited.
package envelope

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Party identifies a protocol participant.
type Party string

const (
	PartyCodex        Party = "codex"
	PartyClaude       Party = "claude"
	PartyOrchestrator Party = "orchestrator"
	PartyHuman        Party = "human"
)

// ValidParty reports whether p is one of the four known participants.
func ValidParty(p Party) bool {
	switch p {
	case PartyCodex, PartyClaude, PartyOrchestrator, PartyHuman:
		return true
	}
	return false
}

// Type discriminates the envelope variants.
type Type string

const (
	TypeTask             Type = "TASK"
	TypePass             Type = "PASS"
	TypeHumanQuestion    Type = "HUMAN_QUESTION"
	TypeHumanReply       Type = "HUMAN_REPLY"
	TypeConvergence      Type = "CONVERGENCE"
	TypeApprovalRequest  Type = "APPROVAL_REQUEST"
	TypeApprovalDecision Type = "APPROVAL_DECISION"
	TypeDonePackage      Type = "DONE_PACKAGE"
)

// Approval decisions carried by APPROVAL_DECISION payloads.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
	DecisionRevise  = "revise"
)

// Pass intents carried by PASS payloads.
const (
	IntentTask       = "task"
	IntentReview     = "review"
	IntentFixRequest = "fix_request"
)

// ErrInvalid is wrapped by every emit-time validation failure.
var ErrInvalid = errors.New("invalid envelope")

// Payload is the open union of per-type fields. Which fields are required
// depends on Type; see Validate. Metadata is open-ended and passes through
// untouched for third-party transcript readers.
type Payload struct {
	Summary    string         `json:"summary,omitempty"`
	Question   string         `json:"question,omitempty"`
	Message    string         `json:"message,omitempty"`
	Decision   string         `json:"decision,omitempty"`
	PassIntent string         `json:"pass_intent,omitempty"`
	Findings   []string       `json:"findings,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Envelope is one protocol record. Field names are part of the wire format;
// third parties reading transcripts rely on them.
type Envelope struct {
	ID        string    `json:"id"`
	TS        time.Time `json:"ts"`
	BubbleID  string    `json:"bubble_id"`
	Sender    Party     `json:"sender"`
	Recipient Party     `json:"recipient"`
	Type      Type      `json:"type"`
	Round     int       `json:"round"`
	Payload   Payload   `json:"payload"`
	Refs      []string  `json:"refs,omitempty"`
}

// New constructs an envelope with a fresh unique ID and a UTC timestamp.
func New(bubbleID string, typ Type, sender, recipient Party, round int, payload Payload, refs []string, now time.Time) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		TS:        now.UTC(),
		BubbleID:  bubbleID,
		Sender:    sender,
		Recipient: recipient,
		Type:      typ,
		Round:     round,
		Payload:   payload,
		Refs:      refs,
	}
}

// Validate enforces the per-type payload requirements checked at emit time.
func (e Envelope) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalid)
	}
	if e.TS.IsZero() {
		return fmt.Errorf("%w: missing ts", ErrInvalid)
	}
	if e.BubbleID == "" {
		return fmt.Errorf("%w: missing bubble_id", ErrInvalid)
	}
	if !ValidParty(e.Sender) {
		return fmt.Errorf("%w: unknown sender %q", ErrInvalid, e.Sender)
	}
	if !ValidParty(e.Recipient) {
		return fmt.Errorf("%w: unknown recipient %q", ErrInvalid, e.Recipient)
	}
	if e.Round < 0 {
		return fmt.Errorf("%w: negative round %d", ErrInvalid, e.Round)
	}

	switch e.Type {
	case TypeTask:
		if e.Payload.Summary == "" {
			return fmt.Errorf("%w: TASK requires payload.summary", ErrInvalid)
		}
	case TypePass:
		switch e.Payload.PassIntent {
		case IntentTask, IntentReview, IntentFixRequest:
		default:
			return fmt.Errorf("%w: PASS requires payload.pass_intent in {task, review, fix_request}, got %q", ErrInvalid, e.Payload.PassIntent)
		}
		if e.Payload.Summary == "" {
			return fmt.Errorf("%w: PASS requires payload.summary", ErrInvalid)
		}
	case TypeHumanQuestion:
		if e.Payload.Question == "" {
			return fmt.Errorf("%w: HUMAN_QUESTION requires payload.question", ErrInvalid)
		}
	case TypeHumanReply:
		if e.Payload.Message == "" {
			return fmt.Errorf("%w: HUMAN_REPLY requires payload.message", ErrInvalid)
		}
	case TypeConvergence:
		if e.Payload.Summary == "" {
			return fmt.Errorf("%w: CONVERGENCE requires payload.summary", ErrInvalid)
		}
	case TypeApprovalRequest:
		// No required payload fields.
	case TypeApprovalDecision:
		switch e.Payload.Decision {
		case DecisionApprove, DecisionReject, DecisionRevise:
		default:
			return fmt.Errorf("%w: APPROVAL_DECISION requires payload.decision in {approve, reject, revise}, got %q", ErrInvalid, e.Payload.Decision)
		}
	case TypeDonePackage:
		if e.Payload.Summary == "" {
			return fmt.Errorf("%w: DONE_PACKAGE requires payload.summary", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalid, e.Type)
	}
	return nil
}

// Ref URI schemes. Artifact refs point into the bubble's artifacts
// directory; envelope refs mark another envelope as resolved by this one.
const (
	artifactScheme = "artifact://"
	envelopeScheme = "envelope://"
)

// ArtifactRef builds an artifact URI from a path relative to artifacts/.
func ArtifactRef(rel string) string {
	return artifactScheme + rel
}

// EnvelopeRef builds a resolution URI for the envelope with the given ID.
func EnvelopeRef(id string) string {
	return envelopeScheme + id
}

// ArtifactPaths extracts the artifacts/-relative paths this envelope
// references.
func (e Envelope) ArtifactPaths() []string {
	var paths []string
	for _, ref := range e.Refs {
		if strings.HasPrefix(ref, artifactScheme) && len(ref) > len(artifactScheme) {
			paths = append(paths, ref[len(artifactScheme):])
		}
	}
	return paths
}

// ResolvedIDs extracts the envelope IDs this envelope marks as resolved.
func (e Envelope) ResolvedIDs() []string {
	var ids []string
	for _, ref := range e.Refs {
		if strings.HasPrefix(ref, envelopeScheme) && len(ref) > len(envelopeScheme) {
			ids = append(ids, ref[len(envelopeScheme):])
		}
	}
	return ids
}

// Resolves reports whether this envelope resolves the envelope with id.
func (e Envelope) Resolves(id string) bool {
	for _, got := range e.ResolvedIDs() {
		if got == id {
			return true
		}
	}
	return false
}
