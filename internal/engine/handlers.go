package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pairflow/pairflow/internal/envelope"
	"github.com/pairflow/pairflow/internal/metrics"
	"github.com/pairflow/pairflow/internal/state"
	"github.com/pairflow/pairflow/internal/tmux"
	"github.com/pairflow/pairflow/internal/transcript"
)

// OpResult reports what a handler did: the envelope it appended (zero for
// envelope-less operations), its transcript sequence, and the state after.
type OpResult struct {
	Envelope  envelope.Envelope
	Seq       int
	Snapshot  *state.Snapshot
	CommitSHA string
}

// PassOptions parameterizes a turn handoff.
type PassOptions struct {
	Agent   string // sender; must hold the turn
	Intent  string // task, review, or fix_request
	Summary string
	Details string // optional long-form body, stored under artifacts/messages/
	Refs    []string
	// IfFingerprint optionally pins the state fingerprint the caller last
	// observed; a mismatch fails with StateConflict before any mutation.
	IfFingerprint string
}

// Pass hands the turn to the other seat.
func (e *Engine) Pass(ctx context.Context, id string, opts PassOptions) (*OpResult, error) {
	var res *OpResult
	err := e.withBubble(ctx, id, func(h *handle) error {
		if err := h.checkFingerprint(opts.IfFingerprint); err != nil {
			return err
		}
		if err := h.requireState("pass", state.Running); err != nil {
			return err
		}
		if err := h.requireActive(opts.Agent); err != nil {
			return err
		}

		toRole := otherRole(deref(h.snap.ActiveRole))
		toAgent := h.cfg.Agent(toRole)
		env := envelope.New(h.cfg.ID, envelope.TypePass,
			envelope.Party(opts.Agent), envelope.Party(toAgent), h.snap.Round,
			envelope.Payload{PassIntent: opts.Intent, Summary: opts.Summary},
			opts.Refs, e.now())
		if err := h.attachDetails(&env, opts.Details); err != nil {
			return err
		}

		seq, err := h.transcript.Append(env)
		if err != nil {
			return err
		}
		if err := e.commitState(h, env, state.Running); err != nil {
			return err
		}

		e.nudge(ctx, h, toRole, passNudge(h.cfg, h.snap.Round, opts.Agent, opts.Intent, opts.Summary))
		e.emitMetric(metrics.EventPass, h.cfg.ID, map[string]any{
			"round": h.snap.Round, "from": opts.Agent, "to": toAgent, "intent": opts.Intent,
		})
		res = &OpResult{Envelope: env, Seq: seq, Snapshot: h.snap}
		return nil
	})
	return res, err
}

// AskHumanOptions parameterizes a question to the human.
type AskHumanOptions struct {
	Agent         string // sender; must hold the turn
	Question      string
	Details       string
	Refs          []string
	IfFingerprint string
}

// AskHuman suspends the bubble on a question. The envelope lands in both
// the transcript and the inbox; the bubble waits until a reply resolves it.
func (e *Engine) AskHuman(ctx context.Context, id string, opts AskHumanOptions) (*OpResult, error) {
	var res *OpResult
	err := e.withBubble(ctx, id, func(h *handle) error {
		if err := h.checkFingerprint(opts.IfFingerprint); err != nil {
			return err
		}
		if err := h.requireState("ask-human", state.Running); err != nil {
			return err
		}
		if err := h.requireActive(opts.Agent); err != nil {
			return err
		}

		env := envelope.New(h.cfg.ID, envelope.TypeHumanQuestion,
			envelope.Party(opts.Agent), envelope.PartyHuman, h.snap.Round,
			envelope.Payload{Question: opts.Question},
			opts.Refs, e.now())
		if err := h.attachDetails(&env, opts.Details); err != nil {
			return err
		}

		seq, err := h.transcript.Append(env)
		if err != nil {
			return err
		}
		if _, err := h.inbox.Append(env); err != nil {
			return err
		}
		if err := e.commitState(h, env, state.Running); err != nil {
			return err
		}

		e.emitMetric(metrics.EventHumanQuestion, h.cfg.ID, map[string]any{"round": h.snap.Round})
		res = &OpResult{Envelope: env, Seq: seq, Snapshot: h.snap}
		return nil
	})
	return res, err
}

// HumanReplyOptions parameterizes the human's answer.
type HumanReplyOptions struct {
	Message string
	// Resolve lists envelope IDs this reply settles. Empty resolves every
	// pending human question, which matches the common one-question case.
	Resolve       []string
	IfFingerprint string
}

// HumanReply resumes a bubble waiting on the human.
func (e *Engine) HumanReply(ctx context.Context, id string, opts HumanReplyOptions) (*OpResult, error) {
	var res *OpResult
	err := e.withBubble(ctx, id, func(h *handle) error {
		if err := h.requireState("reply", state.WaitingHuman); err != nil {
			return err
		}
		r, err := e.replyLocked(ctx, h, opts)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	return res, err
}

// Resume unsticks a bubble: a waiting bubble gets the default human reply,
// a running bubble gets its session revived after a crash or reboot.
func (e *Engine) Resume(ctx context.Context, id string) (*OpResult, error) {
	var res *OpResult
	err := e.withBubble(ctx, id, func(h *handle) error {
		switch h.snap.State {
		case state.WaitingHuman:
			r, err := e.replyLocked(ctx, h, HumanReplyOptions{Message: "Please continue."})
			if err != nil {
				return err
			}
			res = r
			return nil
		case state.Running:
			e.ensureSession(ctx, h)
			e.nudge(ctx, h, deref(h.snap.ActiveRole), replyNudge(h.cfg, "Please continue."))
			res = &OpResult{Snapshot: h.snap}
			return nil
		default:
			return &InvalidStateError{
				BubbleID: h.cfg.ID, Op: "resume",
				Expected: []state.Lifecycle{state.WaitingHuman, state.Running},
				Actual:   h.snap.State,
			}
		}
	})
	return res, err
}

// replyLocked appends a HUMAN_REPLY and moves the bubble back to RUNNING.
// Caller holds the lock and has verified the WAITING_HUMAN precondition.
func (e *Engine) replyLocked(ctx context.Context, h *handle, opts HumanReplyOptions) (*OpResult, error) {
	if err := h.checkFingerprint(opts.IfFingerprint); err != nil {
		return nil, err
	}

	refs := make([]string, 0, len(opts.Resolve))
	if len(opts.Resolve) > 0 {
		for _, envID := range opts.Resolve {
			refs = append(refs, envelope.EnvelopeRef(envID))
		}
	} else {
		pending, err := transcript.Pending(h.inbox, h.transcript)
		if err != nil {
			return nil, err
		}
		for _, item := range pending {
			if item.Envelope.Type == envelope.TypeHumanQuestion {
				refs = append(refs, envelope.EnvelopeRef(item.Envelope.ID))
			}
		}
	}

	recipient := envelope.PartyOrchestrator
	if h.snap.ActiveAgent != nil {
		recipient = envelope.Party(*h.snap.ActiveAgent)
	}
	env := envelope.New(h.cfg.ID, envelope.TypeHumanReply,
		envelope.PartyHuman, recipient, h.snap.Round,
		envelope.Payload{Message: opts.Message},
		refs, e.now())

	seq, err := h.transcript.Append(env)
	if err != nil {
		return nil, err
	}
	if err := e.commitState(h, env, state.WaitingHuman); err != nil {
		return nil, err
	}

	e.ensureSession(ctx, h)
	e.nudge(ctx, h, deref(h.snap.ActiveRole), replyNudge(h.cfg, opts.Message))
	e.emitMetric(metrics.EventHumanReply, h.cfg.ID, map[string]any{"round": h.snap.Round})
	return &OpResult{Envelope: env, Seq: seq, Snapshot: h.snap}, nil
}

// ConvergedOptions parameterizes the reviewer's convergence call.
type ConvergedOptions struct {
	Agent         string // sender; must be the reviewer holding the turn
	Summary       string
	Details       string
	Refs          []string
	IfFingerprint string
}

// Converged records that the reviewer accepts the work. With approval
// required this parks the bubble in READY_FOR_APPROVAL and files an
// approval request in the human inbox; without it the bubble moves straight
// to APPROVED_FOR_COMMIT.
func (e *Engine) Converged(ctx context.Context, id string, opts ConvergedOptions) (*OpResult, error) {
	var res *OpResult
	err := e.withBubble(ctx, id, func(h *handle) error {
		if err := h.checkFingerprint(opts.IfFingerprint); err != nil {
			return err
		}
		if err := h.requireState("converged", state.Running); err != nil {
			return err
		}
		if err := h.requireActive(opts.Agent); err != nil {
			return err
		}
		if deref(h.snap.ActiveRole) != state.RoleReviewer {
			return fmt.Errorf("bubble %s: converged must come from the reviewer seat, active role is %s",
				h.cfg.ID, deref(h.snap.ActiveRole))
		}

		env := envelope.New(h.cfg.ID, envelope.TypeConvergence,
			envelope.Party(opts.Agent), envelope.PartyOrchestrator, h.snap.Round,
			envelope.Payload{Summary: opts.Summary},
			opts.Refs, e.now())
		if err := h.attachDetails(&env, opts.Details); err != nil {
			return err
		}

		seq, err := h.transcript.Append(env)
		if err != nil {
			return err
		}
		if err := e.commitState(h, env, state.Running); err != nil {
			return err
		}

		// With the gate on, the human is asked immediately. The request is
		// appended after the state write: if we crash in between, the
		// approval-request handler re-files it.
		if h.snap.State == state.ReadyForApproval {
			if _, err := e.appendApprovalRequest(h, opts.Summary); err != nil {
				return err
			}
		}

		e.emitMetric(metrics.EventConverged, h.cfg.ID, map[string]any{
			"round": h.snap.Round, "state": string(h.snap.State),
		})
		res = &OpResult{Envelope: env, Seq: seq, Snapshot: h.snap}
		return nil
	})
	return res, err
}

// ApprovalRequest files (or re-files) the commit approval request with the
// human. Converged does this automatically; the explicit handler exists to
// recover when the automatic request was lost.
func (e *Engine) ApprovalRequest(ctx context.Context, id, summary string) (*OpResult, error) {
	var res *OpResult
	err := e.withBubble(ctx, id, func(h *handle) error {
		if err := h.requireState("approval-request", state.ReadyForApproval); err != nil {
			return err
		}
		env, err := e.appendApprovalRequest(h, summary)
		if err != nil {
			return err
		}
		res = &OpResult{Envelope: env, Snapshot: h.snap}
		return nil
	})
	return res, err
}

func (e *Engine) appendApprovalRequest(h *handle, summary string) (envelope.Envelope, error) {
	env := envelope.New(h.cfg.ID, envelope.TypeApprovalRequest,
		envelope.PartyOrchestrator, envelope.PartyHuman, h.snap.Round,
		envelope.Payload{Summary: summary}, nil, e.now())
	if _, err := h.transcript.Append(env); err != nil {
		return envelope.Envelope{}, err
	}
	if _, err := h.inbox.Append(env); err != nil {
		return envelope.Envelope{}, err
	}
	return env, nil
}

// ApprovalDecisionOptions parameterizes the human's verdict.
type ApprovalDecisionOptions struct {
	Decision      string // approve, reject, or revise
	Message       string
	IfFingerprint string
}

// ApprovalDecision records the human's verdict on converged work: approve
// clears the bubble for commit, revise starts the next round with the
// implementer, reject cancels the bubble.
func (e *Engine) ApprovalDecision(ctx context.Context, id string, opts ApprovalDecisionOptions) (*OpResult, error) {
	var res *OpResult
	err := e.withBubble(ctx, id, func(h *handle) error {
		if err := h.checkFingerprint(opts.IfFingerprint); err != nil {
			return err
		}
		if err := h.requireState("approval-decision", state.ReadyForApproval); err != nil {
			return err
		}
		if opts.Decision == envelope.DecisionRevise && h.snap.Round >= h.cfg.MaxRounds {
			return &RoundLimitError{BubbleID: h.cfg.ID, MaxRounds: h.cfg.MaxRounds}
		}

		// The decision settles every approval request still pending.
		pending, err := transcript.Pending(h.inbox, h.transcript)
		if err != nil {
			return err
		}
		var refs []string
		for _, item := range pending {
			if item.Envelope.Type == envelope.TypeApprovalRequest {
				refs = append(refs, envelope.EnvelopeRef(item.Envelope.ID))
			}
		}

		env := envelope.New(h.cfg.ID, envelope.TypeApprovalDecision,
			envelope.PartyHuman, envelope.PartyOrchestrator, h.snap.Round,
			envelope.Payload{Decision: opts.Decision, Message: opts.Message},
			refs, e.now())

		seq, err := h.transcript.Append(env)
		if err != nil {
			return err
		}
		if err := e.commitState(h, env, state.ReadyForApproval); err != nil {
			return err
		}

		switch opts.Decision {
		case envelope.DecisionRevise:
			e.nudge(ctx, h, state.RoleImplementer, reviseNudge(h.cfg, h.snap.Round, opts.Message))
			if h.cfg.ReviewerContextMode == "fresh" {
				e.respawnReviewer(ctx, h)
			}
		case envelope.DecisionReject:
			e.dropSession(ctx, h)
		}

		e.emitMetric(metrics.EventApprovalDecision, h.cfg.ID, map[string]any{
			"round": h.snap.Round, "decision": opts.Decision,
		})
		res = &OpResult{Envelope: env, Seq: seq, Snapshot: h.snap}
		return nil
	})
	return res, err
}

// checkFingerprint enforces the caller's optional optimistic precondition.
func (h *handle) checkFingerprint(expect string) error {
	if expect != "" && expect != h.fp {
		return &state.ConflictError{
			Path:                h.paths.StateFile,
			ExpectedFingerprint: expect,
			ActualFingerprint:   h.fp,
		}
	}
	return nil
}

func (h *handle) requireState(op string, allowed ...state.Lifecycle) error {
	for _, s := range allowed {
		if h.snap.State == s {
			return nil
		}
	}
	return &InvalidStateError{BubbleID: h.cfg.ID, Op: op, Expected: allowed, Actual: h.snap.State}
}

func (h *handle) requireActive(agent string) error {
	if agent == "" {
		return fmt.Errorf("bubble %s: acting agent not specified (use --agent or PAIRFLOW_AGENT)", h.cfg.ID)
	}
	if h.snap.ActiveAgent == nil || *h.snap.ActiveAgent != agent {
		return &NotActiveAgentError{BubbleID: h.cfg.ID, Agent: agent, Active: deref(h.snap.ActiveAgent)}
	}
	return nil
}

// attachDetails stores a long-form message body under artifacts/messages/
// and adds its artifact ref to the envelope. The file is named after the
// envelope ID so transcript readers can find it without extra bookkeeping.
func (h *handle) attachDetails(env *envelope.Envelope, details string) error {
	if details == "" {
		return nil
	}
	name := env.ID + ".md"
	path := filepath.Join(h.paths.MessagesDir, name)
	if err := os.MkdirAll(h.paths.MessagesDir, 0o755); err != nil {
		return fmt.Errorf("creating messages directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(details), 0o644); err != nil {
		return fmt.Errorf("writing message body: %w", err)
	}
	env.Refs = append(env.Refs, envelope.ArtifactRef("messages/"+name))
	return nil
}

// nudge types a line into the pane holding role's seat. Best effort: a dead
// pane is logged, never an operation failure. A delivered nudge refreshes
// the bubble's registry row.
func (e *Engine) nudge(ctx context.Context, h *handle, role, text string) {
	pane := tmux.PaneImplementer
	if role == state.RoleReviewer {
		pane = tmux.PaneReviewer
	}
	target := tmux.Target(h.session(), pane)
	if err := e.tm.SendLine(ctx, target, text); err != nil {
		e.log.Warn("pane nudge failed", "bubble", h.cfg.ID, "target", target, "error", err)
		return
	}
	if err := e.reg.Touch(h.cfg.ID); err != nil {
		e.log.Warn("registry touch failed", "bubble", h.cfg.ID, "error", err)
	}
}

// respawnReviewer hands the reviewer seat a fresh agent process, then
// re-briefs it. Best effort.
func (e *Engine) respawnReviewer(ctx context.Context, h *handle) {
	target := tmux.Target(h.session(), tmux.PaneReviewer)
	cmd := e.agentCommand(h.cfg.Agents.Reviewer)
	if err := e.tm.RespawnPane(ctx, target, cmd); err != nil {
		e.log.Warn("reviewer respawn failed", "bubble", h.cfg.ID, "error", err)
		return
	}
	e.nudge(ctx, h, state.RoleReviewer, startBriefing(h.cfg, h.paths, state.RoleReviewer))
}

// dropSession kills the bubble's session and removes its registry row.
// Best effort; reconcile sweeps up anything missed here.
func (e *Engine) dropSession(ctx context.Context, h *handle) {
	if err := e.tm.KillSession(ctx, h.session()); err != nil {
		e.log.Warn("session kill failed", "bubble", h.cfg.ID, "session", h.session(), "error", err)
	}
	if err := e.reg.Unregister(h.cfg.ID); err != nil {
		e.log.Warn("registry unregister failed", "bubble", h.cfg.ID, "error", err)
	}
}
