package engine

import (
	"fmt"

	"github.com/pairflow/pairflow/internal/bubble"
	"github.com/pairflow/pairflow/internal/envelope"
	"github.com/pairflow/pairflow/internal/state"
)

// applyEnvelope applies one envelope's state effect to snap, mutating it in
// place. It is the single transition table: live handlers run their freshly
// appended envelope through it, and recovery re-runs the trailing transcript
// envelope after a crash between append and state write.
//
// Returns (true, nil) when snap changed, (false, nil) when snap already
// reflects the envelope (idempotent replay), and ErrStateDiverged when the
// snapshot can neither be the envelope's pre-state nor its post-state.
func applyEnvelope(snap *state.Snapshot, env envelope.Envelope, cfg *bubble.Config) (bool, error) {
	switch env.Type {
	case envelope.TypeTask:
		// The create handler materializes the snapshot itself; the TASK
		// envelope records the assignment and has no further state effect.
		return false, nil

	case envelope.TypePass:
		if snap.State != state.Running {
			return false, divergence(env, snap, "PASS outside RUNNING")
		}
		// The sender held the turn when the envelope was appended. If the
		// turn already moved off the sender, the pass is applied.
		if snap.ActiveAgent == nil {
			return false, divergence(env, snap, "PASS with no turn holder")
		}
		if *snap.ActiveAgent != string(env.Sender) {
			return false, nil
		}
		role := otherRole(deref(snap.ActiveRole))
		snap.SetActive(cfg.Agent(role), role, env.TS)
		snap.Touch(env.TS)
		return true, nil

	case envelope.TypeHumanQuestion:
		switch snap.State {
		case state.Running:
			snap.State = state.WaitingHuman
			snap.Touch(env.TS)
			return true, nil
		case state.WaitingHuman:
			return false, nil
		}
		return false, divergence(env, snap, "HUMAN_QUESTION outside RUNNING")

	case envelope.TypeHumanReply:
		switch snap.State {
		case state.WaitingHuman:
			snap.State = state.Running
			snap.Touch(env.TS)
			return true, nil
		case state.Running:
			return false, nil
		}
		return false, divergence(env, snap, "HUMAN_REPLY outside WAITING_HUMAN")

	case envelope.TypeConvergence:
		target := state.ReadyForApproval
		if !cfg.CommitRequiresApproval {
			target = state.ApprovedForCommit
		}
		switch snap.State {
		case state.Running:
			snap.State = target
			snap.Touch(env.TS)
			return true, nil
		case target:
			return false, nil
		}
		return false, divergence(env, snap, "CONVERGENCE outside RUNNING")

	case envelope.TypeApprovalRequest:
		// Notification only; the state moved when CONVERGENCE applied.
		return false, nil

	case envelope.TypeApprovalDecision:
		switch env.Payload.Decision {
		case envelope.DecisionApprove:
			switch snap.State {
			case state.ReadyForApproval:
				snap.State = state.ApprovedForCommit
				snap.Touch(env.TS)
				return true, nil
			case state.ApprovedForCommit:
				return false, nil
			}
			return false, divergence(env, snap, "approve outside READY_FOR_APPROVAL")

		case envelope.DecisionReject:
			switch snap.State {
			case state.ReadyForApproval:
				snap.State = state.Cancelled
				snap.ClearActive()
				snap.Touch(env.TS)
				return true, nil
			case state.Cancelled:
				return false, nil
			}
			return false, divergence(env, snap, "reject outside READY_FOR_APPROVAL")

		case envelope.DecisionRevise:
			if snap.State == state.ReadyForApproval && snap.Round == env.Round {
				snap.Round++
				snap.State = state.Running
				snap.SetActive(cfg.Agent(state.RoleImplementer), state.RoleImplementer, env.TS)
				snap.RoundRoleHistory = append(snap.RoundRoleHistory, state.RoleHistoryEntry{
					Round:       snap.Round,
					Implementer: cfg.Agents.Implementer,
					Reviewer:    cfg.Agents.Reviewer,
					SwitchedAt:  state.FormatTime(env.TS),
				})
				snap.Touch(env.TS)
				return true, nil
			}
			if snap.Round > env.Round {
				return false, nil
			}
			return false, divergence(env, snap, "revise outside READY_FOR_APPROVAL")
		}
		return false, divergence(env, snap, fmt.Sprintf("unknown decision %q", env.Payload.Decision))

	case envelope.TypeDonePackage:
		switch snap.State {
		case state.Committed:
			snap.State = state.Done
			snap.ClearActive()
			snap.Touch(env.TS)
			return true, nil
		case state.Done:
			return false, nil
		}
		return false, divergence(env, snap, "DONE_PACKAGE outside COMMITTED")
	}
	return false, divergence(env, snap, fmt.Sprintf("unknown envelope type %q", env.Type))
}

func divergence(env envelope.Envelope, snap *state.Snapshot, detail string) error {
	return fmt.Errorf("%w: bubble %s, envelope %s (%s), state %s: %s",
		ErrStateDiverged, snap.BubbleID, env.ID, env.Type, snap.State, detail)
}

func otherRole(role string) string {
	if role == state.RoleImplementer {
		return state.RoleReviewer
	}
	return state.RoleImplementer
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
