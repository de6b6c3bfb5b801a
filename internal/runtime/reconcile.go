package runtime

import (
	"fmt"
	"sort"

	"golang.org/x/mod/semver"

	"github.com/pairflow/pairflow/internal/bubble"
)

// Issue kinds reported by Reconcile.
const (
	IssueOrphanSession = "orphan-session" // live pf- session with no active bubble behind it
	IssueDeadSession   = "dead-session"   // registry row whose session is gone
	IssueStaleEntry    = "stale-entry"    // registry row whose bubble ended or vanished
	IssueMissingEntry  = "missing-entry"  // active bubble with a live session but no row
	IssueVersionSkew   = "version-skew"   // row written by an incompatible engine
)

// Issue is one observed divergence between disk state, the registry and the
// live tmux server.
type Issue struct {
	Kind     string `json:"kind"`
	BubbleID string `json:"bubbleId,omitempty"`
	Session  string `json:"session,omitempty"`
	Detail   string `json:"detail"`
}

// Plan is the set of repairs reconciliation wants to make. On-disk bubble
// state is authoritative: sessions and registry rows are brought in line
// with it, never the other way around.
type Plan struct {
	KillSessions  []string `json:"killSessions"`
	RemoveEntries []string `json:"removeEntries"`
	AddEntries    []Entry  `json:"addEntries"`
	Issues        []Issue  `json:"issues"`
}

// Empty reports whether the plan has nothing to do and nothing to report.
func (p Plan) Empty() bool {
	return len(p.KillSessions) == 0 && len(p.RemoveEntries) == 0 &&
		len(p.AddEntries) == 0 && len(p.Issues) == 0
}

// Bubble is the slice of on-disk bubble state reconciliation needs.
type Bubble struct {
	RepoPath     string
	WorktreePath string
	// SessionWanted is true for bubbles that started and have not reached a
	// terminal state, i.e. the only bubbles entitled to a live session.
	SessionWanted bool
}

// Reconcile compares the registry and the live session list against on-disk
// bubble state and returns the repairs. It performs no I/O; the caller kills
// sessions and applies registry edits.
func Reconcile(entries []Entry, live []string, bubbles map[string]Bubble, engineVersion string) Plan {
	var plan Plan

	liveSet := make(map[string]bool, len(live))
	for _, s := range live {
		liveSet[s] = true
	}
	rowFor := make(map[string]Entry, len(entries))
	for _, e := range entries {
		rowFor[e.BubbleID] = e
	}

	// Live pairflow sessions not backed by an active bubble are orphans.
	for _, session := range live {
		id, ok := bubble.BubbleIDFromSession(session)
		if !ok {
			continue
		}
		b, known := bubbles[id]
		if known && b.SessionWanted {
			continue
		}
		detail := "no bubble on disk"
		if known {
			detail = "bubble is not running"
		}
		plan.KillSessions = append(plan.KillSessions, session)
		plan.Issues = append(plan.Issues, Issue{
			Kind:     IssueOrphanSession,
			BubbleID: id,
			Session:  session,
			Detail:   detail,
		})
	}
	killed := make(map[string]bool, len(plan.KillSessions))
	for _, s := range plan.KillSessions {
		killed[s] = true
	}

	// Registry rows must point at an active bubble with a surviving session.
	for _, e := range entries {
		b, known := bubbles[e.BubbleID]
		switch {
		case !known || !b.SessionWanted:
			detail := "bubble no longer exists"
			if known {
				detail = "bubble is not running"
			}
			plan.RemoveEntries = append(plan.RemoveEntries, e.BubbleID)
			plan.Issues = append(plan.Issues, Issue{
				Kind:     IssueStaleEntry,
				BubbleID: e.BubbleID,
				Session:  e.TmuxSession,
				Detail:   detail,
			})
		case !liveSet[e.TmuxSession] || killed[e.TmuxSession]:
			plan.RemoveEntries = append(plan.RemoveEntries, e.BubbleID)
			plan.Issues = append(plan.Issues, Issue{
				Kind:     IssueDeadSession,
				BubbleID: e.BubbleID,
				Session:  e.TmuxSession,
				Detail:   "tmux session is gone",
			})
		default:
			if skew := versionSkew(e.EngineVersion, engineVersion); skew != "" {
				plan.Issues = append(plan.Issues, Issue{
					Kind:     IssueVersionSkew,
					BubbleID: e.BubbleID,
					Detail:   skew,
				})
			}
		}
	}

	// Active bubbles with a live session deserve a row.
	ids := make([]string, 0, len(bubbles))
	for id := range bubbles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		b := bubbles[id]
		if !b.SessionWanted {
			continue
		}
		session := bubble.SessionName(id)
		if !liveSet[session] || killed[session] {
			continue
		}
		if _, has := rowFor[id]; has {
			continue
		}
		plan.AddEntries = append(plan.AddEntries, Entry{
			BubbleID:      id,
			RepoPath:      b.RepoPath,
			WorktreePath:  b.WorktreePath,
			TmuxSession:   session,
			EngineVersion: engineVersion,
		})
		plan.Issues = append(plan.Issues, Issue{
			Kind:     IssueMissingEntry,
			BubbleID: id,
			Session:  session,
			Detail:   "live session had no registry row",
		})
	}

	return plan
}

// versionSkew returns a description when two engine versions differ in
// major version, empty otherwise. Unparseable versions are reported too:
// a row written by something that is not a pairflow release is suspect.
func versionSkew(rowVersion, engineVersion string) string {
	rv, ev := canonicalVersion(rowVersion), canonicalVersion(engineVersion)
	if !semver.IsValid(rv) {
		return fmt.Sprintf("registry row written by unrecognized version %q", rowVersion)
	}
	if !semver.IsValid(ev) {
		return ""
	}
	if semver.Major(rv) != semver.Major(ev) {
		return fmt.Sprintf("registry row written by engine %s, this engine is %s", rowVersion, engineVersion)
	}
	return ""
}

func canonicalVersion(v string) string {
	if v == "" {
		return ""
	}
	if v[0] != 'v' {
		v = "v" + v
	}
	return v
}
