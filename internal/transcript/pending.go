package transcript

import "github.com/pairflow/pairflow/internal/envelope"

// Pending returns the inbox entries still awaiting a human: those with no
// resolving envelope later in the transcript. Resolution is by reference: a
// resolver carries envelope://<id> of the item it settles.
func Pending(inbox, transcript *Log) ([]Entry, error) {
	items, err := inbox.Read()
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	all, err := transcript.Read()
	if err != nil {
		return nil, err
	}

	resolved := make(map[string]bool)
	for _, e := range all {
		for _, id := range e.Envelope.ResolvedIDs() {
			resolved[id] = true
		}
	}

	var pending []Entry
	for _, item := range items {
		if !resolved[item.Envelope.ID] {
			pending = append(pending, item)
		}
	}
	return pending, nil
}

// PendingCounts tallies pending inbox items by kind.
type PendingCounts struct {
	HumanQuestions   int `json:"human_questions"`
	ApprovalRequests int `json:"approval_requests"`
}

// CountPending computes PendingCounts from Pending's result.
func CountPending(entries []Entry) PendingCounts {
	var c PendingCounts
	for _, e := range entries {
		switch e.Envelope.Type {
		case envelope.TypeHumanQuestion:
			c.HumanQuestions++
		case envelope.TypeApprovalRequest:
			c.ApprovalRequests++
		}
	}
	return c
}
