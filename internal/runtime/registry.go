// Package runtime tracks which bubbles currently own live tmux sessions.
// The registry is a small JSON file shared by every pairflow process that
// touches the repository, so all access goes through an OS-level file lock
// in addition to the in-process mutex.
package runtime

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Entry is one registry row: a bubble that started a session and has not
// been torn down yet.
type Entry struct {
	BubbleID      string    `json:"bubbleId"`
	RepoPath      string    `json:"repoPath"`
	WorktreePath  string    `json:"worktreePath"`
	TmuxSession   string    `json:"tmuxSessionName"`
	EngineVersion string    `json:"engineVersion"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Registry stores entries in a JSON file next to a never-unlinked lock file.
// A corrupt or missing file reads as empty; the next write repairs it.
type Registry struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewRegistry returns a Registry backed by path (conventionally
// .pairflow/runtime/sessions.json).
func NewRegistry(path string) *Registry {
	return &Registry{path: path, now: time.Now}
}

// Register upserts the entry for its bubble and stamps UpdatedAt.
func (r *Registry) Register(e Entry) error {
	return r.update(func(entries []Entry) ([]Entry, bool) {
		e.UpdatedAt = r.now().UTC()
		for i := range entries {
			if entries[i].BubbleID == e.BubbleID {
				entries[i] = e
				return entries, true
			}
		}
		return append(entries, e), true
	})
}

// Unregister removes the entry for a bubble. Removing an absent entry is a
// no-op.
func (r *Registry) Unregister(bubbleID string) error {
	return r.update(func(entries []Entry) ([]Entry, bool) {
		for i := range entries {
			if entries[i].BubbleID == bubbleID {
				return append(entries[:i], entries[i+1:]...), true
			}
		}
		return entries, false
	})
}

// Touch refreshes UpdatedAt for a bubble's entry if one exists.
func (r *Registry) Touch(bubbleID string) error {
	return r.update(func(entries []Entry) ([]Entry, bool) {
		for i := range entries {
			if entries[i].BubbleID == bubbleID {
				entries[i].UpdatedAt = r.now().UTC()
				return entries, true
			}
		}
		return entries, false
	})
}

// Get returns the entry for a bubble, with ok=false when absent.
func (r *Registry) Get(bubbleID string) (Entry, bool, error) {
	var (
		found Entry
		ok    bool
	)
	err := r.view(func(entries []Entry) {
		for _, e := range entries {
			if e.BubbleID == bubbleID {
				found = e
				ok = true
				return
			}
		}
	})
	return found, ok, err
}

// List returns all entries sorted by bubble ID.
func (r *Registry) List() ([]Entry, error) {
	var out []Entry
	err := r.view(func(entries []Entry) {
		out = append(out, entries...)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BubbleID < out[j].BubbleID })
	return out, nil
}

// Apply executes a reconciliation plan's registry edits in one locked write.
func (r *Registry) Apply(plan Plan) error {
	if len(plan.RemoveEntries) == 0 && len(plan.AddEntries) == 0 {
		return nil
	}
	remove := make(map[string]bool, len(plan.RemoveEntries))
	for _, id := range plan.RemoveEntries {
		remove[id] = true
	}
	return r.update(func(entries []Entry) ([]Entry, bool) {
		next := entries[:0]
		for _, e := range entries {
			if !remove[e.BubbleID] {
				next = append(next, e)
			}
		}
		for _, add := range plan.AddEntries {
			add.UpdatedAt = r.now().UTC()
			replaced := false
			for i := range next {
				if next[i].BubbleID == add.BubbleID {
					next[i] = add
					replaced = true
					break
				}
			}
			if !replaced {
				next = append(next, add)
			}
		}
		return next, true
	})
}

// update runs fn under both locks and persists the result when fn reports a
// change.
func (r *Registry) update(fn func([]Entry) ([]Entry, bool)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fl, err := r.flockLocked()
	if err != nil {
		return err
	}
	defer fl.Unlock()

	entries := r.readLocked()
	next, changed := fn(entries)
	if !changed {
		return nil
	}
	return r.writeLocked(next)
}

// view runs fn under both locks without writing.
func (r *Registry) view(fn func([]Entry)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fl, err := r.flockLocked()
	if err != nil {
		return err
	}
	defer fl.Unlock()

	fn(r.readLocked())
	return nil
}

// flockLocked takes the cross-process lock. The lock file sits beside the
// registry and is never unlinked, so every process locks the same inode.
func (r *Registry) flockLocked() (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return nil, fmt.Errorf("creating runtime directory: %w", err)
	}
	fl := flock.New(r.path + ".lock")
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("locking session registry: %w", err)
	}
	return fl, nil
}

// readLocked loads the registry, treating a missing or corrupt file as
// empty. Corruption is repaired by the next write, never propagated.
func (r *Registry) readLocked() []Entry {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil
	}
	return entries
}

// writeLocked persists entries atomically: temp file, fsync, rename. An
// empty registry writes [] so readers never see JSON null.
func (r *Registry) writeLocked(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session registry: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".sessions-*.json")
	if err != nil {
		return fmt.Errorf("writing session registry: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing session registry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing session registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing session registry: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing session registry: %w", err)
	}
	return nil
}
