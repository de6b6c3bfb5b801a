package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ConflictError reports a failed compare-and-set: the on-disk snapshot no
// longer matches what the writer read. The caller should re-read and retry
// or surface the conflict.
type ConflictError struct {
	Path                string
	ExpectedFingerprint string
	ActualFingerprint   string
	ExpectedState       Lifecycle
	ActualState         Lifecycle
}

func (e *ConflictError) Error() string {
	if e.ExpectedState != "" && e.ExpectedState != e.ActualState {
		return fmt.Sprintf("state conflict on %s: expected state %s, found %s", e.Path, e.ExpectedState, e.ActualState)
	}
	return fmt.Sprintf("state conflict on %s: snapshot changed since it was read", e.Path)
}

// Guard carries the preconditions for a CAS write. Fingerprint is required;
// ExpectedState additionally pins the on-disk lifecycle state when set.
type Guard struct {
	Fingerprint   string
	ExpectedState Lifecycle
}

// Store reads and writes one bubble's state.json. Writers must hold the
// bubble lock; the fingerprint CAS additionally rejects writers that read a
// snapshot outside the lock and held onto it.
type Store struct {
	Path string
}

// Read loads, validates, and fingerprints the snapshot. The fingerprint is
// a content hash: byte-identical files always produce the same value.
func (s *Store) Read() (*Snapshot, string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, "", fmt.Errorf("reading state %s: %w", s.Path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, "", &ValidationError{Errors: []FieldError{
			{Path: "", Message: fmt.Sprintf("not valid JSON: %v", err)},
		}}
	}
	if err := Validate(&snap); err != nil {
		return nil, "", err
	}
	return &snap, fingerprint(data), nil
}

// Create persists the initial snapshot. Fails if the file already exists.
// Returns the fingerprint of the written content.
func (s *Store) Create(snap *Snapshot) (string, error) {
	if err := Validate(snap); err != nil {
		return "", err
	}
	data, err := encode(snap)
	if err != nil {
		return "", err
	}
	f, err := os.OpenFile(s.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("creating state %s: %w", s.Path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("writing state %s: %w", s.Path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", fmt.Errorf("syncing state %s: %w", s.Path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing state %s: %w", s.Path, err)
	}
	return fingerprint(data), nil
}

// Write atomically replaces the snapshot after verifying the guard against
// the current on-disk content. Returns the new fingerprint. Every
// transition must change the content; an identical write is a bug in the
// caller and is rejected.
func (s *Store) Write(snap *Snapshot, guard Guard) (string, error) {
	if err := Validate(snap); err != nil {
		return "", err
	}

	current, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("re-reading state %s: %w", s.Path, err)
	}
	currentFP := fingerprint(current)
	if currentFP != guard.Fingerprint {
		return "", &ConflictError{
			Path:                s.Path,
			ExpectedFingerprint: guard.Fingerprint,
			ActualFingerprint:   currentFP,
		}
	}
	if guard.ExpectedState != "" {
		var onDisk Snapshot
		if err := json.Unmarshal(current, &onDisk); err == nil && onDisk.State != guard.ExpectedState {
			return "", &ConflictError{
				Path:                s.Path,
				ExpectedFingerprint: guard.Fingerprint,
				ActualFingerprint:   currentFP,
				ExpectedState:       guard.ExpectedState,
				ActualState:         onDisk.State,
			}
		}
	}

	data, err := encode(snap)
	if err != nil {
		return "", err
	}
	newFP := fingerprint(data)
	if newFP == currentFP {
		return "", fmt.Errorf("state write for %s changes nothing", snap.BubbleID)
	}

	dir := filepath.Dir(s.Path)
	tmp, err := os.CreateTemp(dir, "state-*.json.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("syncing temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		return "", fmt.Errorf("replacing state %s: %w", s.Path, err)
	}
	return newFP, nil
}

func encode(snap *Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding state for %s: %w", snap.BubbleID, err)
	}
	return append(data, '\n'), nil
}

func fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
