// Package transcript implements the append-only NDJSON envelope logs: the
// transcript (every protocol message) and the inbox (messages awaiting a
// human). Files are never edited in place; sequence numbers are line
// indices.
package transcript

import (
	"bufio"
	"errors"
	"fmt"
	"os"

	"github.com/pairflow/pairflow/internal/envelope"
)

// Scanner line limit. Envelopes are small; a line this long means a corrupt
// file, not a real record.
const maxLineBytes = 1 << 20

// Entry pairs an envelope with its 0-based sequence number in the log.
type Entry struct {
	Seq      int
	Envelope envelope.Envelope
}

// Log is one append-only NDJSON file. Callers that mutate state must hold
// the bubble lock around Append; readers may stream without it.
type Log struct {
	Path string
}

// Append writes one envelope as a single line and fsyncs. Returns the
// sequence number assigned to the envelope.
func (l *Log) Append(env envelope.Envelope) (int, error) {
	line, err := envelope.MarshalLine(env)
	if err != nil {
		return 0, err
	}
	seq, err := l.Count()
	if err != nil {
		return 0, err
	}
	f, err := os.OpenFile(l.Path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("opening log %s: %w", l.Path, err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return 0, fmt.Errorf("appending to log %s: %w", l.Path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return 0, fmt.Errorf("syncing log %s: %w", l.Path, err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("closing log %s: %w", l.Path, err)
	}
	return seq, nil
}

// Read streams every envelope in order. A missing file reads as empty: logs
// come into existence on first append.
func (l *Log) Read() ([]Entry, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening log %s: %w", l.Path, err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		env, err := envelope.ParseLine(scanner.Bytes())
		if err != nil {
			var pe *envelope.ParseError
			if errors.As(err, &pe) {
				pe.Line = lineNum
			}
			return nil, fmt.Errorf("log %s: %w", l.Path, err)
		}
		entries = append(entries, Entry{Seq: lineNum - 1, Envelope: env})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning log %s: %w", l.Path, err)
	}
	return entries, nil
}

// Last returns the final entry, or nil for an empty or missing log.
func (l *Log) Last() (*Entry, error) {
	entries, err := l.Read()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	last := entries[len(entries)-1]
	return &last, nil
}

// Count returns the number of entries without decoding them.
func (l *Log) Count() (int, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("opening log %s: %w", l.Path, err)
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		n++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scanning log %s: %w", l.Path, err)
	}
	return n, nil
}
