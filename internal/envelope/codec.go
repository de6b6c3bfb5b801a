package envelope

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseError reports a malformed NDJSON transcript line. Line is 1-based
// when the caller knows it, 0 otherwise.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parsing envelope line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("parsing envelope: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// MarshalLine serializes one envelope as a single NDJSON line, including the
// trailing newline. Serialization is the emit boundary, so the envelope is
// validated here.
func MarshalLine(e Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope %s: %w", e.ID, err)
	}
	return append(data, '\n'), nil
}

// ParseLine decodes one NDJSON line. Empty and whitespace-only lines are
// rejected: the transcript format has no blank lines, so one appearing means
// the file was corrupted or hand-edited.
func ParseLine(data []byte) (Envelope, error) {
	if strings.TrimSpace(string(data)) == "" {
		return Envelope{}, &ParseError{Err: fmt.Errorf("empty line")}
	}
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, &ParseError{Err: err}
	}
	if e.ID == "" {
		return Envelope{}, &ParseError{Err: fmt.Errorf("missing id field")}
	}
	return e, nil
}
