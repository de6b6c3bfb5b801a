package bubble

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

var idPattern = regexp.MustCompile(`^b_[A-Za-z0-9_]+$`)

// ValidateID checks a bubble identifier against the required shape.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid bubble id %q: must match %s", id, idPattern.String())
	}
	return nil
}

// NewID generates a fresh bubble identifier.
func NewID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is broken;
		// there is no useful recovery for a CLI.
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return "b_" + hex.EncodeToString(buf)
}

// NotFoundError reports that no bubble with the given ID exists under the
// repository.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("bubble %s not found", e.ID)
}

// AlreadyExistsError reports a create collision on an explicit bubble ID.
type AlreadyExistsError struct {
	ID string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("bubble %s already exists", e.ID)
}
