package campaign

import (
	"errors"
	"strings"
)

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound          = errors.New("campaign not found")
	ErrInvalidTransition = errors.New("invalid run state transition")
	ErrNoTransport       = errors.New("queue transport is not configured")
)

// ValidationError lists the request fields that are missing or malformed.
// Nothing has been sent when it is returned.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "Missing options or payload"
	}
	return "Missing options or payload: " + strings.Join(e.Fields, ", ")
}
