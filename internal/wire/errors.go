package wire

import (
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidCommand    = errors.New("wire: invalid command")
	ErrProtocolViolation = errors.New("wire: protocol violation")
	ErrServerFailure     = errors.New("wire: server side failure")
	ErrUnterminatedLine  = fmt.Errorf("wire: stream ended inside a line: %w", io.ErrUnexpectedEOF)
	ErrLineTooLong       = errors.New("wire: line too long")
	ErrChunkTooLarge     = errors.New("wire: chunk too large")
)

// InvalidCommandError carries the raw text of a line that failed to parse.
type InvalidCommandError struct {
	Raw    string
	Reason string
}

func (e *InvalidCommandError) Error() string {
	return fmt.Sprintf("invalid command %q: %s", e.Raw, e.Reason)
}

func (e *InvalidCommandError) Is(target error) bool {
	return target == ErrInvalidCommand
}

func invalid(raw, reason string) error {
	return &InvalidCommandError{Raw: raw, Reason: reason}
}

// violation wraps ErrProtocolViolation with what was expected and received.
func violation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocolViolation, fmt.Sprintf(format, args...))
}
