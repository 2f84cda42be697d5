package tactile

import (
	"errors"
	"fmt"
)

// ErrEmptyCommand is returned when a shell fragment has no body. A body of
// only whitespace is still run.
var ErrEmptyCommand = errors.New("command must not be empty")

// CommandError reports a shell fragment that exited non-zero.
type CommandError struct {
	ExitCode int
	Output   string // stdout followed by stderr
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("process exited with code %d: %s", e.ExitCode, e.Output)
}

// MissingKeyError reports a {placeholder} naming an absent context key.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing context key %q", e.Key)
}

// FormatError reports a malformed placeholder in a shell fragment.
type FormatError struct {
	Offset int
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("bad placeholder at offset %d: %s", e.Offset, e.Reason)
}
