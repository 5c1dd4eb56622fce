package command

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped by *Error so callers can classify a rejection with
// errors.Is.
var (
	ErrUnknown     = errors.New("command: unknown command")
	ErrBadArgument = errors.New("command: invalid argument")
	ErrOutOfRange  = errors.New("command: position out of range")
	ErrClosed      = errors.New("command: channel closed")
)

// Error reports a command that was rejected, either because the text could not
// be parsed or because its argument is not valid for the current source.
type Error struct {
	Text string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, e.Text)
}

func (e *Error) Unwrap() error {
	return e.Err
}
