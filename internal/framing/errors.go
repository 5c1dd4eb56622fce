package framing

import (
	"errors"
	"fmt"
)

// ErrConnectionClosed is returned when the peer closes the stream before a
// complete message has been received.
var ErrConnectionClosed = errors.New("framing: connection closed")

// ConnectionError wraps an I/O failure on the underlying stream.
type ConnectionError struct {
	Op  string // "read" or "write"
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("framing: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ProtocolError indicates a truncated or invalid length-prefixed message.
type ProtocolError struct {
	Reason string
	Length uint32
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("framing: %s (length %d): %v", e.Reason, e.Length, e.Err)
	}
	return fmt.Sprintf("framing: %s (length %d)", e.Reason, e.Length)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
