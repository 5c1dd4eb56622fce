// Package media defines the frame type and the collaborator contracts a
// playback session depends on: a seekable Video Source that yields frames and
// a Codec that turns frames into wire payloads and back.
package media

import (
	"errors"
	"fmt"
	"image"
)

// Frame is one decoded picture taken from a Source. PositionMs is the
// presentation offset of the picture within its source.
type Frame struct {
	Image      image.Image
	PositionMs int64
}

// Source is a seekable, sequential frame reader. Implementations are not
// safe for concurrent use; a playback session serialises access with its own
// lock.
type Source interface {
	// NextFrame returns the frame at the current position and advances past
	// it. It returns io.EOF once the source is exhausted.
	NextFrame() (*Frame, error)

	// PositionMs reports the offset of the next frame NextFrame will return.
	PositionMs() int64

	// SetPositionMs moves the read position. Values outside
	// [0, DurationMs] are clamped.
	SetPositionMs(ms int64) error

	// DurationMs reports the total length of the source.
	DurationMs() int64

	Close() error
}

// Opener opens a Source by path.
type Opener interface {
	Open(path string) (Source, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(path string) (Source, error)

// Open calls f(path).
func (f OpenerFunc) Open(path string) (Source, error) {
	return f(path)
}

// Codec encodes frames into compressed payloads and decodes them back.
type Codec interface {
	Encode(f *Frame) ([]byte, error)
	Decode(data []byte) (*Frame, error)
}

// ErrUnsupported is wrapped by SourceError when no source implementation
// recognises a path.
var ErrUnsupported = errors.New("media: unsupported source")

// SourceError reports a failure to open, read or seek a Source.
type SourceError struct {
	Path string
	Op   string // "open", "read", "seek"
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("media: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
