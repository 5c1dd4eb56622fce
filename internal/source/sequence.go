package source

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder

	"github.com/zsiec/playback/internal/media"
)

var sequenceExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// sequence plays the still images of a directory in file-name order, one
// image per frame interval. Images are decoded lazily as they are read.
type sequence struct {
	dir    string
	files  []string
	clock  clock
	closed bool
}

func openSequence(dir string, fps float64) (*sequence, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &media.SourceError{Path: dir, Op: "open", Err: err}
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if sequenceExts[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, &media.SourceError{Path: dir, Op: "open", Err: errors.New("no images in directory")}
	}

	return &sequence{
		dir:   dir,
		files: files,
		clock: clock{fps: fps, count: len(files)},
	}, nil
}

func (s *sequence) NextFrame() (*media.Frame, error) {
	if s.closed {
		return nil, &media.SourceError{Path: s.dir, Op: "read", Err: errClosed}
	}
	if s.clock.done() {
		return nil, io.EOF
	}

	name := s.files[s.clock.index]
	img, err := decodeFile(name)
	if err != nil {
		return nil, &media.SourceError{Path: name, Op: "read", Err: err}
	}

	frame := &media.Frame{Image: img, PositionMs: s.clock.position()}
	s.clock.index++
	return frame, nil
}

func decodeFile(name string) (image.Image, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return img, nil
}

func (s *sequence) PositionMs() int64 { return s.clock.position() }

func (s *sequence) SetPositionMs(ms int64) error {
	if s.closed {
		return &media.SourceError{Path: s.dir, Op: "seek", Err: errClosed}
	}
	s.clock.seek(ms)
	return nil
}

func (s *sequence) DurationMs() int64 { return s.clock.duration() }

func (s *sequence) Close() error {
	s.closed = true
	return nil
}
