package source

import (
	"fmt"
	"os"
	"strings"

	"github.com/zsiec/playback/internal/media"
)

// DefaultFPS is the frame rate used when a source does not specify one.
const DefaultFPS = 25

// Opener resolves source paths. The zero value is ready to use.
type Opener struct {
	// SequenceFPS is the playback rate for image directories.
	SequenceFPS float64
}

var _ media.Opener = Opener{}

// Open is Opener{}.Open.
func Open(path string) (media.Source, error) {
	return Opener{}.Open(path)
}

// Open returns a Source for path. "testsrc:" URLs select the synthetic
// pattern; directories are opened as image sequences.
func (o Opener) Open(path string) (media.Source, error) {
	if strings.HasPrefix(path, patternScheme+":") {
		return openPattern(path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &media.SourceError{Path: path, Op: "open", Err: err}
	}
	if info.IsDir() {
		fps := o.SequenceFPS
		if fps <= 0 {
			fps = DefaultFPS
		}
		return openSequence(path, fps)
	}
	return nil, &media.SourceError{Path: path, Op: "open", Err: fmt.Errorf("%w: not a directory", media.ErrUnsupported)}
}
