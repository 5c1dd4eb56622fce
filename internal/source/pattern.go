package source

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"github.com/zsiec/playback/internal/media"
)

const patternScheme = "testsrc"

// Pattern defaults: ten seconds of 640x360 at DefaultFPS.
const (
	defaultPatternDuration = 10 * time.Second
	defaultPatternWidth    = 640
	defaultPatternHeight   = 360
)

var errClosed = errors.New("source: closed")

// pattern renders colour bars with a moving marker and a timestamp overlay.
// Frames are generated on demand, so any position is cheap to reach.
type pattern struct {
	path   string
	clock  clock
	width  int
	height int
	closed bool
}

// openPattern parses a URL such as
//
//	testsrc:?duration=10s&fps=25&size=640x360
func openPattern(path string) (*pattern, error) {
	u, err := url.Parse(path)
	if err != nil {
		return nil, &media.SourceError{Path: path, Op: "open", Err: err}
	}
	q := u.Query()

	duration := defaultPatternDuration
	if v := q.Get("duration"); v != "" {
		if duration, err = time.ParseDuration(v); err != nil || duration <= 0 {
			return nil, &media.SourceError{Path: path, Op: "open", Err: fmt.Errorf("invalid duration %q", v)}
		}
	}

	fps := float64(DefaultFPS)
	if v := q.Get("fps"); v != "" {
		if fps, err = strconv.ParseFloat(v, 64); err != nil || fps <= 0 {
			return nil, &media.SourceError{Path: path, Op: "open", Err: fmt.Errorf("invalid fps %q", v)}
		}
	}

	width, height := defaultPatternWidth, defaultPatternHeight
	if v := q.Get("size"); v != "" {
		if width, height, err = parseSize(v); err != nil {
			return nil, &media.SourceError{Path: path, Op: "open", Err: err}
		}
	}

	count := int(math.Floor(duration.Seconds()*fps + 1e-9))
	if count == 0 {
		count = 1
	}

	return &pattern{
		path:   path,
		clock:  clock{fps: fps, count: count},
		width:  width,
		height: height,
	}, nil
}

func parseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(s, "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("invalid width in %q", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("invalid height in %q", s)
	}
	return w, h, nil
}

var barColors = [...][3]float64{
	{0.75, 0.75, 0.75},
	{0.75, 0.75, 0},
	{0, 0.75, 0.75},
	{0, 0.75, 0},
	{0.75, 0, 0.75},
	{0.75, 0, 0},
	{0, 0, 0.75},
}

func (p *pattern) NextFrame() (*media.Frame, error) {
	if p.closed {
		return nil, &media.SourceError{Path: p.path, Op: "read", Err: errClosed}
	}
	if p.clock.done() {
		return nil, io.EOF
	}

	pos := p.clock.position()
	w, h := float64(p.width), float64(p.height)

	dc := gg.NewContext(p.width, p.height)
	barW := w / float64(len(barColors))
	for i, c := range barColors {
		dc.SetRGB(c[0], c[1], c[2])
		dc.DrawRectangle(float64(i)*barW, 0, barW+1, h*0.8)
		dc.Fill()
	}

	dc.SetRGB(0.1, 0.1, 0.1)
	dc.DrawRectangle(0, h*0.8, w, h*0.2)
	dc.Fill()

	// The marker sweeps the bottom strip once per second.
	frac := float64(pos%1000) / 1000
	dc.SetRGB(1, 1, 1)
	dc.DrawRectangle(frac*(w-h*0.1), h*0.85, h*0.1, h*0.1)
	dc.Fill()

	dc.SetFontFace(basicfont.Face7x13)
	dc.SetRGB(1, 1, 1)
	label := fmt.Sprintf("%s  frame %d", formatTimestamp(pos), p.clock.index)
	dc.DrawStringAnchored(label, w/2, h*0.4, 0.5, 0.5)

	frame := &media.Frame{Image: dc.Image(), PositionMs: pos}
	p.clock.index++
	return frame, nil
}

func (p *pattern) PositionMs() int64 { return p.clock.position() }

func (p *pattern) SetPositionMs(ms int64) error {
	if p.closed {
		return &media.SourceError{Path: p.path, Op: "seek", Err: errClosed}
	}
	p.clock.seek(ms)
	return nil
}

func (p *pattern) DurationMs() int64 { return p.clock.duration() }

func (p *pattern) Close() error {
	p.closed = true
	return nil
}

func formatTimestamp(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}
