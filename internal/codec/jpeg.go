// Package codec implements media.Codec with baseline JPEG, the frame format
// viewers decode on the wire.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/zsiec/playback/internal/media"
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 80

var errNoImage = errors.New("codec: frame has no image")

// JPEG encodes frames as JPEG. If MaxWidth is set, wider frames are scaled
// down, preserving aspect ratio, before encoding.
type JPEG struct {
	Quality  int
	MaxWidth int
}

var _ media.Codec = (*JPEG)(nil)

// NewJPEG returns a JPEG codec. Out-of-range quality selects DefaultQuality.
func NewJPEG(quality, maxWidth int) *JPEG {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return &JPEG{Quality: quality, MaxWidth: maxWidth}
}

func (c *JPEG) Encode(f *media.Frame) ([]byte, error) {
	if f == nil || f.Image == nil {
		return nil, errNoImage
	}

	img := c.scale(f.Image)
	quality := c.Quality
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *JPEG) Decode(data []byte) (*media.Frame, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode JPEG: %w", err)
	}
	return &media.Frame{Image: img}, nil
}

func (c *JPEG) scale(img image.Image) image.Image {
	b := img.Bounds()
	if c.MaxWidth <= 0 || b.Dx() <= c.MaxWidth {
		return img
	}
	h := b.Dy() * c.MaxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, c.MaxWidth, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
