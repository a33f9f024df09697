package pipeline

import (
	"image"

	"github.com/cockroachdb/errors"
)

// decodeRGBA wraps tightly packed RGBA8 rows. Shaders write straight alpha, so
// the pixels are not premultiplied. The length must be exactly width*height*4;
// nothing is truncated or padded.
func decodeRGBA(data []byte, width, height int) (*image.NRGBA, error) {
	want := width * height * 4
	if width <= 0 || height <= 0 || len(data) != want {
		return nil, errors.Wrapf(ErrDecode, "got %d bytes for %dx%d RGBA8, want %d", len(data), width, height, want)
	}

	return &image.NRGBA{
		Pix:    data,
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}, nil
}
