package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels bounds a single decoded surface to roughly 400 MiB of RGBA.
const DefaultMaxPixels = 100_000_000

var ErrDecode = errors.New("decode image")

// Decode turns an encoded PNG, JPEG, GIF, BMP, TIFF or WebP buffer into a
// Surface.
func Decode(data []byte) (Surface, error) {
	return DecodeLimit(data, DefaultMaxPixels)
}

// DecodeLimit is Decode with an explicit pixel budget; maxPixels <= 0 disables
// the check.
func DecodeLimit(data []byte, maxPixels int64) (Surface, error) {
	if len(data) == 0 {
		return Surface{}, fmt.Errorf("%w: empty input", ErrDecode)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Surface{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Surface{}, fmt.Errorf("%w: image has invalid dimensions %dx%d", ErrDecode, cfg.Width, cfg.Height)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return Surface{}, fmt.Errorf("%w: image %dx%d exceeds pixel limit %d", ErrDecode, cfg.Width, cfg.Height, maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Surface{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return Surface{}, fmt.Errorf("%w: image has no pixels", ErrDecode)
	}

	return SurfaceFromImage(img), nil
}
