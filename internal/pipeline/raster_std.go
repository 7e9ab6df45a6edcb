//go:build !govips || !cgo

package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/dunamismax/pixelconvert/internal/domain"
)

type stdlibRasterEncoder struct{}

func (stdlibRasterEncoder) Encode(img *image.NRGBA, format domain.Format, quality int) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case domain.FormatPNG:
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case domain.FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: domain.ClampQuality(quality)}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case domain.FormatWEBP:
		if err := encodeWebP(&buf, img, domain.ClampQuality(quality)); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %v is not a raster format", ErrUnsupportedFormat, format)
	}

	return buf.Bytes(), nil
}
