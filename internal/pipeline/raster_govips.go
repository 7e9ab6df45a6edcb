//go:build govips && cgo

package pipeline

import (
	"fmt"
	"image"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/dunamismax/pixelconvert/internal/domain"
)

// govipsRasterEncoder hands a lossless PNG of the surface to libvips and
// exports the requested format from there. Startup must have been called.
type govipsRasterEncoder struct{}

func (govipsRasterEncoder) Encode(img *image.NRGBA, format domain.Format, quality int) ([]byte, error) {
	source, err := losslessPNG(img)
	if err != nil {
		return nil, err
	}

	ref, err := vips.NewImageFromBuffer(source)
	if err != nil {
		return nil, fmt.Errorf("load surface into vips: %w", err)
	}
	defer ref.Close()

	quality = domain.ClampQuality(quality)
	switch format {
	case domain.FormatJPEG:
		params := vips.NewJpegExportParams()
		params.Quality = quality
		data, _, err := ref.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, nil
	case domain.FormatPNG:
		data, _, err := ref.ExportPng(vips.NewPngExportParams())
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	case domain.FormatWEBP:
		params := vips.NewWebpExportParams()
		params.Quality = quality
		data, _, err := ref.ExportWebp(params)
		if err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %v is not a raster format", ErrUnsupportedFormat, format)
	}
}
