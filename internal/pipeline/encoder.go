package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/dunamismax/pixelconvert/internal/domain"
	"golang.org/x/image/draw"
)

var (
	ErrEncode            = errors.New("encode image")
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported format", ErrEncode)
	ErrDegenerateSurface = fmt.Errorf("%w: degenerate surface", ErrEncode)
)

type Encoded struct {
	Data     []byte
	MIMEType string
}

type encodeFunc func(s Surface, quality int) ([]byte, error)

// encoders has one entry per domain.Format; TestEveryFormatHasEncoder keeps
// it complete.
var encoders = [domain.NumFormats]encodeFunc{
	domain.FormatPNG: func(s Surface, _ int) ([]byte, error) {
		return raster.Encode(s.Image(), domain.FormatPNG, 0)
	},
	domain.FormatJPEG: func(s Surface, quality int) ([]byte, error) {
		return raster.Encode(s.Image(), domain.FormatJPEG, quality)
	},
	domain.FormatWEBP: func(s Surface, quality int) ([]byte, error) {
		return raster.Encode(s.Image(), domain.FormatWEBP, quality)
	},
	domain.FormatPDF: encodePDF,
	domain.FormatSVG: encodeSVG,
}

// rasterEncoder produces PNG, JPEG and WebP payloads. The implementation is
// chosen at build time (see runtime_govips.go and runtime_stub.go).
type rasterEncoder interface {
	Encode(img *image.NRGBA, format domain.Format, quality int) ([]byte, error)
}

var raster = newRasterEncoder()

// Encode serializes s into format. Quality is clamped into [1,100] and only
// affects lossy formats. s is not modified.
func Encode(s Surface, format domain.Format, quality int) (Encoded, error) {
	if !format.Valid() || encoders[format] == nil {
		return Encoded{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}
	if err := s.Validate(); err != nil {
		return Encoded{}, fmt.Errorf("%w: %v", ErrDegenerateSurface, err)
	}

	data, err := encoders[format](s, domain.ClampQuality(quality))
	if err != nil {
		if errors.Is(err, ErrEncode) {
			return Encoded{}, err
		}
		return Encoded{}, fmt.Errorf("%w: %s: %v", ErrEncode, format.Extension(), err)
	}
	return Encoded{Data: data, MIMEType: format.MIMEType()}, nil
}

// losslessPNG is the embedded representation used by the container formats.
func losslessPNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// flatten composites s over an opaque background.
func flatten(s Surface, bg color.Color) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), s.Image(), image.Point{}, draw.Over)
	return dst
}
