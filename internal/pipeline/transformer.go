package pipeline

import (
	"errors"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/pixelconvert/internal/domain"
	"golang.org/x/image/draw"
)

var ErrInvalidResize = errors.New("invalid resize")

// Resize scales s to exactly target.Width x target.Height. A nil target, or
// one equal to the current size, returns s itself without copying. The input
// surface is never modified.
func Resize(s Surface, target *domain.Resize, filter domain.Filter) (Surface, error) {
	if target == nil {
		return s, nil
	}
	if target.Width <= 0 || target.Height <= 0 {
		return Surface{}, fmt.Errorf("%w: width and height must be positive, got %dx%d", ErrInvalidResize, target.Width, target.Height)
	}
	if err := s.Validate(); err != nil {
		return Surface{}, fmt.Errorf("%w: %v", ErrInvalidResize, err)
	}
	if target.Width == s.Width && target.Height == s.Height {
		return s, nil
	}

	src := s.Image()
	if filter == domain.FilterLanczos {
		return SurfaceFromImage(imaging.Resize(src, target.Width, target.Height, imaging.Lanczos)), nil
	}

	kernel, err := scalerFor(filter)
	if err != nil {
		return Surface{}, err
	}
	out, err := NewSurface(target.Width, target.Height)
	if err != nil {
		return Surface{}, fmt.Errorf("%w: %v", ErrInvalidResize, err)
	}
	dst := out.Image()
	kernel.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return out, nil
}

func scalerFor(filter domain.Filter) (draw.Scaler, error) {
	switch filter {
	case domain.FilterNearest:
		return draw.NearestNeighbor, nil
	case domain.FilterBilinear:
		return draw.BiLinear, nil
	case domain.FilterCatmullRom:
		return draw.CatmullRom, nil
	default:
		return nil, fmt.Errorf("%w: unsupported filter %v", ErrInvalidResize, filter)
	}
}
