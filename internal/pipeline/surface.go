package pipeline

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Surface is a decoded image as non-premultiplied RGBA samples in row-major
// order. len(Pix) is always Width*Height*4.
type Surface struct {
	Width  int
	Height int
	Pix    []byte
}

func NewSurface(width, height int) (Surface, error) {
	if width <= 0 || height <= 0 {
		return Surface{}, fmt.Errorf("surface dimensions must be positive, got %dx%d", width, height)
	}
	return Surface{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*4),
	}, nil
}

// SurfaceFromImage converts img into a Surface anchored at (0,0). A tightly
// packed *image.NRGBA at the origin is adopted without copying.
func SurfaceFromImage(img image.Image) Surface {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) && n.Stride == b.Dx()*4 && len(n.Pix) == b.Dx()*b.Dy()*4 {
		return Surface{Width: b.Dx(), Height: b.Dy(), Pix: n.Pix}
	}

	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return Surface{Width: b.Dx(), Height: b.Dy(), Pix: dst.Pix}
}

// Image returns an *image.NRGBA view sharing the surface's pixel buffer.
func (s Surface) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    s.Pix,
		Stride: s.Width * 4,
		Rect:   image.Rect(0, 0, s.Width, s.Height),
	}
}

func (s Surface) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return errors.New("surface has zero width or height")
	}
	if len(s.Pix) != s.Width*s.Height*4 {
		return fmt.Errorf("surface pixel buffer has %d bytes, want %d", len(s.Pix), s.Width*s.Height*4)
	}
	return nil
}

func (s Surface) Pixels() int64 {
	return int64(s.Width) * int64(s.Height)
}
