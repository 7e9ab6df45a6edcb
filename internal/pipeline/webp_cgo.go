//go:build cgo

package pipeline

import (
	"fmt"
	"image"
	"io"

	"github.com/chai2010/webp"
)

func encodeWebP(w io.Writer, img image.Image, quality int) error {
	if err := webp.Encode(w, img, &webp.Options{Lossless: false, Quality: float32(quality)}); err != nil {
		return fmt.Errorf("encode webp: %w", err)
	}
	return nil
}
