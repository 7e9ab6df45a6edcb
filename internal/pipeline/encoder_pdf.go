package pipeline

import (
	"bytes"
	"fmt"
	"image/color"

	"github.com/phpdave11/gofpdf"
)

const pdfImageName = "surface"

// encodePDF builds a single-page document whose page is exactly the surface
// size in points, with the surface embedded as one lossless PNG image drawn
// from the origin to the far corner. Transparency is flattened onto white so
// the page carries a single image XObject.
func encodePDF(s Surface, _ int) ([]byte, error) {
	embedded, err := losslessPNG(flatten(s, color.White))
	if err != nil {
		return nil, err
	}

	width := float64(s.Width)
	height := float64(s.Height)

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: width, Ht: height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader(pdfImageName, opts, bytes.NewReader(embedded))
	pdf.ImageOptions(pdfImageName, 0, 0, width, height, false, opts, 0, "")
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("build pdf: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}
