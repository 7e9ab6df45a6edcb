package pipeline

import (
	"bytes"
	"encoding/base64"
	"fmt"
)

// encodeSVG wraps the surface, as an inline lossless PNG, in a minimal SVG
// document of the same size. No vector tracing is attempted.
func encodeSVG(s Surface, _ int) ([]byte, error) {
	embedded, err := losslessPNG(s.Image())
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(base64.StdEncoding.EncodedLen(len(embedded)) + 512)
	fmt.Fprintf(&buf, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" version="1.1" width="%d" height="%d" viewBox="0 0 %d %d">
<image x="0" y="0" width="%d" height="%d" preserveAspectRatio="none" xlink:href="data:image/png;base64,`,
		s.Width, s.Height, s.Width, s.Height, s.Width, s.Height)

	enc := base64.NewEncoder(base64.StdEncoding, &buf)
	if _, err := enc.Write(embedded); err != nil {
		return nil, fmt.Errorf("encode svg payload: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode svg payload: %w", err)
	}

	buf.WriteString("\"/>\n</svg>\n")
	return buf.Bytes(), nil
}
