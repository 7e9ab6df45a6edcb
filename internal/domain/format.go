package domain

import (
	"fmt"
	"strings"
)

// Format is the closed set of output representations a batch can target.
type Format int

const (
	FormatPNG Format = iota
	FormatJPEG
	FormatWEBP
	FormatPDF
	FormatSVG

	numFormats
)

// NumFormats is the number of Format variants. Tables indexed by Format are
// sized with it.
const NumFormats = int(numFormats)

var formatInfo = [numFormats]struct {
	name string
	mime string
	lossy bool
}{
	FormatPNG:  {name: "png", mime: "image/png"},
	FormatJPEG: {name: "jpeg", mime: "image/jpeg", lossy: true},
	FormatWEBP: {name: "webp", mime: "image/webp", lossy: true},
	FormatPDF:  {name: "pdf", mime: "application/pdf"},
	FormatSVG:  {name: "svg", mime: "image/svg+xml"},
}

// Formats returns every supported output format in declaration order.
func Formats() []Format {
	out := make([]Format, 0, numFormats)
	for f := Format(0); f < numFormats; f++ {
		out = append(out, f)
	}
	return out
}

func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "jpg" {
		name = "jpeg"
	}
	for f := Format(0); f < numFormats; f++ {
		if formatInfo[f].name == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unsupported format: %q", s)
}

func (f Format) Valid() bool {
	return f >= 0 && f < numFormats
}

// Extension is the file extension without the leading dot. It is also the
// lower-cased format name, so JPEG maps to "jpeg".
func (f Format) Extension() string {
	if !f.Valid() {
		return ""
	}
	return formatInfo[f].name
}

func (f Format) MIMEType() string {
	if !f.Valid() {
		return "application/octet-stream"
	}
	return formatInfo[f].mime
}

// Lossy reports whether the quality setting affects the encoded output.
func (f Format) Lossy() bool {
	return f.Valid() && formatInfo[f].lossy
}

func (f Format) String() string {
	if !f.Valid() {
		return fmt.Sprintf("Format(%d)", int(f))
	}
	return strings.ToUpper(formatInfo[f].name)
}

func (f Format) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid format %d", int(f))
	}
	return []byte(formatInfo[f].name), nil
}

func (f *Format) UnmarshalText(text []byte) error {
	parsed, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
