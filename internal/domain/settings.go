package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	MinQuality     = 1
	MaxQuality     = 100
	DefaultQuality = 90
)

// Resize is an explicit target size. Aspect ratio is never preserved; the
// output has exactly Width x Height pixels.
type Resize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ConversionSettings apply uniformly to every item of one batch run.
type ConversionSettings struct {
	Format  Format
	Quality int
	Resize  *Resize
	Filter  Filter
}

func (s ConversionSettings) Validate() error {
	if !s.Format.Valid() {
		return fmt.Errorf("unsupported format: %v", s.Format)
	}
	if s.Resize != nil && (s.Resize.Width <= 0 || s.Resize.Height <= 0) {
		return fmt.Errorf("resize requires positive width and height, got %dx%d", s.Resize.Width, s.Resize.Height)
	}
	if _, ok := filterNames[s.Filter]; !ok {
		return fmt.Errorf("unsupported resample filter: %v", s.Filter)
	}
	return nil
}

// ClampQuality maps any quality value into [MinQuality, MaxQuality].
func ClampQuality(q int) int {
	if q < MinQuality {
		return MinQuality
	}
	if q > MaxQuality {
		return MaxQuality
	}
	return q
}

// ParseResize applies the batch resize policy: a resize happens only when
// both dimensions are given. A missing or zero dimension on either side means
// identity, so "640" x "" yields nil.
func ParseResize(width, height string) (*Resize, error) {
	width = strings.TrimSpace(width)
	height = strings.TrimSpace(height)
	if width == "" || height == "" {
		return nil, nil
	}

	w, err := strconv.Atoi(width)
	if err != nil {
		return nil, fmt.Errorf("invalid resize width %q: %w", width, err)
	}
	h, err := strconv.Atoi(height)
	if err != nil {
		return nil, fmt.Errorf("invalid resize height %q: %w", height, err)
	}
	return ResizeFromInts(w, h)
}

// ResizeFromInts is ParseResize for already numeric input; zero means absent.
func ResizeFromInts(w, h int) (*Resize, error) {
	if w < 0 || h < 0 {
		return nil, errors.New("resize dimensions must not be negative")
	}
	if w == 0 || h == 0 {
		return nil, nil
	}
	return &Resize{Width: w, Height: h}, nil
}

// ConvertRequest is the wire form of ConversionSettings.
type ConvertRequest struct {
	Format  string `json:"format"`
	Quality *int   `json:"quality,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Filter  string `json:"filter,omitempty"`
}

// Settings validates the request and converts it. Quality defaults to
// defaultQuality when omitted and is clamped otherwise.
func (r ConvertRequest) Settings(defaultQuality int) (ConversionSettings, error) {
	if strings.TrimSpace(r.Format) == "" {
		return ConversionSettings{}, errors.New("format is required")
	}
	format, err := ParseFormat(r.Format)
	if err != nil {
		return ConversionSettings{}, err
	}
	filter, err := ParseFilter(r.Filter)
	if err != nil {
		return ConversionSettings{}, err
	}
	resize, err := ResizeFromInts(r.Width, r.Height)
	if err != nil {
		return ConversionSettings{}, err
	}

	quality := defaultQuality
	if r.Quality != nil {
		quality = *r.Quality
	}

	return ConversionSettings{
		Format:  format,
		Quality: ClampQuality(quality),
		Resize:  resize,
		Filter:  filter,
	}, nil
}
