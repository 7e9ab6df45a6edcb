package pipeline

import (
	"bytes"
	"errors"
	"image"
	"image/gif"
	"image/jpeg"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func TestDecodeFormats(t *testing.T) {
	src := buildTestImage(24, 12)

	var jpegBuf, gifBuf, bmpBuf, tiffBuf bytes.Buffer
	if err := jpeg.Encode(&jpegBuf, src, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg fixture: %v", err)
	}
	if err := gif.Encode(&gifBuf, src, nil); err != nil {
		t.Fatalf("encode gif fixture: %v", err)
	}
	if err := bmp.Encode(&bmpBuf, src); err != nil {
		t.Fatalf("encode bmp fixture: %v", err)
	}
	if err := tiff.Encode(&tiffBuf, src, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		t.Fatalf("encode tiff fixture: %v", err)
	}

	fixtures := map[string][]byte{
		"png":  buildTestPNG(t, 24, 12),
		"jpeg": jpegBuf.Bytes(),
		"gif":  gifBuf.Bytes(),
		"bmp":  bmpBuf.Bytes(),
		"tiff": tiffBuf.Bytes(),
	}
	for name, data := range fixtures {
		s, err := Decode(data)
		if err != nil {
			t.Fatalf("decode %s: %v", name, err)
		}
		if s.Width != 24 || s.Height != 12 {
			t.Fatalf("decode %s: expected 24x12, got %dx%d", name, s.Width, s.Height)
		}
		if err := s.Validate(); err != nil {
			t.Fatalf("decode %s: invalid surface: %v", name, err)
		}
	}
}

func TestDecodePNGIsExact(t *testing.T) {
	src := buildTestImage(16, 9)
	s, err := Decode(buildTestPNG(t, 16, 9))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(s.Pix, src.Pix) {
		t.Fatal("expected decoded PNG pixels to match the source exactly")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty":   nil,
		"corrupt": {0xde, 0xad, 0xbe, 0xef},
		"text":    []byte("definitely not an image"),
	} {
		if _, err := Decode(data); !errors.Is(err, ErrDecode) {
			t.Fatalf("%s: expected ErrDecode, got %v", name, err)
		}
	}
}

func TestDecodeTruncatedPNG(t *testing.T) {
	data := buildTestPNG(t, 32, 32)
	if _, err := Decode(data[:len(data)/2]); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode for truncated png, got %v", err)
	}
}

func TestDecodeLimitRejectsOversizedImages(t *testing.T) {
	data := buildTestPNG(t, 20, 20)
	if _, err := DecodeLimit(data, 399); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode for oversized image, got %v", err)
	}
	if _, err := DecodeLimit(data, 400); err != nil {
		t.Fatalf("expected image at the limit to decode, got %v", err)
	}
	if _, err := DecodeLimit(data, -1); err != nil {
		t.Fatalf("expected disabled limit to decode, got %v", err)
	}
}

func TestDecodeConfigMatchesSurface(t *testing.T) {
	data := buildTestPNG(t, 7, 3)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if format != "png" {
		t.Fatalf("expected png, got %s", format)
	}
	s, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Width != s.Width || cfg.Height != s.Height {
		t.Fatalf("config %dx%d does not match surface %dx%d", cfg.Width, cfg.Height, s.Width, s.Height)
	}
}
