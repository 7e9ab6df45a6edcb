package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"
)

func writeTestPNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestRunWritesFilesAndReportsFailures(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "converted")

	good := writeTestPNG(t, in, "red.png", 10, 10)
	bad := filepath.Join(in, "broken.png")
	if err := os.WriteFile(bad, []byte{1, 2, 3, 4}, 0o644); err != nil {
		t.Fatalf("write broken fixture: %v", err)
	}

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-format", "jpeg", "-quality", "80", "-out", out, good, bad}, &stdout, &stderr, zerolog.Nop())
	if code != 1 {
		t.Fatalf("expected exit code 1 with a failed item, got %d (stderr=%s)", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "broken.png") {
		t.Fatalf("expected failure for broken.png on stderr, got %q", stderr.String())
	}
	if !strings.Contains(stdout.String(), "converted 1 of 2 to jpeg") {
		t.Fatalf("unexpected summary %q", stdout.String())
	}

	f, err := os.Open(filepath.Join(out, "red.jpeg"))
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if img.Bounds().Dx() != 10 || img.Bounds().Dy() != 10 {
		t.Fatalf("expected 10x10, got %v", img.Bounds())
	}
}

func TestRunWritesArchive(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	a := writeTestPNG(t, in, "a.png", 4, 4)
	b := writeTestPNG(t, in, "b.png", 6, 3)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-format", "png", "-width", "2", "-height", "2", "-zip", "-archive-method", "store", "-out", out, a, b}, &stdout, &stderr, zerolog.Nop())
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr=%s)", code, stderr.String())
	}

	zr, err := zip.OpenReader(filepath.Join(out, "converted_images.zip"))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer zr.Close()

	if len(zr.File) != 2 || zr.File[0].Name != "a.png" || zr.File[1].Name != "b.png" {
		t.Fatalf("unexpected archive entries")
	}
	rc, err := zr.File[1].Open()
	if err != nil {
		t.Fatalf("open entry: %v", err)
	}
	defer rc.Close()
	cfg, err := png.DecodeConfig(rc)
	if err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if cfg.Width != 2 || cfg.Height != 2 {
		t.Fatalf("expected 2x2 entry, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestRunUsageErrors(t *testing.T) {
	cases := [][]string{
		{},
		{"-format", "gif", "x.png"},
		{"-archive-method", "rar", "x.png"},
		{"-format", "png", filepath.Join(t.TempDir(), "missing.png")},
	}
	for _, args := range cases {
		var stdout, stderr bytes.Buffer
		if code := run(context.Background(), args, &stdout, &stderr, zerolog.Nop()); code != 2 {
			t.Fatalf("args %v: expected exit code 2, got %d", args, code)
		}
	}
}

func decodedSize(t *testing.T, path string) (int, int) {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return cfg.Width, cfg.Height
}

func TestRunKeepsCollidingOutputs(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	first := writeTestPNG(t, in, "photo.png", 10, 10)
	second := writeTestPNG(t, in, "photo.v2.png", 20, 20)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-format", "png", "-out", out, first, second}, &stdout, &stderr, zerolog.Nop())
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr=%s)", code, stderr.String())
	}

	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 output files, got %d", len(entries))
	}
	if w, h := decodedSize(t, filepath.Join(out, "photo.png")); w != 10 || h != 10 {
		t.Fatalf("expected photo.png 10x10, got %dx%d", w, h)
	}
	if w, h := decodedSize(t, filepath.Join(out, "photo (1).png")); w != 20 || h != 20 {
		t.Fatalf("expected photo (1).png 20x20, got %dx%d", w, h)
	}
}

func TestRunNeverOverwritesInputs(t *testing.T) {
	dir := t.TempDir()
	original := writeTestPNG(t, dir, "photo.png", 10, 10)
	variant := writeTestPNG(t, dir, "photo.v2.png", 20, 20)
	before, err := os.ReadFile(original)
	if err != nil {
		t.Fatalf("read input: %v", err)
	}

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-format", "png", "-out", dir, original, variant}, &stdout, &stderr, zerolog.Nop())
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr=%s)", code, stderr.String())
	}

	after, err := os.ReadFile(original)
	if err != nil {
		t.Fatalf("read input after run: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("input photo.png was overwritten")
	}
	if w, h := decodedSize(t, filepath.Join(dir, "photo (1).png")); w != 10 || h != 10 {
		t.Fatalf("expected photo (1).png 10x10, got %dx%d", w, h)
	}
	if w, h := decodedSize(t, filepath.Join(dir, "photo (2).png")); w != 20 || h != 20 {
		t.Fatalf("expected photo (2).png 20x20, got %dx%d", w, h)
	}
}

func TestOutputPaths(t *testing.T) {
	dir := t.TempDir()
	got := outputPaths(dir, []string{"a.png", "a.png", "b.jpeg", "A.png"}, []string{filepath.Join(dir, "b.jpeg")})
	want := []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "a (1).png"),
		filepath.Join(dir, "b (1).jpeg"),
		filepath.Join(dir, "A (2).png"),
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("path %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
