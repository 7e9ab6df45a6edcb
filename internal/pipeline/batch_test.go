package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"testing"

	"github.com/dunamismax/pixelconvert/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func newTestConverter(t testing.TB, maxInFlight int) (*Converter, *Metrics) {
	t.Helper()

	metrics := NewMetrics(prometheus.NewRegistry())
	return NewConverter(Config{MaxInFlight: maxInFlight}, zerolog.Nop(), metrics), metrics
}

func TestConvertBatchMixedInputs(t *testing.T) {
	converter, metrics := newTestConverter(t, 4)

	inputs := []domain.ImageInput{
		{Name: "red.png", Data: buildSolidPNG(t, 10, 10, color.NRGBA{R: 255, A: 255})},
		{Name: "broken.png", Data: []byte{0x00, 0x01, 0x02, 0x03}},
	}
	results, err := converter.ConvertBatch(context.Background(), inputs, domain.ConversionSettings{
		Format:  domain.FormatJPEG,
		Quality: 80,
	})
	if err != nil {
		t.Fatalf("convert batch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	first := results[0]
	if !first.OK() || first.Failure != nil {
		t.Fatalf("expected first item to convert, got failure %v", first.Failure)
	}
	if first.Asset.Name != "red.jpeg" {
		t.Fatalf("expected red.jpeg, got %s", first.Asset.Name)
	}
	if first.Asset.MIMEType != "image/jpeg" || first.Asset.Format != domain.FormatJPEG {
		t.Fatalf("unexpected asset metadata %+v", first.Asset)
	}
	decoded, err := Decode(first.Asset.Data)
	if err != nil {
		t.Fatalf("decode converted jpeg: %v", err)
	}
	if decoded.Width != 10 || decoded.Height != 10 {
		t.Fatalf("expected 10x10, got %dx%d", decoded.Width, decoded.Height)
	}

	second := results[1]
	if second.OK() || second.Failure == nil {
		t.Fatal("expected second item to fail")
	}
	if second.Failure.Kind != FailureDecode || second.Failure.Input != "broken.png" || second.Failure.Index != 1 {
		t.Fatalf("unexpected failure %+v", second.Failure)
	}
	if !errors.Is(second.Failure, ErrDecode) {
		t.Fatalf("expected failure to unwrap to ErrDecode, got %v", second.Failure.Err)
	}

	if got := testutil.ToFloat64(metrics.itemsTotal.WithLabelValues("jpeg", "converted")); got != 1 {
		t.Fatalf("expected 1 converted item metric, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.itemsTotal.WithLabelValues("jpeg", "decode_failed")); got != 1 {
		t.Fatalf("expected 1 decode failure metric, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.pixelsProcessed); got != 100 {
		t.Fatalf("expected 100 pixels processed, got %v", got)
	}
}

func TestConvertBatchPreservesOrder(t *testing.T) {
	converter, _ := newTestConverter(t, 3)

	var inputs []domain.ImageInput
	for i := 0; i < 12; i++ {
		data := buildTestPNG(t, 5+i, 3+i)
		if i%4 == 3 {
			data = []byte("nope")
		}
		inputs = append(inputs, domain.ImageInput{Name: fmt.Sprintf("img%02d.png", i), Data: data})
	}

	results, err := converter.ConvertBatch(context.Background(), inputs, domain.ConversionSettings{Format: domain.FormatPNG})
	if err != nil {
		t.Fatalf("convert batch: %v", err)
	}
	if len(results) != len(inputs) {
		t.Fatalf("expected %d results, got %d", len(inputs), len(results))
	}
	for i, r := range results {
		if i%4 == 3 {
			if r.Failure == nil || r.Failure.Index != i {
				t.Fatalf("slot %d: expected failure tagged with its index, got %+v", i, r)
			}
			continue
		}
		want := fmt.Sprintf("img%02d.png", i)
		if r.Asset == nil || r.Asset.Name != want {
			t.Fatalf("slot %d: expected %s, got %+v", i, want, r)
		}
		if r.Asset.Width != 5+i || r.Asset.Height != 3+i {
			t.Fatalf("slot %d: expected %dx%d, got %dx%d", i, 5+i, 3+i, r.Asset.Width, r.Asset.Height)
		}
	}

	if got := len(Assets(results)); got != 9 {
		t.Fatalf("expected 9 assets, got %d", got)
	}
	if got := len(Failures(results)); got != 3 {
		t.Fatalf("expected 3 failures, got %d", got)
	}
}

func TestConvertBatchAppliesResize(t *testing.T) {
	converter, _ := newTestConverter(t, 2)

	results, err := converter.ConvertBatch(context.Background(), []domain.ImageInput{
		{Name: "a.png", Data: buildTestPNG(t, 50, 40)},
		{Name: "b.png", Data: buildTestPNG(t, 8, 90)},
	}, domain.ConversionSettings{
		Format: domain.FormatPNG,
		Resize: &domain.Resize{Width: 16, Height: 12},
	})
	if err != nil {
		t.Fatalf("convert batch: %v", err)
	}
	for i, r := range results {
		if r.Asset == nil {
			t.Fatalf("slot %d failed: %v", i, r.Failure)
		}
		s, err := Decode(r.Asset.Data)
		if err != nil {
			t.Fatalf("slot %d decode: %v", i, err)
		}
		if s.Width != 16 || s.Height != 12 {
			t.Fatalf("slot %d: expected 16x12, got %dx%d", i, s.Width, s.Height)
		}
	}
}

func TestConvertBatchEmptyInput(t *testing.T) {
	converter, _ := newTestConverter(t, 1)

	results, err := converter.ConvertBatch(context.Background(), nil, domain.ConversionSettings{Format: domain.FormatPNG})
	if err != nil {
		t.Fatalf("expected no error for empty batch, got %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Fatalf("expected empty result list, got %v", results)
	}
}

func TestConvertBatchEmptyInputIgnoresSettings(t *testing.T) {
	converter, _ := newTestConverter(t, 1)

	results, err := converter.ConvertBatch(context.Background(), []domain.ImageInput{}, domain.ConversionSettings{Format: domain.Format(99)})
	if err != nil {
		t.Fatalf("expected empty batch to succeed regardless of settings, got %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Fatalf("expected empty result list, got %v", results)
	}
}

func TestConvertBatchRejectsInvalidSettings(t *testing.T) {
	converter, _ := newTestConverter(t, 1)

	_, err := converter.ConvertBatch(context.Background(), []domain.ImageInput{{Name: "a.png", Data: buildTestPNG(t, 2, 2)}},
		domain.ConversionSettings{Format: domain.Format(99)})
	if err == nil {
		t.Fatal("expected error for invalid format")
	}
}

func TestConvertBatchCancelledDiscardsResults(t *testing.T) {
	converter, _ := newTestConverter(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := converter.ConvertBatch(ctx, []domain.ImageInput{
		{Name: "a.png", Data: buildTestPNG(t, 4, 4)},
		{Name: "b.png", Data: buildTestPNG(t, 4, 4)},
	}, domain.ConversionSettings{Format: domain.FormatPNG})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if results != nil {
		t.Fatalf("expected no results for cancelled batch, got %d", len(results))
	}
}

func TestConvertBatchAllFormats(t *testing.T) {
	converter, _ := newTestConverter(t, 0)

	for _, f := range domain.Formats() {
		if f == domain.FormatWEBP && !webpAvailable(t) {
			continue
		}
		results, err := converter.ConvertBatch(context.Background(), []domain.ImageInput{
			{Name: "photo.final.png", Data: buildTestPNG(t, 12, 9)},
		}, domain.ConversionSettings{Format: f, Quality: 150})
		if err != nil {
			t.Fatalf("%v: convert batch: %v", f, err)
		}
		r := results[0]
		if r.Asset == nil {
			t.Fatalf("%v: item failed: %v", f, r.Failure)
		}
		if r.Asset.Name != "photo."+f.Extension() {
			t.Fatalf("%v: unexpected name %s", f, r.Asset.Name)
		}
		if r.Asset.Format != f || r.Asset.MIMEType != f.MIMEType() {
			t.Fatalf("%v: asset tagged with %v/%s", f, r.Asset.Format, r.Asset.MIMEType)
		}
	}
}

func webpAvailable(t testing.TB) bool {
	t.Helper()
	_, err := Encode(testSurface(t, 1, 1), domain.FormatWEBP, 50)
	return err == nil
}
