package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/dunamismax/pixelconvert/internal/domain"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type FailureKind string

const (
	FailureDecode FailureKind = "decode"
	FailureResize FailureKind = "resize"
	FailureEncode FailureKind = "encode"
)

// Failure is the per-item error slot of a batch. It unwraps to the stage
// error, so errors.Is(f, ErrDecode) and errors.Is(f, ErrEncode) work.
type Failure struct {
	Index int
	Input string
	Kind  FailureKind
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("convert %s: %s stage: %v", f.Input, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Result holds exactly one of Asset or Failure.
type Result struct {
	Asset   *domain.Asset
	Failure *Failure
}

func (r Result) OK() bool {
	return r.Asset != nil
}

func Assets(results []Result) []domain.Asset {
	out := make([]domain.Asset, 0, len(results))
	for _, r := range results {
		if r.Asset != nil {
			out = append(out, *r.Asset)
		}
	}
	return out
}

func Failures(results []Result) []*Failure {
	var out []*Failure
	for _, r := range results {
		if r.Failure != nil {
			out = append(out, r.Failure)
		}
	}
	return out
}

type Config struct {
	// MaxInFlight caps concurrently converting items across all batches run
	// by one Converter. Zero means twice the number of CPUs.
	MaxInFlight int
	// MaxPixels bounds a single decoded input. Zero means DefaultMaxPixels,
	// negative disables the check.
	MaxPixels int64
}

type Converter struct {
	logger    zerolog.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	sem       chan struct{}
	maxPixels int64
}

// NewConverter builds a Converter. metrics may be nil.
func NewConverter(cfg Config, logger zerolog.Logger, metrics *Metrics) *Converter {
	slots := cfg.MaxInFlight
	if slots <= 0 {
		slots = 2 * runtime.NumCPU()
	}
	maxPixels := cfg.MaxPixels
	if maxPixels == 0 {
		maxPixels = DefaultMaxPixels
	}

	return &Converter{
		logger:    logger,
		metrics:   metrics,
		tracer:    otel.Tracer("pixelconvert/pipeline"),
		sem:       make(chan struct{}, slots),
		maxPixels: maxPixels,
	}
}

// ConvertBatch runs decode, resize and encode for every input concurrently
// and returns one Result per input in input order. Item failures are
// reported in their slot and never abort the batch. An empty input list
// yields an empty result list whatever the settings. If ctx ends before every
// item has finished, all results are discarded and ctx.Err() is returned.
func (c *Converter) ConvertBatch(ctx context.Context, inputs []domain.ImageInput, settings domain.ConversionSettings) ([]Result, error) {
	results := make([]Result, len(inputs))
	if len(inputs) == 0 {
		return results, nil
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid conversion settings: %w", err)
	}
	settings.Quality = domain.ClampQuality(settings.Quality)

	ctx, span := c.tracer.Start(ctx, "pipeline.convert_batch")
	span.SetAttributes(
		attribute.Int("batch.size", len(inputs)),
		attribute.String("batch.format", settings.Format.Extension()),
		attribute.Int("batch.quality", settings.Quality),
		attribute.Bool("batch.resize", settings.Resize != nil),
	)
	defer span.End()

	var wg sync.WaitGroup
launch:
	for i, input := range inputs {
		select {
		case <-ctx.Done():
			break launch
		case c.sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, input domain.ImageInput) {
			defer wg.Done()
			defer func() { <-c.sem }()
			results[i] = c.convertItem(ctx, i, input, settings)
		}(i, input)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch cancelled")
		c.logger.Warn().Err(err).Int("inputs", len(inputs)).Msg("batch cancelled, results discarded")
		return nil, err
	}

	failed := len(Failures(results))
	span.SetAttributes(attribute.Int("batch.failed", failed))
	span.SetStatus(codes.Ok, "converted")
	c.logger.Info().
		Int("inputs", len(inputs)).
		Int("failed", failed).
		Str("format", settings.Format.Extension()).
		Msg("batch converted")
	return results, nil
}

func (c *Converter) convertItem(ctx context.Context, index int, input domain.ImageInput, settings domain.ConversionSettings) Result {
	startedAt := time.Now()
	ctx, span := c.tracer.Start(ctx, "pipeline.convert_item")
	span.SetAttributes(
		attribute.Int("item.index", index),
		attribute.String("item.name", input.Name),
		attribute.Int("item.bytes", len(input.Data)),
	)
	defer span.End()

	if c.metrics != nil {
		c.metrics.inFlight.Inc()
		defer c.metrics.inFlight.Dec()
	}

	fail := func(kind FailureKind, err error) Result {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind)+" failed")
		c.observe(settings.Format, string(kind)+"_failed", startedAt, 0)
		c.logger.Debug().Err(err).Int("index", index).Str("input", input.Name).Str("stage", string(kind)).Msg("item failed")
		return Result{Failure: &Failure{Index: index, Input: input.Name, Kind: kind, Err: err}}
	}

	if err := ctx.Err(); err != nil {
		return fail(FailureDecode, err)
	}

	surface, err := DecodeLimit(input.Data, c.maxPixels)
	if err != nil {
		return fail(FailureDecode, err)
	}

	surface, err = Resize(surface, settings.Resize, settings.Filter)
	if err != nil {
		return fail(FailureResize, err)
	}

	encoded, err := Encode(surface, settings.Format, settings.Quality)
	if err != nil {
		return fail(FailureEncode, err)
	}

	asset := domain.Asset{
		Name:     domain.AssetName(input.Name, settings.Format),
		Data:     encoded.Data,
		Format:   settings.Format,
		MIMEType: encoded.MIMEType,
		Width:    surface.Width,
		Height:   surface.Height,
	}
	span.SetAttributes(
		attribute.String("item.output", asset.Name),
		attribute.Int("item.output_bytes", len(asset.Data)),
	)
	c.observe(settings.Format, "converted", startedAt, surface.Pixels())
	c.logger.Debug().
		Int("index", index).
		Str("input", input.Name).
		Str("output", asset.Name).
		Int("width", asset.Width).
		Int("height", asset.Height).
		Int("bytes", len(asset.Data)).
		Msg("item converted")

	return Result{Asset: &asset}
}

func (c *Converter) observe(format domain.Format, outcome string, startedAt time.Time, pixels int64) {
	if c.metrics == nil {
		return
	}
	c.metrics.itemsTotal.WithLabelValues(format.Extension(), outcome).Inc()
	c.metrics.itemDuration.WithLabelValues(format.Extension(), outcome).Observe(time.Since(startedAt).Seconds())
	if pixels > 0 {
		c.metrics.pixelsProcessed.Add(float64(pixels))
	}
}
