package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/dunamismax/pixelconvert/internal/archive"
	"github.com/dunamismax/pixelconvert/internal/domain"
	"github.com/dunamismax/pixelconvert/internal/pipeline"
	"github.com/dunamismax/pixelconvert/internal/telemetry"
	"github.com/rs/zerolog"
)

const usage = `usage: imgconv [flags] file...

Converts every file to one output format and writes the results to -out,
either as individual files or as a single archive with -zip.

flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := telemetry.NewLogger("imgconv", telemetry.LogConfigFromEnv())
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr, logger))
}

type options struct {
	format        string
	quality       int
	width         int
	height        int
	filter        string
	outDir        string
	zip           bool
	archiveMethod string
	maxInFlight   int
}

func parseFlags(args []string, stderr io.Writer) (options, []string, error) {
	var opts options
	fs := flag.NewFlagSet("imgconv", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	fs.StringVar(&opts.format, "format", "png", "output format: png, jpeg, webp, pdf or svg")
	fs.IntVar(&opts.quality, "quality", domain.DefaultQuality, "jpeg and webp quality, clamped to 1-100")
	fs.IntVar(&opts.width, "width", 0, "resize width; ignored unless -height is also set")
	fs.IntVar(&opts.height, "height", 0, "resize height; ignored unless -width is also set")
	fs.StringVar(&opts.filter, "filter", "bilinear", "resample filter: bilinear, nearest, catmullrom or lanczos")
	fs.StringVar(&opts.outDir, "out", ".", "output directory")
	fs.BoolVar(&opts.zip, "zip", false, "write a single "+archive.DefaultName+" instead of individual files")
	fs.StringVar(&opts.archiveMethod, "archive-method", "deflate", "archive compression: deflate, store or zstd")
	fs.IntVar(&opts.maxInFlight, "max-in-flight", 2*runtime.NumCPU(), "items converted concurrently")

	if err := fs.Parse(args); err != nil {
		return options{}, nil, err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return options{}, nil, errors.New("no input files")
	}
	return opts, fs.Args(), nil
}

func (o options) settings() (domain.ConversionSettings, error) {
	quality := o.quality
	return domain.ConvertRequest{
		Format:  o.format,
		Quality: &quality,
		Width:   o.width,
		Height:  o.height,
		Filter:  o.filter,
	}.Settings(domain.DefaultQuality)
}

// run returns the process exit code: 0 when every item converted, 1 when any
// item failed, 2 for usage or setup errors.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, logger zerolog.Logger) int {
	opts, paths, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "imgconv: %v\n", err)
		return 2
	}

	settings, err := opts.settings()
	if err != nil {
		fmt.Fprintf(stderr, "imgconv: %v\n", err)
		return 2
	}
	method, err := archive.ParseMethod(opts.archiveMethod)
	if err != nil {
		fmt.Fprintf(stderr, "imgconv: %v\n", err)
		return 2
	}

	inputs, err := readInputs(paths)
	if err != nil {
		fmt.Fprintf(stderr, "imgconv: %v\n", err)
		return 2
	}

	if err := pipeline.Startup(); err != nil {
		fmt.Fprintf(stderr, "imgconv: start image backend: %v\n", err)
		return 2
	}
	defer pipeline.Shutdown()

	converter := pipeline.NewConverter(pipeline.Config{MaxInFlight: opts.maxInFlight}, logger, nil)
	results, err := converter.ConvertBatch(ctx, inputs, settings)
	if err != nil {
		fmt.Fprintf(stderr, "imgconv: %v\n", err)
		return 2
	}

	for _, f := range pipeline.Failures(results) {
		fmt.Fprintf(stderr, "imgconv: %v\n", f)
	}

	assets := pipeline.Assets(results)
	if len(assets) > 0 {
		if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
			fmt.Fprintf(stderr, "imgconv: create output directory: %v\n", err)
			return 2
		}
		if opts.zip {
			err = writeArchive(opts.outDir, assets, method, paths, stdout)
		} else {
			err = writeAssets(opts.outDir, assets, paths, stdout)
		}
		if err != nil {
			fmt.Fprintf(stderr, "imgconv: %v\n", err)
			return 2
		}
	}

	fmt.Fprintf(stdout, "converted %d of %d to %s\n", len(assets), len(results), settings.Format.Extension())
	if len(assets) != len(results) {
		return 1
	}
	return 0
}

func readInputs(paths []string) ([]domain.ImageInput, error) {
	inputs := make([]domain.ImageInput, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		inputs = append(inputs, domain.ImageInput{Name: filepath.Base(p), Data: data})
	}
	return inputs, nil
}

func writeAssets(dir string, assets []domain.Asset, inputPaths []string, stdout io.Writer) error {
	names := make([]string, len(assets))
	for i, a := range assets {
		names[i] = a.Name
	}

	for i, path := range outputPaths(dir, names, inputPaths) {
		if err := os.WriteFile(path, assets[i].Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Fprintln(stdout, path)
	}
	return nil
}

func writeArchive(dir string, assets []domain.Asset, method archive.Method, inputPaths []string, stdout io.Writer) error {
	data, err := archive.Build(assets, archive.WithMethod(method))
	if err != nil {
		return err
	}
	path := outputPaths(dir, []string{archive.DefaultName}, inputPaths)[0]
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintln(stdout, path)
	return nil
}

// outputPaths places each name under dir. A path already taken earlier in the
// run, or one naming an input file, gets " (n)" inserted before its extension,
// so "photo.png" becomes "photo (1).png".
func outputPaths(dir string, names []string, inputPaths []string) []string {
	taken := make(map[string]bool, len(inputPaths)+len(names))
	for _, p := range inputPaths {
		taken[pathKey(p)] = true
	}

	out := make([]string, len(names))
	for i, name := range names {
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)

		path := filepath.Join(dir, name)
		for n := 1; taken[pathKey(path)]; n++ {
			path = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
		}
		taken[pathKey(path)] = true
		out[i] = path
	}
	return out
}

// pathKey folds case so names differing only in case collide, as they do on
// case-insensitive filesystems.
func pathKey(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return strings.ToLower(filepath.Clean(p))
}
