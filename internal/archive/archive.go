// Package archive bundles converted assets into a single zip container.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dunamismax/pixelconvert/internal/domain"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

const (
	DefaultName = "converted_images.zip"
	MIMEType    = "application/zip"
)

var (
	ErrArchive = errors.New("build archive")
	ErrEmpty   = fmt.Errorf("%w: no assets to archive", ErrArchive)
)

// Method is the per-entry compression method.
type Method string

const (
	MethodDeflate Method = "deflate"
	MethodStore   Method = "store"
	// MethodZstd writes WinZip method 93 entries. Not every unzip tool reads
	// them, so it is opt-in.
	MethodZstd Method = "zstd"
)

func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MethodDeflate, nil
	case MethodDeflate, MethodStore, MethodZstd:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported archive method: %q", s)
	}
}

type options struct {
	method Method
	now    func() time.Time
}

type Option func(*options)

func WithMethod(m Method) Option {
	return func(o *options) {
		if m != "" {
			o.method = m
		}
	}
}

// WithClock sets the source of entry modification times.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

var registerZstd sync.Once

// Build writes one entry per asset, in order, named after the asset. Assets
// sharing a name are all written; the zip format keeps duplicate entries and
// readers usually resolve a lookup by name to the first one. A blank name
// cannot be written as an entry and fails the build with ErrArchive.
func Build(assets []domain.Asset, opts ...Option) ([]byte, error) {
	if len(assets) == 0 {
		return nil, ErrEmpty
	}

	o := options{method: MethodDeflate, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	method, err := zipMethod(o.method)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchive, err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	modified := o.now()

	for i, asset := range assets {
		if strings.TrimSpace(asset.Name) == "" {
			_ = zw.Close()
			return nil, fmt.Errorf("%w: asset %d has no name", ErrArchive, i)
		}

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     asset.Name,
			Method:   method,
			Modified: modified,
		})
		if err != nil {
			_ = zw.Close()
			return nil, fmt.Errorf("%w: create entry %s: %v", ErrArchive, asset.Name, err)
		}
		if _, err := w.Write(asset.Data); err != nil {
			_ = zw.Close()
			return nil, fmt.Errorf("%w: write entry %s: %v", ErrArchive, asset.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: finalize: %v", ErrArchive, err)
	}
	return buf.Bytes(), nil
}

func zipMethod(m Method) (uint16, error) {
	switch m {
	case MethodDeflate:
		return zip.Deflate, nil
	case MethodStore:
		return zip.Store, nil
	case MethodZstd:
		registerZstd.Do(func() {
			zip.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor())
			zip.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())
		})
		return zstd.ZipMethodWinZip, nil
	default:
		return 0, fmt.Errorf("unsupported archive method: %q", m)
	}
}

// Result is the completion value of BuildAsync.
type Result struct {
	Data []byte
	Err  error
}

// BuildAsync builds the archive on its own goroutine. The returned channel
// yields exactly one Result and is then closed. If ctx ends first the
// archive is discarded and the Result carries ctx.Err().
func BuildAsync(ctx context.Context, assets []domain.Asset, opts ...Option) <-chan Result {
	out := make(chan Result, 1)
	snapshot := append([]domain.Asset(nil), assets...)

	go func() {
		defer close(out)

		done := make(chan Result, 1)
		go func() {
			data, err := Build(snapshot, opts...)
			done <- Result{Data: data, Err: err}
		}()

		select {
		case <-ctx.Done():
			out <- Result{Err: ctx.Err()}
		case r := <-done:
			if err := ctx.Err(); err != nil {
				out <- Result{Err: err}
				return
			}
			out <- r
		}
	}()

	return out
}
