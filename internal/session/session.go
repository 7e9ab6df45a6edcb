// Package session holds the ordered input and output lists of one user
// interaction and exposes the add, remove, convert and download operations
// over them.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dunamismax/pixelconvert/internal/archive"
	"github.com/dunamismax/pixelconvert/internal/domain"
	"github.com/dunamismax/pixelconvert/internal/pipeline"
)

var (
	ErrNoInputs        = errors.New("please select files first")
	ErrNoOutputs       = errors.New("no files available for download")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrSuperseded      = errors.New("conversion superseded by a newer run")
)

type BatchConverter interface {
	ConvertBatch(ctx context.Context, inputs []domain.ImageInput, settings domain.ConversionSettings) ([]pipeline.Result, error)
}

type Session struct {
	id          string
	converter   BatchConverter
	archiveOpts []archive.Option
	now         func() time.Time

	// runMu is held for the whole of a conversion run so runs never
	// interleave.
	runMu sync.Mutex

	mu        sync.Mutex
	inputs    []domain.ImageInput
	outputs   []domain.Asset
	lastUsed  time.Time
	runGen    uint64
	cancelRun context.CancelFunc
}

func New(id string, converter BatchConverter, archiveOpts ...archive.Option) *Session {
	return &Session{
		id:          id,
		converter:   converter,
		archiveOpts: archiveOpts,
		now:         time.Now,
		lastUsed:    time.Now(),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// AddInputs appends files to the selection. No deduplication is done.
func (s *Session) AddInputs(files ...domain.ImageInput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.inputs = append(s.inputs, files...)
}

func (s *Session) RemoveInput(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if index < 0 || index >= len(s.inputs) {
		return fmt.Errorf("%w: input %d of %d", ErrIndexOutOfRange, index, len(s.inputs))
	}
	s.inputs = append(s.inputs[:index:index], s.inputs[index+1:]...)
	return nil
}

func (s *Session) RemoveOutput(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if index < 0 || index >= len(s.outputs) {
		return fmt.Errorf("%w: output %d of %d", ErrIndexOutOfRange, index, len(s.outputs))
	}
	s.outputs = append(s.outputs[:index:index], s.outputs[index+1:]...)
	return nil
}

// ClearInputs empties the selection and cancels any conversion in flight;
// that run's results are discarded.
func (s *Session) ClearInputs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	s.inputs = nil
	s.supersedeLocked()
}

// Close cancels any conversion in flight and drops both lists.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inputs = nil
	s.outputs = nil
	s.supersedeLocked()
}

func (s *Session) Inputs() []domain.ImageInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ImageInput(nil), s.inputs...)
}

func (s *Session) Outputs() []domain.Asset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Asset(nil), s.outputs...)
}

func (s *Session) Output(index int) (domain.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if index < 0 || index >= len(s.outputs) {
		return domain.Asset{}, fmt.Errorf("%w: output %d of %d", ErrIndexOutOfRange, index, len(s.outputs))
	}
	return s.outputs[index], nil
}

// Convert runs one batch over the current selection. A call supersedes any
// run still in flight: the older run is cancelled and this one waits for it
// to return before starting. On success the output list is replaced by the
// converted assets; per-item failures are only reported in the results.
func (s *Session) Convert(ctx context.Context, settings domain.ConversionSettings) ([]pipeline.Result, error) {
	s.mu.Lock()
	s.touch()
	if len(s.inputs) == 0 {
		s.mu.Unlock()
		return nil, ErrNoInputs
	}
	s.supersedeLocked()
	runCtx, cancel := context.WithCancel(ctx)
	gen := s.runGen
	s.cancelRun = cancel
	s.mu.Unlock()
	defer cancel()

	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	if gen != s.runGen {
		s.mu.Unlock()
		return nil, ErrSuperseded
	}
	inputs := append([]domain.ImageInput(nil), s.inputs...)
	s.mu.Unlock()

	results, err := s.converter.ConvertBatch(runCtx, inputs, settings)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.runGen {
		return nil, ErrSuperseded
	}
	s.cancelRun = nil
	if err != nil {
		return nil, err
	}

	s.outputs = pipeline.Assets(results)
	return results, nil
}

// ArchiveAsync starts building an archive of the current outputs in the
// background.
func (s *Session) ArchiveAsync(ctx context.Context) (<-chan archive.Result, error) {
	s.mu.Lock()
	s.touch()
	outputs := append([]domain.Asset(nil), s.outputs...)
	s.mu.Unlock()

	if len(outputs) == 0 {
		return nil, ErrNoOutputs
	}
	return archive.BuildAsync(ctx, outputs, s.archiveOpts...), nil
}

// Archive builds an archive of the current outputs and waits for it.
func (s *Session) Archive(ctx context.Context) ([]byte, error) {
	ch, err := s.ArchiveAsync(ctx)
	if err != nil {
		return nil, err
	}
	result := <-ch
	return result.Data, result.Err
}

func (s *Session) supersedeLocked() {
	s.runGen++
	if s.cancelRun != nil {
		s.cancelRun()
		s.cancelRun = nil
	}
}

func (s *Session) touch() {
	s.lastUsed = s.now()
}
