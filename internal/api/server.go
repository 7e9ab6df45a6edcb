// Package api serves the session operations over HTTP for a local front end.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelconvert/internal/archive"
	"github.com/dunamismax/pixelconvert/internal/domain"
	"github.com/dunamismax/pixelconvert/internal/pipeline"
	"github.com/dunamismax/pixelconvert/internal/session"
	"github.com/dunamismax/pixelconvert/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const uploadField = "files"

type sessionStore interface {
	Create() *session.Session
	Get(sessionID string) (*session.Session, error)
	Delete(sessionID string) error
}

type archiveExporter interface {
	ExportArchive(ctx context.Context, sessionID, fileName string, data []byte, contentType string, expiry time.Duration) (storage.Export, error)
}

type Options struct {
	Registry              *prometheus.Registry
	Exporter              archiveExporter
	PresignTTL            time.Duration
	RateLimiter           RateLimiter
	RateLimitUserIDHeader string
	DefaultQuality        int
	DefaultFilter         domain.Filter
	MaxUploadBytes        int64
}

type Server struct {
	logger                zerolog.Logger
	sessions              sessionStore
	exporter              archiveExporter
	presignTTL            time.Duration
	rateLimiter           RateLimiter
	rateLimitUserIDHeader string
	defaultQuality        int
	defaultFilter         domain.Filter
	maxUploadBytes        int64
	metrics               *metrics
	tracer                trace.Tracer
	mux                   *http.ServeMux
}

func NewServer(logger zerolog.Logger, sessions sessionStore, opts Options) *Server {
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	if opts.DefaultQuality == 0 {
		opts.DefaultQuality = domain.DefaultQuality
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 256 << 20
	}
	if strings.TrimSpace(opts.RateLimitUserIDHeader) == "" {
		opts.RateLimitUserIDHeader = "X-User-ID"
	}

	s := &Server{
		logger:                logger,
		sessions:              sessions,
		exporter:              opts.Exporter,
		presignTTL:            opts.PresignTTL,
		rateLimiter:           opts.RateLimiter,
		rateLimitUserIDHeader: opts.RateLimitUserIDHeader,
		defaultQuality:        domain.ClampQuality(opts.DefaultQuality),
		defaultFilter:         opts.DefaultFilter,
		maxUploadBytes:        opts.MaxUploadBytes,
		metrics:               newMetrics(opts.Registry),
		tracer:                otel.Tracer("github.com/dunamismax/pixelconvert/internal/api"),
		mux:                   http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.withTracing(s.metrics.withHTTPMetrics(s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())

	s.mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	s.mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)

	s.mux.HandleFunc("POST /v1/sessions/{id}/inputs", s.handleAddInputs)
	s.mux.HandleFunc("GET /v1/sessions/{id}/inputs", s.handleListInputs)
	s.mux.HandleFunc("DELETE /v1/sessions/{id}/inputs", s.handleClearInputs)
	s.mux.HandleFunc("DELETE /v1/sessions/{id}/inputs/{index}", s.handleRemoveInput)

	s.mux.HandleFunc("POST /v1/sessions/{id}/convert", s.handleConvert)

	s.mux.HandleFunc("GET /v1/sessions/{id}/outputs", s.handleListOutputs)
	s.mux.HandleFunc("GET /v1/sessions/{id}/outputs/{index}", s.handleDownloadOutput)
	s.mux.HandleFunc("DELETE /v1/sessions/{id}/outputs/{index}", s.handleRemoveOutput)

	s.mux.HandleFunc("GET /v1/sessions/{id}/archive", s.handleDownloadArchive)
	s.mux.HandleFunc("POST /v1/sessions/{id}/archive/export", s.handleExportArchive)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	sess := s.sessions.Create()
	s.logger.Debug().Str("session_id", sess.ID()).Msg("session created")

	writeJSON(w, http.StatusCreated, map[string]string{
		"session_id": sess.ID(),
		"inputs_url": fmt.Sprintf("/v1/sessions/%s/inputs", sess.ID()),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type inputView struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Size  int    `json:"size"`
}

type outputView struct {
	Index    int    `json:"index"`
	Name     string `json:"name"`
	Format   string `json:"format"`
	MIMEType string `json:"mime_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Size     int    `json:"size"`
}

func inputViews(inputs []domain.ImageInput) []inputView {
	out := make([]inputView, len(inputs))
	for i, in := range inputs {
		out[i] = inputView{Index: i, Name: in.Name, Size: len(in.Data)}
	}
	return out
}

func outputViewOf(index int, a domain.Asset) outputView {
	return outputView{
		Index:    index,
		Name:     a.Name,
		Format:   a.Format.Extension(),
		MIMEType: a.MIMEType,
		Width:    a.Width,
		Height:   a.Height,
		Size:     len(a.Data),
	}
}

func outputViews(assets []domain.Asset) []outputView {
	out := make([]outputView, len(assets))
	for i, a := range assets {
		out[i] = outputViewOf(i, a)
	}
	return out
}

func (s *Server) handleAddInputs(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "upload exceeds size limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid multipart body: %v", err)})
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[uploadField]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("no files in form field %q", uploadField)})
		return
	}

	files := make([]domain.ImageInput, 0, len(headers))
	var total int
	for _, fh := range headers {
		data, err := readUpload(fh)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		files = append(files, domain.ImageInput{Name: fh.Filename, Data: data})
		total += len(data)
	}
	sess.AddInputs(files...)
	s.metrics.uploadBytes.Add(float64(total))

	s.logger.Debug().Str("session_id", sess.ID()).Int("added", len(files)).Msg("inputs added")
	writeJSON(w, http.StatusCreated, map[string]any{
		"added":  len(files),
		"inputs": inputViews(sess.Inputs()),
	})
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	return data, nil
}

func (s *Server) handleListInputs(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inputs": inputViews(sess.Inputs())})
}

func (s *Server) handleClearInputs(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	sess.ClearInputs()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveInput(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	if err := sess.RemoveInput(index); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inputs": inputViews(sess.Inputs())})
}

type convertResultView struct {
	Index  int         `json:"index"`
	OK     bool        `json:"ok"`
	Input  string      `json:"input,omitempty"`
	Stage  string      `json:"stage,omitempty"`
	Error  string      `json:"error,omitempty"`
	Output *outputView `json:"output,omitempty"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	req, err := decodeConvertRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Filter) == "" {
		req.Filter = s.defaultFilter.String()
	}
	settings, err := req.Settings(s.defaultQuality)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	inputCount := len(sess.Inputs())
	if inputCount == 0 {
		s.writeError(w, r, session.ErrNoInputs)
		return
	}
	if !s.allowConvert(w, r, inputCount) {
		return
	}

	results, err := sess.Convert(r.Context(), settings)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	views := make([]convertResultView, len(results))
	converted, outIndex := 0, 0
	for i, res := range results {
		views[i] = convertResultView{Index: i, OK: res.OK()}
		if res.Asset != nil {
			out := outputViewOf(outIndex, *res.Asset)
			views[i].Output = &out
			converted++
			outIndex++
			continue
		}
		views[i].Input = res.Failure.Input
		views[i].Stage = string(res.Failure.Kind)
		views[i].Error = res.Failure.Err.Error()
	}

	s.logger.Info().
		Str("session_id", sess.ID()).
		Str("format", settings.Format.Extension()).
		Int("converted", converted).
		Int("failed", len(results)-converted).
		Msg("batch converted")

	writeJSON(w, http.StatusOK, map[string]any{
		"format":    settings.Format.Extension(),
		"quality":   settings.Quality,
		"converted": converted,
		"failed":    len(results) - converted,
		"results":   views,
	})
}

// decodeConvertRequest accepts either a JSON body or the URL-encoded form a
// plain HTML form submits, where width and height arrive as free text.
func decodeConvertRequest(r *http.Request) (domain.ConvertRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/x-www-form-urlencoded" {
		var req domain.ConvertRequest
		err := decodeJSON(r, &req)
		return req, err
	}

	if err := r.ParseForm(); err != nil {
		return domain.ConvertRequest{}, fmt.Errorf("invalid form body: %w", err)
	}

	req := domain.ConvertRequest{
		Format: r.PostForm.Get("format"),
		Filter: r.PostForm.Get("filter"),
	}
	if q := strings.TrimSpace(r.PostForm.Get("quality")); q != "" {
		quality, err := strconv.Atoi(q)
		if err != nil {
			return domain.ConvertRequest{}, fmt.Errorf("invalid quality %q", q)
		}
		req.Quality = &quality
	}
	resize, err := domain.ParseResize(r.PostForm.Get("width"), r.PostForm.Get("height"))
	if err != nil {
		return domain.ConvertRequest{}, err
	}
	if resize != nil {
		req.Width, req.Height = resize.Width, resize.Height
	}
	return req, nil
}

func (s *Server) handleListOutputs(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outputs": outputViews(sess.Outputs())})
}

func (s *Server) handleDownloadOutput(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	asset, err := sess.Output(index)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAttachment(w, asset.Name, asset.MIMEType, asset.Data)
}

func (s *Server) handleRemoveOutput(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	if err := sess.RemoveOutput(index); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outputs": outputViews(sess.Outputs())})
}

func (s *Server) handleDownloadArchive(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	data, err := sess.Archive(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAttachment(w, archive.DefaultName, archive.MIMEType, data)
}

func (s *Server) handleExportArchive(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if s.exporter == nil {
		s.writeError(w, r, storage.ErrNotConfigured)
		return
	}

	data, err := sess.Archive(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	export, err := s.exporter.ExportArchive(r.Context(), sess.ID(), archive.DefaultName, data, archive.MIMEType, s.presignTTL)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sess.ID()).Msg("archive export failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "failed to export archive"})
		return
	}

	s.logger.Info().Str("session_id", sess.ID()).Str("object_key", export.ObjectKey).Msg("archive exported")
	writeJSON(w, http.StatusCreated, export)
}

func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return sess, true
}

func pathIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid index %q", r.PathValue("index"))})
		return 0, false
	}
	return index, true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := err.Error()

	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrIndexOutOfRange):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrNoInputs), errors.Is(err, session.ErrNoOutputs),
		errors.Is(err, session.ErrSuperseded), errors.Is(err, archive.ErrEmpty):
		status = http.StatusConflict
	case errors.Is(err, pipeline.ErrInvalidResize):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrNotConfigured):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
		message = "request cancelled"
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		message = "internal error"
	}

	writeJSON(w, status, map[string]string{"error": message})
}

func writeAttachment(w http.ResponseWriter, name, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
