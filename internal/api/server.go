package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-scraper/internal/app"
	"github.com/JakeFAU/lead-scraper/internal/config"
	"github.com/JakeFAU/lead-scraper/internal/export"
	"github.com/JakeFAU/lead-scraper/internal/hash/sha256"
	"github.com/JakeFAU/lead-scraper/internal/lead"
	"github.com/JakeFAU/lead-scraper/internal/metrics"
	"github.com/JakeFAU/lead-scraper/internal/storage/memory"
)

const maxBodyBytes = 1 << 20

// Runner executes lead batches. *app.App implements it.
type Runner interface {
	Run(ctx context.Context, urls []string) (app.Result, error)
	Lookup(ctx context.Context, batchID string) ([]lead.Record, error)
}

// Server wires HTTP handlers to the lead pipeline.
type Server struct {
	router chi.Router
	runner Runner
	cfg    config.Config
	logger *zap.Logger
	hasher *sha256.Hasher
	ready  atomic.Bool
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner Runner, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner: runner,
		cfg:    cfg,
		logger: logger,
		hasher: sha256.New(),
	}
	s.ready.Store(true)

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/leads", s.submitLeads)
		r.Get("/leads/{batch_id}", s.getBatch)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetReady flips the readiness probe, e.g. while draining on shutdown.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type leadsRequest struct {
	URLs []string `json:"urls"`
}

type leadsResponse struct {
	BatchID   string        `json:"batch_id"`
	Records   []lead.Record `json:"records"`
	Failed    int           `json:"failed"`
	ExportURI string        `json:"export_uri,omitempty"`
	Warnings  []string      `json:"warnings,omitempty"`
}

func (s *Server) submitLeads(w http.ResponseWriter, r *http.Request) {
	urls, err := readURLs(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(urls) == 0 {
		s.writeError(w, http.StatusBadRequest, "urls required")
		return
	}
	if limit := s.cfg.Server.MaxURLsPerRequest; limit > 0 && len(urls) > limit {
		s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("at most %d urls per request", limit))
		return
	}
	format, ok := s.responseFormat(r)
	if !ok {
		s.writeError(w, http.StatusNotAcceptable, "unsupported format")
		return
	}

	res, runErr := s.runner.Run(r.Context(), urls)
	if runErr != nil {
		s.logger.Warn("batch finished with backend errors",
			zap.String("batch_id", res.BatchID),
			zap.Error(runErr),
		)
	}
	w.Header().Set("X-Batch-ID", res.BatchID)
	if format.Name == "json" {
		resp := leadsResponse{
			BatchID:   res.BatchID,
			Records:   res.Records,
			Failed:    res.Failed(),
			ExportURI: res.ExportURI,
		}
		if runErr != nil {
			resp.Warnings = strings.Split(runErr.Error(), "\n")
		}
		s.writeJSON(w, http.StatusOK, resp)
		return
	}
	s.writeExport(w, r, format, res.BatchID, res.Records)
}

func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batch_id")
	records, err := s.runner.Lookup(r.Context(), batchID)
	if err != nil {
		if errors.Is(err, memory.ErrBatchNotFound) {
			s.writeError(w, http.StatusNotFound, "batch not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	format, ok := s.responseFormat(r)
	if !ok {
		s.writeError(w, http.StatusNotAcceptable, "unsupported format")
		return
	}
	w.Header().Set("X-Batch-ID", batchID)
	if format.Name == "json" {
		s.writeJSON(w, http.StatusOK, leadsResponse{BatchID: batchID, Records: records, Failed: countFailed(records)})
		return
	}
	s.writeExport(w, r, format, batchID, records)
}

// responseFormat resolves ?format= first, then Accept, defaulting to JSON.
func (s *Server) responseFormat(r *http.Request) (export.Format, bool) {
	if name := r.URL.Query().Get("format"); name != "" {
		f, err := export.ForFormat(name)
		return f, err == nil
	}
	if f, ok := export.ForContentType(r.Header.Get("Accept")); ok {
		return f, true
	}
	f, err := export.ForFormat("json")
	return f, err == nil
}

// writeExport encodes records as a file download. Repeat downloads that send
// a matching If-None-Match get 304.
func (s *Server) writeExport(w http.ResponseWriter, r *http.Request, format export.Format, batchID string, records []lead.Record) {
	var buf bytes.Buffer
	if err := format.Write(&buf, records); err != nil {
		s.logger.Error("encode export failed", zap.String("format", format.Name), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "encode export failed")
		return
	}
	etag := s.hasher.ETag(buf.Bytes())
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", format.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="leads-%s%s"`, batchID, format.Extension))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Warn("write export failed", zap.Error(err))
	}
}

// readURLs accepts a JSON body {"urls": [...]} or one URL per line as text.
// Bodies over maxBodyBytes fail with *http.MaxBytesError instead of being cut.
func readURLs(w http.ResponseWriter, r *http.Request) ([]string, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
		var req leadsRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, errors.New("invalid JSON")
		}
		return lead.ParseURLList(strings.Join(req.URLs, "\n")), nil
	}
	return lead.ParseURLList(string(body)), nil
}

func countFailed(records []lead.Record) int {
	n := 0
	for _, rec := range records {
		if rec.Failed() {
			n++
		}
	}
	return n
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.String("request_id", requestID(r.Context())),
					zap.Any("panic", rec),
				)
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
