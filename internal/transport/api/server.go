// Package api exposes the engine over HTTP: ingestion, retrieval, chat with
// SSE delta relay, document management, health and metrics.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kestrelworks/raglet/internal/domain"
	logpkg "github.com/kestrelworks/raglet/internal/logger"
	"github.com/kestrelworks/raglet/internal/rag"
)

// Server wires the RAG engine to the HTTP routes.
type Server struct {
	engine *rag.Engine
	logger *zap.Logger
}

// NewServer creates an HTTP API server around an engine.
func NewServer(engine *rag.Engine, logger *zap.Logger) *Server {
	return &Server{engine: engine, logger: logger}
}

// Router builds the chi router with the full middleware chain.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))

	r.Post("/ingest", s.handleIngest)
	r.Post("/query", s.handleQuery)
	r.Post("/chat", s.handleChat)
	r.Get("/docs", s.handleListDocs)
	r.Delete("/docs", s.handleRemoveDoc)
	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

type ingestRequest struct {
	Path               string `json:"path"`
	ProviderEmbeddings bool   `json:"providerEmbeddings"`
}

type ingestResponse struct {
	Path           string `json:"path"`
	Chunks         int    `json:"chunks"`
	Stored         int    `json:"stored"`
	LocalFallbacks int    `json:"localFallbacks"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "path is required")
		return
	}

	var (
		sum rag.IngestSummary
		err error
	)
	if req.ProviderEmbeddings {
		sum, err = s.engine.IngestFileWithProviderEmbeddings(r.Context(), req.Path)
	} else {
		sum, err = s.engine.IngestFile(req.Path)
	}
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		Path:           sum.Path,
		Chunks:         sum.Chunks,
		Stored:         sum.Stored,
		LocalFallbacks: sum.LocalFallbacks,
	})
}

type queryRequest struct {
	Prompt             string `json:"prompt"`
	TopK               int    `json:"topK"`
	ProviderEmbeddings bool   `json:"providerEmbeddings"`
}

type queryResultItem struct {
	Score float64 `json:"score"`
	Path  string  `json:"path"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Text  string  `json:"text"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "prompt is required")
		return
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}

	results := s.engine.Query(r.Context(), req.Prompt, req.TopK, req.ProviderEmbeddings)
	items := make([]queryResultItem, len(results))
	for i, res := range results {
		items[i] = queryResultItem{
			Score: res.Score,
			Path:  res.Chunk.Path,
			Start: res.Chunk.Start,
			End:   res.Chunk.End,
			Text:  res.Chunk.Text,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type chatRequest struct {
	Prompt             string `json:"prompt"`
	TopK               int    `json:"topK"`
	Stream             bool   `json:"stream"`
	ProviderEmbeddings bool   `json:"providerEmbeddings"`
}

type chatResponse struct {
	Reply  string `json:"reply"`
	Status int    `json:"status"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "prompt is required")
		return
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}

	if req.Stream {
		s.relayChatStream(w, r, req)
		return
	}

	res, err := s.engine.Chat(r.Context(), req.Prompt, req.TopK, req.ProviderEmbeddings)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: res.Reply, Status: res.Status})
}

// relayChatStream re-emits provider deltas as SSE events, then a final
// "done" event carrying the post-processed reply and the upstream status.
func (s *Server) relayChatStream(w http.ResponseWriter, r *http.Request, req chatRequest) {
	fl, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	res, err := s.engine.ChatStream(r.Context(), req.Prompt, req.TopK, req.ProviderEmbeddings, func(delta string) {
		data, _ := json.Marshal(map[string]string{"delta": delta})
		fmt.Fprintf(w, "event: delta\ndata: %s\n\n", data)
		fl.Flush()
	})
	if err != nil {
		data, _ := json.Marshal(map[string]string{"error": err.Error()})
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
		fl.Flush()
		return
	}

	data, _ := json.Marshal(chatResponse{Reply: res.Reply, Status: res.Status})
	fmt.Fprintf(w, "event: done\ndata: %s\n\n", data)
	fl.Flush()
}

type docItem struct {
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	MTime       int64  `json:"mtime"`
	ContentHash string `json:"contentHash"`
	Chunks      int    `json:"chunks"`
}

func (s *Server) handleListDocs(w http.ResponseWriter, _ *http.Request) {
	docs := s.engine.Store().ListDocs()
	items := make([]docItem, 0, len(docs))
	for _, d := range docs {
		items = append(items, docItem{
			Path:        d.Path,
			Size:        d.Size,
			MTime:       d.MTime,
			ContentHash: d.ContentHash,
			Chunks:      len(d.ChunkIDs),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleRemoveDoc(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "path query parameter is required")
		return
	}

	removed, err := s.engine.Store().RemoveDoc(path)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "document_not_found", "document not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDomainError maps sentinel errors to statuses, logging through the
// request-scoped logger placed in context by wideEventMiddleware.
func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logpkg.FromContext(r.Context()).Warn("request failed", zap.Error(err))
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, "document_not_found", err.Error())
	case errors.Is(err, domain.ErrProviderError):
		writeError(w, http.StatusBadGateway, "provider_error", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a
// plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates
// X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request.
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
