// Package rag composes the splitter, vectorizer, store, transports and
// provider adapter into the ingestion and chat flows: retrieve, build a
// context-only prompt, call the model, attach citations, log history.
package rag

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/kestrelworks/raglet/internal/config"
	"github.com/kestrelworks/raglet/internal/domain"
	"github.com/kestrelworks/raglet/internal/history"
	"github.com/kestrelworks/raglet/internal/metrics"
	"github.com/kestrelworks/raglet/internal/provider"
	"github.com/kestrelworks/raglet/internal/splitter"
	"github.com/kestrelworks/raglet/internal/store"
	"github.com/kestrelworks/raglet/internal/transport/httpx"
	"github.com/kestrelworks/raglet/internal/transport/stream"
	"github.com/kestrelworks/raglet/internal/vectorizer"
)

// DocumentLoader extracts plain text from a document path. Raw-format
// extraction (PDF, HTML, ...) is an external collaborator; the engine only
// ever sees plain text.
type DocumentLoader interface {
	Load(path string) (string, error)
}

// FileLoader reads files as UTF-8 plain text with newlines normalized.
type FileLoader struct{}

// Load implements DocumentLoader.
func (FileLoader) Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("load document %s: %w", path, err)
	}
	return CleanText(string(data)), nil
}

// CleanText normalizes line endings so character offsets are stable across
// platforms.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// Engine is the RAG orchestrator.
type Engine struct {
	cfg      config.Config
	store    *store.Store
	history  *history.Log
	loader   DocumentLoader
	adapter  *provider.Adapter
	httpc    *httpx.Client
	streamc  *stream.Client
	embedder *providerEmbedder
	logger   *zap.Logger
}

// New wires an engine from config. loader may be nil, defaulting to plain
// file reads.
func New(cfg config.Config, loader DocumentLoader, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loader == nil {
		loader = FileLoader{}
	}

	adapter := provider.New(cfg.AdapterSettings())
	httpc := httpx.New(cfg.Timeout(), logger)

	return &Engine{
		cfg:     cfg,
		store:   store.New(cfg.Storage.StorePath, logger),
		history: history.New(cfg.Storage.HistoryPath, logger),
		loader:  loader,
		adapter: adapter,
		httpc:   httpc,
		streamc: stream.New(cfg.Timeout(), cfg.StallTimeout(), logger),
		embedder: &providerEmbedder{
			client:  httpc,
			adapter: adapter,
			policy:  cfg.RetryPolicy(),
			logger:  logger,
		},
		logger: logger,
	}
}

// Store exposes the underlying vector store (document listing, removal).
func (e *Engine) Store() *store.Store { return e.store }

// History exposes the chat history log.
func (e *Engine) History() *history.Log { return e.history }

// IngestSummary reports what one ingestion did.
type IngestSummary struct {
	Path           string
	Chunks         int
	Stored         int
	LocalFallbacks int
}

// IngestFile loads, splits and stores a document using the local vectorizer.
func (e *Engine) IngestFile(path string) (IngestSummary, error) {
	text, chunks, err := e.loadAndSplit(path)
	if err != nil {
		return IngestSummary{}, err
	}

	meta := e.docMeta(path, text)
	stored, err := e.store.AddChunks(path, chunks, nil, meta)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("store chunks: %w", err)
	}
	metrics.ChunksIngestedTotal.Add(float64(stored))

	e.logger.Info("document ingested",
		zap.String("path", path),
		zap.Int("chunks", len(chunks)),
		zap.Int("stored", stored),
	)
	return IngestSummary{Path: path, Chunks: len(chunks), Stored: stored}, nil
}

// IngestFileWithProviderEmbeddings ingests like IngestFile but obtains
// vectors from the configured provider, batched where the provider supports
// it. Any chunk whose provider embedding fails or comes back empty falls
// back to the local vectorizer; partial failure never aborts the ingestion.
func (e *Engine) IngestFileWithProviderEmbeddings(ctx context.Context, path string) (IngestSummary, error) {
	text, chunks, err := e.loadAndSplit(path)
	if err != nil {
		return IngestSummary{}, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors := e.embedder.embedBatch(ctx, texts)

	fallbacks := 0
	for i := range chunks {
		if len(vectors[i]) > 0 {
			chunks[i].Vector = vectors[i]
			continue
		}
		chunks[i].Vector = vectorizer.Embed(chunks[i].Text, vectorizer.DefaultDim)
		fallbacks++
		metrics.EmbeddingFallbacksTotal.Inc()
	}
	if fallbacks > 0 {
		e.logger.Warn("provider embeddings incomplete, local fallback used",
			zap.String("path", path),
			zap.Int("fallbacks", fallbacks),
			zap.Int("chunks", len(chunks)),
		)
	}

	stored, err := e.store.AddChunks(path, chunks, nil, e.docMeta(path, text))
	if err != nil {
		return IngestSummary{}, fmt.Errorf("store chunks: %w", err)
	}
	metrics.ChunksIngestedTotal.Add(float64(stored))

	return IngestSummary{Path: path, Chunks: len(chunks), Stored: stored, LocalFallbacks: fallbacks}, nil
}

// RevectorizeSummary reports a store-wide re-embedding.
type RevectorizeSummary struct {
	Documents    int
	Chunks       int
	FallbackDocs int
}

// Revectorize re-embeds every stored chunk with the configured provider,
// one document at a time, preserving chunk identity and order. A document
// whose provider embeddings fail falls back to local vectors; the remaining
// documents are still processed.
func (e *Engine) Revectorize(ctx context.Context) (RevectorizeSummary, error) {
	var summary RevectorizeSummary
	for path := range e.store.ListDocs() {
		chunks, err := e.store.DocChunks(path)
		if err != nil {
			e.logger.Warn("revectorize: document unreadable", zap.String("path", path), zap.Error(err))
			continue
		}

		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vectors := e.embedder.embedBatch(ctx, texts)

		usedFallback := false
		update := make(map[string][]float32, len(chunks))
		for i, c := range chunks {
			v := vectors[i]
			if len(v) == 0 {
				v = vectorizer.Embed(c.Text, vectorizer.DefaultDim)
				usedFallback = true
				metrics.EmbeddingFallbacksTotal.Inc()
			}
			update[c.ID] = v
		}
		if err := e.store.UpdateVectors(update); err != nil {
			e.logger.Error("revectorize: save failed", zap.String("path", path), zap.Error(err))
			continue
		}

		summary.Documents++
		summary.Chunks += len(chunks)
		if usedFallback {
			summary.FallbackDocs++
		}
	}
	e.logger.Info("store revectorized",
		zap.Int("documents", summary.Documents),
		zap.Int("chunks", summary.Chunks),
		zap.Int("fallback_docs", summary.FallbackDocs),
	)
	return summary, nil
}

// Query embeds the cleaned prompt and returns the top-K chunks. With
// useProviderEmbeddings the query vector comes from the provider, falling
// back to local hashing when the provider fails or returns empty.
func (e *Engine) Query(ctx context.Context, prompt string, topK int, useProviderEmbeddings bool) []domain.RetrievalResult {
	prompt = CleanText(prompt)

	var vec []float32
	if useProviderEmbeddings {
		vec = e.embedder.embedOne(ctx, prompt)
		if len(vec) == 0 {
			e.logger.Warn("provider query embedding failed, using local vectorizer")
			metrics.EmbeddingFallbacksTotal.Inc()
		}
	}
	if len(vec) == 0 {
		vec = vectorizer.Embed(prompt, vectorizer.DefaultDim)
	}
	return e.store.Query(vec, topK)
}

// ChatResult is the outcome of one RAG chat exchange.
type ChatResult struct {
	Reply  string // post-processed reply, citations attached when enabled
	Status int    // real HTTP status or a transport sentinel
}

// Chat runs the full flow without streaming: retrieve, build the context
// prompt, call the model with retry, attach citations and log history.
// useProviderEmbeddings must match how the store was ingested: a store
// holding provider vectors is invisible to a locally-embedded question.
func (e *Engine) Chat(ctx context.Context, prompt string, topK int, useProviderEmbeddings bool) (ChatResult, error) {
	results := e.Query(ctx, prompt, topK, useProviderEmbeddings)
	contextPrompt := e.BuildContextPrompt(prompt, results)

	payload, err := e.adapter.ChatPayload([]domain.Message{{Role: "user", Content: contextPrompt}}, false)
	if err != nil {
		return ChatResult{}, fmt.Errorf("build chat payload: %w", err)
	}

	type response struct {
		text   string
		status int
	}
	done := make(chan response, 1)
	e.httpc.SendWithRetry(ctx, http.MethodPost, e.adapter.ChatURL(false), e.adapter.Headers(), payload, e.cfg.RetryPolicy(),
		func(text string, status int, _ http.Header) {
			done <- response{text, status}
		})
	resp := <-done

	reply := ""
	if resp.status == http.StatusOK {
		reply = e.adapter.ExtractChatText(resp.text)
	}
	return e.finishChat(prompt, reply, resp.status, results), nil
}

// ChatStream runs the full flow with streaming deltas. onDelta receives each
// text fragment in order; the returned result holds the final post-processed
// reply (the citations block, when attached, is not re-streamed).
func (e *Engine) ChatStream(ctx context.Context, prompt string, topK int, useProviderEmbeddings bool, onDelta stream.DeltaFn) (ChatResult, error) {
	results := e.Query(ctx, prompt, topK, useProviderEmbeddings)
	contextPrompt := e.BuildContextPrompt(prompt, results)

	payload, err := e.adapter.ChatPayload([]domain.Message{{Role: "user", Content: contextPrompt}}, true)
	if err != nil {
		return ChatResult{}, fmt.Errorf("build chat payload: %w", err)
	}

	type response struct {
		text   string
		status int
	}
	done := make(chan response, 1)
	e.streamc.StreamWithRetry(ctx, e.adapter.Provider(), http.MethodPost, e.adapter.ChatURL(true),
		e.adapter.Headers(), payload, e.cfg.RetryPolicy(),
		onDelta,
		func(full string, status int) {
			done <- response{full, status}
		})
	resp := <-done

	return e.finishChat(prompt, resp.text, resp.status, results), nil
}

// finishChat attaches citations, persists history and shapes the result.
func (e *Engine) finishChat(prompt, reply string, status int, results []domain.RetrievalResult) ChatResult {
	final := reply
	if e.cfg.ShowCitations() && reply != "" {
		if block := e.CitationBlock(reply, results); block != "" {
			final = reply + "\n\n" + block
		}
	}

	if err := e.history.Append(prompt, status, reply); err != nil {
		e.logger.Warn("history append failed", zap.Error(err))
	}

	e.logger.Info("chat exchange complete",
		zap.Int("status", status),
		zap.Int("retrieved", len(results)),
		zap.Int("reply_len", len(reply)),
	)
	return ChatResult{Reply: final, Status: status}
}

// loadAndSplit loads a document and splits it with the configured chunking.
func (e *Engine) loadAndSplit(path string) (string, []domain.Chunk, error) {
	text, err := e.loader.Load(path)
	if err != nil {
		return "", nil, err
	}
	chunks, err := splitter.Split(text, e.cfg.Chunking.ChunkSize, e.cfg.Chunking.Overlap, e.cfg.Chunking.Pad)
	if err != nil {
		return "", nil, fmt.Errorf("split %s: %w", path, err)
	}
	return text, chunks, nil
}

// docMeta captures file size/mtime when the path is a real file.
func (e *Engine) docMeta(path, text string) *store.DocMeta {
	meta := &store.DocMeta{Size: int64(len(text))}
	if info, err := os.Stat(path); err == nil {
		meta.Size = info.Size()
		meta.MTime = info.ModTime().Unix()
	}
	return meta
}
