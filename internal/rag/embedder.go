package rag

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/kestrelworks/raglet/internal/metrics"
	"github.com/kestrelworks/raglet/internal/provider"
	"github.com/kestrelworks/raglet/internal/transport/httpx"
)

// providerEmbedder obtains embeddings from the configured backend through
// the async transport, presented synchronously for the orchestrator's
// sequential ingestion loop.
type providerEmbedder struct {
	client  *httpx.Client
	adapter *provider.Adapter
	policy  httpx.Policy
	logger  *zap.Logger
}

// embedBatch embeds texts in order. Providers with a batch endpoint get one
// request; Ollama is fanned out one request per text. The returned slice
// always has len(texts) entries; a nil entry marks a failed or empty
// embedding that the caller should fall back on.
func (e *providerEmbedder) embedBatch(ctx context.Context, texts []string) [][]float32 {
	vectors := make([][]float32, len(texts))
	if len(texts) == 0 {
		return vectors
	}

	name := string(e.adapter.Provider())

	if e.adapter.SupportsBatchEmbedding() {
		payload, err := e.adapter.BatchEmbeddingPayload(texts)
		if err != nil {
			e.logger.Warn("batch embedding payload failed", zap.Error(err))
			return vectors
		}
		text, status := e.send(ctx, e.adapter.EmbedURL(true), payload)
		if status != http.StatusOK {
			metrics.EmbeddingRequestsTotal.WithLabelValues(name, "error").Inc()
			e.logger.Warn("batch embedding request failed", zap.Int("status", status))
			return vectors
		}
		parsed := e.adapter.ParseEmbeddingVectors(text)
		for i := range vectors {
			if i < len(parsed) && len(parsed[i]) > 0 {
				vectors[i] = parsed[i]
			}
		}
		metrics.EmbeddingRequestsTotal.WithLabelValues(name, "success").Inc()
		return vectors
	}

	// No batch endpoint: sequential fan-out, one request per text.
	for i, t := range texts {
		payload, err := e.adapter.EmbeddingPayload(t)
		if err != nil {
			e.logger.Warn("embedding payload failed", zap.Error(err))
			continue
		}
		text, status := e.send(ctx, e.adapter.EmbedURL(false), payload)
		if status != http.StatusOK {
			metrics.EmbeddingRequestsTotal.WithLabelValues(name, "error").Inc()
			continue
		}
		vectors[i] = e.adapter.ParseEmbeddingVector(text)
		metrics.EmbeddingRequestsTotal.WithLabelValues(name, "success").Inc()
	}
	return vectors
}

// embedOne embeds a single text; nil on failure.
func (e *providerEmbedder) embedOne(ctx context.Context, text string) []float32 {
	payload, err := e.adapter.EmbeddingPayload(text)
	if err != nil {
		return nil
	}
	raw, status := e.send(ctx, e.adapter.EmbedURL(false), payload)
	if status != http.StatusOK {
		metrics.EmbeddingRequestsTotal.WithLabelValues(string(e.adapter.Provider()), "error").Inc()
		return nil
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues(string(e.adapter.Provider()), "success").Inc()
	return e.adapter.ParseEmbeddingVector(raw)
}

// send blocks on one request-with-retry round trip.
func (e *providerEmbedder) send(ctx context.Context, url string, body []byte) (string, int) {
	type result struct {
		text   string
		status int
	}
	done := make(chan result, 1)
	e.client.SendWithRetry(ctx, http.MethodPost, url, e.adapter.Headers(), body, e.policy,
		func(text string, status int, _ http.Header) {
			done <- result{text, status}
		})
	r := <-done
	return r.text, r.status
}
