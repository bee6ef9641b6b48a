// Package provider shapes requests and responses for the supported chat and
// embedding backends: OpenAI-compatible APIs, Google Gemini and Ollama.
// The adapter only builds payloads, headers and URLs and extracts text or
// vectors from raw responses; all transport concerns live elsewhere.
package provider

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/kestrelworks/raglet/internal/domain"
)

// ContextOnlyInstruction is the system instruction injected into every chat
// request. It enforces the context-only answering policy.
const ContextOnlyInstruction = "You are a helpful assistant. Answer strictly and only from the context provided in the user's message. If the context does not contain the answer, say that you don't know. Do not use outside knowledge."

// Settings carries everything the adapter needs to shape a request.
// Zero-valued generation knobs are omitted from payloads.
type Settings struct {
	Provider   domain.Provider
	BaseURL    string // override of the provider's default endpoint
	APIKey     string
	ChatModel  string
	EmbedModel string

	Temperature     float32
	TopP            float32
	TopK            int
	CandidateCount  int
	MaxTokens       int
	StopSequences   []string

	// Gemini embedding knobs.
	TaskType             string
	OutputDimensionality int

	// Gemini safety thresholds (e.g. "BLOCK_MEDIUM_AND_ABOVE"); empty means
	// provider default.
	SafetyHarassment     string
	SafetyHateSpeech     string
	SafetySexual         string
	SafetyDangerous      string
	SafetyCivicIntegrity string
}

// Adapter shapes provider-specific payloads for one configured backend.
type Adapter struct {
	s Settings
}

// New creates an adapter. The provider must already be validated.
func New(s Settings) *Adapter {
	return &Adapter{s: s}
}

// Provider returns the configured backend.
func (a *Adapter) Provider() domain.Provider { return a.s.Provider }

// SupportsBatchEmbedding reports whether a single request can embed multiple
// inputs. Ollama has no batch endpoint; callers fan out.
func (a *Adapter) SupportsBatchEmbedding() bool {
	return a.s.Provider != domain.ProviderOllama
}

// Headers builds the request headers: bearer auth plus content type for
// OpenAI-style providers and Ollama, content type only for Gemini (its key
// travels in the URL query string).
func (a *Adapter) Headers() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	if a.s.Provider != domain.ProviderGemini && a.s.APIKey != "" {
		h.Set("Authorization", "Bearer "+a.s.APIKey)
	}
	return h
}

// ChatURL returns the chat completion endpoint, streaming or not.
func (a *Adapter) ChatURL(streaming bool) string {
	switch a.s.Provider {
	case domain.ProviderGemini:
		verb := "generateContent"
		query := "?key=" + a.s.APIKey
		if streaming {
			verb = "streamGenerateContent"
			query = "?alt=sse&key=" + a.s.APIKey
		}
		return fmt.Sprintf("%s/v1beta/models/%s:%s%s", a.baseURL(), a.s.ChatModel, verb, query)
	case domain.ProviderOllama:
		return a.baseURL() + "/api/chat"
	default:
		return a.openAIBase() + "/chat/completions"
	}
}

// EmbedURL returns the embeddings endpoint; batch selects Gemini's
// batchEmbedContents form.
func (a *Adapter) EmbedURL(batch bool) string {
	switch a.s.Provider {
	case domain.ProviderGemini:
		verb := "embedContent"
		if batch {
			verb = "batchEmbedContents"
		}
		return fmt.Sprintf("%s/v1beta/models/%s:%s?key=%s", a.baseURL(), a.s.EmbedModel, verb, a.s.APIKey)
	case domain.ProviderOllama:
		return a.baseURL() + "/api/embeddings"
	default:
		return a.openAIBase() + "/embeddings"
	}
}

// ChatPayload builds the provider chat request for the given conversation,
// injecting the context-only system instruction.
func (a *Adapter) ChatPayload(messages []domain.Message, streaming bool) ([]byte, error) {
	switch a.s.Provider {
	case domain.ProviderGemini:
		return a.geminiChatPayload(messages)
	case domain.ProviderOllama:
		return a.ollamaChatPayload(messages, streaming)
	default:
		return a.openAIChatPayload(messages, streaming)
	}
}

// EmbeddingPayload builds a single-input embedding request.
func (a *Adapter) EmbeddingPayload(text string) ([]byte, error) {
	switch a.s.Provider {
	case domain.ProviderGemini:
		return a.geminiEmbeddingPayload(text)
	case domain.ProviderOllama:
		return a.ollamaEmbeddingPayload(text)
	default:
		return a.openAIEmbeddingPayload([]string{text})
	}
}

// BatchEmbeddingPayload builds one request embedding all texts. Gemini packs
// N sub-requests; OpenAI-compatible sends an input array. Ollama callers
// must fan out single requests instead.
func (a *Adapter) BatchEmbeddingPayload(texts []string) ([]byte, error) {
	switch a.s.Provider {
	case domain.ProviderGemini:
		return a.geminiBatchEmbeddingPayload(texts)
	case domain.ProviderOllama:
		return nil, fmt.Errorf("ollama has no batch embeddings endpoint: %w", domain.ErrInvalidArgument)
	default:
		return a.openAIEmbeddingPayload(texts)
	}
}

// ExtractChatText pulls the reply text from a raw non-streaming chat
// response. Malformed or unexpected responses yield the empty string.
func (a *Adapter) ExtractChatText(raw string) string {
	switch a.s.Provider {
	case domain.ProviderGemini:
		return geminiChatText(raw)
	case domain.ProviderOllama:
		return ollamaChatText(raw)
	default:
		return openAIChatText(raw)
	}
}

// ParseEmbeddingVector pulls a single vector from a raw embedding response.
// Malformed responses yield nil.
func (a *Adapter) ParseEmbeddingVector(raw string) []float32 {
	switch a.s.Provider {
	case domain.ProviderGemini:
		return geminiEmbeddingVector(raw)
	case domain.ProviderOllama:
		return ollamaEmbeddingVector(raw)
	default:
		vs := openAIEmbeddingVectors(raw)
		if len(vs) == 0 {
			return nil
		}
		return vs[0]
	}
}

// ParseEmbeddingVectors pulls all vectors from a raw batch embedding
// response, in request order. Malformed responses yield nil.
func (a *Adapter) ParseEmbeddingVectors(raw string) [][]float32 {
	switch a.s.Provider {
	case domain.ProviderGemini:
		return geminiEmbeddingVectors(raw)
	case domain.ProviderOllama:
		v := ollamaEmbeddingVector(raw)
		if v == nil {
			return nil
		}
		return [][]float32{v}
	default:
		return openAIEmbeddingVectors(raw)
	}
}

func (a *Adapter) baseURL() string {
	if a.s.BaseURL != "" {
		return strings.TrimRight(a.s.BaseURL, "/")
	}
	switch a.s.Provider {
	case domain.ProviderGemini:
		return "https://generativelanguage.googleapis.com"
	case domain.ProviderOllama:
		return "http://localhost:11434"
	default:
		return "https://api.openai.com"
	}
}

// openAIBase returns the base URL with a single /v1 suffix, tolerating
// overrides that already include it.
func (a *Adapter) openAIBase() string {
	base := a.baseURL()
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}
