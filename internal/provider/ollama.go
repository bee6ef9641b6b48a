package provider

import (
	"encoding/json"
	"fmt"

	"github.com/kestrelworks/raglet/internal/domain"
)

type ollamaOptions struct {
	Temperature float32  `json:"temperature,omitempty"`
	TopP        float32  `json:"top_p,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaChatRequest struct {
	Model    string           `json:"model"`
	Messages []domain.Message `json:"messages"`
	Stream   bool             `json:"stream"`
	Options  *ollamaOptions   `json:"options,omitempty"`
}

// ollamaChatPayload builds an /api/chat request, prepending the context-only
// instruction as a system message.
func (a *Adapter) ollamaChatPayload(messages []domain.Message, streaming bool) ([]byte, error) {
	req := ollamaChatRequest{
		Model:    a.s.ChatModel,
		Stream:   streaming,
		Messages: append([]domain.Message{{Role: "system", Content: ContextOnlyInstruction}}, messages...),
	}

	opts := ollamaOptions{
		Temperature: a.s.Temperature,
		TopP:        a.s.TopP,
		TopK:        a.s.TopK,
		NumPredict:  a.s.MaxTokens,
		Stop:        a.s.StopSequences,
	}
	if opts.Temperature != 0 || opts.TopP != 0 || opts.TopK != 0 ||
		opts.NumPredict != 0 || len(opts.Stop) > 0 {
		req.Options = &opts
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama chat request: %w", err)
	}
	return data, nil
}

func (a *Adapter) ollamaEmbeddingPayload(text string) ([]byte, error) {
	req := struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}{Model: a.s.EmbedModel, Prompt: text}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama embedding request: %w", err)
	}
	return data, nil
}

// ollamaChatText extracts message.content from a non-streaming /api/chat
// response.
func ollamaChatText(raw string) string {
	var resp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return ""
	}
	return resp.Message.Content
}

func ollamaEmbeddingVector(raw string) []float32 {
	var resp struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil
	}
	if len(resp.Embedding) == 0 {
		return nil
	}
	return resp.Embedding
}
