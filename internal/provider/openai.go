package provider

import (
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kestrelworks/raglet/internal/domain"
)

// openAIChatPayload builds an OpenAI chat completion request, prepending the
// context-only instruction as a system message.
func (a *Adapter) openAIChatPayload(messages []domain.Message, streaming bool) ([]byte, error) {
	req := openai.ChatCompletionRequest{
		Model:       a.s.ChatModel,
		Temperature: a.s.Temperature,
		TopP:        a.s.TopP,
		MaxTokens:   a.s.MaxTokens,
		Stop:        a.s.StopSequences,
		Stream:      streaming,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: ContextOnlyInstruction},
		},
	}
	if a.s.CandidateCount > 0 {
		req.N = a.s.CandidateCount
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal openai chat request: %w", err)
	}
	return data, nil
}

// openAIEmbeddingPayload builds an embeddings request; multiple inputs go
// into a single request's input array.
func (a *Adapter) openAIEmbeddingPayload(texts []string) ([]byte, error) {
	req := openai.EmbeddingRequestStrings{
		Input:          texts,
		Model:          openai.EmbeddingModel(a.s.EmbedModel),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal openai embedding request: %w", err)
	}
	return data, nil
}

// openAIChatText extracts choices[0].message.content; empty on malformed.
func openAIChatText(raw string) string {
	var resp openai.ChatCompletionResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return ""
	}
	if len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.Content
}

// openAIEmbeddingVectors extracts data[].embedding in index order.
func openAIEmbeddingVectors(raw string) [][]float32 {
	var resp openai.EmbeddingResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil
	}
	if len(resp.Data) == 0 {
		return nil
	}
	vectors := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(vectors) {
			vectors[d.Index] = d.Embedding
		}
	}
	return vectors
}
