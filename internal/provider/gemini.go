package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kestrelworks/raglet/internal/domain"
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiGenerationConfig struct {
	Temperature     float32  `json:"temperature,omitempty"`
	TopP            float32  `json:"topP,omitempty"`
	TopK            int      `json:"topK,omitempty"`
	CandidateCount  int      `json:"candidateCount,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiChatRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	SafetySettings    []geminiSafetySetting   `json:"safetySettings,omitempty"`
}

// geminiChatPayload builds a generateContent request. The context-only
// instruction travels as systemInstruction; system messages in the input are
// folded into it since Gemini has no system role in contents.
func (a *Adapter) geminiChatPayload(messages []domain.Message) ([]byte, error) {
	instruction := ContextOnlyInstruction
	req := geminiChatRequest{}
	for _, m := range messages {
		switch m.Role {
		case "system":
			instruction += "\n\n" + m.Content
		case "assistant":
			req.Contents = append(req.Contents, geminiContent{
				Role:  "model",
				Parts: []geminiPart{{Text: m.Content}},
			})
		default:
			req.Contents = append(req.Contents, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{Text: m.Content}},
			})
		}
	}
	req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: instruction}}}

	if gc := a.geminiGenerationConfig(); gc != nil {
		req.GenerationConfig = gc
	}
	req.SafetySettings = a.geminiSafetySettings()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini chat request: %w", err)
	}
	return data, nil
}

func (a *Adapter) geminiGenerationConfig() *geminiGenerationConfig {
	gc := geminiGenerationConfig{
		Temperature:     a.s.Temperature,
		TopP:            a.s.TopP,
		TopK:            a.s.TopK,
		CandidateCount:  a.s.CandidateCount,
		MaxOutputTokens: a.s.MaxTokens,
		StopSequences:   a.s.StopSequences,
	}
	if gc.Temperature == 0 && gc.TopP == 0 && gc.TopK == 0 &&
		gc.CandidateCount == 0 && gc.MaxOutputTokens == 0 && len(gc.StopSequences) == 0 {
		return nil
	}
	return &gc
}

func (a *Adapter) geminiSafetySettings() []geminiSafetySetting {
	pairs := []struct{ category, threshold string }{
		{"HARM_CATEGORY_HARASSMENT", a.s.SafetyHarassment},
		{"HARM_CATEGORY_HATE_SPEECH", a.s.SafetyHateSpeech},
		{"HARM_CATEGORY_SEXUALLY_EXPLICIT", a.s.SafetySexual},
		{"HARM_CATEGORY_DANGEROUS_CONTENT", a.s.SafetyDangerous},
		{"HARM_CATEGORY_CIVIC_INTEGRITY", a.s.SafetyCivicIntegrity},
	}
	var settings []geminiSafetySetting
	for _, p := range pairs {
		if p.threshold != "" {
			settings = append(settings, geminiSafetySetting{Category: p.category, Threshold: p.threshold})
		}
	}
	return settings
}

type geminiEmbedRequest struct {
	Model                string        `json:"model,omitempty"`
	Content              geminiContent `json:"content"`
	TaskType             string        `json:"taskType,omitempty"`
	OutputDimensionality int           `json:"outputDimensionality,omitempty"`
}

func (a *Adapter) geminiEmbedRequest(text string) geminiEmbedRequest {
	return geminiEmbedRequest{
		Model:                "models/" + a.s.EmbedModel,
		Content:              geminiContent{Parts: []geminiPart{{Text: text}}},
		TaskType:             a.s.TaskType,
		OutputDimensionality: a.s.OutputDimensionality,
	}
}

func (a *Adapter) geminiEmbeddingPayload(text string) ([]byte, error) {
	data, err := json.Marshal(a.geminiEmbedRequest(text))
	if err != nil {
		return nil, fmt.Errorf("marshal gemini embedding request: %w", err)
	}
	return data, nil
}

// geminiBatchEmbeddingPayload packs one sub-request per text.
func (a *Adapter) geminiBatchEmbeddingPayload(texts []string) ([]byte, error) {
	batch := struct {
		Requests []geminiEmbedRequest `json:"requests"`
	}{Requests: make([]geminiEmbedRequest, 0, len(texts))}
	for _, t := range texts {
		batch.Requests = append(batch.Requests, a.geminiEmbedRequest(t))
	}
	data, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini batch embedding request: %w", err)
	}
	return data, nil
}

// geminiChatText joins candidates[0].content.parts[].text.
func geminiChatText(raw string) string {
	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []geminiPart `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return ""
	}
	if len(resp.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func geminiEmbeddingVector(raw string) []float32 {
	var resp struct {
		Embedding struct {
			Values []float32 `json:"values"`
		} `json:"embedding"`
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil
	}
	if len(resp.Embedding.Values) == 0 {
		return nil
	}
	return resp.Embedding.Values
}

func geminiEmbeddingVectors(raw string) [][]float32 {
	var resp struct {
		Embeddings []struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil
	}
	if len(resp.Embeddings) == 0 {
		return nil
	}
	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		vectors[i] = e.Values
	}
	return vectors
}
