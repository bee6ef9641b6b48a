package domain

import "fmt"

// Provider identifies a chat/embedding backend.
type Provider string

const (
	ProviderOpenAI           Provider = "openai"
	ProviderOpenAICompatible Provider = "openai-compatible"
	ProviderGemini           Provider = "gemini"
	ProviderOllama           Provider = "ollama"
)

// ParseProvider validates a provider name from config. An empty name selects
// OpenAI.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderOpenAI, ProviderOpenAICompatible, ProviderGemini, ProviderOllama:
		return Provider(s), nil
	case "":
		return ProviderOpenAI, nil
	default:
		return "", fmt.Errorf("provider %q: %w", s, ErrUnknownProvider)
	}
}

// IsOpenAILike reports whether the provider speaks the OpenAI wire format.
func (p Provider) IsOpenAILike() bool {
	return p == ProviderOpenAI || p == ProviderOpenAICompatible
}
