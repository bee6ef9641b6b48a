// Package stream implements the incremental streaming transport: a reader
// that feeds partial response bytes through a per-provider frame parser,
// supervised by an absolute deadline and a stall watchdog.
package stream

import (
	"encoding/json"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kestrelworks/raglet/internal/domain"
)

// FrameParser consumes the complete frames at the front of buf and returns
// the extracted text fragments plus the unconsumed remainder (a trailing
// partial frame stays in the buffer for the next read). Parsers are pure
// functions: malformed frames are skipped, never fatal.
type FrameParser func(buf string) (fragments []string, rest string)

// ParserFor returns the frame parser for a provider's wire protocol:
// SSE for OpenAI-compatible and Gemini, newline-delimited JSON for Ollama.
func ParserFor(provider domain.Provider) FrameParser {
	switch provider {
	case domain.ProviderGemini:
		return sseParser(geminiFragment)
	case domain.ProviderOllama:
		return ndjsonParser(ollamaFragment)
	default:
		return sseParser(openAIFragment)
	}
}

// sseParser pops blank-line-terminated SSE blocks, with either LF or CRLF
// line endings. Within a block, every "data:" line carries a JSON payload;
// the literal "[DONE]" payload and payloads that fail to decode are skipped.
func sseParser(extract func(payload []byte) string) FrameParser {
	return func(buf string) ([]string, string) {
		var fragments []string
		for {
			idx, sep := nextBlankLine(buf)
			if idx < 0 {
				return fragments, buf
			}
			block := buf[:idx]
			buf = buf[idx+sep:]

			for _, line := range strings.Split(block, "\n") {
				line = strings.TrimSuffix(line, "\r")
				payload, ok := strings.CutPrefix(line, "data:")
				if !ok {
					continue
				}
				payload = strings.TrimSpace(payload)
				if payload == "" || payload == "[DONE]" {
					continue
				}
				if text := extract([]byte(payload)); text != "" {
					fragments = append(fragments, text)
				}
			}
		}
	}
}

// nextBlankLine finds the earliest SSE block terminator in buf, returning
// its index and length: "\n\n" or a fully CRLF-framed "\r\n\r\n".
func nextBlankLine(buf string) (idx, sepLen int) {
	lf := strings.Index(buf, "\n\n")
	crlf := strings.Index(buf, "\r\n\r\n")
	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return crlf, 4
	case lf >= 0:
		return lf, 2
	default:
		return -1, 0
	}
}

// ndjsonParser pops newline-terminated JSON lines, skipping blanks.
func ndjsonParser(extract func(payload []byte) string) FrameParser {
	return func(buf string) ([]string, string) {
		var fragments []string
		for {
			idx := strings.IndexByte(buf, '\n')
			if idx < 0 {
				return fragments, buf
			}
			line := strings.TrimSpace(buf[:idx])
			buf = buf[idx+1:]
			if line == "" {
				continue
			}
			if text := extract([]byte(line)); text != "" {
				fragments = append(fragments, text)
			}
		}
	}
}

// openAIFragment extracts choices[0].delta.content from a streaming chunk.
func openAIFragment(payload []byte) string {
	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return ""
	}
	if len(chunk.Choices) == 0 {
		return ""
	}
	return chunk.Choices[0].Delta.Content
}

// geminiChunk covers both incremental delta frames and providers that
// resend full content blocks per frame.
type geminiChunk struct {
	Candidates []struct {
		Delta struct {
			Text  string `json:"text"`
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"delta"`
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// geminiFragment prefers candidates[].delta.parts[].text, falls back to
// delta.text, and finally scans candidates[].content.parts[].text.
func geminiFragment(payload []byte) string {
	var chunk geminiChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range chunk.Candidates {
		wrote := false
		for _, part := range cand.Delta.Parts {
			if part.Text != "" {
				b.WriteString(part.Text)
				wrote = true
			}
		}
		if !wrote && cand.Delta.Text != "" {
			b.WriteString(cand.Delta.Text)
			wrote = true
		}
		if !wrote {
			for _, part := range cand.Content.Parts {
				b.WriteString(part.Text)
			}
		}
	}
	return b.String()
}

// ollamaFragment extracts message.content from one NDJSON line.
func ollamaFragment(payload []byte) string {
	var line struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(payload, &line); err != nil {
		return ""
	}
	return line.Message.Content
}
