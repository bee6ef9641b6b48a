package rag

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kestrelworks/raglet/internal/domain"
)

// BuildContextPrompt assembles the model prompt: each retrieved chunk under
// a "Source N: file (lines A-B)" header, then the cleaned question, wrapped
// in an instruction to answer only from the supplied context.
func (e *Engine) BuildContextPrompt(prompt string, results []domain.RetrievalResult) string {
	prompt = CleanText(prompt)

	var b strings.Builder
	b.WriteString("Use ONLY the context below to answer the question. If the context does not contain the answer, say you don't know.\n\n")

	docs := map[string]string{}
	for i, r := range results {
		c := r.Chunk
		header := fmt.Sprintf("Source %d: %s", i+1, filepath.Base(c.Path))
		if text, ok := e.loadCached(docs, c.Path); ok {
			start, end := lineRange(text, c.Start, c.End)
			header += fmt.Sprintf(" (lines %d-%d)", start, end)
		}
		b.WriteString(header)
		b.WriteString("\n")
		b.WriteString(c.Text)
		b.WriteString("\n\n")
	}

	b.WriteString("Question: ")
	b.WriteString(prompt)
	return b.String()
}

// loadCached reloads a document once per call, caching per path. A load
// failure is remembered as a miss.
func (e *Engine) loadCached(cache map[string]string, path string) (string, bool) {
	if text, ok := cache[path]; ok {
		return text, text != ""
	}
	text, err := e.loader.Load(path)
	if err != nil {
		cache[path] = ""
		return "", false
	}
	cache[path] = text
	return text, true
}

// lineRange converts 1-based character offsets into 1-based line numbers by
// counting newlines up to each offset. Offsets past the end clamp to the
// last line.
func lineRange(text string, start, end int) (int, int) {
	runes := []rune(text)
	clamp := func(pos int) int {
		if pos < 1 {
			return 1
		}
		if pos > len(runes) {
			return len(runes)
		}
		return pos
	}

	lineAt := func(pos int) int {
		line := 1
		for i := 0; i < clamp(pos)-1; i++ {
			if runes[i] == '\n' {
				line++
			}
		}
		return line
	}
	return lineAt(start), lineAt(end)
}
