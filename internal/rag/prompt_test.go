package rag

import (
	"strings"
	"testing"

	"github.com/kestrelworks/raglet/internal/domain"
)

func TestBuildContextPromptHeaders(t *testing.T) {
	e := newTestEngine(t, "http://unused")
	path := writeDoc(t, "guide.txt", "line one\nline two\nline three\n")

	results := []domain.RetrievalResult{
		{Score: 0.9, Chunk: domain.Chunk{Path: path, Start: 1, End: 13, Text: "line one\nline"}},
	}
	got := e.BuildContextPrompt("what is line two?", results)

	if !strings.HasPrefix(got, "Use ONLY the context below") {
		t.Errorf("prompt missing instruction, got %q", got)
	}
	if !strings.Contains(got, "Source 1: guide.txt (lines 1-2)") {
		t.Errorf("prompt missing source header with line range:\n%s", got)
	}
	if !strings.Contains(got, "line one\nline") {
		t.Error("prompt missing chunk text")
	}
	if !strings.HasSuffix(got, "Question: what is line two?") {
		t.Errorf("prompt does not end with the question:\n%s", got)
	}
}

func TestBuildContextPromptMissingDocOmitsLines(t *testing.T) {
	e := newTestEngine(t, "http://unused")
	results := []domain.RetrievalResult{
		{Chunk: domain.Chunk{Path: "/nonexistent/gone.txt", Start: 1, End: 5, Text: "stale"}},
	}
	got := e.BuildContextPrompt("q", results)

	if !strings.Contains(got, "Source 1: gone.txt\n") {
		t.Errorf("want bare header without line info:\n%s", got)
	}
	if strings.Contains(got, "lines") {
		t.Errorf("line info present for unreadable doc:\n%s", got)
	}
}

func TestLineRange(t *testing.T) {
	text := "ab\ncd\nef"
	tests := []struct {
		start, end         int
		wantStart, wantEnd int
	}{
		{1, 2, 1, 1},
		{1, 4, 1, 2},
		{4, 8, 2, 3},
		{0, 100, 1, 3}, // out-of-bounds offsets clamp
		{7, 7, 3, 3},
	}
	for _, tt := range tests {
		s, end := lineRange(text, tt.start, tt.end)
		if s != tt.wantStart || end != tt.wantEnd {
			t.Errorf("lineRange(%d, %d) = (%d, %d), want (%d, %d)",
				tt.start, tt.end, s, end, tt.wantStart, tt.wantEnd)
		}
	}
}
