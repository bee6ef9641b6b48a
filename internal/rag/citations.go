package rag

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kestrelworks/raglet/internal/domain"
	"github.com/kestrelworks/raglet/internal/vectorizer"
)

// denialPhrases suppress citations entirely: a refusal cites nothing.
// Phrases are in normalized token form ("don't" tokenizes to "don t").
var denialPhrases = []string{
	"don t know",
	"do not know",
	"cannot answer",
	"can t answer",
	"no information",
	"not in the context",
	"unable to answer",
}

// salutationPhrases suppress citations on short conversational replies.
var salutationPhrases = []string{
	"hello",
	"hi there",
	"thanks",
	"thank you",
	"you re welcome",
	"you are welcome",
	"glad to help",
	"sure",
	"okay",
}

const shortReplyLimit = 80

// lineSpan is an inclusive line range within one source file.
type lineSpan struct {
	start, end int
}

// fileAttribution accumulates citation evidence for one source file.
type fileAttribution struct {
	path  string
	score float64
	best  float64
	spans []lineSpan
}

// CitationBlock builds the "Sources:" block for a reply, attributing it to
// the retrieved chunks whose words actually appear in the final answer text.
// Returns "" when citations should be suppressed or nothing matches.
func (e *Engine) CitationBlock(reply string, results []domain.RetrievalResult) string {
	if len(results) == 0 || suppressCitations(reply) {
		return ""
	}

	answerWords := wordSet(reply)
	if len(answerWords) == 0 {
		return ""
	}

	threshold := e.cfg.Citations.MatchThreshold
	maxFiles := e.cfg.Citations.MaxFiles

	docs := map[string]string{}
	byFile := map[string]*fileAttribution{}
	order := []string{}

	for _, r := range results {
		c := r.Chunk
		score := chunkMatchScore(c.Text, answerWords)

		attr, ok := byFile[c.Path]
		if !ok {
			attr = &fileAttribution{path: c.Path}
			byFile[c.Path] = attr
			order = append(order, c.Path)
		}
		attr.score += score
		if score > attr.best {
			attr.best = score
		}
		if score >= threshold {
			start, end := c.Start, c.End
			if text, ok := e.loadCached(docs, c.Path); ok {
				start, end = lineRange(text, c.Start, c.End)
			}
			attr.spans = append(attr.spans, lineSpan{start, end})
		}
	}

	// Keep files with at least one qualifying chunk; if none clears the
	// threshold, fall back to the single best-scoring file using all of its
	// retrieved chunks' ranges.
	var kept []*fileAttribution
	for _, path := range order {
		if attr := byFile[path]; len(attr.spans) > 0 {
			kept = append(kept, attr)
		}
	}
	if len(kept) == 0 {
		var best *fileAttribution
		for _, path := range order {
			attr := byFile[path]
			if best == nil || attr.best > best.best {
				best = attr
			}
		}
		if best == nil || best.best == 0 {
			return ""
		}
		for _, r := range results {
			if r.Chunk.Path != best.path {
				continue
			}
			start, end := r.Chunk.Start, r.Chunk.End
			if text, ok := e.loadCached(docs, best.path); ok {
				start, end = lineRange(text, r.Chunk.Start, r.Chunk.End)
			}
			best.spans = append(best.spans, lineSpan{start, end})
		}
		kept = []*fileAttribution{best}
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].score > kept[j].score })
	if len(kept) > maxFiles {
		kept = kept[:maxFiles]
	}

	var b strings.Builder
	b.WriteString("Sources:")
	for i, attr := range kept {
		b.WriteString(fmt.Sprintf("\n%d) %s (%s)", i+1, filepath.Base(attr.path), formatSpans(mergeSpans(attr.spans))))
	}
	return b.String()
}

// suppressCitations reports whether the reply is a refusal, or a short
// salutation/acknowledgment. Matching runs on tokenized text so that a word
// like "measure" never matches "sure".
func suppressCitations(reply string) bool {
	normalized := " " + strings.Join(vectorizer.Tokenize(reply), " ") + " "
	for _, phrase := range denialPhrases {
		if strings.Contains(normalized, " "+phrase+" ") {
			return true
		}
	}
	if len(strings.TrimSpace(reply)) <= shortReplyLimit {
		for _, phrase := range salutationPhrases {
			if strings.Contains(normalized, " "+phrase+" ") {
				return true
			}
		}
	}
	return false
}

// chunkMatchScore is the fraction of the chunk's distinct normalized words
// that appear in the answer's word set.
func chunkMatchScore(chunkText string, answerWords map[string]struct{}) float64 {
	chunkWords := wordSet(chunkText)
	if len(chunkWords) == 0 {
		return 0
	}
	matched := 0
	for w := range chunkWords {
		if _, ok := answerWords[w]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(chunkWords))
}

func wordSet(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, tok := range vectorizer.Tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}

// mergeSpans merges overlapping and adjacent line ranges.
func mergeSpans(spans []lineSpan) []lineSpan {
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end < spans[j].end
	})
	merged := []lineSpan{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end+1 {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// formatSpans renders "lines A-B, line C" style range lists.
func formatSpans(spans []lineSpan) string {
	parts := make([]string, 0, len(spans))
	for _, s := range spans {
		if s.start == s.end {
			parts = append(parts, fmt.Sprintf("line %d", s.start))
		} else {
			parts = append(parts, fmt.Sprintf("lines %d-%d", s.start, s.end))
		}
	}
	return strings.Join(parts, ", ")
}
