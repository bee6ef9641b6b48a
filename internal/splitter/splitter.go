// Package splitter turns plain text into overlapping fixed-size windows with
// optional padding context for citation display.
package splitter

import (
	"fmt"

	"github.com/kestrelworks/raglet/internal/domain"
)

// Split cuts text into windows of chunkSize characters, each overlapping the
// previous one by overlap characters. Offsets are 1-based and inclusive.
// pad characters on either side of a window are captured as left/right
// context; they are carried for display only and never embedded.
//
// Negative overlap is clamped to 0; overlap >= chunkSize is clamped to
// chunkSize-1. Empty input yields no chunks.
func Split(text string, chunkSize, overlap, pad int) ([]domain.Chunk, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size %d: %w", chunkSize, domain.ErrInvalidArgument)
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize - 1
	}
	if pad < 0 {
		pad = 0
	}

	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil, nil
	}

	step := chunkSize - overlap
	var chunks []domain.Chunk
	for pos := 1; ; pos += step {
		end := pos + chunkSize - 1
		if end > n {
			end = n
		}

		leftStart := pos - pad
		if leftStart < 1 {
			leftStart = 1
		}
		rightEnd := end + pad
		if rightEnd > n {
			rightEnd = n
		}

		chunks = append(chunks, domain.Chunk{
			Start:        pos,
			End:          end,
			Text:         string(runes[pos-1 : end]),
			LeftContext:  string(runes[leftStart-1 : pos-1]),
			RightContext: string(runes[end:rightEnd]),
		})

		if end >= n {
			break
		}
	}
	return chunks, nil
}
