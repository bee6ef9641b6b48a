// Package domain holds the core data model shared by every layer:
// chunks, documents, chat messages and retrieval results.
package domain

import "time"

// Chunk is a bounded span of a document's text stored with its embedding
// vector. Start and End are 1-based character offsets into the cleaned
// document text, inclusive on both ends.
type Chunk struct {
	ID           string    `json:"id"`
	Path         string    `json:"path"`
	Start        int       `json:"start"`
	End          int       `json:"end"`
	Text         string    `json:"text"`
	LeftContext  string    `json:"leftContext,omitempty"`
	RightContext string    `json:"rightContext,omitempty"`
	Vector       []float32 `json:"vector"`
	ContentHash  string    `json:"contentHash"`
	Size         int64     `json:"size,omitempty"`
	MTime        int64     `json:"mtime,omitempty"`
}

// Document records one ingested file and the ordered chunk IDs that make it
// up. Two documents with identical content hashes share the same chunk IDs.
type Document struct {
	Path        string   `json:"path"`
	Size        int64    `json:"size"`
	MTime       int64    `json:"mtime"`
	ContentHash string   `json:"contentHash"`
	ChunkIDs    []string `json:"chunkIds"`
}

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// RetrievalResult pairs a chunk with its similarity score against a query.
type RetrievalResult struct {
	Score float64
	Chunk Chunk
}

// HistoryEntry is one persisted chat exchange.
type HistoryEntry struct {
	TS     time.Time `json:"ts"`
	User   string    `json:"user"`
	Status int       `json:"status"`
	Raw    string    `json:"raw"`
}

// Transport status sentinels. Real HTTP statuses are always positive, so
// negative values flow through the same callback channel without ambiguity.
const (
	// StatusClientTimeout signals that the request deadline elapsed before a
	// response arrived, or that the request could not be sent at all.
	StatusClientTimeout = -1
	// StatusStreamStall signals that a stream was aborted because no new
	// bytes arrived within the configured stall window.
	StatusStreamStall = -2
)
