// Package store implements the file-persisted vector store: a JSON document
// holding every chunk with its vector plus per-path document records.
//
// Every operation loads the file fresh and, on mutation, writes it back in
// full via a temp file and rename, so the file on disk always holds either
// the previous or the next complete state. There is no fine-grained locking;
// concurrent writers are excluded by the caller.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kestrelworks/raglet/internal/domain"
	"github.com/kestrelworks/raglet/internal/vectorizer"
)

// File is the persisted store shape.
type File struct {
	Items []domain.Chunk             `json:"items"`
	Docs  map[string]domain.Document `json:"docs"`
}

// VectorizeFn produces an embedding for a chunk's text.
type VectorizeFn func(text string) []float32

// DocMeta carries optional per-document metadata supplied by the caller.
type DocMeta struct {
	Size        int64
	MTime       int64
	ContentHash string // overrides the computed hash when set
}

// Store reads and writes the vector store file. It holds no document state
// between calls.
type Store struct {
	path   string
	logger *zap.Logger
}

// New creates a store bound to a file path.
func New(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}
}

// Load reads the store file. A missing file yields an empty store; a
// malformed file is logged and also yields an empty store. Load never fails.
func (s *Store) Load() File {
	f := File{Docs: map[string]domain.Document{}}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("store file unreadable, starting empty",
				zap.String("path", s.path), zap.Error(err))
		}
		return f
	}
	if err := json.Unmarshal(data, &f); err != nil {
		s.logger.Warn("store file malformed, starting empty",
			zap.String("path", s.path), zap.Error(err))
		return File{Docs: map[string]domain.Document{}}
	}
	if f.Docs == nil {
		f.Docs = map[string]domain.Document{}
	}
	return f
}

// Save writes the whole store atomically (write temp, then rename).
func (s *Store) Save(f File) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".store-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp store file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename store file: %w", err)
	}
	return nil
}

// AddChunks ingests chunks for path. Documents are deduplicated by content
// hash across paths: a second path with identical content mirrors the first
// document's chunk IDs without re-storing or re-embedding anything. A
// changed hash for an existing path prunes its stale chunks first.
// Individual chunks are skipped when an item with the same (path,start,end)
// or the same content hash already exists.
//
// Returns the number of newly stored chunks.
func (s *Store) AddChunks(path string, chunks []domain.Chunk, vectorize VectorizeFn, meta *DocMeta) (int, error) {
	if vectorize == nil {
		vectorize = func(text string) []float32 {
			return vectorizer.Embed(text, vectorizer.DefaultDim)
		}
	}

	f := s.Load()

	docHash := ""
	if meta != nil && meta.ContentHash != "" {
		docHash = meta.ContentHash
	} else {
		h := sha256.New()
		for _, c := range chunks {
			h.Write([]byte(c.Text))
		}
		docHash = hex.EncodeToString(h.Sum(nil))
	}

	doc := domain.Document{Path: path, ContentHash: docHash}
	if meta != nil {
		doc.Size = meta.Size
		doc.MTime = meta.MTime
	}

	// Cross-path dedup: mirror an existing document with the same content.
	for otherPath, other := range f.Docs {
		if otherPath != path && other.ContentHash == docHash {
			doc.ChunkIDs = append([]string(nil), other.ChunkIDs...)
			f.Docs[path] = doc
			if err := s.Save(f); err != nil {
				return 0, err
			}
			s.logger.Info("document mirrors existing content",
				zap.String("path", path), zap.String("mirrors", otherPath))
			return 0, nil
		}
	}

	// Content changed for this path: prune its stale chunks.
	if prev, ok := f.Docs[path]; ok && prev.ContentHash != docHash {
		kept := f.Items[:0]
		for _, item := range f.Items {
			if item.Path != path {
				kept = append(kept, item)
			}
		}
		f.Items = kept
		delete(f.Docs, path)
	}

	added := 0
	for _, c := range chunks {
		c.Path = path
		if c.ContentHash == "" {
			sum := sha256.Sum256([]byte(c.Text))
			c.ContentHash = hex.EncodeToString(sum[:])
		}

		if existing, ok := findExisting(f.Items, c); ok {
			doc.ChunkIDs = append(doc.ChunkIDs, existing.ID)
			continue
		}

		c.ID = uuid.NewString()
		if len(c.Vector) == 0 {
			c.Vector = vectorize(c.Text)
		}
		if meta != nil {
			c.Size = meta.Size
			c.MTime = meta.MTime
		}
		f.Items = append(f.Items, c)
		doc.ChunkIDs = append(doc.ChunkIDs, c.ID)
		added++
	}

	f.Docs[path] = doc
	if err := s.Save(f); err != nil {
		return 0, err
	}
	return added, nil
}

// findExisting returns a stored item matching the incoming chunk by
// (path,start,end) or by content hash.
func findExisting(items []domain.Chunk, c domain.Chunk) (domain.Chunk, bool) {
	for _, item := range items {
		if item.Path == c.Path && item.Start == c.Start && item.End == c.End {
			return item, true
		}
		if item.ContentHash == c.ContentHash {
			return item, true
		}
	}
	return domain.Chunk{}, false
}

// Query scans every item with cosine similarity against queryVec and returns
// up to topK results in descending score order. Ties keep the
// earlier-inserted item first. Items whose vector length differs from the
// query are skipped, and the skip is logged, rather than failing the whole
// query.
func (s *Store) Query(queryVec []float32, topK int) []domain.RetrievalResult {
	if topK <= 0 {
		return nil
	}
	f := s.Load()

	var results []domain.RetrievalResult
	skipped := 0
	for _, item := range f.Items {
		if len(item.Vector) != len(queryVec) {
			skipped++
			continue
		}
		score := Cosine(item.Vector, queryVec)

		// Ordered insertion into a bounded list; strict > keeps ties stable.
		pos := len(results)
		for pos > 0 && score > results[pos-1].Score {
			pos--
		}
		if pos >= topK {
			continue
		}
		results = append(results, domain.RetrievalResult{})
		copy(results[pos+1:], results[pos:])
		results[pos] = domain.RetrievalResult{Score: score, Chunk: item}
		if len(results) > topK {
			results = results[:topK]
		}
	}
	if skipped > 0 {
		s.logger.Warn("skipped chunks with mismatched vector dimensions",
			zap.Int("skipped", skipped), zap.Int("query_dim", len(queryVec)),
			zap.Error(domain.ErrVectorDimMismatch))
	}
	return results
}

// RemoveDoc deletes the document record for path together with every chunk
// stored under it. Returns false if the path was not present.
func (s *Store) RemoveDoc(path string) (bool, error) {
	f := s.Load()
	if _, ok := f.Docs[path]; !ok {
		return false, nil
	}
	delete(f.Docs, path)

	kept := f.Items[:0]
	for _, item := range f.Items {
		if item.Path != path {
			kept = append(kept, item)
		}
	}
	f.Items = kept

	if err := s.Save(f); err != nil {
		return false, err
	}
	return true, nil
}

// DocChunks returns the chunks of one document in chunk-ID order. A missing
// path yields ErrDocumentNotFound.
func (s *Store) DocChunks(path string) ([]domain.Chunk, error) {
	f := s.Load()
	doc, ok := f.Docs[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, domain.ErrDocumentNotFound)
	}

	byID := make(map[string]domain.Chunk, len(f.Items))
	for _, item := range f.Items {
		byID[item.ID] = item
	}

	chunks := make([]domain.Chunk, 0, len(doc.ChunkIDs))
	for _, id := range doc.ChunkIDs {
		if c, ok := byID[id]; ok {
			chunks = append(chunks, c)
		}
	}
	return chunks, nil
}

// UpdateVectors backfills vectors for stored chunks by ID, preserving chunk
// identity and order. Unknown IDs are ignored; an empty vector would make
// its chunk unretrievable, so the whole update is rejected before any write.
func (s *Store) UpdateVectors(vectors map[string][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	for id, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("update vector for chunk %s: %w", id, domain.ErrEmptyEmbedding)
		}
	}
	f := s.Load()
	for i := range f.Items {
		if v, ok := vectors[f.Items[i].ID]; ok {
			f.Items[i].Vector = v
		}
	}
	return s.Save(f)
}

// ListDocs returns the document records keyed by path.
func (s *Store) ListDocs() map[string]domain.Document {
	return s.Load().Docs
}

// Cosine returns the cosine similarity of two equal-length vectors. The
// similarity against a zero-norm vector is defined as 0.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
