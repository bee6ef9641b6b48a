package store

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/kestrelworks/raglet/internal/domain"
	"github.com/kestrelworks/raglet/internal/splitter"
	"github.com/kestrelworks/raglet/internal/vectorizer"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "store.json"), zap.NewNop())
}

func chunksFor(t *testing.T, text string) []domain.Chunk {
	t.Helper()
	chunks, err := splitter.Split(text, 16, 4, 0)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	return chunks
}

func TestLoad_MissingFileYieldsEmptyStore(t *testing.T) {
	s := newTestStore(t)
	f := s.Load()
	if len(f.Items) != 0 || len(f.Docs) != 0 {
		t.Errorf("expected empty store, got %d items %d docs", len(f.Items), len(f.Docs))
	}
}

func TestLoad_MalformedFileYieldsEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := New(path, zap.NewNop()).Load()
	if len(f.Items) != 0 || len(f.Docs) != 0 {
		t.Error("malformed file should degrade to an empty store")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AddChunks("a.txt", chunksFor(t, "alpha beta gamma delta epsilon zeta"), nil, nil); err != nil {
		t.Fatalf("add: %v", err)
	}

	f := s.Load()
	if len(f.Items) == 0 {
		t.Fatal("expected persisted items")
	}
	doc, ok := f.Docs["a.txt"]
	if !ok {
		t.Fatal("expected document record for a.txt")
	}
	if len(doc.ChunkIDs) != len(f.Items) {
		t.Errorf("document lists %d chunks, store holds %d", len(doc.ChunkIDs), len(f.Items))
	}
	for _, item := range f.Items {
		if len(item.Vector) != vectorizer.DefaultDim {
			t.Errorf("chunk %s has vector length %d, want %d", item.ID, len(item.Vector), vectorizer.DefaultDim)
		}
		if item.ID == "" || item.ContentHash == "" {
			t.Errorf("chunk missing id or content hash: %+v", item)
		}
	}
}

func TestAddChunks_Idempotent(t *testing.T) {
	s := newTestStore(t)
	chunks := chunksFor(t, "same content both times around here")

	added, err := s.AddChunks("a.txt", chunks, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if added == 0 {
		t.Fatal("first ingest should store chunks")
	}

	again, err := s.AddChunks("a.txt", chunksFor(t, "same content both times around here"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if again != 0 {
		t.Errorf("second ingest stored %d chunks, want 0", again)
	}
	if got := len(s.Load().Items); got != added {
		t.Errorf("store has %d items after re-ingest, want %d", got, added)
	}
}

func TestAddChunks_CrossPathDedup(t *testing.T) {
	s := newTestStore(t)
	text := "identical content shared by two paths"

	if _, err := s.AddChunks("a.txt", chunksFor(t, text), nil, nil); err != nil {
		t.Fatal(err)
	}
	before := len(s.Load().Items)

	added, err := s.AddChunks("b.txt", chunksFor(t, text), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if added != 0 {
		t.Errorf("mirrored ingest stored %d chunks, want 0", added)
	}

	f := s.Load()
	if got := len(f.Items); got != before {
		t.Errorf("store grew from %d to %d items on mirrored ingest", before, got)
	}
	a, b := f.Docs["a.txt"], f.Docs["b.txt"]
	if len(a.ChunkIDs) == 0 || len(a.ChunkIDs) != len(b.ChunkIDs) {
		t.Fatalf("chunk id lists differ: %d vs %d", len(a.ChunkIDs), len(b.ChunkIDs))
	}
	for i := range a.ChunkIDs {
		if a.ChunkIDs[i] != b.ChunkIDs[i] {
			t.Errorf("chunk id %d differs: %s vs %s", i, a.ChunkIDs[i], b.ChunkIDs[i])
		}
	}
}

func TestAddChunks_PrunesOnContentChange(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AddChunks("a.txt", chunksFor(t, "first version of the file"), nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddChunks("a.txt", chunksFor(t, "completely different second revision"), nil, nil); err != nil {
		t.Fatal(err)
	}

	f := s.Load()
	doc := f.Docs["a.txt"]
	if len(f.Items) != len(doc.ChunkIDs) {
		t.Errorf("stale chunks not pruned: %d items vs %d listed", len(f.Items), len(doc.ChunkIDs))
	}
	for _, item := range f.Items {
		if item.Path != "a.txt" {
			t.Errorf("unexpected path %q", item.Path)
		}
	}
}

func TestQuery_OrderedAndBounded(t *testing.T) {
	s := newTestStore(t)
	text := "gophers in the wild. gophers at sea. a completely unrelated sentence about trains."
	if _, err := s.AddChunks("a.txt", chunksFor(t, text), nil, nil); err != nil {
		t.Fatal(err)
	}
	total := len(s.Load().Items)
	if total < 3 {
		t.Fatalf("want at least 3 chunks for this test, got %d", total)
	}

	q := vectorizer.Embed("gophers", vectorizer.DefaultDim)

	results := s.Query(q, 2)
	if len(results) != 2 {
		t.Fatalf("topK=2 returned %d results", len(results))
	}
	if results[0].Score < results[1].Score {
		t.Errorf("results not in descending order: %f < %f", results[0].Score, results[1].Score)
	}

	all := s.Query(q, total+10)
	if len(all) != total {
		t.Errorf("topK beyond store size returned %d results, want %d", len(all), total)
	}
	for i := 1; i < len(all); i++ {
		if all[i].Score > all[i-1].Score {
			t.Errorf("scores not non-increasing at %d", i)
		}
	}
}

func TestQuery_SkipsDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	short := func(string) []float32 { return []float32{1, 0} }
	if _, err := s.AddChunks("short.txt", chunksFor(t, "tiny vectors here"), short, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddChunks("full.txt", chunksFor(t, "normal sized vectors over here"), nil, nil); err != nil {
		t.Fatal(err)
	}

	results := s.Query(vectorizer.Embed("vectors", vectorizer.DefaultDim), 50)
	for _, r := range results {
		if r.Chunk.Path == "short.txt" {
			t.Error("dimension-mismatched item leaked into results")
		}
	}
	if len(results) == 0 {
		t.Error("matching items should still be returned")
	}
}

func TestQuery_TiesAreInsertionStable(t *testing.T) {
	s := newTestStore(t)
	same := func(string) []float32 { return []float32{0, 1, 0} }
	chunks := []domain.Chunk{
		{Start: 1, End: 5, Text: "first"},
		{Start: 6, End: 10, Text: "second"},
	}
	if _, err := s.AddChunks("ties.txt", chunks, same, nil); err != nil {
		t.Fatal(err)
	}

	results := s.Query([]float32{0, 1, 0}, 2)
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Chunk.Text != "first" || results[1].Chunk.Text != "second" {
		t.Errorf("tie order not insertion-stable: %q, %q",
			results[0].Chunk.Text, results[1].Chunk.Text)
	}
}

func TestRemoveDoc(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AddChunks("a.txt", chunksFor(t, "some content to remove later"), nil, nil); err != nil {
		t.Fatal(err)
	}

	removed, err := s.RemoveDoc("a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Error("expected RemoveDoc to report removal")
	}

	if results := s.Query(vectorizer.Embed("content", vectorizer.DefaultDim), 5); len(results) != 0 {
		t.Errorf("query after removal returned %d results", len(results))
	}
	if removed, _ := s.RemoveDoc("a.txt"); removed {
		t.Error("second removal should report false")
	}
}

func TestUpdateVectors(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AddChunks("a.txt", chunksFor(t, "vectors to be replaced"), nil, nil); err != nil {
		t.Fatal(err)
	}

	chunks, err := s.DocChunks("a.txt")
	if err != nil {
		t.Fatal(err)
	}
	replacement := map[string][]float32{}
	for _, c := range chunks {
		replacement[c.ID] = []float32{1, 2, 3}
	}
	if err := s.UpdateVectors(replacement); err != nil {
		t.Fatal(err)
	}

	after, err := s.DocChunks("a.txt")
	if err != nil {
		t.Fatal(err)
	}
	for i, c := range after {
		if c.ID != chunks[i].ID {
			t.Errorf("chunk identity changed at %d", i)
		}
		if len(c.Vector) != 3 {
			t.Errorf("chunk %s vector not updated", c.ID)
		}
	}
}

func TestUpdateVectors_RejectsEmptyVector(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AddChunks("a.txt", chunksFor(t, "vectors to be replaced"), nil, nil); err != nil {
		t.Fatal(err)
	}

	chunks, err := s.DocChunks("a.txt")
	if err != nil {
		t.Fatal(err)
	}
	update := map[string][]float32{chunks[0].ID: nil}
	if len(chunks) > 1 {
		update[chunks[1].ID] = []float32{1, 2, 3}
	}
	err = s.UpdateVectors(update)
	if !errors.Is(err, domain.ErrEmptyEmbedding) {
		t.Fatalf("err = %v, want ErrEmptyEmbedding", err)
	}

	after, err := s.DocChunks("a.txt")
	if err != nil {
		t.Fatal(err)
	}
	for i, c := range after {
		if len(c.Vector) != len(chunks[i].Vector) {
			t.Errorf("chunk %s modified by rejected update", c.ID)
		}
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero norm", []float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine = %f, want %f", got, tt.want)
			}
		})
	}
}
