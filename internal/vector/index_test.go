package vector

import (
	"errors"
	"testing"
	"time"
)

func addDoc(t *testing.T, idx *Index, docID string, vecs [][]float32, texts []string) string {
	t.Helper()
	id, err := idx.Add(docID, vecs, texts, "test.txt")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	return id
}

func TestIndex_AddSearchRoundTrip(t *testing.T) {
	idx := New()
	id := addDoc(t, idx, "", [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		[]string{"first chunk", "second chunk", "third chunk"})
	if id == "" {
		t.Fatal("expected generated document ID")
	}
	results, err := idx.Search([]float32{0, 1, 0}, 2, SearchOptions{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Chunk.Text != "second chunk" {
		t.Errorf("rank 1 = %q, want second chunk", results[0].Chunk.Text)
	}
	if results[0].Score != 0 {
		t.Errorf("rank 1 score = %v, want 0", results[0].Score)
	}
	if results[0].Rank != 1 || results[1].Rank != 2 {
		t.Errorf("ranks = %d, %d", results[0].Rank, results[1].Rank)
	}
	if results[0].Score > results[1].Score {
		t.Error("results not in ascending distance order")
	}
}

func TestIndex_DimensionFixedAtFirstAdd(t *testing.T) {
	idx := New()
	addDoc(t, idx, "d1", [][]float32{{1, 2, 3}}, []string{"a"})
	before := idx.Stats()

	_, err := idx.Add("d2", [][]float32{{1, 2}}, []string{"b"}, "s")
	var dimErr *DimensionMismatchError
	if !errors.As(err, &dimErr) {
		t.Fatalf("error = %v, want DimensionMismatchError", err)
	}
	if dimErr.Got != 2 || dimErr.Want != 3 {
		t.Errorf("got %d/%d, want 2/3", dimErr.Got, dimErr.Want)
	}
	if idx.Stats() != before {
		t.Error("failed Add changed index stats")
	}
}

func TestIndex_CountMismatch(t *testing.T) {
	idx := New()
	addDoc(t, idx, "d1", [][]float32{{1, 0}}, []string{"a"})
	before := idx.Stats()

	_, err := idx.Add("d2", [][]float32{{1, 0}, {0, 1}, {1, 1}}, []string{"a", "b"}, "s")
	var cntErr *CountMismatchError
	if !errors.As(err, &cntErr) {
		t.Fatalf("error = %v, want CountMismatchError", err)
	}
	if idx.Stats().TotalVectors != before.TotalVectors {
		t.Error("failed Add changed total vectors")
	}
}

func TestIndex_Remove(t *testing.T) {
	idx := New()
	d1 := addDoc(t, idx, "", [][]float32{{1, 0}, {0, 1}}, []string{"a", "b"})
	d2 := addDoc(t, idx, "", [][]float32{{1, 1}}, []string{"c"})

	n, err := idx.Remove(d1)
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if n != 2 {
		t.Errorf("removed = %d, want 2", n)
	}
	stats := idx.Stats()
	if stats.TotalDocuments != 1 || stats.TotalChunks != 1 || stats.TotalVectors != 1 {
		t.Errorf("stats after remove = %+v", stats)
	}
	results, err := idx.Search([]float32{1, 0}, 10, SearchOptions{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for _, r := range results {
		if r.Chunk.DocumentID == d1 {
			t.Errorf("search returned chunk from removed document %s", d1)
		}
	}
	if len(results) != 1 || results[0].Chunk.DocumentID != d2 {
		t.Errorf("expected only %s chunks, got %v", d2, results)
	}

	if _, err := idx.Remove(d1); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove error = %v, want ErrNotFound", err)
	}
}

func TestIndex_SearchFilters(t *testing.T) {
	idx := New()
	d1 := addDoc(t, idx, "", [][]float32{{0, 0}}, []string{"near"})
	addDoc(t, idx, "", [][]float32{{3, 4}}, []string{"far"})

	ceiling := 1.0
	results, err := idx.Search([]float32{0, 0}, 10, SearchOptions{ScoreCeiling: &ceiling})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].Chunk.Text != "near" {
		t.Errorf("ceiling filter results = %v", results)
	}

	floor := 1.0
	results, err = idx.Search([]float32{0, 0}, 10, SearchOptions{ScoreFloor: &floor})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].Chunk.Text != "far" {
		t.Errorf("floor filter results = %v", results)
	}

	results, err = idx.Search([]float32{0, 0}, 10, SearchOptions{AllowedDocuments: []string{d1}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].Chunk.DocumentID != d1 {
		t.Errorf("allowed filter results = %v", results)
	}

	results, err = idx.Search([]float32{0, 0}, 10, SearchOptions{AllowedSources: []string{"other"}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("source filter results = %v, want none", results)
	}
}

func TestIndex_EmptySearch(t *testing.T) {
	idx := New()
	results, err := idx.Search([]float32{1, 2}, 5, SearchOptions{})
	if err != nil {
		t.Fatalf("Search() on empty index error = %v", err)
	}
	if results != nil {
		t.Errorf("results = %v, want nil", results)
	}
}

func TestIndex_QueryDimensionMismatch(t *testing.T) {
	idx := New()
	addDoc(t, idx, "d", [][]float32{{1, 0, 0}}, []string{"a"})
	_, err := idx.Search([]float32{1, 0}, 5, SearchOptions{})
	var dimErr *DimensionMismatchError
	if !errors.As(err, &dimErr) {
		t.Fatalf("error = %v, want DimensionMismatchError", err)
	}
}

func TestIndex_ChunksAndNeighbors(t *testing.T) {
	idx := New()
	d := addDoc(t, idx, "", [][]float32{{1, 0}, {0, 1}, {1, 1}, {2, 1}},
		[]string{"p0", "p1", "p2", "p3"})

	chunks, err := idx.Chunks(d)
	if err != nil {
		t.Fatalf("Chunks() error = %v", err)
	}
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Position != i {
			t.Errorf("chunk %d position = %d", i, ch.Position)
		}
	}

	neighbors, err := idx.Neighbors(chunks[1].ID, 1)
	if err != nil {
		t.Fatalf("Neighbors() error = %v", err)
	}
	if len(neighbors) != 3 {
		t.Fatalf("got %d neighbors, want 3", len(neighbors))
	}
	if neighbors[0].Text != "p0" || neighbors[2].Text != "p2" {
		t.Errorf("neighbors = %v", neighbors)
	}

	if _, err := idx.Chunks("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Chunks(missing) error = %v, want ErrNotFound", err)
	}
}

func TestIndex_Reset(t *testing.T) {
	idx := New()
	addDoc(t, idx, "d", [][]float32{{1, 2, 3}}, []string{"a"})
	idx.Reset()
	stats := idx.Stats()
	if stats.TotalVectors != 0 || stats.Dimension != 0 || stats.TotalDocuments != 0 {
		t.Errorf("stats after reset = %+v", stats)
	}
	// Dimension is re-established by the next first Add.
	addDoc(t, idx, "d", [][]float32{{1, 2}}, []string{"a"})
	if idx.Stats().Dimension != 2 {
		t.Errorf("dimension = %d, want 2", idx.Stats().Dimension)
	}
}

func TestIndex_AppendToExistingDocument(t *testing.T) {
	idx := New()
	d := addDoc(t, idx, "doc", [][]float32{{1, 0}}, []string{"a"})
	addDoc(t, idx, d, [][]float32{{0, 1}}, []string{"b"})
	chunks, err := idx.Chunks(d)
	if err != nil {
		t.Fatalf("Chunks() error = %v", err)
	}
	if len(chunks) != 2 || chunks[1].Position != 1 {
		t.Errorf("chunks = %v", chunks)
	}
	if idx.Stats().TotalDocuments != 1 {
		t.Errorf("documents = %d, want 1", idx.Stats().TotalDocuments)
	}
}

func TestIndex_AddChunksKeepsMetadata(t *testing.T) {
	idx := New()
	contents := []ChunkContent{
		{Text: "abcd", TokenCount: 4, WordCount: 1, Truncated: true},
		{Text: "efgh", TokenCount: 4, WordCount: 1, Truncated: false},
	}
	id, err := idx.AddChunks("", [][]float32{{1, 0}, {0, 1}}, contents, "run.txt")
	if err != nil {
		t.Fatalf("AddChunks() error = %v", err)
	}
	chunks, err := idx.Chunks(id)
	if err != nil {
		t.Fatalf("Chunks() error = %v", err)
	}
	if !chunks[0].Truncated || chunks[1].Truncated {
		t.Errorf("truncation flags = %v, %v", chunks[0].Truncated, chunks[1].Truncated)
	}
	if chunks[0].TokenCount != 4 || chunks[0].WordCount != 1 {
		t.Errorf("chunk 0 counts = %d tokens %d words", chunks[0].TokenCount, chunks[0].WordCount)
	}
}

func TestIndex_AccessorsReturnCopies(t *testing.T) {
	idx := New()
	id := addDoc(t, idx, "d", [][]float32{{1, 0}}, []string{"original"})

	doc, err := idx.Document(id)
	if err != nil {
		t.Fatalf("Document() error = %v", err)
	}
	doc.SourceLabel = "tampered"
	doc.ChunkIDs[0] = "tampered"

	chunks, err := idx.Chunks(id)
	if err != nil {
		t.Fatalf("Chunks() error = %v", err)
	}
	chunks[0].Text = "tampered"

	results, err := idx.Search([]float32{1, 0}, 1, SearchOptions{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	results[0].Chunk.Text = "tampered"

	fresh, err := idx.Chunks(id)
	if err != nil {
		t.Fatalf("Chunks() error = %v", err)
	}
	if fresh[0].Text != "original" {
		t.Errorf("chunk text = %q, mutation leaked into the index", fresh[0].Text)
	}
	if docs := idx.Documents(); docs[0].SourceLabel != "test.txt" {
		t.Errorf("source label = %q, mutation leaked into the index", docs[0].SourceLabel)
	}
}

func TestIndex_SetCreatedAt(t *testing.T) {
	idx := New()
	id := addDoc(t, idx, "d", [][]float32{{1, 0}}, []string{"a"})
	want := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := idx.SetCreatedAt(id, want); err != nil {
		t.Fatalf("SetCreatedAt() error = %v", err)
	}
	doc, err := idx.Document(id)
	if err != nil {
		t.Fatalf("Document() error = %v", err)
	}
	if !doc.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", doc.CreatedAt, want)
	}
	if err := idx.SetCreatedAt("missing", want); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetCreatedAt(missing) error = %v, want ErrNotFound", err)
	}
}
