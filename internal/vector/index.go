// Package vector provides the in-memory flat vector index with chunk metadata.
package vector

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/token"
)

// Index stores fixed-dimension embeddings with chunk and document metadata and
// serves brute-force nearest-neighbor search under squared-L2 distance
// (lower = more similar). The dimension is fixed by the first successful Add.
//
// Reads may run concurrently; mutations are serialized behind the write lock.
type Index struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float32 // ordinal-aligned with ordinals
	ordinals  []string    // ordinal -> chunk ID
	chunks    map[string]*models.Chunk
	docs      map[string]*models.Document
	logger    *zap.Logger // optional; when set, logs debug events
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets a logger for debug output (adds, removals, compactions).
func WithLogger(l *zap.Logger) Option {
	return func(idx *Index) { idx.logger = l }
}

// New creates an empty index with no fixed dimension.
func New(opts ...Option) *Index {
	idx := &Index{
		chunks: make(map[string]*models.Chunk),
		docs:   make(map[string]*models.Document),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// SearchOptions filters a Search call. Ceiling and Floor bound the raw
// distance when non-nil; AllowedDocuments / AllowedSources restrict the
// candidate pool when non-empty.
type SearchOptions struct {
	ScoreCeiling     *float64
	ScoreFloor       *float64
	AllowedDocuments []string
	AllowedSources   []string
}

// ChunkContent carries one chunk's text and size metadata into AddChunks.
// The metadata comes from the chunker, so hard-cut truncation flags and
// counter-specific token counts survive indexing instead of being re-derived.
type ChunkContent struct {
	Text       string
	TokenCount int
	WordCount  int
	Truncated  bool
}

// Add inserts one embedding per chunk text under documentID, deriving size
// metadata with the heuristic estimator. Callers that already hold chunk
// metadata should use AddChunks so it is preserved.
func (idx *Index) Add(documentID string, embeddings [][]float32, texts []string, sourceLabel string) (string, error) {
	contents := make([]ChunkContent, len(texts))
	for i, text := range texts {
		contents[i] = ChunkContent{
			Text:       text,
			TokenCount: token.Estimate(text),
			WordCount:  wordCount(text),
		}
	}
	return idx.AddChunks(documentID, embeddings, contents, sourceLabel)
}

// AddChunks inserts one embedding per chunk under documentID, creating the
// document on its first chunk. An empty documentID gets a generated UUID.
// The call is atomic: any contract violation leaves the index unchanged.
func (idx *Index) AddChunks(documentID string, embeddings [][]float32, contents []ChunkContent, sourceLabel string) (string, error) {
	if len(embeddings) == 0 {
		return "", fmt.Errorf("no embeddings provided")
	}
	if len(embeddings) != len(contents) {
		return "", &CountMismatchError{Embeddings: len(embeddings), Texts: len(contents)}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	dim := idx.dimension
	if dim == 0 {
		dim = len(embeddings[0])
		if dim == 0 {
			return "", fmt.Errorf("empty embedding vector")
		}
	}
	for _, emb := range embeddings {
		if len(emb) != dim {
			return "", &DimensionMismatchError{Got: len(emb), Want: dim}
		}
	}

	if documentID == "" {
		documentID = uuid.New().String()
	}
	doc, ok := idx.docs[documentID]
	if !ok {
		doc = &models.Document{
			ID:          documentID,
			SourceLabel: sourceLabel,
			CreatedAt:   time.Now(),
		}
		idx.docs[documentID] = doc
	}

	idx.dimension = dim
	start := len(doc.ChunkIDs)
	for i, emb := range embeddings {
		pos := start + i
		chunk := &models.Chunk{
			ID:         fmt.Sprintf("%s_%d", documentID, pos),
			DocumentID: documentID,
			Position:   pos,
			Text:       contents[i].Text,
			TokenCount: contents[i].TokenCount,
			WordCount:  contents[i].WordCount,
			Truncated:  contents[i].Truncated,
		}
		vec := make([]float32, dim)
		copy(vec, emb)
		idx.vectors = append(idx.vectors, vec)
		idx.ordinals = append(idx.ordinals, chunk.ID)
		idx.chunks[chunk.ID] = chunk
		doc.ChunkIDs = append(doc.ChunkIDs, chunk.ID)
	}
	if idx.logger != nil {
		idx.logger.Debug("index add",
			zap.String("document_id", documentID),
			zap.Int("chunks", len(embeddings)),
			zap.Int("dimension", dim))
	}
	return documentID, nil
}

// Search returns up to k lowest-distance matches for query, ranked 1-based
// ascending. An empty index returns no results; a query whose dimension
// disagrees with the established dimension is rejected.
func (idx *Index) Search(query []float32, k int, opts SearchOptions) ([]*models.SearchResult, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.ordinals) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != idx.dimension {
		return nil, &DimensionMismatchError{Got: len(query), Want: idx.dimension}
	}

	allowedDocs := toSet(opts.AllowedDocuments)
	allowedSources := toSet(opts.AllowedSources)

	type scored struct {
		chunkID string
		score   float64
	}
	candidates := make([]scored, 0, len(idx.ordinals))
	for ord, chunkID := range idx.ordinals {
		chunk := idx.chunks[chunkID]
		if allowedDocs != nil && !allowedDocs[chunk.DocumentID] {
			continue
		}
		if allowedSources != nil {
			doc := idx.docs[chunk.DocumentID]
			if doc == nil || !allowedSources[doc.SourceLabel] {
				continue
			}
		}
		score := squaredL2(query, idx.vectors[ord])
		if opts.ScoreCeiling != nil && score > *opts.ScoreCeiling {
			continue
		}
		if opts.ScoreFloor != nil && score < *opts.ScoreFloor {
			continue
		}
		candidates = append(candidates, scored{chunkID: chunkID, score: score})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score < candidates[j].score })
	if k > len(candidates) {
		k = len(candidates)
	}
	results := make([]*models.SearchResult, k)
	for i := 0; i < k; i++ {
		results[i] = &models.SearchResult{
			Chunk: cloneChunk(idx.chunks[candidates[i].chunkID]),
			Score: candidates[i].score,
			Rank:  i + 1,
			Tier:  models.TierForScore(candidates[i].score),
		}
	}
	return results, nil
}

// Remove deletes all chunks and embeddings of documentID and compacts
// ordinals by rebuilding the vector slices. Returns the removed chunk count.
func (idx *Index) Remove(documentID string) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	doc, ok := idx.docs[documentID]
	if !ok {
		return 0, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	removed := make(map[string]bool, len(doc.ChunkIDs))
	for _, chunkID := range doc.ChunkIDs {
		removed[chunkID] = true
		delete(idx.chunks, chunkID)
	}
	newVectors := make([][]float32, 0, len(idx.vectors)-len(removed))
	newOrdinals := make([]string, 0, len(idx.ordinals)-len(removed))
	for ord, chunkID := range idx.ordinals {
		if removed[chunkID] {
			continue
		}
		newVectors = append(newVectors, idx.vectors[ord])
		newOrdinals = append(newOrdinals, chunkID)
	}
	idx.vectors = newVectors
	idx.ordinals = newOrdinals
	delete(idx.docs, documentID)
	if idx.logger != nil {
		idx.logger.Debug("index remove",
			zap.String("document_id", documentID),
			zap.Int("chunks", len(removed)))
	}
	return len(removed), nil
}

// Document returns a copy of the document record for id.
func (idx *Index) Document(id string) (*models.Document, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	doc, ok := idx.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return cloneDocument(doc), nil
}

// SetCreatedAt overrides the creation time of documentID. Used when restoring
// a document whose original timestamp survived elsewhere.
func (idx *Index) SetCreatedAt(documentID string, createdAt time.Time) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	doc, ok := idx.docs[documentID]
	if !ok {
		return fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	doc.CreatedAt = createdAt
	return nil
}

// Chunks returns copies of the chunks of documentID ordered by position.
func (idx *Index) Chunks(documentID string) ([]*models.Chunk, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	doc, ok := idx.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	chunks := make([]*models.Chunk, 0, len(doc.ChunkIDs))
	for _, chunkID := range doc.ChunkIDs {
		if ch, ok := idx.chunks[chunkID]; ok {
			chunks = append(chunks, cloneChunk(ch))
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Position < chunks[j].Position })
	return chunks, nil
}

// Neighbors returns chunks of the same document within window positions of
// chunkID on each side, inclusive of the chunk itself, in document order.
func (idx *Index) Neighbors(chunkID string, window int) ([]*models.Chunk, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	chunk, ok := idx.chunks[chunkID]
	if !ok {
		return nil, fmt.Errorf("chunk %s: %w", chunkID, ErrNotFound)
	}
	doc := idx.docs[chunk.DocumentID]
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", chunk.DocumentID, ErrNotFound)
	}
	var out []*models.Chunk
	for _, id := range doc.ChunkIDs {
		other := idx.chunks[id]
		if other == nil {
			continue
		}
		delta := other.Position - chunk.Position
		if delta >= -window && delta <= window {
			out = append(out, cloneChunk(other))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

// Documents returns copies of all document records, newest first.
func (idx *Index) Documents() []*models.Document {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	docs := make([]*models.Document, 0, len(idx.docs))
	for _, doc := range idx.docs {
		docs = append(docs, cloneDocument(doc))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	return docs
}

// Stats reports index size. TotalVectors always equals TotalChunks.
func (idx *Index) Stats() models.IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return models.IndexStats{
		TotalVectors:   len(idx.vectors),
		Dimension:      idx.dimension,
		TotalDocuments: len(idx.docs),
		TotalChunks:    len(idx.chunks),
	}
}

// Reset clears all state, including the fixed dimension.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.dimension = 0
	idx.vectors = nil
	idx.ordinals = nil
	idx.chunks = make(map[string]*models.Chunk)
	idx.docs = make(map[string]*models.Document)
}

// Accessors hand out copies, never pointers into locked state, so callers
// cannot mutate the index from outside the lock.
func cloneChunk(ch *models.Chunk) *models.Chunk {
	out := *ch
	return &out
}

func cloneDocument(doc *models.Document) *models.Document {
	out := *doc
	out.ChunkIDs = append([]string(nil), doc.ChunkIDs...)
	return &out
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return sum
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

func wordCount(text string) int {
	n := 0
	inWord := false
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			inWord = false
		} else if !inWord {
			inWord = true
			n++
		}
	}
	return n
}
