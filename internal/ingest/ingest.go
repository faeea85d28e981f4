// Package ingest drives chunk → embed → index for incoming documents.
package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/provider"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// Config bounds embedding calls during ingestion.
type Config struct {
	// BatchSize is the number of chunk texts per embedding call.
	BatchSize int
	// Concurrency caps in-flight embedding calls per document.
	Concurrency int
	// Retry is the per-call retry policy for transient provider failures.
	Retry provider.RetryPolicy
}

// DefaultConfig keeps ingestion gentle on rate-limited providers.
var DefaultConfig = Config{
	BatchSize:   16,
	Concurrency: 4,
	Retry:       provider.DefaultRetryPolicy,
}

// Ingestor ingests pre-extracted plain text. Indexing is all-or-nothing per
// document: embeddings are gathered fully before the single index Add, so a
// failed batch never leaves partial state and retries never duplicate entries.
type Ingestor struct {
	chunker  *chunker.Chunker
	embedder provider.Embedder
	index    *vector.Index
	store    storage.Store // optional; nil disables metadata persistence
	cfg      Config
	logger   *zap.Logger // optional; when set, logs debug events
}

// New creates an ingestor. store and logger may be nil.
func New(ch *chunker.Chunker, embedder provider.Embedder, idx *vector.Index, store storage.Store, cfg Config, logger *zap.Logger) *Ingestor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig.Concurrency
	}
	return &Ingestor{chunker: ch, embedder: embedder, index: idx, store: store, cfg: cfg, logger: logger}
}

// IngestDocument chunks text, embeds all chunks, and indexes them under one
// document. Returns the document ID. Any chunking or embedding failure
// aborts the whole document before anything reaches the index.
func (ing *Ingestor) IngestDocument(ctx context.Context, text, sourceLabel string) (string, error) {
	passages, err := ing.chunker.Split(text)
	if err != nil {
		return "", err
	}
	if len(passages) == 0 {
		return "", fmt.Errorf("document %q produced no chunks", sourceLabel)
	}
	texts := make([]string, len(passages))
	contents := make([]vector.ChunkContent, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
		contents[i] = vector.ChunkContent{
			Text:       p.Text,
			TokenCount: p.TokenCount,
			WordCount:  p.WordCount,
			Truncated:  p.Truncated,
		}
	}

	embeddings, err := ing.embedAll(ctx, texts)
	if err != nil {
		return "", err
	}
	if len(embeddings) != len(texts) {
		return "", fmt.Errorf("embedding count %d disagrees with chunk count %d, aborting document", len(embeddings), len(texts))
	}

	docID, err := ing.index.AddChunks("", embeddings, contents, sourceLabel)
	if err != nil {
		return "", fmt.Errorf("index document: %w", err)
	}
	if ing.store != nil {
		if err := ing.persist(ctx, docID); err != nil && ing.logger != nil {
			// Metadata persistence is best-effort; the in-memory index is authoritative.
			ing.logger.Warn("persist document metadata", zap.String("document_id", docID), zap.Error(err))
		}
	}
	if ing.logger != nil {
		ing.logger.Debug("document ingested",
			zap.String("document_id", docID),
			zap.String("source", sourceLabel),
			zap.Int("chunks", len(texts)))
	}
	return docID, nil
}

// embedAll embeds texts in bounded-concurrency batches, preserving order.
func (ing *Ingestor) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.cfg.Concurrency)
	for start := 0; start < len(texts); start += ing.cfg.BatchSize {
		end := start + ing.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		offset := start
		g.Go(func() error {
			var vectors [][]float32
			err := provider.WithRetry(gctx, ing.cfg.Retry, ing.logger, func(callCtx context.Context) error {
				var embedErr error
				vectors, embedErr = ing.embedder.Embed(callCtx, batch)
				return embedErr
			})
			if err != nil {
				return fmt.Errorf("embed batch at %d: %w", offset, err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("embed batch at %d: got %d vectors for %d texts", offset, len(vectors), len(batch))
			}
			copy(embeddings[offset:], vectors)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// persist writes the document and chunk metadata through to the store.
func (ing *Ingestor) persist(ctx context.Context, docID string) error {
	doc, err := ing.index.Document(docID)
	if err != nil {
		return err
	}
	chunks, err := ing.index.Chunks(docID)
	if err != nil {
		return err
	}
	return ing.store.SaveDocument(ctx, doc, chunks)
}

// RemoveDocument deletes a document from the index and the metadata store.
func (ing *Ingestor) RemoveDocument(ctx context.Context, docID string) (int, error) {
	removed, err := ing.index.Remove(docID)
	if err != nil {
		return 0, err
	}
	if ing.store != nil {
		if err := ing.store.DeleteDocument(ctx, docID); err != nil && ing.logger != nil {
			ing.logger.Warn("delete document metadata", zap.String("document_id", docID), zap.Error(err))
		}
	}
	return removed, nil
}

// Rebuild re-embeds and re-indexes every document in the metadata store.
// It is the recovery path when the index snapshot is missing but document
// texts survived in SQLite.
func (ing *Ingestor) Rebuild(ctx context.Context) (int, error) {
	if ing.store == nil {
		return 0, nil
	}
	docs, err := ing.store.ListDocuments(ctx)
	if err != nil {
		return 0, fmt.Errorf("list documents: %w", err)
	}
	n := 0
	for _, doc := range docs {
		chunks, err := ing.store.GetChunks(ctx, doc.ID)
		if err != nil {
			return n, fmt.Errorf("load chunks for %s: %w", doc.ID, err)
		}
		if len(chunks) == 0 {
			continue
		}
		texts := make([]string, len(chunks))
		contents := make([]vector.ChunkContent, len(chunks))
		for i, ch := range chunks {
			texts[i] = ch.Text
			contents[i] = vector.ChunkContent{
				Text:       ch.Text,
				TokenCount: ch.TokenCount,
				WordCount:  ch.WordCount,
				Truncated:  ch.Truncated,
			}
		}
		embeddings, err := ing.embedAll(ctx, texts)
		if err != nil {
			return n, fmt.Errorf("re-embed %s: %w", doc.ID, err)
		}
		if _, err := ing.index.AddChunks(doc.ID, embeddings, contents, doc.SourceLabel); err != nil {
			return n, fmt.Errorf("re-index %s: %w", doc.ID, err)
		}
		if err := ing.index.SetCreatedAt(doc.ID, doc.CreatedAt); err != nil {
			return n, fmt.Errorf("restore timestamp for %s: %w", doc.ID, err)
		}
		n++
	}
	if ing.logger != nil && n > 0 {
		ing.logger.Info("index rebuilt from metadata store", zap.Int("documents", n))
	}
	return n, nil
}
