// Package storage persists document and chunk metadata across restarts.
package storage

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Store is the metadata persistence interface. Vectors live in the index
// snapshot; the store keeps document and chunk records so documents can be
// listed and re-embedded when the snapshot is gone.
type Store interface {
	SaveDocument(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	GetChunks(ctx context.Context, documentID string) ([]*models.Chunk, error)
	ListDocuments(ctx context.Context) ([]*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	CountDocuments(ctx context.Context) (int, error)
	CountChunks(ctx context.Context) (int, error)
	Close() error
}
