package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "kotae.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleDocument(id string) (*models.Document, []*models.Chunk) {
	doc := &models.Document{
		ID:          id,
		SourceLabel: "policy.txt",
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
		ChunkIDs:    []string{id + "_0", id + "_1"},
	}
	chunks := []*models.Chunk{
		{ID: id + "_0", DocumentID: id, Position: 0, Text: "first passage", TokenCount: 2, WordCount: 2},
		{ID: id + "_1", DocumentID: id, Position: 1, Text: "second passage", TokenCount: 2, WordCount: 2, Truncated: true},
	}
	return doc, chunks
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc, chunks := sampleDocument("d1")
	if err := store.SaveDocument(ctx, doc, chunks); err != nil {
		t.Fatalf("SaveDocument() error = %v", err)
	}

	got, err := store.GetDocument(ctx, "d1")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if got.SourceLabel != "policy.txt" {
		t.Errorf("SourceLabel = %q", got.SourceLabel)
	}
	if len(got.ChunkIDs) != 2 || got.ChunkIDs[0] != "d1_0" {
		t.Errorf("ChunkIDs = %v", got.ChunkIDs)
	}

	gotChunks, err := store.GetChunks(ctx, "d1")
	if err != nil {
		t.Fatalf("GetChunks() error = %v", err)
	}
	if len(gotChunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(gotChunks))
	}
	if gotChunks[0].Text != "first passage" || gotChunks[1].Position != 1 {
		t.Errorf("chunks = %+v", gotChunks)
	}
	if !gotChunks[1].Truncated {
		t.Error("truncated flag lost")
	}
}

func TestSQLiteStore_SaveReplacesChunks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc, chunks := sampleDocument("d1")
	if err := store.SaveDocument(ctx, doc, chunks); err != nil {
		t.Fatalf("SaveDocument() error = %v", err)
	}
	if err := store.SaveDocument(ctx, doc, chunks[:1]); err != nil {
		t.Fatalf("second SaveDocument() error = %v", err)
	}
	n, err := store.CountChunks(ctx)
	if err != nil {
		t.Fatalf("CountChunks() error = %v", err)
	}
	if n != 1 {
		t.Errorf("chunks = %d, want 1 after replace", n)
	}
}

func TestSQLiteStore_DeleteAndCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"d1", "d2"} {
		doc, chunks := sampleDocument(id)
		if err := store.SaveDocument(ctx, doc, chunks); err != nil {
			t.Fatalf("SaveDocument(%s) error = %v", id, err)
		}
	}
	if err := store.DeleteDocument(ctx, "d1"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	docs, err := store.CountDocuments(ctx)
	if err != nil {
		t.Fatalf("CountDocuments() error = %v", err)
	}
	if docs != 1 {
		t.Errorf("documents = %d, want 1", docs)
	}
	chunks, err := store.CountChunks(ctx)
	if err != nil {
		t.Fatalf("CountChunks() error = %v", err)
	}
	if chunks != 2 {
		t.Errorf("chunks = %d, want 2", chunks)
	}
	if _, err := store.GetDocument(ctx, "d1"); err == nil {
		t.Error("expected error for deleted document")
	}
}

func TestSQLiteStore_ListDocuments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	older, olderChunks := sampleDocument("older")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer, newerChunks := sampleDocument("newer")
	if err := store.SaveDocument(ctx, older, olderChunks); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveDocument(ctx, newer, newerChunks); err != nil {
		t.Fatal(err)
	}
	docs, err := store.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	if docs[0].ID != "newer" {
		t.Errorf("first document = %s, want newest", docs[0].ID)
	}
}
