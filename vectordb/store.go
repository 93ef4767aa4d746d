// Package vectordb abstracts the vector store consumed by retrieval.
package vectordb

import (
	"context"

	"github.com/scholarmind/ragcore/schema"
)

// Store exposes the search capabilities retrieval depends on. Chunk
// ingestion is owned elsewhere; this core only reads.
type Store interface {
	// SimilaritySearch ranks a document's chunks against a query vector.
	SimilaritySearch(ctx context.Context, documentID string, queryVector []float32, k int) ([]schema.Hit, error)
	// LexicalSearch ranks a document's chunks by significant-term overlap.
	LexicalSearch(ctx context.Context, documentID string, terms []string, k int) ([]schema.Hit, error)
	// GetChunks returns a document's chunks ordered by ordinal.
	GetChunks(ctx context.Context, documentID string) ([]schema.Chunk, error)
}
