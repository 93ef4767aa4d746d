// Package retriever implements hybrid retrieval over a single document:
// a wide vector search and a lexical term search are fused with weighted
// normalized scores, then a keyword rerank pass picks the final candidates.
package retriever

import (
	"context"
	"time"

	"github.com/scholarmind/ragcore/cache"
	"github.com/scholarmind/ragcore/common/logger"
	"github.com/scholarmind/ragcore/config"
	"github.com/scholarmind/ragcore/metrics"
	"github.com/scholarmind/ragcore/ragerr"
	"github.com/scholarmind/ragcore/schema"
	"github.com/scholarmind/ragcore/vectordb"
)

// Engine runs the three-stage retrieval pipeline against a vector store.
type Engine struct {
	store  vectordb.Store
	cfg    config.RetrievalConfig
	chunks *cache.Cache[schema.Chunk]
}

// NewEngine wires the store and the chunk cache. The cache is warmed as a
// side effect of retrieval so degraded answers can still show sources.
func NewEngine(store vectordb.Store, cfg config.RetrievalConfig, chunks *cache.Cache[schema.Chunk]) *Engine {
	return &Engine{store: store, cfg: cfg, chunks: chunks}
}

// Retrieve returns the topK reranked candidates for the question.
// queryVector may be nil when embedding is unavailable, in which case only
// the lexical path contributes. A document with no chunks is ErrNoContent;
// a question matching none of them returns an empty slice and no error.
func (e *Engine) Retrieve(ctx context.Context, documentID, question string, queryVector []float32) ([]schema.RetrievalCandidate, error) {
	chunks, err := e.store.GetChunks(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ragerr.New(ragerr.ErrNoContent, "document has no indexed chunks", nil)
	}
	e.warmChunkCache(chunks)

	breadth := e.cfg.BreadthMultiplier * e.cfg.TopK
	terms := ExtractTerms(question, e.cfg.MinTermLength)

	var vectorHits []schema.Hit
	if len(queryVector) > 0 {
		start := time.Now()
		vectorHits, err = e.store.SimilaritySearch(ctx, documentID, queryVector, breadth)
		if err != nil {
			return nil, err
		}
		metrics.ObserveRetrieval("vector", start, len(vectorHits))
	}

	var lexicalHits []schema.Hit
	if len(terms) > 0 {
		start := time.Now()
		lexicalHits, err = e.store.LexicalSearch(ctx, documentID, terms, breadth)
		if err != nil {
			return nil, err
		}
		metrics.ObserveRetrieval("lexical", start, len(lexicalHits))
	}

	if len(vectorHits) == 0 && len(lexicalHits) == 0 {
		logger.Debugf("retrieval found no candidates: document=%s terms=%d", documentID, len(terms))
		return []schema.RetrievalCandidate{}, nil
	}

	candidates := fuse(vectorHits, lexicalHits, e.cfg.VectorWeight, e.cfg.LexicalWeight)
	return rerank(candidates, terms, e.cfg.RerankBaseWeight, e.cfg.TopK), nil
}

// Chunks returns the document's chunks in ordinal order, warming the cache.
func (e *Engine) Chunks(ctx context.Context, documentID string) ([]schema.Chunk, error) {
	chunks, err := e.store.GetChunks(ctx, documentID)
	if err != nil {
		return nil, err
	}
	e.warmChunkCache(chunks)
	return chunks, nil
}

// CachedChunk looks a chunk up by position without touching the store.
func (e *Engine) CachedChunk(documentID string, ordinal int) (schema.Chunk, bool) {
	if e.chunks == nil {
		return schema.Chunk{}, false
	}
	return e.chunks.Get(cache.ChunkKey(documentID, ordinal))
}

func (e *Engine) warmChunkCache(chunks []schema.Chunk) {
	if e.chunks == nil {
		return
	}
	for _, c := range chunks {
		e.chunks.Set(cache.ChunkKey(c.DocumentID, c.Ordinal), c, 0)
	}
}
