package vectordb

import (
	"context"
	"fmt"
	"sort"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/scholarmind/ragcore/config"
	"github.com/scholarmind/ragcore/ragerr"
	"github.com/scholarmind/ragcore/schema"
)

const (
	fieldChunkID    = "chunk_id"
	fieldDocumentID = "document_id"
	fieldOrdinal    = "ordinal"
	fieldText       = "text"
	fieldTitle      = "title"
	fieldVector     = "vector"
)

var chunkOutputFields = []string{fieldChunkID, fieldDocumentID, fieldOrdinal, fieldText, fieldTitle}

// MilvusStore backs Store with a Milvus collection. One collection holds all
// documents, partitioned logically by the document_id scalar field.
type MilvusStore struct {
	client     client.Client
	collection string
}

// NewMilvusStore connects to Milvus and loads the configured collection.
func NewMilvusStore(ctx context.Context, cfg config.VectorDBConfig) (*MilvusStore, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address:  fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, ragerr.New(ragerr.ErrDependencyUnavailable, "milvus connect", err)
	}
	if err := c.LoadCollection(ctx, cfg.Collection, false); err != nil {
		c.Close()
		return nil, ragerr.New(ragerr.ErrDependencyUnavailable, "milvus load collection", err)
	}
	return &MilvusStore{client: c, collection: cfg.Collection}, nil
}

// Close releases the underlying connection.
func (s *MilvusStore) Close() error {
	return s.client.Close()
}

// Upsert replaces a document's chunks. Existing rows for the document are
// deleted first so re-ingestion does not accumulate stale ordinals.
func (s *MilvusStore) Upsert(ctx context.Context, documentID string, chunks []schema.Chunk) error {
	expr := fmt.Sprintf("%s == %q", fieldDocumentID, documentID)
	if err := s.client.Delete(ctx, s.collection, "", expr); err != nil {
		return ragerr.New(ragerr.ErrDependencyUnavailable, "milvus delete", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	ids := make([]string, len(chunks))
	docIDs := make([]string, len(chunks))
	ordinals := make([]int64, len(chunks))
	texts := make([]string, len(chunks))
	titles := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		docIDs[i] = documentID
		ordinals[i] = int64(c.Ordinal)
		texts[i] = c.Text
		titles[i] = c.Title
		vectors[i] = c.Vector
	}

	dim := 0
	for _, v := range vectors {
		if len(v) > 0 {
			dim = len(v)
			break
		}
	}
	for i, v := range vectors {
		if len(v) == 0 {
			vectors[i] = make([]float32, dim)
		}
	}

	_, err := s.client.Insert(ctx, s.collection, "",
		entity.NewColumnVarChar(fieldChunkID, ids),
		entity.NewColumnVarChar(fieldDocumentID, docIDs),
		entity.NewColumnInt64(fieldOrdinal, ordinals),
		entity.NewColumnVarChar(fieldText, texts),
		entity.NewColumnVarChar(fieldTitle, titles),
		entity.NewColumnFloatVector(fieldVector, dim, vectors),
	)
	if err != nil {
		return ragerr.New(ragerr.ErrDependencyUnavailable, "milvus insert", err)
	}
	if err := s.client.Flush(ctx, s.collection, false); err != nil {
		return ragerr.New(ragerr.ErrDependencyUnavailable, "milvus flush", err)
	}
	return nil
}

func (s *MilvusStore) SimilaritySearch(ctx context.Context, documentID string, queryVector []float32, k int) ([]schema.Hit, error) {
	sp, err := entity.NewIndexFlatSearchParam()
	if err != nil {
		return nil, ragerr.New(ragerr.ErrDependencyUnavailable, "milvus search params", err)
	}
	expr := fmt.Sprintf("%s == %q", fieldDocumentID, documentID)
	results, err := s.client.Search(ctx, s.collection, nil, expr, chunkOutputFields,
		[]entity.Vector{entity.FloatVector(queryVector)}, fieldVector, entity.COSINE, k, sp)
	if err != nil {
		return nil, ragerr.New(ragerr.ErrDependencyUnavailable, "milvus search", err)
	}

	var hits []schema.Hit
	for _, res := range results {
		for i := 0; i < res.ResultCount; i++ {
			chunk, err := chunkFromColumns(res.Fields, i)
			if err != nil {
				return nil, err
			}
			hits = append(hits, schema.Hit{Chunk: chunk, Score: float64(res.Scores[i])})
		}
	}
	sortHits(hits)
	return truncate(hits, k), nil
}

// LexicalSearch pulls the document's chunks by expression and scores term
// matches client-side. Milvus has no keyword index in this schema.
func (s *MilvusStore) LexicalSearch(ctx context.Context, documentID string, terms []string, k int) ([]schema.Hit, error) {
	chunks, err := s.GetChunks(ctx, documentID)
	if err != nil {
		return nil, err
	}
	hits := make([]schema.Hit, 0)
	for _, c := range chunks {
		score := LexicalScore(c.Text, terms)
		if score > 0 {
			hits = append(hits, schema.Hit{Chunk: c, Score: score})
		}
	}
	sortHits(hits)
	return truncate(hits, k), nil
}

func (s *MilvusStore) GetChunks(ctx context.Context, documentID string) ([]schema.Chunk, error) {
	expr := fmt.Sprintf("%s == %q", fieldDocumentID, documentID)
	rs, err := s.client.Query(ctx, s.collection, nil, expr, chunkOutputFields)
	if err != nil {
		return nil, ragerr.New(ragerr.ErrDependencyUnavailable, "milvus query", err)
	}
	if len(rs) == 0 {
		return nil, nil
	}

	n := rs[0].Len()
	chunks := make([]schema.Chunk, 0, n)
	for i := 0; i < n; i++ {
		chunk, err := chunkFromColumns(rs, i)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Ordinal < chunks[j].Ordinal })
	return chunks, nil
}

func chunkFromColumns(cols []entity.Column, row int) (schema.Chunk, error) {
	var chunk schema.Chunk
	for _, col := range cols {
		switch col.Name() {
		case fieldChunkID:
			v, err := col.GetAsString(row)
			if err != nil {
				return chunk, columnErr(fieldChunkID, err)
			}
			chunk.ID = v
		case fieldDocumentID:
			v, err := col.GetAsString(row)
			if err != nil {
				return chunk, columnErr(fieldDocumentID, err)
			}
			chunk.DocumentID = v
		case fieldOrdinal:
			v, err := col.GetAsInt64(row)
			if err != nil {
				return chunk, columnErr(fieldOrdinal, err)
			}
			chunk.Ordinal = int(v)
		case fieldText:
			v, err := col.GetAsString(row)
			if err != nil {
				return chunk, columnErr(fieldText, err)
			}
			chunk.Text = v
		case fieldTitle:
			v, err := col.GetAsString(row)
			if err != nil {
				return chunk, columnErr(fieldTitle, err)
			}
			chunk.Title = v
		}
	}
	return chunk, nil
}

func columnErr(field string, err error) error {
	return ragerr.New(ragerr.ErrDependencyUnavailable, fmt.Sprintf("milvus column %s", field), err)
}
