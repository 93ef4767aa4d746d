package retriever

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarmind/ragcore/cache"
	"github.com/scholarmind/ragcore/config"
	"github.com/scholarmind/ragcore/ragerr"
	"github.com/scholarmind/ragcore/schema"
)

type fakeStore struct {
	chunks  []schema.Chunk
	vector  []schema.Hit
	lexical []schema.Hit

	vectorCalls  int
	lexicalCalls int
}

func (f *fakeStore) GetChunks(ctx context.Context, documentID string) ([]schema.Chunk, error) {
	return f.chunks, nil
}

func (f *fakeStore) SimilaritySearch(ctx context.Context, documentID string, queryVector []float32, k int) ([]schema.Hit, error) {
	f.vectorCalls++
	return f.vector, nil
}

func (f *fakeStore) LexicalSearch(ctx context.Context, documentID string, terms []string, k int) ([]schema.Hit, error) {
	f.lexicalCalls++
	return f.lexical, nil
}

func testChunk(id string, ordinal int, text string) schema.Chunk {
	return schema.Chunk{ID: id, DocumentID: "doc-1", Ordinal: ordinal, Text: text}
}

func testConfig() config.RetrievalConfig {
	cfg := config.Default()
	return cfg.Retrieval
}

func TestRetrieveBoostsChunkFoundByBothPaths(t *testing.T) {
	c1 := testChunk("c1", 1, "Solar panel efficiency depends on photovoltaic cell materials.")
	c2 := testChunk("c2", 2, "Battery storage complements generation capacity.")
	c3 := testChunk("c3", 3, "Panel efficiency degrades slowly over decades.")
	c4 := testChunk("c4", 4, "Unrelated maintenance schedule appendix.")

	store := &fakeStore{
		chunks: []schema.Chunk{c1, c2, c3, c4},
		vector: []schema.Hit{
			{Chunk: c2, Score: 0.92},
			{Chunk: c1, Score: 0.88},
			{Chunk: c4, Score: 0.55},
		},
		lexical: []schema.Hit{
			{Chunk: c1, Score: 1.6},
			{Chunk: c3, Score: 0.8},
		},
	}
	engine := NewEngine(store, testConfig(), nil)

	got, err := engine.Retrieve(context.Background(), "doc-1", "solar panel efficiency", []float32{0.1, 0.2})
	require.NoError(t, err)

	ids := make(map[string]schema.RetrievalCandidate, len(got))
	for _, c := range got {
		ids[c.Chunk.ID] = c
	}
	assert.Contains(t, ids, "c1")
	assert.Contains(t, ids, "c2")
	assert.Contains(t, ids, "c3")

	require.NotEmpty(t, got)
	assert.Equal(t, "c1", got[0].Chunk.ID, "chunk on both paths should rank first")
	assert.True(t, ids["c1"].InBothPaths)
	assert.False(t, ids["c2"].InBothPaths)
}

func TestRetrieveEmptyDocumentIsNoContent(t *testing.T) {
	engine := NewEngine(&fakeStore{}, testConfig(), nil)

	_, err := engine.Retrieve(context.Background(), "doc-1", "anything", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ragerr.ErrNoContent)
}

func TestRetrieveNoMatchesReturnsEmptyWithoutError(t *testing.T) {
	store := &fakeStore{chunks: []schema.Chunk{testChunk("c1", 1, "text")}}
	engine := NewEngine(store, testConfig(), nil)

	got, err := engine.Retrieve(context.Background(), "doc-1", "zzz unfindable", []float32{0.5})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieveWithoutVectorUsesLexicalOnly(t *testing.T) {
	c1 := testChunk("c1", 1, "lexical only match")
	store := &fakeStore{
		chunks:  []schema.Chunk{c1},
		lexical: []schema.Hit{{Chunk: c1, Score: 1.0}},
	}
	engine := NewEngine(store, testConfig(), nil)

	got, err := engine.Retrieve(context.Background(), "doc-1", "lexical match", nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0, store.vectorCalls)
	assert.Equal(t, 1, store.lexicalCalls)
	assert.Zero(t, got[0].VectorScore)
	assert.Positive(t, got[0].LexicalScore)
}

func TestRetrieveWarmsChunkCache(t *testing.T) {
	c1 := testChunk("c1", 1, "cached chunk text")
	store := &fakeStore{
		chunks:  []schema.Chunk{c1},
		lexical: []schema.Hit{{Chunk: c1, Score: 1.0}},
	}
	chunkCache := cache.New[schema.Chunk](16, time.Minute)
	engine := NewEngine(store, testConfig(), chunkCache)

	_, err := engine.Retrieve(context.Background(), "doc-1", "cached chunk", nil)
	require.NoError(t, err)

	got, ok := engine.CachedChunk("doc-1", 1)
	require.True(t, ok)
	assert.Equal(t, "c1", got.ID)
}

func TestRetrieveCapsAtTopK(t *testing.T) {
	cfg := testConfig()
	cfg.TopK = 2

	chunks := make([]schema.Chunk, 0, 8)
	hits := make([]schema.Hit, 0, 8)
	for i := 0; i < 8; i++ {
		c := testChunk(string(rune('a'+i)), i, "common keyword text")
		chunks = append(chunks, c)
		hits = append(hits, schema.Hit{Chunk: c, Score: float64(8 - i)})
	}
	store := &fakeStore{chunks: chunks, lexical: hits}
	engine := NewEngine(store, cfg, nil)

	got, err := engine.Retrieve(context.Background(), "doc-1", "common keyword", nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
