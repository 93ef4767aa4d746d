package ragcore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarmind/ragcore/common/tokens"
	"github.com/scholarmind/ragcore/config"
	"github.com/scholarmind/ragcore/conversation"
	"github.com/scholarmind/ragcore/ragerr"
	"github.com/scholarmind/ragcore/schema"
	"github.com/scholarmind/ragcore/vectordb"
)

type fakeEmbedder struct {
	vector []float32
	fail   bool
	calls  int
}

func (f *fakeEmbedder) Model() string { return "fake-embedding" }

func (f *fakeEmbedder) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.fail {
		return nil, ragerr.New(ragerr.ErrServiceUnavailable, "embedding down", nil)
	}
	return f.vector, nil
}

type fakeGenerator struct {
	reply string
	fail  bool
	calls int
}

func (f *fakeGenerator) GenerateCompletion(ctx context.Context, prompt string, maxOutputTokens int) (string, error) {
	f.calls++
	if f.fail {
		return "", errors.New("generation down")
	}
	return f.reply, nil
}

const structuredReply = `Answer: The study used a randomized controlled trial [Source 1].
Key Findings:
- Participants were split into two groups
Limitations: Sample size was small.`

func seedStore() *vectordb.MemoryStore {
	store := vectordb.NewMemoryStore()
	_ = store.Upsert(context.Background(), "doc-1", []schema.Chunk{
		{ID: "c1", DocumentID: "doc-1", Ordinal: 1, Text: "The study used a randomized controlled trial method with two groups.", Vector: []float32{1, 0}},
		{ID: "c2", DocumentID: "doc-1", Ordinal: 2, Text: "Participants were recruited from three clinics.", Vector: []float32{0.8, 0.6}},
		{ID: "c3", DocumentID: "doc-1", Ordinal: 3, Text: "Results showed a significant effect of the method.", Vector: []float32{0.6, 0.8}},
	})
	return store
}

func newTestService(t *testing.T, cfg *config.Config, deps Deps) *Service {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	if deps.Store == nil {
		deps.Store = seedStore()
	}
	if deps.Counter == nil {
		deps.Counter = tokens.Heuristic{}
	}
	if deps.Persistence == nil {
		deps.Persistence = conversation.NewMemoryPersistence()
	}
	svc, err := New(cfg, deps)
	require.NoError(t, err)
	return svc
}

func ask(question string) Request {
	return Request{Question: question, DocumentID: "doc-1", OwnerID: "user-1", IncludeHistory: true}
}

func TestAnswerFullPipeline(t *testing.T) {
	gen := &fakeGenerator{reply: structuredReply}
	svc := newTestService(t, nil, Deps{
		Embedder:  &fakeEmbedder{vector: []float32{1, 0}},
		Generator: gen,
	})

	resp, err := svc.Answer(context.Background(), ask("What method was used in the study?"))
	require.NoError(t, err)

	assert.False(t, resp.Degraded)
	assert.Equal(t, schema.TierFull, resp.Tier)
	assert.Contains(t, resp.Answer.Text, "randomized controlled trial")
	require.NotEmpty(t, resp.Answer.Citations)
	assert.Equal(t, "doc-1", mustChunkDoc(t, resp.Answer.Citations))
	assert.NotEmpty(t, resp.SessionID)
	assert.NotEmpty(t, resp.TurnID)
	assert.Positive(t, resp.Answer.Confidence)

	turns, err := svc.GetHistory(context.Background(), resp.SessionID)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, resp.TurnID, turns[0].ID)
}

func mustChunkDoc(t *testing.T, citations []schema.Source) string {
	t.Helper()
	store := seedStore()
	chunks, err := store.GetChunks(context.Background(), "doc-1")
	require.NoError(t, err)
	byID := map[string]schema.Chunk{}
	for _, c := range chunks {
		byID[c.ID] = c
	}
	for _, cit := range citations {
		require.Contains(t, byID, cit.ChunkID, "citations must reference the answered document's chunks")
	}
	return "doc-1"
}

func TestAnswerCacheSkipsRecomputation(t *testing.T) {
	gen := &fakeGenerator{reply: structuredReply}
	svc := newTestService(t, nil, Deps{
		Embedder:  &fakeEmbedder{vector: []float32{1, 0}},
		Generator: gen,
	})
	ctx := context.Background()

	first, err := svc.Answer(ctx, ask("What method was used in the study?"))
	require.NoError(t, err)
	second, err := svc.Answer(ctx, ask("What method was used in the study?"))
	require.NoError(t, err)

	assert.Equal(t, 1, gen.calls, "the second identical question is served from the answer cache")
	assert.Equal(t, first.Answer.Text, second.Answer.Text)
	assert.Equal(t, schema.TierFull, second.Tier)
	assert.False(t, second.Degraded)
}

func TestAnswerValidation(t *testing.T) {
	svc := newTestService(t, nil, Deps{
		Embedder:  &fakeEmbedder{vector: []float32{1, 0}},
		Generator: &fakeGenerator{reply: structuredReply},
	})
	ctx := context.Background()

	_, err := svc.Answer(ctx, Request{Question: "", DocumentID: "doc-1"})
	assert.ErrorIs(t, err, ragerr.ErrValidation)

	_, err = svc.Answer(ctx, Request{Question: "valid question", DocumentID: ""})
	assert.ErrorIs(t, err, ragerr.ErrValidation)
}

func TestAnswerRejectsSessionBoundToAnotherDocument(t *testing.T) {
	svc := newTestService(t, nil, Deps{
		Embedder:  &fakeEmbedder{vector: []float32{1, 0}},
		Generator: &fakeGenerator{reply: structuredReply},
	})
	ctx := context.Background()

	first, err := svc.Answer(ctx, ask("What method was used in the study?"))
	require.NoError(t, err)

	_, err = svc.Answer(ctx, Request{
		Question:   "What method was used in the study?",
		DocumentID: "doc-2",
		SessionID:  first.SessionID,
	})
	assert.ErrorIs(t, err, ragerr.ErrValidation)
}

func TestAnswerEmptyDocumentIsNoContent(t *testing.T) {
	svc := newTestService(t, nil, Deps{
		Embedder:  &fakeEmbedder{vector: []float32{1, 0}},
		Generator: &fakeGenerator{reply: structuredReply},
		Store:     vectordb.NewMemoryStore(),
	})

	_, err := svc.Answer(context.Background(), Request{Question: "anything here", DocumentID: "doc-absent", OwnerID: "u"})
	assert.ErrorIs(t, err, ragerr.ErrNoContent)
}

func TestAnswerNoMatchesShortCircuitsGenerator(t *testing.T) {
	gen := &fakeGenerator{reply: structuredReply}
	store := vectordb.NewMemoryStore()
	_ = store.Upsert(context.Background(), "doc-1", []schema.Chunk{
		{ID: "c1", DocumentID: "doc-1", Ordinal: 1, Text: "entirely unrelated content"},
	})
	svc := newTestService(t, nil, Deps{
		Embedder:  &fakeEmbedder{fail: true},
		Generator: gen,
		Store:     store,
	})

	resp, err := svc.Answer(context.Background(), ask("zzz qqq xxyyzz"))
	require.NoError(t, err)

	assert.Zero(t, gen.calls, "no relevant content must not reach the generator")
	assert.Contains(t, resp.Answer.Text, "does not appear to contain")
	assert.Empty(t, resp.Answer.Citations)
}

func TestAnswerBudgetExceededSurfaces(t *testing.T) {
	cfg := config.Default()
	cfg.Prompt.MaxTokens = 60
	svc := newTestService(t, cfg, Deps{
		Embedder:  &fakeEmbedder{vector: []float32{1, 0}},
		Generator: &fakeGenerator{reply: structuredReply},
	})

	_, err := svc.Answer(context.Background(), ask("What method was used in the study?"))
	assert.ErrorIs(t, err, ragerr.ErrBudgetExceeded)
}

func TestAnswerEmbeddingFailureFallsBackToLexical(t *testing.T) {
	gen := &fakeGenerator{reply: structuredReply}
	svc := newTestService(t, nil, Deps{
		Embedder:  &fakeEmbedder{fail: true},
		Generator: gen,
	})

	resp, err := svc.Answer(context.Background(), ask("What method was used in the study?"))
	require.NoError(t, err)

	assert.Equal(t, schema.TierFull, resp.Tier, "a dead embedding path degrades retrieval, not the answer")
	assert.Equal(t, 1, gen.calls)
}

func TestAnswerDegradesToRawSources(t *testing.T) {
	gen := &fakeGenerator{fail: true}
	svc := newTestService(t, nil, Deps{
		Embedder:  &fakeEmbedder{vector: []float32{1, 0}},
		Generator: gen,
	})

	resp, err := svc.Answer(context.Background(), ask("What method was used in the study?"))
	require.NoError(t, err)

	assert.True(t, resp.Degraded)
	assert.Equal(t, schema.TierRawSources, resp.Tier)
	assert.NotEmpty(t, resp.Answer.Citations, "raw sources tier still shows the retrieved excerpts")
}

type failingStore struct{ vectordb.Store }

func (failingStore) GetChunks(ctx context.Context, documentID string) ([]schema.Chunk, error) {
	return nil, ragerr.New(ragerr.ErrDependencyUnavailable, "store down", nil)
}

func TestAnswerStoreFailureIsApology(t *testing.T) {
	gen := &fakeGenerator{reply: structuredReply}
	svc := newTestService(t, nil, Deps{
		Embedder:  &fakeEmbedder{vector: []float32{1, 0}},
		Generator: gen,
		Store:     failingStore{},
	})

	resp, err := svc.Answer(context.Background(), ask("What method was used in the study?"))
	require.NoError(t, err)

	assert.True(t, resp.Degraded)
	assert.Equal(t, schema.TierApology, resp.Tier)
	assert.Zero(t, gen.calls)
}

func TestGenerationBreakerOpensAndRejectsWithoutCalling(t *testing.T) {
	gen := &fakeGenerator{fail: true}
	svc := newTestService(t, nil, Deps{
		Embedder:  &fakeEmbedder{vector: []float32{1, 0}},
		Generator: gen,
	})
	ctx := context.Background()

	// Distinct questions avoid the answer cache; threshold is 5.
	for i := 0; i < 5; i++ {
		resp, err := svc.Answer(ctx, ask(fmt.Sprintf("question number %d about the method", i)))
		require.NoError(t, err)
		assert.True(t, resp.Degraded)
	}
	require.Equal(t, 5, gen.calls)

	resp, err := svc.Answer(ctx, ask("question number 5 about the method"))
	require.NoError(t, err)

	assert.Equal(t, 5, gen.calls, "an open circuit must not touch the generation service")
	assert.True(t, resp.Degraded)
	assert.Equal(t, schema.TierRawSources, resp.Tier)
}

func TestOpenBreakerServesCachedTier(t *testing.T) {
	gen := &fakeGenerator{reply: structuredReply}
	svc := newTestService(t, nil, Deps{
		Embedder:  &fakeEmbedder{vector: []float32{1, 0}},
		Generator: gen,
	})
	ctx := context.Background()

	_, err := svc.Answer(ctx, ask("What method was used in the study?"))
	require.NoError(t, err)

	gen.fail = true
	for i := 0; i < 5; i++ {
		_, err := svc.Answer(ctx, ask(fmt.Sprintf("unrelated question %d about participants", i)))
		require.NoError(t, err)
	}

	resp, err := svc.Answer(ctx, ask("What method was used in the study?"))
	require.NoError(t, err)

	assert.True(t, resp.Degraded)
	assert.Equal(t, schema.TierCached, resp.Tier,
		"a cached answer outranks raw sources and apology in the fallback chain")
	assert.Contains(t, resp.Answer.Text, "randomized controlled trial")
}

func TestManagementSurface(t *testing.T) {
	svc := newTestService(t, nil, Deps{
		Embedder:  &fakeEmbedder{vector: []float32{1, 0}},
		Generator: &fakeGenerator{reply: structuredReply},
	})
	ctx := context.Background()

	resp, err := svc.Answer(ctx, ask("What method was used in the study?"))
	require.NoError(t, err)

	sessions, err := svc.ListSessions(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, resp.SessionID, sessions[0].ID)

	require.NoError(t, svc.SubmitFeedback(resp.TurnID, 4, "helpful"))
	trend := svc.FeedbackTrend("doc-1")
	assert.Equal(t, 1, trend.Total)
	assert.Equal(t, 1, trend.Positive)

	stats := svc.CacheStats()
	assert.Contains(t, stats, "embedding")
	assert.Contains(t, stats, "answer")
	assert.Contains(t, stats, "chunk")

	circuits := svc.CircuitState()
	assert.Contains(t, circuits, "generation")

	require.NoError(t, svc.DeleteSession(ctx, resp.SessionID))
	_, err = svc.GetHistory(ctx, resp.SessionID)
	assert.ErrorIs(t, err, ragerr.ErrSessionNotFound)
}
