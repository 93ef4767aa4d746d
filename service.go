// Package ragcore is the retrieval-augmented question answering core: it
// turns a question plus a target document into a grounded, cited answer,
// managing conversational context, caching, and graceful degradation.
package ragcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scholarmind/ragcore/answer"
	"github.com/scholarmind/ragcore/cache"
	"github.com/scholarmind/ragcore/common/logger"
	"github.com/scholarmind/ragcore/common/tokens"
	"github.com/scholarmind/ragcore/config"
	"github.com/scholarmind/ragcore/conversation"
	"github.com/scholarmind/ragcore/embedding"
	"github.com/scholarmind/ragcore/feedback"
	"github.com/scholarmind/ragcore/llm"
	"github.com/scholarmind/ragcore/metrics"
	"github.com/scholarmind/ragcore/prompt"
	"github.com/scholarmind/ragcore/ragerr"
	"github.com/scholarmind/ragcore/resilience"
	"github.com/scholarmind/ragcore/retriever"
	"github.com/scholarmind/ragcore/schema"
	"github.com/scholarmind/ragcore/vectordb"
)

const (
	noContentAnswer = "The document does not appear to contain anything relevant to this question. Try rephrasing it or asking about another part of the document."
	apologyAnswer   = "The answering service is temporarily unavailable. Please retry in a moment; your question was not lost."
	rawSourcesNote  = "The answering service is temporarily unavailable. These are the most relevant unsummarized excerpts from the document:"
)

// PresetQuestions are starter questions surfaced to users who have not
// asked anything yet.
var PresetQuestions = []string{
	"What is this document about?",
	"Summarize the key points.",
	"What conclusions does the document reach?",
	"Are there any important caveats or limitations mentioned?",
}

// Request is one inbound question.
type Request struct {
	Question       string `json:"question"`
	DocumentID     string `json:"document_id"`
	SessionID      string `json:"session_id,omitempty"`
	OwnerID        string `json:"owner_id,omitempty"`
	MaxSources     int    `json:"max_sources,omitempty"`
	IncludeHistory bool   `json:"include_history"`
}

// Deps are the collaborators a Service is built from. Store is required;
// nil Embedder or Generator degrades the matching pipeline stage.
type Deps struct {
	Embedder    embedding.Provider
	Generator   llm.Provider
	Store       vectordb.Store
	Persistence conversation.Persistence
	Counter     tokens.Counter
}

// Service orchestrates the answer pipeline and the management surface.
type Service struct {
	cfg *config.Config

	embedder  embedding.Provider
	generator llm.Provider
	engine    *retriever.Engine
	sessions  *conversation.Store
	builder   *prompt.Builder
	processor *answer.Processor
	feedback  *feedback.Manager

	embedBreaker *resilience.Breaker
	genBreaker   *resilience.Breaker

	embeddingCache *cache.Cache[[]float32]
	answerCache    *cache.Cache[schema.Answer]
	chunkCache     *cache.Cache[schema.Chunk]
}

// New wires a Service from validated configuration and its collaborators.
func New(cfg *config.Config, deps Deps) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("ragcore: vector store is required")
	}
	counter := deps.Counter
	if counter == nil {
		counter = tokens.NewTiktoken("")
	}

	embeddingCache := cache.New[[]float32](cfg.Cache.Embedding.MaxEntries, cfg.Cache.Embedding.TTL)
	answerCache := cache.New[schema.Answer](cfg.Cache.Answer.MaxEntries, cfg.Cache.Answer.TTL)
	chunkCache := cache.New[schema.Chunk](cfg.Cache.Chunk.MaxEntries, cfg.Cache.Chunk.TTL)

	var embedder embedding.Provider
	if deps.Embedder != nil {
		embedder = embedding.NewCachedProvider(deps.Embedder, embeddingCache)
	}

	return &Service{
		cfg:            cfg,
		embedder:       embedder,
		generator:      deps.Generator,
		engine:         retriever.NewEngine(deps.Store, cfg.Retrieval, chunkCache),
		sessions:       conversation.NewStore(cfg.Conversation, counter, deps.Persistence),
		builder:        prompt.NewBuilder(cfg.Prompt, counter),
		processor:      answer.NewProcessor(cfg.Answer),
		feedback:       feedback.NewManager(0),
		embedBreaker:   resilience.NewBreaker("embedding", cfg.Resilience),
		genBreaker:     resilience.NewBreaker("generation", cfg.Resilience),
		embeddingCache: embeddingCache,
		answerCache:    answerCache,
		chunkCache:     chunkCache,
	}, nil
}

// Answer runs the full pipeline for one question. Dependency failures are
// absorbed into degraded responses; only validation, content, and budget
// errors surface to the caller.
func (s *Service) Answer(ctx context.Context, req Request) (schema.Response, error) {
	started := time.Now()

	question, err := s.normalizeQuestion(req.Question)
	if err != nil {
		return schema.Response{}, err
	}
	if req.DocumentID == "" {
		return schema.Response{}, ragerr.New(ragerr.ErrValidation, "document id required", nil)
	}

	record := &metrics.QueryMetrics{
		QueryID:    uuid.NewString(),
		DocumentID: req.DocumentID,
		Timestamp:  started,
	}
	defer func() {
		record.TotalLatencyMs = time.Since(started).Milliseconds()
		record.Log()
	}()

	sess, err := s.resolveSession(ctx, req)
	if err != nil {
		record.ErrorMsg = err.Error()
		return schema.Response{}, err
	}
	record.SessionID = sess.ID

	// Question embedding and history loading feed the same assembly step
	// and do not depend on each other, so they run concurrently.
	var (
		wg        sync.WaitGroup
		vector    []float32
		window    conversation.ContextWindow
		windowErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		vector = s.embedQuestion(ctx, question, record)
	}()
	if req.IncludeHistory {
		wg.Add(1)
		go func() {
			defer wg.Done()
			window, windowErr = s.sessions.ContextWindow(ctx, sess.ID, s.cfg.Conversation.MaxContextTokens)
		}()
	}
	wg.Wait()
	if windowErr != nil {
		logger.Warnf("context window unavailable, continuing without history: %v", windowErr)
		window = conversation.ContextWindow{}
	}
	record.HistoryTokens = window.EstimatedTokens

	retrievalStart := time.Now()
	candidates, err := s.engine.Retrieve(ctx, req.DocumentID, question, vector)
	record.RetrievalMs = time.Since(retrievalStart).Milliseconds()
	if err != nil {
		if errors.Is(err, ragerr.ErrNoContent) {
			record.ErrorMsg = err.Error()
			return schema.Response{}, err
		}
		// The store itself is down; nothing to show but an apology.
		logger.Errorf("retrieval failed: %v", err)
		return s.finishDegraded(ctx, sess, question, schema.Answer{Text: apologyAnswer}, schema.TierApology, record), nil
	}
	metrics.ObserveRetrieval("fused", retrievalStart, len(candidates))
	record.FusedCandidates = len(candidates)

	if len(candidates) == 0 {
		// Nothing relevant. Do not call the generator.
		resp := s.finish(ctx, sess, question, schema.Answer{Text: noContentAnswer}, schema.TierFull, false, record)
		return resp, nil
	}
	if req.MaxSources > 0 && len(candidates) > req.MaxSources {
		candidates = candidates[:req.MaxSources]
	}

	fingerprint := contextFingerprint(candidates, window)
	answerKey := cache.AnswerKey(question, req.DocumentID, fingerprint)
	if cached, ok := s.answerCache.Get(answerKey); ok {
		metrics.IncCacheLookup("answer", true)
		record.AnswerCached = true
		if s.genBreaker.State() != resilience.StateClosed {
			// Served in lieu of a live generation, so label it as such.
			return s.finishDegraded(ctx, sess, question, cached, schema.TierCached, record), nil
		}
		return s.finish(ctx, sess, question, cached, schema.TierFull, false, record), nil
	}
	metrics.IncCacheLookup("answer", false)

	built, err := s.builder.Build(question, candidates, window, s.cfg.Prompt.MaxTokens)
	if err != nil {
		record.ErrorMsg = err.Error()
		return schema.Response{}, err
	}
	record.PromptTokens = built.EstimatedTokens
	record.IncludedChunks = len(built.Included)

	generationStart := time.Now()
	raw, err := s.generate(ctx, built.Text)
	record.GenerationMs = time.Since(generationStart).Milliseconds()
	if err != nil {
		logger.Warnf("generation unavailable, entering degradation chain: %v", err)
		return s.degrade(ctx, sess, question, answerKey, candidates, record), nil
	}

	processed := s.processor.Process(raw, built.Included, question)
	s.answerCache.Set(answerKey, processed, 0)
	metrics.ObserveConfidence(processed.Confidence)
	record.Confidence = processed.Confidence
	record.CitationCount = len(processed.Citations)

	return s.finish(ctx, sess, question, processed, schema.TierFull, false, record), nil
}

// degrade walks the fallback chain: a cached answer for the fingerprint,
// then raw retrieved sources, then a static apology.
func (s *Service) degrade(ctx context.Context, sess conversation.Session, question, answerKey string, candidates []schema.RetrievalCandidate, record *metrics.QueryMetrics) schema.Response {
	if cached, ok := s.answerCache.Get(answerKey); ok {
		record.AnswerCached = true
		return s.finishDegraded(ctx, sess, question, cached, schema.TierCached, record)
	}

	if len(candidates) > 0 {
		raw := schema.Answer{
			Text:      rawSourcesNote,
			Citations: make([]schema.Source, 0, len(candidates)),
		}
		for _, cand := range candidates {
			raw.Citations = append(raw.Citations, schema.Source{
				ChunkID: cand.Chunk.ID,
				Ordinal: cand.Chunk.Ordinal,
				Excerpt: cand.Chunk.Text,
				Score:   cand.RerankScore,
			})
		}
		return s.finishDegraded(ctx, sess, question, raw, schema.TierRawSources, record)
	}

	return s.finishDegraded(ctx, sess, question, schema.Answer{Text: apologyAnswer}, schema.TierApology, record)
}

func (s *Service) finishDegraded(ctx context.Context, sess conversation.Session, question string, ans schema.Answer, tier schema.Tier, record *metrics.QueryMetrics) schema.Response {
	record.DegradedTier = string(tier)
	return s.finish(ctx, sess, question, ans, tier, true, record)
}

// finish appends the turn and assembles the response envelope.
func (s *Service) finish(ctx context.Context, sess conversation.Session, question string, ans schema.Answer, tier schema.Tier, degraded bool, record *metrics.QueryMetrics) schema.Response {
	metrics.IncTier(string(tier))
	record.Success = true

	cited := make([]string, 0, len(ans.Citations))
	for _, c := range ans.Citations {
		cited = append(cited, c.ChunkID)
	}
	turn, err := s.sessions.AppendTurn(ctx, sess.ID, question, ans.Text, cited, ans.Confidence)
	if err != nil {
		// The answer is still worth returning; the turn just was not recorded.
		logger.Errorf("append turn failed: %v", err)
	}

	return schema.Response{
		Answer:    ans,
		SessionID: sess.ID,
		TurnID:    turn.ID,
		Degraded:  degraded,
		Tier:      tier,
	}
}

// embedQuestion returns nil when the embedding path is down, which drops
// retrieval to its lexical path instead of failing the question.
func (s *Service) embedQuestion(ctx context.Context, question string, record *metrics.QueryMetrics) []float32 {
	if s.embedder == nil {
		return nil
	}
	before := s.embeddingCache.Stats().Hits

	var vector []float32
	err := s.embedBreaker.Do(ctx, func(ctx context.Context) error {
		var embedErr error
		vector, embedErr = s.embedder.GetEmbedding(ctx, question)
		return embedErr
	})
	if err != nil {
		logger.Warnf("embedding unavailable, falling back to lexical retrieval: %v", err)
		return nil
	}
	record.EmbeddingCached = s.embeddingCache.Stats().Hits > before
	metrics.IncCacheLookup("embedding", record.EmbeddingCached)
	return vector
}

func (s *Service) generate(ctx context.Context, promptText string) (string, error) {
	if s.generator == nil {
		return "", ragerr.New(ragerr.ErrDependencyUnavailable, "no generation provider configured", nil)
	}
	start := time.Now()
	var out string
	err := s.genBreaker.Do(ctx, func(ctx context.Context) error {
		var genErr error
		out, genErr = s.generator.GenerateCompletion(ctx, promptText, s.cfg.Prompt.MaxOutputTokens)
		return genErr
	})
	logger.Debugf("generation took %s", time.Since(start))
	return out, err
}

func (s *Service) resolveSession(ctx context.Context, req Request) (conversation.Session, error) {
	if req.SessionID != "" {
		sess, err := s.sessions.GetSession(ctx, req.SessionID)
		if err != nil {
			return conversation.Session{}, err
		}
		// A session is bound to one document; accepting a mismatched pair
		// would record turns citing another document's chunks.
		if sess.DocumentID != req.DocumentID {
			return conversation.Session{}, ragerr.New(ragerr.ErrValidation,
				"session "+sess.ID+" belongs to document "+sess.DocumentID, nil)
		}
		return sess, nil
	}
	return s.sessions.GetOrCreateSession(ctx, req.OwnerID, req.DocumentID)
}

// normalizeQuestion trims and collapses whitespace, enforces the minimum
// length, and truncates over-long input on a rune boundary.
func (s *Service) normalizeQuestion(q string) (string, error) {
	q = strings.Join(strings.Fields(q), " ")
	if len([]rune(q)) < s.cfg.Question.MinLength {
		return "", ragerr.New(ragerr.ErrValidation, "question too short", nil)
	}
	if max := s.cfg.Question.MaxLength; max > 0 {
		if runes := []rune(q); len(runes) > max {
			q = strings.TrimSpace(string(runes[:max]))
		}
	}
	return q, nil
}

// contextFingerprint hashes the retrieved chunk ids plus the history
// summary so identical questions against different contexts never share an
// answer-cache entry.
func contextFingerprint(candidates []schema.RetrievalCandidate, window conversation.ContextWindow) string {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.Chunk.ID)
	}
	return cache.ContextFingerprint(ids, window.TopicSummary)
}
