package vectordb

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/scholarmind/ragcore/schema"
)

// MemoryStore is a brute-force in-memory Store for development and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]schema.Chunk
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]schema.Chunk)}
}

// Upsert replaces a document's chunks, keeping them ordered by ordinal.
func (s *MemoryStore) Upsert(ctx context.Context, documentID string, chunks []schema.Chunk) error {
	cp := make([]schema.Chunk, len(chunks))
	copy(cp, chunks)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Ordinal < cp[j].Ordinal })

	s.mu.Lock()
	s.docs[documentID] = cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetChunks(ctx context.Context, documentID string) ([]schema.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := s.docs[documentID]
	out := make([]schema.Chunk, len(chunks))
	copy(out, chunks)
	return out, nil
}

func (s *MemoryStore) SimilaritySearch(ctx context.Context, documentID string, queryVector []float32, k int) ([]schema.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]schema.Hit, 0, len(s.docs[documentID]))
	for _, c := range s.docs[documentID] {
		if len(c.Vector) == 0 {
			continue
		}
		hits = append(hits, schema.Hit{Chunk: c, Score: cosine(queryVector, c.Vector)})
	}
	sortHits(hits)
	return truncate(hits, k), nil
}

func (s *MemoryStore) LexicalSearch(ctx context.Context, documentID string, terms []string, k int) ([]schema.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]schema.Hit, 0)
	for _, c := range s.docs[documentID] {
		score := LexicalScore(c.Text, terms)
		if score > 0 {
			hits = append(hits, schema.Hit{Chunk: c, Score: score})
		}
	}
	sortHits(hits)
	return truncate(hits, k), nil
}

// LexicalScore counts term presence and frequency in text, normalized by
// the number of query terms. Shared with the Milvus adapter, which scores
// client-side after an expression query.
func LexicalScore(text string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	score := 0.0
	for _, term := range terms {
		n := strings.Count(lower, strings.ToLower(term))
		if n == 0 {
			continue
		}
		// Presence dominates, frequency adds a bounded bonus.
		score += 1.0 + math.Min(0.25*float64(n-1), 0.5)
	}
	return score / float64(len(terms))
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func sortHits(hits []schema.Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.Ordinal < hits[j].Chunk.Ordinal
	})
}

func truncate(hits []schema.Hit, k int) []schema.Hit {
	if k > 0 && len(hits) > k {
		return hits[:k]
	}
	return hits
}
