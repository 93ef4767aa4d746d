package retriever

import (
	"math"
	"sort"
	"strings"

	"github.com/scholarmind/ragcore/schema"
)

// rerank rescores candidates against the question terms and keeps the topK.
// The fused score carries baseWeight of the final score, keyword evidence in
// the chunk text carries the rest. Ties break toward the earlier ordinal so
// repeated runs over the same document stay deterministic.
func rerank(candidates []schema.RetrievalCandidate, terms []string, baseWeight float64, topK int) []schema.RetrievalCandidate {
	out := make([]schema.RetrievalCandidate, len(candidates))
	copy(out, candidates)

	for i := range out {
		kw := keywordScore(out[i].Chunk.Text, terms)
		out[i].RerankScore = baseWeight*out[i].FusedScore + (1-baseWeight)*kw
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RerankScore != out[j].RerankScore {
			return out[i].RerankScore > out[j].RerankScore
		}
		return out[i].Chunk.Ordinal < out[j].Chunk.Ordinal
	})

	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// keywordScore blends term coverage, earliest match position, and match
// frequency into [0,1]. Coverage dominates.
func keywordScore(text string, terms []string) float64 {
	if len(terms) == 0 || text == "" {
		return 0
	}
	lower := strings.ToLower(text)

	matched := 0
	total := 0
	earliest := -1
	for _, term := range terms {
		idx := strings.Index(lower, term)
		if idx < 0 {
			continue
		}
		matched++
		total += strings.Count(lower, term)
		if earliest < 0 || idx < earliest {
			earliest = idx
		}
	}
	if matched == 0 {
		return 0
	}

	coverage := float64(matched) / float64(len(terms))
	position := 1.0 - math.Min(float64(earliest)/float64(len(lower)), 1.0)
	frequency := math.Min(float64(total)/float64(2*len(terms)), 1.0)

	return 0.6*coverage + 0.2*position + 0.2*frequency
}
