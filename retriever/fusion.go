package retriever

import (
	"github.com/scholarmind/ragcore/schema"
)

// fuse merges the two result paths into one candidate list. Each path's
// scores are normalized to [0,1] independently so the weights compare like
// with like, then combined as vectorWeight*nv + lexicalWeight*nl. A chunk
// that appears on both paths collects both terms, which is the boost.
func fuse(vector, lexical []schema.Hit, vectorWeight, lexicalWeight float64) []schema.RetrievalCandidate {
	vNorm := normalize(vector)
	lNorm := normalize(lexical)

	merged := make(map[string]*schema.RetrievalCandidate, len(vector)+len(lexical))
	order := make([]string, 0, len(vector)+len(lexical))

	for i, hit := range vector {
		c := &schema.RetrievalCandidate{Chunk: hit.Chunk, VectorScore: vNorm[i]}
		merged[hit.Chunk.ID] = c
		order = append(order, hit.Chunk.ID)
	}
	for i, hit := range lexical {
		if c, ok := merged[hit.Chunk.ID]; ok {
			c.LexicalScore = lNorm[i]
			c.InBothPaths = true
			continue
		}
		merged[hit.Chunk.ID] = &schema.RetrievalCandidate{Chunk: hit.Chunk, LexicalScore: lNorm[i]}
		order = append(order, hit.Chunk.ID)
	}

	out := make([]schema.RetrievalCandidate, 0, len(order))
	for _, id := range order {
		c := merged[id]
		c.FusedScore = vectorWeight*c.VectorScore + lexicalWeight*c.LexicalScore
		out = append(out, *c)
	}
	return out
}

// normalize maps hit scores onto [0,1] per path. A path whose scores are all
// equal gets 1.0 everywhere so a single-hit path is not zeroed out.
func normalize(hits []schema.Hit) []float64 {
	out := make([]float64, len(hits))
	if len(hits) == 0 {
		return out
	}
	lo, hi := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < lo {
			lo = h.Score
		}
		if h.Score > hi {
			hi = h.Score
		}
	}
	if hi == lo {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	for i, h := range hits {
		out[i] = (h.Score - lo) / (hi - lo)
	}
	return out
}
