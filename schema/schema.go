package schema

import "time"

// Chunk is the atomic unit of retrieval: a contiguous slice of a document's
// text produced during ingestion. Chunks are immutable once indexed.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Ordinal    int       `json:"ordinal"`
	Text       string    `json:"text"`
	Title      string    `json:"title,omitempty"`
	Vector     []float32 `json:"vector,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

// RetrievalCandidate is a per-query scored chunk. Candidates are ephemeral:
// they live from candidate generation until response assembly.
type RetrievalCandidate struct {
	Chunk        Chunk
	VectorScore  float64
	LexicalScore float64
	FusedScore   float64
	RerankScore  float64
	// InBothPaths marks candidates surfaced by vector and lexical search.
	InBothPaths bool
}

// Hit is a scored reference into a document's chunk set, as returned by the
// vector store's search surfaces.
type Hit struct {
	Chunk Chunk
	Score float64
}

// Source is a citation into the originating document's chunk set. Citations
// never reference chunks outside the answered document.
type Source struct {
	ChunkID string  `json:"chunk_id"`
	Ordinal int     `json:"ordinal"`
	Excerpt string  `json:"excerpt"`
	Score   float64 `json:"score"`
}

// Answer is the structured result of post-processing generated text.
type Answer struct {
	Text        string   `json:"answer"`
	KeyFindings []string `json:"key_findings,omitempty"`
	Limitations string   `json:"limitations,omitempty"`
	Citations   []Source `json:"citations"`
	Confidence  float64  `json:"confidence"`
}

// Tier labels which step of the degradation chain produced a response.
type Tier string

const (
	// TierFull is a live, generated answer.
	TierFull Tier = "full"
	// TierCached is a previously generated answer served while the
	// generation path is unavailable.
	TierCached Tier = "cached"
	// TierRawSources returns retrieved chunks without synthesis.
	TierRawSources Tier = "raw_sources"
	// TierApology is the terminal fallback when retrieval is also down.
	TierApology Tier = "apology"
)

// Response is the unit returned to the application layer for one question.
type Response struct {
	Answer    Answer `json:"answer"`
	SessionID string `json:"session_id"`
	TurnID    string `json:"turn_id"`
	Degraded  bool   `json:"degraded"`
	Tier      Tier   `json:"tier"`
}
