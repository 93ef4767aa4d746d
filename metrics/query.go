package metrics

import (
	"encoding/json"
	"time"

	"github.com/scholarmind/ragcore/common/logger"
)

// QueryMetrics is the complete record of one answered question.
type QueryMetrics struct {
	QueryID    string    `json:"query_id"`
	SessionID  string    `json:"session_id,omitempty"`
	DocumentID string    `json:"document_id"`
	Timestamp  time.Time `json:"timestamp"`

	EmbeddingCached bool    `json:"embedding_cached"`
	AnswerCached    bool    `json:"answer_cached"`
	FusedCandidates int     `json:"fused_candidates"`
	IncludedChunks  int     `json:"included_chunks"`
	RetrievalMs     int64   `json:"retrieval_ms"`
	GenerationMs    int64   `json:"generation_ms,omitempty"`
	HistoryTokens   int     `json:"history_tokens"`
	PromptTokens    int     `json:"prompt_tokens"`
	DegradedTier    string  `json:"degraded_tier,omitempty"`
	Confidence      float64 `json:"confidence"`
	CitationCount   int     `json:"citation_count"`
	TotalLatencyMs  int64   `json:"total_latency_ms"`
	Success         bool    `json:"success"`
	ErrorMsg        string  `json:"error_msg,omitempty"`
}

// Log emits the record as one JSON line.
func (m *QueryMetrics) Log() {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	logger.Infof("[QA_METRICS] %s", string(data))
}
