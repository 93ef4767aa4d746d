// Package conversation manages multi-turn sessions and the bounded context
// window derived from them.
package conversation

import "time"

// Session groups the turns one user has against one document.
type Session struct {
	ID             string    `json:"session_id"`
	DocumentID     string    `json:"document_id"`
	OwnerID        string    `json:"owner_id"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	TurnCount      int       `json:"turn_count"`
}

// Turn is one immutable question/answer exchange. Index is monotonic
// within its session.
type Turn struct {
	ID            string    `json:"turn_id"`
	SessionID     string    `json:"session_id"`
	Index         int       `json:"index"`
	Question      string    `json:"question"`
	Answer        string    `json:"answer"`
	CitedChunkIDs []string  `json:"cited_chunk_ids,omitempty"`
	Confidence    float64   `json:"confidence"`
	CreatedAt     time.Time `json:"created_at"`
}

// ContextWindow is a bounded view over a session's history: the newest
// turns verbatim, plus a compressed trace of everything older. Rebuilt on
// demand, never persisted.
type ContextWindow struct {
	RecentTurns     []Turn             `json:"recent_turns"`
	KeyEntities     map[string]float64 `json:"key_entities,omitempty"`
	TopicSummary    string             `json:"topic_summary,omitempty"`
	EstimatedTokens int                `json:"estimated_tokens"`
}
