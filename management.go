package ragcore

import (
	"context"

	"github.com/scholarmind/ragcore/cache"
	"github.com/scholarmind/ragcore/conversation"
	"github.com/scholarmind/ragcore/feedback"
	"github.com/scholarmind/ragcore/resilience"
)

// CacheStats snapshots all three caches by name.
func (s *Service) CacheStats() map[string]cache.Stats {
	return map[string]cache.Stats{
		"embedding": s.embeddingCache.Stats(),
		"answer":    s.answerCache.Stats(),
		"chunk":     s.chunkCache.Stats(),
	}
}

// CircuitState reports each guarded dependency's breaker state.
func (s *Service) CircuitState() map[string]resilience.State {
	return map[string]resilience.State{
		"embedding":  s.embedBreaker.State(),
		"generation": s.genBreaker.State(),
	}
}

// Health is a point-in-time operational snapshot.
type Health struct {
	Circuits map[string]resilience.State `json:"circuits"`
	Caches   map[string]cache.Stats      `json:"caches"`
}

func (s *Service) Health() Health {
	return Health{Circuits: s.CircuitState(), Caches: s.CacheStats()}
}

// ResetCaches clears all caches, e.g. after a document is re-ingested.
func (s *Service) ResetCaches() {
	s.embeddingCache.Clear()
	s.answerCache.Clear()
	s.chunkCache.Clear()
}

// ListSessions returns the document's sessions, newest activity first.
func (s *Service) ListSessions(ctx context.Context, documentID string) ([]conversation.Session, error) {
	return s.sessions.ListSessions(ctx, documentID)
}

// GetHistory returns a session's turns in order.
func (s *Service) GetHistory(ctx context.Context, sessionID string) ([]conversation.Turn, error) {
	return s.sessions.History(ctx, sessionID)
}

// DeleteSession removes a session and its turns.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	return s.sessions.DeleteSession(ctx, sessionID)
}

// SubmitFeedback records a user rating against an answered turn.
func (s *Service) SubmitFeedback(turnID string, rating int, comment string) error {
	documentID, _ := s.sessions.TurnDocument(turnID)
	return s.feedback.Submit(documentID, turnID, rating, comment)
}

// FeedbackTrend summarizes recent ratings for a document.
func (s *Service) FeedbackTrend(documentID string) feedback.Trend {
	return s.feedback.GetTrend(documentID)
}

// Presets returns starter questions for an empty session.
func (s *Service) Presets() []string {
	out := make([]string, len(PresetQuestions))
	copy(out, PresetQuestions)
	return out
}
