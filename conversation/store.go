package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scholarmind/ragcore/common/tokens"
	"github.com/scholarmind/ragcore/config"
	"github.com/scholarmind/ragcore/ragerr"
)

// Store manages sessions in memory with write-through persistence. Turn
// appends on one session are serialized by a per-session lock; different
// sessions never block each other.
type Store struct {
	cfg     config.ConversationConfig
	persist Persistence
	builder windowBuilder

	mu         sync.RWMutex
	sessions   map[string]*sessionState
	byOwnerDoc map[ownerDocKey]string
}

type ownerDocKey struct {
	ownerID    string
	documentID string
}

type sessionState struct {
	mu      sync.Mutex
	session Session
	turns   []Turn
}

// NewStore builds a Store. persist may be nil for purely in-memory use.
func NewStore(cfg config.ConversationConfig, counter tokens.Counter, persist Persistence) *Store {
	return &Store{
		cfg:        cfg,
		persist:    persist,
		builder:    windowBuilder{cfg: cfg, counter: counter},
		sessions:   make(map[string]*sessionState),
		byOwnerDoc: make(map[ownerDocKey]string),
	}
}

// GetOrCreateSession returns the active session for the owner/document pair,
// creating and persisting a fresh one when none exists.
func (s *Store) GetOrCreateSession(ctx context.Context, ownerID, documentID string) (Session, error) {
	key := ownerDocKey{ownerID, documentID}

	s.mu.RLock()
	id, ok := s.byOwnerDoc[key]
	s.mu.RUnlock()
	if ok {
		if st := s.state(id); st != nil {
			st.mu.Lock()
			sess := st.session
			st.mu.Unlock()
			return sess, nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byOwnerDoc[key]; ok {
		if st := s.sessions[id]; st != nil {
			return st.session, nil
		}
	}

	now := time.Now().UTC()
	sess := Session{
		ID:             uuid.New().String(),
		DocumentID:     documentID,
		OwnerID:        ownerID,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	s.sessions[sess.ID] = &sessionState{session: sess}
	s.byOwnerDoc[key] = sess.ID

	if s.persist != nil {
		if err := s.persist.PutSession(ctx, sess); err != nil {
			return Session{}, ragerr.New(ragerr.ErrDependencyUnavailable, "persist session", err)
		}
	}
	return sess, nil
}

// GetSession returns a session by id, hydrating from persistence when it is
// not in memory.
func (s *Store) GetSession(ctx context.Context, sessionID string) (Session, error) {
	st, err := s.load(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	st.mu.Lock()
	sess := st.session
	st.mu.Unlock()
	return sess, nil
}

// AppendTurn records a completed exchange on the session. Turn indexes are
// assigned under the session lock so concurrent appends cannot collide.
func (s *Store) AppendTurn(ctx context.Context, sessionID, question, answer string, citedChunkIDs []string, confidence float64) (Turn, error) {
	st, err := s.load(ctx, sessionID)
	if err != nil {
		return Turn{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := time.Now().UTC()
	turn := Turn{
		ID:            uuid.New().String(),
		SessionID:     sessionID,
		Index:         st.session.TurnCount,
		Question:      question,
		Answer:        answer,
		CitedChunkIDs: citedChunkIDs,
		Confidence:    confidence,
		CreatedAt:     now,
	}
	st.turns = append(st.turns, turn)
	st.session.TurnCount++
	st.session.LastActivityAt = now

	if s.persist != nil {
		if err := s.persist.PutTurn(ctx, st.session, turn); err != nil {
			return turn, ragerr.New(ragerr.ErrDependencyUnavailable, "persist turn", err)
		}
	}
	return turn, nil
}

// ContextWindow compresses the session's history to fit tokenBudget.
func (s *Store) ContextWindow(ctx context.Context, sessionID string, tokenBudget int) (ContextWindow, error) {
	st, err := s.load(ctx, sessionID)
	if err != nil {
		return ContextWindow{}, err
	}

	st.mu.Lock()
	turns := make([]Turn, len(st.turns))
	copy(turns, st.turns)
	st.mu.Unlock()

	return s.builder.Build(turns, tokenBudget), nil
}

// History returns the session's turns in order.
func (s *Store) History(ctx context.Context, sessionID string) ([]Turn, error) {
	st, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	out := make([]Turn, len(st.turns))
	copy(out, st.turns)
	st.mu.Unlock()
	return out, nil
}

// ListSessions returns the document's sessions, newest activity first.
func (s *Store) ListSessions(ctx context.Context, documentID string) ([]Session, error) {
	if s.persist != nil {
		return s.persist.ListSessions(ctx, documentID)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, 0)
	for _, st := range s.sessions {
		st.mu.Lock()
		if st.session.DocumentID == documentID {
			out = append(out, st.session)
		}
		st.mu.Unlock()
	}
	sortSessionsByActivity(out)
	return out, nil
}

// DeleteSession removes the session from memory and persistence.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
		delete(s.byOwnerDoc, ownerDocKey{st.session.OwnerID, st.session.DocumentID})
	}
	s.mu.Unlock()

	if s.persist != nil {
		if !ok {
			if _, found, err := s.persist.GetSession(ctx, sessionID); err != nil {
				return ragerr.New(ragerr.ErrDependencyUnavailable, "load session", err)
			} else if !found {
				return ragerr.New(ragerr.ErrSessionNotFound, "delete session", nil)
			}
		}
		return s.persist.DeleteSession(ctx, sessionID)
	}
	if !ok {
		return ragerr.New(ragerr.ErrSessionNotFound, "delete session", nil)
	}
	return nil
}

func (s *Store) state(sessionID string) *sessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[sessionID]
}

// load returns the in-memory state for a session, pulling it from
// persistence on a miss.
func (s *Store) load(ctx context.Context, sessionID string) (*sessionState, error) {
	if st := s.state(sessionID); st != nil {
		return st, nil
	}
	if s.persist == nil {
		return nil, ragerr.New(ragerr.ErrSessionNotFound, "unknown session "+sessionID, nil)
	}

	sess, found, err := s.persist.GetSession(ctx, sessionID)
	if err != nil {
		return nil, ragerr.New(ragerr.ErrDependencyUnavailable, "load session", err)
	}
	if !found {
		return nil, ragerr.New(ragerr.ErrSessionNotFound, "unknown session "+sessionID, nil)
	}
	turns, err := s.persist.GetTurns(ctx, sessionID)
	if err != nil {
		return nil, ragerr.New(ragerr.ErrDependencyUnavailable, "load turns", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.sessions[sessionID]; ok {
		return st, nil
	}
	st := &sessionState{session: sess, turns: turns}
	s.sessions[sessionID] = st
	s.byOwnerDoc[ownerDocKey{sess.OwnerID, sess.DocumentID}] = sessionID
	return st, nil
}

func sortSessionsByActivity(sessions []Session) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivityAt.After(sessions[j].LastActivityAt)
	})
}
