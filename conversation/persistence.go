package conversation

import (
	"context"
	"sort"
	"sync"
)

// Persistence is the durable backing store behind the in-memory session
// cache. PutTurn writes the turn and the updated session record together.
type Persistence interface {
	PutSession(ctx context.Context, session Session) error
	PutTurn(ctx context.Context, session Session, turn Turn) error
	GetSession(ctx context.Context, sessionID string) (Session, bool, error)
	GetTurns(ctx context.Context, sessionID string) ([]Turn, error)
	ListSessions(ctx context.Context, documentID string) ([]Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// MemoryPersistence keeps sessions in process memory. Suitable for tests
// and single-node deployments.
type MemoryPersistence struct {
	mu       sync.RWMutex
	sessions map[string]Session
	turns    map[string][]Turn
}

func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{
		sessions: make(map[string]Session),
		turns:    make(map[string][]Turn),
	}
}

func (m *MemoryPersistence) PutSession(ctx context.Context, session Session) error {
	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()
	return nil
}

func (m *MemoryPersistence) PutTurn(ctx context.Context, session Session, turn Turn) error {
	m.mu.Lock()
	m.sessions[session.ID] = session
	m.turns[session.ID] = append(m.turns[session.ID], turn)
	m.mu.Unlock()
	return nil
}

func (m *MemoryPersistence) GetSession(ctx context.Context, sessionID string) (Session, bool, error) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	return s, ok, nil
}

func (m *MemoryPersistence) GetTurns(ctx context.Context, sessionID string) ([]Turn, error) {
	m.mu.RLock()
	turns := m.turns[sessionID]
	out := make([]Turn, len(turns))
	copy(out, turns)
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (m *MemoryPersistence) ListSessions(ctx context.Context, documentID string) ([]Session, error) {
	m.mu.RLock()
	out := make([]Session, 0)
	for _, s := range m.sessions {
		if s.DocumentID == documentID {
			out = append(out, s)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.After(out[j].LastActivityAt) })
	return out, nil
}

func (m *MemoryPersistence) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	delete(m.turns, sessionID)
	m.mu.Unlock()
	return nil
}
