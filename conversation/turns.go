package conversation

// TurnDocument resolves the document a turn was answered against by
// scanning the in-memory sessions. Used by management operations keyed on
// turn id alone.
func (s *Store) TurnDocument(turnID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, st := range s.sessions {
		st.mu.Lock()
		for _, turn := range st.turns {
			if turn.ID == turnID {
				doc := st.session.DocumentID
				st.mu.Unlock()
				return doc, true
			}
		}
		st.mu.Unlock()
	}
	return "", false
}
