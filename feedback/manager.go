// Package feedback collects per-turn user ratings and exposes trend
// statistics over a sliding window.
package feedback

import (
	"strings"
	"sync"
	"time"

	"github.com/scholarmind/ragcore/ragerr"
)

const (
	defaultWindow    = 20
	defaultMaxPerKey = 100

	// Rating bounds, inclusive.
	minRating = 1
	maxRating = 5
)

// Record is one rating submitted against an answered turn.
type Record struct {
	TurnID    string    `json:"turn_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Trend summarizes recent ratings for one document.
type Trend struct {
	Total               int       `json:"total"`
	Positive            int       `json:"positive"` // rating >= 4
	Negative            int       `json:"negative"` // rating <= 2
	AverageRating       float64   `json:"average_rating"`
	ConsecutiveNegative int       `json:"consecutive_negative"`
	LastUpdated         time.Time `json:"last_updated"`
}

// Manager tracks ratings per document key. One rating per turn; a repeat
// submission for the same turn replaces the earlier one.
type Manager struct {
	mu        sync.RWMutex
	history   map[string][]Record
	byTurn    map[string]string // turnID -> document key
	window    int
	maxPerKey int
}

func NewManager(window int) *Manager {
	if window <= 0 {
		window = defaultWindow
	}
	return &Manager{
		history:   make(map[string][]Record),
		byTurn:    make(map[string]string),
		window:    window,
		maxPerKey: defaultMaxPerKey,
	}
}

// Submit stores a rating for a turn under the document key.
func (m *Manager) Submit(documentID, turnID string, rating int, comment string) error {
	if turnID == "" {
		return ragerr.New(ragerr.ErrValidation, "turn id required", nil)
	}
	if rating < minRating || rating > maxRating {
		return ragerr.New(ragerr.ErrValidation, "rating out of range", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec := Record{
		TurnID:    turnID,
		Rating:    rating,
		Comment:   strings.TrimSpace(comment),
		Timestamp: time.Now().UTC(),
	}

	history := m.history[documentID]
	replaced := false
	for i := range history {
		if history[i].TurnID == turnID {
			history[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		history = append(history, rec)
	}
	if len(history) > m.maxPerKey {
		history = history[len(history)-m.maxPerKey:]
	}
	m.history[documentID] = history
	m.byTurn[turnID] = documentID
	return nil
}

// ForTurn returns the rating recorded for a turn, if any.
func (m *Manager) ForTurn(turnID string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, ok := m.byTurn[turnID]
	if !ok {
		return Record{}, false
	}
	for _, rec := range m.history[key] {
		if rec.TurnID == turnID {
			return rec, true
		}
	}
	return Record{}, false
}

// GetTrend computes rating statistics over the window's newest records.
func (m *Manager) GetTrend(documentID string) Trend {
	m.mu.RLock()
	history := append([]Record(nil), m.history[documentID]...)
	m.mu.RUnlock()

	if len(history) == 0 {
		return Trend{}
	}
	if len(history) > m.window {
		history = history[len(history)-m.window:]
	}

	trend := Trend{
		Total:       len(history),
		LastUpdated: history[len(history)-1].Timestamp,
	}
	sum := 0
	for _, rec := range history {
		sum += rec.Rating
		switch {
		case rec.Rating >= 4:
			trend.Positive++
		case rec.Rating <= 2:
			trend.Negative++
		}
	}
	trend.AverageRating = float64(sum) / float64(len(history))

	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Rating > 2 {
			break
		}
		trend.ConsecutiveNegative++
	}
	return trend
}
