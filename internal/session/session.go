// Package session keeps a bounded per-session history of prior
// (question, sql) pairs for prompt context.
package session

import "sync"

// Pair is one completed exchange.
type Pair struct {
	Question string
	SQL      string
}

// Store holds per-session ring buffers capped at a fixed number of pairs;
// the oldest pair is evicted first. All operations are safe for concurrent
// use.
type Store struct {
	mu       sync.Mutex
	capacity int
	sessions map[string][]Pair
}

func NewStore(capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		capacity: capacity,
		sessions: make(map[string][]Pair),
	}
}

// Append records a completed exchange. Callers append only after the full
// synthesis, validation, and execution cycle succeeded.
func (s *Store) Append(sessionID, question, sqlText string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.sessions[sessionID], Pair{Question: question, SQL: sqlText})
	if len(history) > s.capacity {
		history = history[len(history)-s.capacity:]
	}
	s.sessions[sessionID] = history
}

// History returns a copy of the session's pairs, oldest first.
func (s *Store) History(sessionID string) []Pair {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.sessions[sessionID]
	if len(history) == 0 {
		return nil
	}
	out := make([]Pair, len(history))
	copy(out, history)
	return out
}

// Clear drops the session's history.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
