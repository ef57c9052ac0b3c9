package realtime

import (
	"sync"

	"github.com/Alserial/VoiceRAG/internal/quote"
)

// SessionStore tracks the slot-filling state of live sessions so the HTTP
// API can confirm or cancel drafts while the websocket is still open.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*quote.SessionState
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*quote.SessionState)}
}

func (s *SessionStore) Create(sessionID string) *quote.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := quote.NewSessionState()
	s.sessions[sessionID] = state
	return state
}

func (s *SessionStore) Get(sessionID string) (*quote.SessionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[sessionID]
	return state, ok
}

func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
