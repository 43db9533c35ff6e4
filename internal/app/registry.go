package app

import (
	"sync"
	"time"

	"quizbot/internal/domain"
)

// Registry maps a user to at most one live session and owns session lifecycle.
// Its map operations are safe under concurrent access from different users;
// per-session transitions are serialized by the session's own mutex.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]*Session)}
}

// Begin registers a fresh Active session at question 0. It fails with
// ErrAlreadyActive if the user already has a live session, so concurrent
// starts for the same user resolve to exactly one winner.
func (r *Registry) Begin(userID int64, quiz domain.Quiz, delivery Delivery, now time.Time) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[userID]; ok {
		return nil, domain.ErrAlreadyActive
	}
	session := newSession(userID, quiz, delivery, now)
	r.sessions[userID] = session
	return session, nil
}

// Get returns the user's live session, if any.
func (r *Registry) Get(userID int64) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[userID]
	return session, ok
}

// End removes the user's session unconditionally. It is idempotent.
func (r *Registry) End(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
