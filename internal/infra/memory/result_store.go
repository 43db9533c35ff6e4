package memory

import (
	"context"
	"sync"

	"quizbot/internal/domain"
)

// ResultStore keeps finished attempts in memory, newest last.
type ResultStore struct {
	mu      sync.RWMutex
	results map[int64][]domain.Result
}

func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[int64][]domain.Result)}
}

func (s *ResultStore) Record(_ context.Context, result domain.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.UserID] = append(s.results[result.UserID], result)
	return nil
}

func (s *ResultStore) ListByUser(_ context.Context, userID int64) ([]domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Result(nil), s.results[userID]...), nil
}
