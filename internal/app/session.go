package app

import (
	"sync"
	"time"

	"quizbot/internal/domain"
)

type sessionState int

const (
	stateActive sessionState = iota
	stateCompleted
	stateCanceled
)

// Session tracks one user's progress through one quiz attempt. Every state
// transition for the session (answer, expiry, tick, cancel) runs under mu,
// which serializes a user's chat callbacks against their own timer firings.
// Sessions for different users share nothing mutable and proceed in parallel.
//
// Invariant outside an in-flight transition: len(answers) == current, and
// current == len(quiz.Questions) only in a terminal state.
type Session struct {
	userID   int64
	quiz     domain.Quiz
	delivery Delivery

	mu             sync.Mutex
	state          sessionState
	current        int
	answers        []domain.Answer
	deadline       *DeadlineHandle
	deadlineAt     time.Time
	startedAt      time.Time
	lastActivityAt time.Time
}

func newSession(userID int64, quiz domain.Quiz, delivery Delivery, now time.Time) *Session {
	return &Session{
		userID:         userID,
		quiz:           quiz,
		delivery:       delivery,
		state:          stateActive,
		answers:        make([]domain.Answer, 0, len(quiz.Questions)),
		startedAt:      now,
		lastActivityAt: now,
	}
}

// UserID returns the owning user.
func (s *Session) UserID() int64 { return s.userID }

// Quiz returns the quiz being attempted. Quiz values are read-only.
func (s *Session) Quiz() domain.Quiz { return s.quiz }
