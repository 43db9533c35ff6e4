package app

import (
	"context"
	"log"
	"time"

	"quizbot/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	ListQuizzes(ctx context.Context) ([]domain.Quiz, error)
}

// ResultStore persists finished attempts. Record is fire-and-forget from the
// controller's perspective: failures are logged, never retried, and never
// un-finalize a session.
type ResultStore interface {
	Record(ctx context.Context, result domain.Result) error
	ListByUser(ctx context.Context, userID int64) ([]domain.Result, error)
}

// Delivery renders session transitions for one user. The chat transports
// implement it once each (Telegram message edits, websocket events); tests use
// a recorder. The engine never cares how the rendering happens or whether it
// succeeds.
type Delivery interface {
	ShowQuestion(question domain.Question, index, total int, deadline time.Time)
	Tick(index, remainingSec int)
	ShowResolution(index, selected int, correct bool, correctOption int)
	ShowCompletion(result domain.Result)
}

// Controller orchestrates quiz attempts: it starts sessions, applies answers,
// resolves the race between an answer and the question deadline, and
// finalizes attempts. It is the only component the chat transports call into.
type Controller struct {
	registry  *Registry
	quizzes   QuizRepository
	results   ResultStore
	scheduler *DeadlineScheduler
	timers    TimerFactory
	now       func() time.Time

	// advanceDelay is the pause between resolving a question and showing the
	// next one, so the user sees their selection before the screen moves on.
	advanceDelay time.Duration
}

func NewController(quizzes QuizRepository, results ResultStore, timers TimerFactory, advanceDelay time.Duration) *Controller {
	return NewControllerWithClock(quizzes, results, timers, advanceDelay, time.Now)
}

// NewControllerWithClock allows deterministic timestamps in tests.
func NewControllerWithClock(quizzes QuizRepository, results ResultStore, timers TimerFactory, advanceDelay time.Duration, now func() time.Time) *Controller {
	return &Controller{
		registry:     NewRegistry(),
		quizzes:      quizzes,
		results:      results,
		scheduler:    NewDeadlineScheduler(timers),
		timers:       timers,
		now:          now,
		advanceDelay: advanceDelay,
	}
}

// Registry exposes the session registry for transports that need liveness
// checks (e.g. to tell "no active quiz" apart from a stale button press).
func (c *Controller) Registry() *Registry { return c.registry }

// StartSession begins an attempt at quizID for the user and shows question 0.
// It fails with domain.ErrQuizNotFound or domain.ErrAlreadyActive.
func (c *Controller) StartSession(ctx context.Context, userID int64, quizID string, delivery Delivery) (domain.Quiz, error) {
	quiz, err := c.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	session, err := c.registry.Begin(userID, quiz, delivery, c.now())
	if err != nil {
		return domain.Quiz{}, err
	}

	session.mu.Lock()
	c.showQuestionLocked(session, 0)
	session.mu.Unlock()
	return quiz, nil
}

// SubmitAnswer applies the user's selection for questionIndex. Whichever of
// SubmitAnswer and the deadline expiry is processed first for a given index
// wins; the loser observes a moved-on index and reports ErrStaleAnswer (or
// silently no-ops, for the expiry).
func (c *Controller) SubmitAnswer(ctx context.Context, userID int64, questionIndex, option int) error {
	session, ok := c.registry.Get(userID)
	if !ok {
		return domain.ErrNoActiveSession
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.state != stateActive {
		return domain.ErrNoActiveSession
	}
	if questionIndex != session.current {
		return domain.ErrStaleAnswer
	}
	question := session.quiz.Questions[questionIndex]
	if option < 0 || option >= len(question.Options) {
		return domain.ErrInvalidOption
	}
	c.resolveLocked(ctx, session, questionIndex, option)
	return nil
}

// CancelSession abandons the user's attempt without recording a result.
func (c *Controller) CancelSession(userID int64) error {
	session, ok := c.registry.Get(userID)
	if !ok {
		return domain.ErrNoActiveSession
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.state != stateActive {
		return domain.ErrNoActiveSession
	}
	session.deadline.Cancel()
	session.deadline = nil
	session.state = stateCanceled
	c.registry.End(session.userID)
	return nil
}

// showQuestionLocked arms the deadline and tick chain for the question and
// emits it to the delivery target. Caller holds session.mu.
func (c *Controller) showQuestionLocked(session *Session, index int) {
	question := session.quiz.Questions[index]
	limit := question.Limit(session.quiz.TimeLimitSec)
	now := c.now()
	session.deadlineAt = now.Add(limit)
	session.lastActivityAt = now
	// Timer actions carry only the session and the index they were armed for;
	// both re-check currency under the session lock at fire time.
	session.deadline = c.scheduler.Arm(limit,
		func() { c.expireQuestion(session, index) },
		func() (time.Duration, bool) { return c.tickQuestion(session, index) },
	)
	session.delivery.ShowQuestion(question, index, len(session.quiz.Questions), session.deadlineAt)
}

// expireQuestion is the deadline action: it behaves like an answer of
// domain.NoAnswer, and no-ops if the question was already resolved.
func (c *Controller) expireQuestion(session *Session, index int) {
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.state != stateActive || session.current != index {
		return
	}
	c.resolveLocked(context.Background(), session, index, domain.NoAnswer)
}

// tickQuestion renders the countdown and tells the scheduler whether to keep
// ticking. Ticks are advisory; a stale tick simply stops the chain.
func (c *Controller) tickQuestion(session *Session, index int) (time.Duration, bool) {
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.state != stateActive || session.current != index {
		return 0, false
	}
	remaining := session.deadlineAt.Sub(c.now())
	if remaining < 0 {
		remaining = 0
	}
	session.delivery.Tick(index, int(remaining.Round(time.Second)/time.Second))
	return remaining, true
}

// resolveLocked records the outcome for the session's current question and
// advances the state machine. Callers hold session.mu and have already
// verified that index is current.
func (c *Controller) resolveLocked(ctx context.Context, session *Session, index, selected int) {
	session.deadline.Cancel()
	session.deadline = nil

	question := session.quiz.Questions[index]
	correct := selected != domain.NoAnswer && selected == question.CorrectOption
	now := c.now()
	session.answers = append(session.answers, domain.Answer{
		SelectedOption: selected,
		Correct:        correct,
		AnsweredAt:     now,
	})
	session.current++
	session.lastActivityAt = now
	session.delivery.ShowResolution(index, selected, correct, question.CorrectOption)

	if session.current == len(session.quiz.Questions) {
		c.finalizeLocked(ctx, session)
		return
	}

	next := session.current
	if c.advanceDelay <= 0 {
		c.showQuestionLocked(session, next)
		return
	}
	// The pause before the next question goes through the same timer
	// primitive as deadlines; the currency check at fire time makes it
	// harmless if the user answers early or cancels during the pause.
	c.timers.AfterFunc(c.advanceDelay, func() { c.showQuestionIfCurrent(session, next) })
}

func (c *Controller) showQuestionIfCurrent(session *Session, index int) {
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.state != stateActive || session.current != index || session.deadline != nil {
		return
	}
	c.showQuestionLocked(session, index)
}

// finalizeLocked scores the attempt, removes the session, persists the result
// and emits the completion event. The session is gone from the registry before
// any collaborator is called, so a failing store or delivery cannot leave a
// half-finished attempt behind.
func (c *Controller) finalizeLocked(ctx context.Context, session *Session) {
	session.state = stateCompleted
	raw, max, percentage := Score(session.quiz, session.answers)
	result := domain.Result{
		UserID:      session.userID,
		QuizID:      session.quiz.ID,
		QuizTitle:   session.quiz.Title,
		Raw:         raw,
		Max:         max,
		Percentage:  percentage,
		Answers:     append([]domain.Answer(nil), session.answers...),
		CompletedAt: c.now(),
	}
	c.registry.End(session.userID)

	if err := c.results.Record(ctx, result); err != nil {
		log.Printf("record result for user %d quiz %s: %v", session.userID, session.quiz.ID, err)
	}
	session.delivery.ShowCompletion(result)
}
