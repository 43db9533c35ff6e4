package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quizbot/internal/domain"
	"quizbot/internal/infra/memory"
)

func fourQuestionQuiz() domain.Quiz {
	question := func(correct int) domain.Question {
		return domain.Question{
			Text:          "pick one",
			Options:       []string{"a", "b", "c"},
			CorrectOption: correct,
		}
	}
	return domain.Quiz{
		ID:              "quiz-1",
		Title:           "Sample",
		TimeLimitSec:    30,
		NegativeMarking: 0.25,
		Questions:       []domain.Question{question(0), question(1), question(2), question(0)},
	}
}

type testRig struct {
	controller *Controller
	timers     *fakeTimers
	delivery   *recorderDelivery
	results    *memory.ResultStore
}

func newTestRig(t *testing.T, quiz domain.Quiz, advanceDelay time.Duration) *testRig {
	t.Helper()
	timers := &fakeTimers{}
	results := memory.NewResultStore()
	quizzes := memory.NewQuizRepository(memory.NewQuizStore(map[string]domain.Quiz{quiz.ID: quiz}), time.Minute)
	clock := func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return &testRig{
		controller: NewControllerWithClock(quizzes, results, timers, advanceDelay, clock),
		timers:     timers,
		delivery:   &recorderDelivery{},
		results:    results,
	}
}

func (r *testRig) start(t *testing.T, userID int64, quizID string) {
	t.Helper()
	if _, err := r.controller.StartSession(context.Background(), userID, quizID, r.delivery); err != nil {
		t.Fatalf("start session: %v", err)
	}
}

func TestStartShowsFirstQuestionAndArmsDeadline(t *testing.T) {
	rig := newTestRig(t, fourQuestionQuiz(), 0)
	rig.start(t, 1, "quiz-1")

	if shown := rig.delivery.shownQuestions(); len(shown) != 1 || shown[0] != 0 {
		t.Fatalf("expected question 0 shown, got %v", shown)
	}
	if rig.timers.pendingExpiry() == nil {
		t.Fatalf("expected a deadline armed for question 0")
	}

	// First tick renders the full remaining time.
	if !rig.timers.fireTick() {
		t.Fatalf("expected an immediate tick scheduled")
	}
	rig.delivery.mu.Lock()
	ticks := append([]int(nil), rig.delivery.ticks...)
	rig.delivery.mu.Unlock()
	if len(ticks) != 1 || ticks[0] != 30 {
		t.Fatalf("expected tick with 30s remaining, got %v", ticks)
	}
}

func TestStartUnknownQuiz(t *testing.T) {
	rig := newTestRig(t, fourQuestionQuiz(), 0)
	_, err := rig.controller.StartSession(context.Background(), 1, "missing", rig.delivery)
	if !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestStartWhileActiveRejected(t *testing.T) {
	rig := newTestRig(t, fourQuestionQuiz(), 0)
	rig.start(t, 1, "quiz-1")
	_, err := rig.controller.StartSession(context.Background(), 1, "quiz-1", rig.delivery)
	if !errors.Is(err, domain.ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
}

func TestAnswerAdvancesAndKeepsInvariant(t *testing.T) {
	rig := newTestRig(t, fourQuestionQuiz(), 0)
	rig.start(t, 1, "quiz-1")

	if err := rig.controller.SubmitAnswer(context.Background(), 1, 0, 0); err != nil {
		t.Fatalf("submit: %v", err)
	}

	session, ok := rig.controller.Registry().Get(1)
	if !ok {
		t.Fatalf("expected session still live")
	}
	session.mu.Lock()
	answers, current := len(session.answers), session.current
	session.mu.Unlock()
	if answers != 1 || current != 1 {
		t.Fatalf("expected len(answers)==current==1, got %d and %d", answers, current)
	}

	resolved := rig.delivery.resolved()
	if len(resolved) != 1 || !resolved[0].correct || resolved[0].index != 0 {
		t.Fatalf("expected correct resolution of question 0, got %+v", resolved)
	}
	if shown := rig.delivery.shownQuestions(); len(shown) != 2 || shown[1] != 1 {
		t.Fatalf("expected question 1 shown next, got %v", shown)
	}
}

func TestDuplicateAnswerIsStale(t *testing.T) {
	rig := newTestRig(t, fourQuestionQuiz(), 0)
	rig.start(t, 1, "quiz-1")

	if err := rig.controller.SubmitAnswer(context.Background(), 1, 0, 1); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := rig.controller.SubmitAnswer(context.Background(), 1, 0, 0); !errors.Is(err, domain.ErrStaleAnswer) {
		t.Fatalf("expected ErrStaleAnswer for duplicate, got %v", err)
	}

	session, _ := rig.controller.Registry().Get(1)
	session.mu.Lock()
	defer session.mu.Unlock()
	if len(session.answers) != 1 {
		t.Fatalf("duplicate answer double-recorded: %d answers", len(session.answers))
	}
}

func TestInvalidOptionLeavesStateUnchanged(t *testing.T) {
	rig := newTestRig(t, fourQuestionQuiz(), 0)
	rig.start(t, 1, "quiz-1")

	if err := rig.controller.SubmitAnswer(context.Background(), 1, 0, 99); !errors.Is(err, domain.ErrInvalidOption) {
		t.Fatalf("expected ErrInvalidOption, got %v", err)
	}
	session, _ := rig.controller.Registry().Get(1)
	session.mu.Lock()
	defer session.mu.Unlock()
	if len(session.answers) != 0 || session.current != 0 {
		t.Fatalf("state changed by invalid option: answers=%d current=%d", len(session.answers), session.current)
	}
}

func TestAnswerWithoutSession(t *testing.T) {
	rig := newTestRig(t, fourQuestionQuiz(), 0)
	if err := rig.controller.SubmitAnswer(context.Background(), 1, 0, 0); !errors.Is(err, domain.ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestExpireRecordsNoAnswerAndAdvances(t *testing.T) {
	rig := newTestRig(t, fourQuestionQuiz(), 0)
	rig.start(t, 1, "quiz-1")

	if !rig.timers.fireExpiry() {
		t.Fatalf("expected a pending deadline")
	}

	resolved := rig.delivery.resolved()
	if len(resolved) != 1 || resolved[0].selected != domain.NoAnswer || resolved[0].correct {
		t.Fatalf("expected forced no-answer resolution, got %+v", resolved)
	}
	if shown := rig.delivery.shownQuestions(); len(shown) != 2 || shown[1] != 1 {
		t.Fatalf("expected question 1 shown after expiry, got %v", shown)
	}
}

func TestCanceledExpiryThatAlreadyFiredIsNoop(t *testing.T) {
	rig := newTestRig(t, fourQuestionQuiz(), 0)
	rig.start(t, 1, "quiz-1")

	expiry := rig.timers.pendingExpiry()
	if expiry == nil {
		t.Fatalf("expected armed deadline")
	}
	if err := rig.controller.SubmitAnswer(context.Background(), 1, 0, 0); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Simulate the timer firing after cancellation: must not touch question 0
	// again, twice over.
	expiry.forceFire()
	expiry.forceFire()

	session, _ := rig.controller.Registry().Get(1)
	session.mu.Lock()
	defer session.mu.Unlock()
	if len(session.answers) != 1 || session.current != 1 {
		t.Fatalf("superseded expiry mutated state: answers=%d current=%d", len(session.answers), session.current)
	}
}

func TestAnswerExpireRaceResolvesOnce(t *testing.T) {
	rig := newTestRig(t, fourQuestionQuiz(), 0)
	rig.start(t, 1, "quiz-1")

	expiry := rig.timers.pendingExpiry()
	if expiry == nil {
		t.Fatalf("expected armed deadline")
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		expiry.forceFire()
	}()
	go func() {
		defer wg.Done()
		err := rig.controller.SubmitAnswer(context.Background(), 1, 0, 0)
		if err != nil && !errors.Is(err, domain.ErrStaleAnswer) {
			t.Errorf("unexpected submit error: %v", err)
		}
	}()
	wg.Wait()

	session, _ := rig.controller.Registry().Get(1)
	session.mu.Lock()
	defer session.mu.Unlock()
	if len(session.answers) != 1 {
		t.Fatalf("race recorded %d answers for question 0, want exactly 1", len(session.answers))
	}
	if session.current != 1 {
		t.Fatalf("race double-advanced to %d", session.current)
	}
}

func TestConcurrentStartsExactlyOneWins(t *testing.T) {
	rig := newTestRig(t, fourQuestionQuiz(), 0)

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rig.controller.StartSession(context.Background(), 1, "quiz-1", rig.delivery)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wins, rejections int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrAlreadyActive):
			rejections++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || rejections != attempts-1 {
		t.Fatalf("expected exactly one winner, got %d wins and %d rejections", wins, rejections)
	}
	if rig.controller.Registry().Len() != 1 {
		t.Fatalf("expected a single live session")
	}
}

func TestCompletionScoresRecordsAndRemoves(t *testing.T) {
	quiz := fourQuestionQuiz()
	rig := newTestRig(t, quiz, 0)
	rig.start(t, 1, "quiz-1")

	// correct, incorrect, no-answer, correct -> 1 - 0.25 - 0.25 + 1 = 1.5
	if err := rig.controller.SubmitAnswer(context.Background(), 1, 0, 0); err != nil {
		t.Fatalf("submit q0: %v", err)
	}
	if err := rig.controller.SubmitAnswer(context.Background(), 1, 1, 0); err != nil {
		t.Fatalf("submit q1: %v", err)
	}
	if !rig.timers.fireExpiry() {
		t.Fatalf("expected deadline for q2")
	}
	if err := rig.controller.SubmitAnswer(context.Background(), 1, 3, 0); err != nil {
		t.Fatalf("submit q3: %v", err)
	}

	if rig.controller.Registry().Len() != 0 {
		t.Fatalf("expected session removed after completion")
	}

	completions := rig.delivery.completions()
	if len(completions) != 1 {
		t.Fatalf("expected one completion event, got %d", len(completions))
	}
	result := completions[0]
	if result.Raw != 1.5 || result.Max != 4 || result.Percentage != 37.5 {
		t.Fatalf("unexpected score: %+v", result)
	}

	stored, err := rig.results.ListByUser(context.Background(), 1)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if len(stored) != 1 || stored[0].Raw != 1.5 {
		t.Fatalf("expected persisted result 1.5, got %+v", stored)
	}
}

func TestSingleQuestionQuizCompletesOnExpiry(t *testing.T) {
	quiz := fourQuestionQuiz()
	quiz.ID = "quiz-single"
	quiz.Questions = quiz.Questions[:1]
	rig := newTestRig(t, quiz, 0)
	rig.start(t, 1, "quiz-single")

	if !rig.timers.fireExpiry() {
		t.Fatalf("expected armed deadline")
	}
	if rig.controller.Registry().Len() != 0 {
		t.Fatalf("expected session removed right after the single question resolved")
	}
	if len(rig.delivery.completions()) != 1 {
		t.Fatalf("expected completion event")
	}
}

func TestCancelRemovesWithoutResult(t *testing.T) {
	rig := newTestRig(t, fourQuestionQuiz(), 0)
	rig.start(t, 1, "quiz-1")
	if err := rig.controller.SubmitAnswer(context.Background(), 1, 0, 0); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := rig.controller.CancelSession(1); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if rig.controller.Registry().Len() != 0 {
		t.Fatalf("expected session removed on cancel")
	}
	stored, _ := rig.results.ListByUser(context.Background(), 1)
	if len(stored) != 0 {
		t.Fatalf("cancel must not record a result, got %+v", stored)
	}
	if err := rig.controller.CancelSession(1); !errors.Is(err, domain.ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession on second cancel, got %v", err)
	}
}

func TestDelayedAdvanceShowsNextQuestionOnce(t *testing.T) {
	rig := newTestRig(t, fourQuestionQuiz(), time.Second)
	rig.start(t, 1, "quiz-1")

	if err := rig.controller.SubmitAnswer(context.Background(), 1, 0, 0); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if shown := rig.delivery.shownQuestions(); len(shown) != 1 {
		t.Fatalf("next question shown before the advance pause: %v", shown)
	}

	// The pause runs on the shared timer primitive.
	if !rig.timers.firePending(func(d time.Duration) bool { return d == time.Second }) {
		t.Fatalf("expected a pending advance timer")
	}
	if shown := rig.delivery.shownQuestions(); len(shown) != 2 || shown[1] != 1 {
		t.Fatalf("expected question 1 after pause, got %v", shown)
	}
	if rig.timers.pendingExpiry() == nil {
		t.Fatalf("expected deadline armed for question 1")
	}
}

func TestAnswerDuringAdvancePauseSkipsDelayedShow(t *testing.T) {
	rig := newTestRig(t, fourQuestionQuiz(), time.Second)
	rig.start(t, 1, "quiz-1")

	if err := rig.controller.SubmitAnswer(context.Background(), 1, 0, 0); err != nil {
		t.Fatalf("submit q0: %v", err)
	}
	// Answer question 1 while its reveal is still pending.
	if err := rig.controller.SubmitAnswer(context.Background(), 1, 1, 1); err != nil {
		t.Fatalf("submit q1 during pause: %v", err)
	}

	// The stale delayed show for question 1 must be a no-op.
	rig.timers.firePending(func(d time.Duration) bool { return d == time.Second })

	session, _ := rig.controller.Registry().Get(1)
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.current != 2 || len(session.answers) != 2 {
		t.Fatalf("unexpected state after pause race: current=%d answers=%d", session.current, len(session.answers))
	}
}
