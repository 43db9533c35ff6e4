package domain

import "time"

// NoAnswer is the selected option recorded when a question's deadline fires
// before the user picks anything.
const NoAnswer = -1

// Question models an MCQ question with 2..N options and one correct option
// (0-based index).
type Question struct {
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correctOption"`
	// TimeLimitSec overrides the quiz-wide per-question limit when > 0.
	TimeLimitSec int `json:"timeLimit,omitempty"`
}

// Limit returns the effective time limit for this question given the quiz-wide
// default in seconds.
func (q Question) Limit(quizDefaultSec int) time.Duration {
	if q.TimeLimitSec > 0 {
		return time.Duration(q.TimeLimitSec) * time.Second
	}
	return time.Duration(quizDefaultSec) * time.Second
}

// Quiz is a published quiz. Quizzes are immutable once published and are
// shared read-only across sessions.
type Quiz struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	// TimeLimitSec is the default per-question limit in seconds.
	TimeLimitSec int `json:"timeLimit"`
	// NegativeMarking is the fraction of a point deducted per incorrect or
	// unanswered question, in [0, 1]. Zero disables negative marking.
	NegativeMarking float64    `json:"negativeMarkingFactor"`
	Questions       []Question `json:"questions"`
	CreatedBy       int64      `json:"createdBy,omitempty"`
}

// Answer records the outcome of one question within an attempt.
type Answer struct {
	SelectedOption int       `json:"selectedOption"` // NoAnswer when the deadline fired
	Correct        bool      `json:"isCorrect"`
	AnsweredAt     time.Time `json:"answeredAt"`
}

// Result is the scored outcome of a finished attempt.
type Result struct {
	UserID      int64     `json:"userId"`
	QuizID      string    `json:"quizId"`
	QuizTitle   string    `json:"quizTitle"`
	Raw         float64   `json:"raw"`
	Max         int       `json:"max"`
	Percentage  float64   `json:"percentage"`
	Answers     []Answer  `json:"answers"`
	CompletedAt time.Time `json:"completedAt"`
}
