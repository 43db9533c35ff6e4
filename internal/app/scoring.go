package app

import "quizbot/internal/domain"

// Score applies the quiz's marking scheme to an answer sequence. Each correct
// answer earns one point; each incorrect or unanswered question deducts the
// quiz's negative marking factor. Raw score and percentage are not clamped
// and may be negative.
func Score(quiz domain.Quiz, answers []domain.Answer) (raw float64, max int, percentage float64) {
	max = len(quiz.Questions)
	for _, answer := range answers {
		if answer.Correct {
			raw++
		} else {
			raw -= quiz.NegativeMarking
		}
	}
	if max > 0 {
		percentage = raw / float64(max) * 100
	}
	return raw, max, percentage
}
