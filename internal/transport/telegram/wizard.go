package telegram

import (
	"fmt"
	"strconv"
	"strings"

	"quizbot/internal/domain"
)

// The authoring wizard walks an admin through building a quiz over chat, one
// message per step.

type wizardStep int

const (
	stepTitle wizardStep = iota
	stepQuestions
	stepTimeLimit
	stepMarking
)

const (
	promptTitle = "Creating a new quiz. Send the title, optionally followed by a description:\n\nTitle | Description"

	promptQuestions = "Now send questions, one per message:\n\n" +
		"Question text | Option A | Option B | ... | correct option number (1-based)\n\n" +
		"Send /done when you have added all questions."

	promptTimeLimit = "Time limit per question in seconds, or \"skip\" for the default:"

	promptMarking = "Negative marking factor (points deducted per wrong answer, e.g. 0.25), or \"skip\" for the default:"
)

type draft struct {
	step wizardStep
	quiz domain.Quiz

	defaultTimeLimit int
	defaultMarking   float64
}

func newDraft(creatorID int64, defaultTimeLimit int, defaultMarking float64) *draft {
	return &draft{
		step:             stepTitle,
		quiz:             domain.Quiz{CreatedBy: creatorID},
		defaultTimeLimit: defaultTimeLimit,
		defaultMarking:   defaultMarking,
	}
}

// apply feeds one admin message into the wizard. It returns the next prompt
// and, once the final step is answered, the finished quiz.
func (d *draft) apply(input string) (prompt string, completed *domain.Quiz, err error) {
	input = strings.TrimSpace(input)
	switch d.step {
	case stepTitle:
		title, description, err := parseTitleLine(input)
		if err != nil {
			return "", nil, err
		}
		d.quiz.Title = title
		d.quiz.Description = description
		d.step = stepQuestions
		return promptQuestions, nil, nil

	case stepQuestions:
		question, err := parseQuestionLine(input)
		if err != nil {
			return "", nil, err
		}
		d.quiz.Questions = append(d.quiz.Questions, question)
		return fmt.Sprintf("Question %d added. Send the next one, or /done.", len(d.quiz.Questions)), nil, nil

	case stepTimeLimit:
		if !strings.EqualFold(input, "skip") {
			seconds, err := strconv.Atoi(input)
			if err != nil || seconds <= 0 {
				return "", nil, fmt.Errorf("time limit must be a positive number of seconds")
			}
			d.quiz.TimeLimitSec = seconds
		} else {
			d.quiz.TimeLimitSec = d.defaultTimeLimit
		}
		d.step = stepMarking
		return promptMarking, nil, nil

	case stepMarking:
		if !strings.EqualFold(input, "skip") {
			factor, err := strconv.ParseFloat(input, 64)
			if err != nil || factor < 0 {
				return "", nil, fmt.Errorf("marking factor must be a non-negative number")
			}
			d.quiz.NegativeMarking = factor
		} else {
			d.quiz.NegativeMarking = d.defaultMarking
		}
		quiz := d.quiz
		if err := validateQuiz(quiz); err != nil {
			return "", nil, err
		}
		return "", &quiz, nil
	}
	return "", nil, fmt.Errorf("unexpected wizard step")
}

// done closes the question-collection step.
func (d *draft) done() (string, error) {
	if d.step != stepQuestions {
		return "", fmt.Errorf("nothing to finish yet")
	}
	if len(d.quiz.Questions) == 0 {
		return "", fmt.Errorf("add at least one question before /done")
	}
	d.step = stepTimeLimit
	return promptTimeLimit, nil
}

// parseTitleLine splits "Title | Description". The description is optional.
func parseTitleLine(input string) (title, description string, err error) {
	parts := splitFields(input)
	switch len(parts) {
	case 1:
		title = parts[0]
	case 2:
		title, description = parts[0], parts[1]
	default:
		return "", "", fmt.Errorf("expected \"Title\" or \"Title | Description\"")
	}
	if title == "" {
		return "", "", fmt.Errorf("title must not be empty")
	}
	return title, description, nil
}

// parseQuestionLine splits "Question | Option A | Option B | ... | correct".
// The trailing field is the 1-based number of the correct option.
func parseQuestionLine(input string) (domain.Question, error) {
	parts := splitFields(input)
	if len(parts) < 4 {
		return domain.Question{}, fmt.Errorf("expected \"Question | Option A | Option B | ... | correct option number\"")
	}
	correct, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return domain.Question{}, fmt.Errorf("the last field must be the correct option number")
	}
	options := parts[1 : len(parts)-1]
	if len(options) < 2 {
		return domain.Question{}, fmt.Errorf("a question needs at least two options")
	}
	if correct < 1 || correct > len(options) {
		return domain.Question{}, fmt.Errorf("correct option number must be between 1 and %d", len(options))
	}
	for _, opt := range options {
		if opt == "" {
			return domain.Question{}, fmt.Errorf("options must not be empty")
		}
	}
	if parts[0] == "" {
		return domain.Question{}, fmt.Errorf("question text must not be empty")
	}
	return domain.Question{
		Text:          parts[0],
		Options:       options,
		CorrectOption: correct - 1,
	}, nil
}

func validateQuiz(quiz domain.Quiz) error {
	if quiz.Title == "" {
		return fmt.Errorf("quiz has no title")
	}
	if len(quiz.Questions) == 0 {
		return fmt.Errorf("quiz has no questions")
	}
	for i, q := range quiz.Questions {
		if len(q.Options) < 2 {
			return fmt.Errorf("question %d has fewer than two options", i+1)
		}
		if q.CorrectOption < 0 || q.CorrectOption >= len(q.Options) {
			return fmt.Errorf("question %d has an out-of-range correct option", i+1)
		}
	}
	return nil
}

func splitFields(input string) []string {
	raw := strings.Split(input, "|")
	fields := make([]string, len(raw))
	for i, f := range raw {
		fields[i] = strings.TrimSpace(f)
	}
	return fields
}
