package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"quizbot/internal/app"
	"quizbot/internal/domain"
	"quizbot/internal/report"

	"gopkg.in/telebot.v4"
)

// QuizStore is the writable side of quiz storage, used by the authoring
// commands.
type QuizStore interface {
	SaveQuiz(ctx context.Context, quiz domain.Quiz) error
	DeleteQuiz(ctx context.Context, id string) error
}

type Options struct {
	Token      string
	Admins     []int64
	Controller *app.Controller
	Quizzes    app.QuizRepository
	Store      QuizStore
	Results    app.ResultStore

	DefaultTimeLimitSec    int
	DefaultNegativeMarking float64

	// Invalidate evicts a quiz from any read-through cache after an edit.
	// Optional.
	Invalidate func(ctx context.Context, id string) error
}

// Bot is the Telegram front end: it drives quiz attempts through the session
// engine and exposes authoring commands to admins.
type Bot struct {
	tb   *telebot.Bot
	opts Options

	admins map[int64]bool

	mu     sync.Mutex
	drafts map[int64]*draft
}

func New(opts Options) (*Bot, error) {
	tb, err := telebot.NewBot(telebot.Settings{
		Token:  opts.Token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	admins := make(map[int64]bool, len(opts.Admins))
	for _, id := range opts.Admins {
		admins[id] = true
	}

	b := &Bot{
		tb:     tb,
		opts:   opts,
		admins: admins,
		drafts: make(map[int64]*draft),
	}
	b.register()
	return b, nil
}

func (b *Bot) Start() { b.tb.Start() }
func (b *Bot) Stop()  { b.tb.Stop() }

func (b *Bot) register() {
	b.tb.Handle("/start", b.handleStart)
	b.tb.Handle("/help", b.handleStart)
	b.tb.Handle("/list", b.handleList)
	b.tb.Handle("/take", b.handleTake)
	b.tb.Handle("/cancel", b.handleCancel)
	b.tb.Handle("/results", b.handleResults)
	b.tb.Handle(&telebot.Btn{Unique: "answer"}, b.handleAnswer)

	b.tb.Handle("/create", b.adminOnly(b.handleCreate))
	b.tb.Handle("/done", b.adminOnly(b.handleDone))
	b.tb.Handle("/delquiz", b.adminOnly(b.handleDelete))
	b.tb.Handle("/export", b.adminOnly(b.handleExport))
	b.tb.Handle("/edittime", b.adminOnly(b.handleEditTime))
	b.tb.Handle("/editquestiontime", b.adminOnly(b.handleEditQuestionTime))
	b.tb.Handle(telebot.OnDocument, b.adminOnly(b.handleImport))
	b.tb.Handle(telebot.OnText, b.handleText)
}

func (b *Bot) adminOnly(next telebot.HandlerFunc) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		if !b.admins[c.Sender().ID] {
			return c.Send("This command is for quiz authors only.")
		}
		return next(c)
	}
}

func (b *Bot) handleStart(c telebot.Context) error {
	var msg strings.Builder
	msg.WriteString("Welcome to the quiz bot!\n\n")
	msg.WriteString("/list shows available quizzes\n")
	msg.WriteString("/take <quiz id> starts a quiz\n")
	msg.WriteString("/cancel abandons the current attempt\n")
	msg.WriteString("/results shows your past scores\n")
	if b.admins[c.Sender().ID] {
		msg.WriteString("\nAuthoring:\n")
		msg.WriteString("/create builds a quiz step by step\n")
		msg.WriteString("/edittime <quiz id> <seconds> changes the quiz time limit\n")
		msg.WriteString("/editquestiontime <quiz id> <question> <seconds> overrides one question\n")
		msg.WriteString("/export <quiz id> downloads a quiz as JSON\n")
		msg.WriteString("Send a JSON file to import a quiz\n")
		msg.WriteString("/delquiz <quiz id> removes a quiz\n")
	}
	return c.Send(msg.String())
}

func (b *Bot) handleList(c telebot.Context) error {
	quizzes, err := b.opts.Quizzes.ListQuizzes(context.Background())
	if err != nil {
		log.Printf("telegram: list quizzes: %v", err)
		return c.Send("Could not load the quiz list, try again later.")
	}
	if len(quizzes) == 0 {
		return c.Send("No quizzes available yet.")
	}
	var msg strings.Builder
	msg.WriteString("Available quizzes:\n\n")
	for _, quiz := range quizzes {
		fmt.Fprintf(&msg, "• %s (%d questions) — /take %s\n", quiz.Title, len(quiz.Questions), quiz.ID)
		if quiz.Description != "" {
			fmt.Fprintf(&msg, "  %s\n", quiz.Description)
		}
	}
	return c.Send(msg.String())
}

func (b *Bot) handleTake(c telebot.Context) error {
	args := c.Args()
	if len(args) < 1 {
		return c.Send("Usage: /take <quiz id>")
	}
	userID := c.Sender().ID
	delivery := newChatDelivery(b.tb, userID)
	_, err := b.opts.Controller.StartSession(context.Background(), userID, args[0], delivery)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrQuizNotFound):
		return c.Send("No such quiz. /list shows what is available.")
	case errors.Is(err, domain.ErrAlreadyActive):
		return c.Send("You already have a quiz in progress. Finish it or /cancel first.")
	default:
		log.Printf("telegram: start session for %d: %v", userID, err)
		return c.Send("Could not start the quiz, try again later.")
	}
}

func (b *Bot) handleCancel(c telebot.Context) error {
	err := b.opts.Controller.CancelSession(c.Sender().ID)
	if errors.Is(err, domain.ErrNoActiveSession) {
		return c.Send("You have no quiz in progress.")
	}
	if err != nil {
		return err
	}
	return c.Send("Quiz canceled. No result was recorded.")
}

func (b *Bot) handleAnswer(c telebot.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Respond()
	}
	questionIndex, err1 := strconv.Atoi(args[0])
	option, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		return c.Respond()
	}

	err := b.opts.Controller.SubmitAnswer(context.Background(), c.Sender().ID, questionIndex, option)
	switch {
	case err == nil:
		return c.Respond()
	case errors.Is(err, domain.ErrStaleAnswer):
		return c.Respond(&telebot.CallbackResponse{Text: "Too late, that question is already closed."})
	case errors.Is(err, domain.ErrNoActiveSession):
		return c.Respond(&telebot.CallbackResponse{Text: "This quiz has already finished."})
	default:
		log.Printf("telegram: submit answer for %d: %v", c.Sender().ID, err)
		return c.Respond(&telebot.CallbackResponse{Text: "Something went wrong."})
	}
}

func (b *Bot) handleResults(c telebot.Context) error {
	user := c.Sender()
	results, err := b.opts.Results.ListByUser(context.Background(), user.ID)
	if err != nil {
		log.Printf("telegram: list results for %d: %v", user.ID, err)
		return c.Send("Could not load your results, try again later.")
	}
	if len(results) == 0 {
		return c.Send("You have not completed any quizzes yet.")
	}

	var msg strings.Builder
	msg.WriteString("Your results:\n\n")
	for _, result := range results {
		fmt.Fprintf(&msg, "• %s: %.2f/%d (%.1f%%)\n", result.QuizTitle, result.Raw, result.Max, result.Percentage)
	}
	if err := c.Send(msg.String()); err != nil {
		return err
	}

	name := user.Username
	if name == "" {
		name = user.FirstName
	}
	pdf, err := report.Generate(name, user.ID, results)
	if err != nil {
		log.Printf("telegram: generate report for %d: %v", user.ID, err)
		return nil
	}
	doc := &telebot.Document{
		File:     telebot.FromReader(bytes.NewReader(pdf)),
		FileName: fmt.Sprintf("quiz-results-%d.pdf", user.ID),
	}
	return c.Send(doc)
}

func (b *Bot) handleCreate(c telebot.Context) error {
	b.mu.Lock()
	b.drafts[c.Sender().ID] = newDraft(c.Sender().ID, b.opts.DefaultTimeLimitSec, b.opts.DefaultNegativeMarking)
	b.mu.Unlock()
	return c.Send(promptTitle)
}

func (b *Bot) handleDone(c telebot.Context) error {
	b.mu.Lock()
	d := b.drafts[c.Sender().ID]
	b.mu.Unlock()
	if d == nil {
		return c.Send("No quiz in progress. /create starts one.")
	}
	prompt, err := d.done()
	if err != nil {
		return c.Send(err.Error())
	}
	return c.Send(prompt)
}

// handleText feeds admin messages into an open authoring wizard. Everyone
// else gets a nudge towards the commands.
func (b *Bot) handleText(c telebot.Context) error {
	userID := c.Sender().ID

	b.mu.Lock()
	d := b.drafts[userID]
	b.mu.Unlock()
	if d == nil {
		return c.Send("Send /help to see what I can do.")
	}

	prompt, completed, err := d.apply(c.Text())
	if err != nil {
		return c.Send(err.Error())
	}
	if completed == nil {
		return c.Send(prompt)
	}

	completed.ID = newQuizID()
	if err := b.opts.Store.SaveQuiz(context.Background(), *completed); err != nil {
		log.Printf("telegram: save quiz %s: %v", completed.ID, err)
		return c.Send("Could not save the quiz, try again later.")
	}
	b.mu.Lock()
	delete(b.drafts, userID)
	b.mu.Unlock()
	return c.Send(fmt.Sprintf("Quiz saved: %s (%d questions). Anyone can now /take %s", completed.Title, len(completed.Questions), completed.ID))
}

func (b *Bot) handleDelete(c telebot.Context) error {
	args := c.Args()
	if len(args) < 1 {
		return c.Send("Usage: /delquiz <quiz id>")
	}
	ctx := context.Background()
	if err := b.opts.Store.DeleteQuiz(ctx, args[0]); err != nil {
		if errors.Is(err, domain.ErrQuizNotFound) {
			return c.Send("No such quiz.")
		}
		log.Printf("telegram: delete quiz %s: %v", args[0], err)
		return c.Send("Could not delete the quiz.")
	}
	b.invalidate(ctx, args[0])
	return c.Send("Quiz deleted.")
}

func (b *Bot) handleExport(c telebot.Context) error {
	args := c.Args()
	if len(args) < 1 {
		return c.Send("Usage: /export <quiz id>")
	}
	quiz, err := b.opts.Quizzes.GetQuiz(context.Background(), args[0])
	if err != nil {
		if errors.Is(err, domain.ErrQuizNotFound) {
			return c.Send("No such quiz.")
		}
		return err
	}
	data, err := json.MarshalIndent(quiz, "", "  ")
	if err != nil {
		return err
	}
	doc := &telebot.Document{
		File:     telebot.FromReader(bytes.NewReader(data)),
		FileName: quiz.ID + ".json",
	}
	return c.Send(doc)
}

func (b *Bot) handleImport(c telebot.Context) error {
	doc := c.Message().Document
	if doc == nil {
		return nil
	}
	rc, err := b.tb.File(&doc.File)
	if err != nil {
		log.Printf("telegram: download import file: %v", err)
		return c.Send("Could not download the file.")
	}
	defer rc.Close()

	var quiz domain.Quiz
	if err := json.NewDecoder(rc).Decode(&quiz); err != nil {
		return c.Send(fmt.Sprintf("Invalid quiz JSON: %v", err))
	}
	if quiz.ID == "" {
		quiz.ID = newQuizID()
	}
	if quiz.TimeLimitSec <= 0 {
		quiz.TimeLimitSec = b.opts.DefaultTimeLimitSec
	}
	quiz.CreatedBy = c.Sender().ID
	if err := validateQuiz(quiz); err != nil {
		return c.Send(fmt.Sprintf("Invalid quiz: %v", err))
	}

	ctx := context.Background()
	if err := b.opts.Store.SaveQuiz(ctx, quiz); err != nil {
		log.Printf("telegram: import quiz %s: %v", quiz.ID, err)
		return c.Send("Could not save the quiz.")
	}
	b.invalidate(ctx, quiz.ID)
	return c.Send(fmt.Sprintf("Imported %s (%d questions) as %s", quiz.Title, len(quiz.Questions), quiz.ID))
}

func (b *Bot) handleEditTime(c telebot.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Send("Usage: /edittime <quiz id> <seconds>")
	}
	seconds, err := strconv.Atoi(args[1])
	if err != nil || seconds <= 0 {
		return c.Send("Seconds must be a positive number.")
	}
	return b.updateQuiz(c, args[0], func(quiz *domain.Quiz) error {
		quiz.TimeLimitSec = seconds
		return nil
	})
}

func (b *Bot) handleEditQuestionTime(c telebot.Context) error {
	args := c.Args()
	if len(args) != 3 {
		return c.Send("Usage: /editquestiontime <quiz id> <question number> <seconds>")
	}
	number, err1 := strconv.Atoi(args[1])
	seconds, err2 := strconv.Atoi(args[2])
	if err1 != nil || err2 != nil || seconds <= 0 {
		return c.Send("Question number and seconds must be positive numbers.")
	}
	return b.updateQuiz(c, args[0], func(quiz *domain.Quiz) error {
		if number < 1 || number > len(quiz.Questions) {
			return fmt.Errorf("quiz has %d questions", len(quiz.Questions))
		}
		quiz.Questions[number-1].TimeLimitSec = seconds
		return nil
	})
}

func (b *Bot) updateQuiz(c telebot.Context, id string, mutate func(*domain.Quiz) error) error {
	ctx := context.Background()
	quiz, err := b.opts.Quizzes.GetQuiz(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrQuizNotFound) {
			return c.Send("No such quiz.")
		}
		return err
	}
	if err := mutate(&quiz); err != nil {
		return c.Send(err.Error())
	}
	if err := b.opts.Store.SaveQuiz(ctx, quiz); err != nil {
		log.Printf("telegram: update quiz %s: %v", id, err)
		return c.Send("Could not save the quiz.")
	}
	b.invalidate(ctx, id)
	return c.Send("Quiz updated. Sessions already in progress keep their original timing.")
}

func (b *Bot) invalidate(ctx context.Context, id string) {
	if b.opts.Invalidate == nil {
		return
	}
	if err := b.opts.Invalidate(ctx, id); err != nil {
		log.Printf("telegram: invalidate quiz cache %s: %v", id, err)
	}
}

func newQuizID() string {
	return "quiz-" + strconv.FormatInt(time.Now().UnixNano(), 36)
}
