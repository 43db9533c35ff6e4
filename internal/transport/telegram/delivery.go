package telegram

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"quizbot/internal/domain"

	"gopkg.in/telebot.v4"
)

// sender is the slice of the bot API the delivery needs. *telebot.Bot
// satisfies it.
type sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
	Edit(msg telebot.Editable, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// chatDelivery renders engine events into a Telegram chat. Each question is
// one message; countdown ticks and the final verdict edit that message in
// place so the chat does not scroll away.
type chatDelivery struct {
	api    sender
	chatID int64

	mu       sync.Mutex
	msgID    int
	question string
	markup   *telebot.ReplyMarkup
}

func newChatDelivery(api sender, chatID int64) *chatDelivery {
	return &chatDelivery{api: api, chatID: chatID}
}

func (d *chatDelivery) ShowQuestion(question domain.Question, index, total int, deadline time.Time) {
	markup := &telebot.ReplyMarkup{}
	var buttons []telebot.Btn
	for i, opt := range question.Options {
		buttons = append(buttons, markup.Data(opt, "answer", strconv.Itoa(index), strconv.Itoa(i)))
	}
	markup.Inline(optionRows(markup, buttons)...)

	var b strings.Builder
	fmt.Fprintf(&b, "Question %d of %d\n\n%s", index+1, total, question.Text)
	text := b.String()

	remaining := int(time.Until(deadline).Round(time.Second).Seconds())
	msg, err := d.api.Send(&telebot.Chat{ID: d.chatID}, withCountdown(text, remaining), markup)
	if err != nil {
		log.Printf("telegram: send question to %d: %v", d.chatID, err)
		return
	}

	d.mu.Lock()
	d.msgID = msg.ID
	d.question = text
	d.markup = markup
	d.mu.Unlock()
}

func (d *chatDelivery) Tick(index, remainingSec int) {
	d.mu.Lock()
	msgID, text, markup := d.msgID, d.question, d.markup
	d.mu.Unlock()
	if msgID == 0 {
		return
	}
	d.edit(msgID, withCountdown(text, remainingSec), markup)
}

func (d *chatDelivery) ShowResolution(index, selected int, correct bool, correctOption int) {
	d.mu.Lock()
	msgID, text := d.msgID, d.question
	d.msgID = 0
	d.markup = nil
	d.mu.Unlock()
	if msgID == 0 {
		return
	}

	var verdict string
	switch {
	case correct:
		verdict = "✅ Correct!"
	case selected == domain.NoAnswer:
		verdict = fmt.Sprintf("⏰ TIME'S UP! The correct answer was option %d.", correctOption+1)
	default:
		verdict = fmt.Sprintf("❌ Wrong. The correct answer was option %d.", correctOption+1)
	}
	d.edit(msgID, text+"\n\n"+verdict, nil)
}

func (d *chatDelivery) ShowCompletion(result domain.Result) {
	var b strings.Builder
	fmt.Fprintf(&b, "🏁 Quiz finished: %s\n", result.QuizTitle)
	fmt.Fprintf(&b, "Score: %.2f out of %d (%.1f%%)\n\n", result.Raw, result.Max, result.Percentage)
	for i, answer := range result.Answers {
		switch {
		case answer.Correct:
			fmt.Fprintf(&b, "Q%d: ✅\n", i+1)
		case answer.SelectedOption == domain.NoAnswer:
			fmt.Fprintf(&b, "Q%d: ⏰ no answer\n", i+1)
		default:
			fmt.Fprintf(&b, "Q%d: ❌\n", i+1)
		}
	}
	if _, err := d.api.Send(&telebot.Chat{ID: d.chatID}, b.String()); err != nil {
		log.Printf("telegram: send completion to %d: %v", d.chatID, err)
	}
}

func (d *chatDelivery) edit(msgID int, text string, markup *telebot.ReplyMarkup) {
	editable := &telebot.Message{ID: msgID, Chat: &telebot.Chat{ID: d.chatID}}
	var err error
	if markup != nil {
		_, err = d.api.Edit(editable, text, markup)
	} else {
		_, err = d.api.Edit(editable, text)
	}
	// Telegram rejects edits that change nothing; that race with a user
	// answering on the last tick is harmless.
	if err != nil && !strings.Contains(err.Error(), "message is not modified") {
		log.Printf("telegram: edit message %d in %d: %v", msgID, d.chatID, err)
	}
}

func withCountdown(text string, remainingSec int) string {
	if remainingSec <= 0 {
		return text + "\n\n⏰ TIME'S UP!"
	}
	return text + fmt.Sprintf("\n\n⏱ %d seconds remaining", remainingSec)
}

// optionRows lays the answer buttons out two per row.
func optionRows(markup *telebot.ReplyMarkup, buttons []telebot.Btn) []telebot.Row {
	var rows []telebot.Row
	for i := 0; i < len(buttons); i += 2 {
		end := i + 2
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, markup.Row(buttons[i:end]...))
	}
	return rows
}
