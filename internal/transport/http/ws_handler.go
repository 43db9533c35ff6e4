package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"quizbot/internal/app"
	"quizbot/internal/domain"

	"github.com/gorilla/websocket"
)

// WSHandler exposes the quiz engine to browser chat clients: one websocket
// connection is one attempt.
type WSHandler struct {
	controller *app.Controller
	upgrader   websocket.Upgrader
}

func NewWSHandler(controller *app.Controller) *WSHandler {
	return &WSHandler{
		controller: controller,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionIndex int `json:"questionIndex"`
	Option        int `json:"option"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// questionPayload deliberately omits the correct option.
type questionPayload struct {
	Index    int       `json:"index"`
	Total    int       `json:"total"`
	Text     string    `json:"text"`
	Options  []string  `json:"options"`
	Deadline time.Time `json:"deadline"`
}

type tickPayload struct {
	Index        int `json:"index"`
	RemainingSec int `json:"remainingSec"`
}

type resolutionPayload struct {
	Index          int  `json:"index"`
	SelectedOption int  `json:"selectedOption"`
	Correct        bool `json:"correct"`
	CorrectOption  int  `json:"correctOption"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// wsDelivery pushes engine events onto the connection's send queue. It runs
// under the session lock, so it must never block: stale countdown frames are
// dropped in favor of newer ones.
type wsDelivery struct {
	send chan outboundMessage[any]
	done chan struct{}
}

func newWSDelivery() *wsDelivery {
	return &wsDelivery{
		send: make(chan outboundMessage[any], 16),
		done: make(chan struct{}),
	}
}

func (d *wsDelivery) push(msg outboundMessage[any]) {
	select {
	case d.send <- msg:
	default:
		select {
		case <-d.send:
		default:
		}
		select {
		case d.send <- msg:
		default:
		}
	}
}

func (d *wsDelivery) ShowQuestion(question domain.Question, index, total int, deadline time.Time) {
	d.push(outboundMessage[any]{Type: "question", Payload: questionPayload{
		Index:    index,
		Total:    total,
		Text:     question.Text,
		Options:  question.Options,
		Deadline: deadline,
	}})
}

func (d *wsDelivery) Tick(index, remainingSec int) {
	d.push(outboundMessage[any]{Type: "tick", Payload: tickPayload{Index: index, RemainingSec: remainingSec}})
}

func (d *wsDelivery) ShowResolution(index, selected int, correct bool, correctOption int) {
	d.push(outboundMessage[any]{Type: "resolution", Payload: resolutionPayload{
		Index:          index,
		SelectedOption: selected,
		Correct:        correct,
		CorrectOption:  correctOption,
	}})
}

func (d *wsDelivery) ShowCompletion(result domain.Result) {
	d.push(outboundMessage[any]{Type: "completed", Payload: result})
	close(d.done)
}

// ServeWS upgrades the request and drives one quiz attempt over the socket.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	userIDRaw := r.URL.Query().Get("userId")
	userID, err := strconv.ParseInt(userIDRaw, 10, 64)
	if quizID == "" || userIDRaw == "" || err != nil {
		http.Error(w, "missing or invalid quizId or userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	delivery := newWSDelivery()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range delivery.send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	if _, err := h.controller.StartSession(r.Context(), userID, quizID, delivery); err != nil {
		delivery.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		close(delivery.send)
		<-writerDone
		return
	}
	// A dropped connection abandons the attempt; a finished one has no
	// session left to cancel.
	defer func() {
		if err := h.controller.CancelSession(userID); err != nil && !errors.Is(err, domain.ErrNoActiveSession) {
			log.Printf("cancel session for user %d: %v", userID, err)
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				delivery.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}})
				continue
			}
			err := h.controller.SubmitAnswer(r.Context(), userID, payload.QuestionIndex, payload.Option)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrStaleAnswer):
				// Expected loser of the answer/deadline race; the resolution
				// event already told the client what happened.
			case errors.Is(err, domain.ErrNoActiveSession):
				delivery.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "quiz finished"}})
			default:
				delivery.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			}
		case "cancel":
			if err := h.controller.CancelSession(userID); err == nil {
				delivery.push(outboundMessage[any]{Type: "canceled", Payload: struct{}{}})
			}
		default:
			delivery.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}

		select {
		case <-delivery.done:
			// Attempt finished; flush the queue and stop reading.
			close(delivery.send)
			<-writerDone
			return
		default:
		}
	}

	close(delivery.send)
	<-writerDone
}
