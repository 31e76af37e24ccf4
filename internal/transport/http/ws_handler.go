package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"tugwar-quiz-service/internal/app"
	"tugwar-quiz-service/internal/domain"
)

const roleDisplay = "display"

type WSHandler struct {
	service  *app.GameService
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

func NewWSHandler(service *app.GameService, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     log,
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

// answerPayload carries the player's countdown reading; a missing
// timeRemaining lets the server use its own clock.
type answerPayload struct {
	QuestionNo    int    `json:"questionNo"`
	Answer        string `json:"answer"`
	TimeRemaining *int   `json:"timeRemaining"`
}

type joinedPayload struct {
	Role     string           `json:"role"`
	Player   *domain.Player   `json:"player,omitempty"`
	Session  domain.Session   `json:"session"`
	Scores   domain.Scores    `json:"scores"`
	Round    app.RoundStatus  `json:"round"`
	Question *domain.Question `json:"question,omitempty"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: newErrorPayload(err)}
}

var errDisplayCannotAnswer = errors.New("displays cannot submit answers")

// ServeWS upgrades players (?name=&team=) and displays (?role=display) and
// streams session events to them.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	display := query.Get("role") == roleDisplay
	name := strings.TrimSpace(query.Get("name"))
	var team domain.Team
	if !display {
		if name == "" {
			http.Error(w, "missing name", http.StatusBadRequest)
			return
		}
		t, err := domain.ParseTeam(query.Get("team"))
		if err != nil {
			http.Error(w, "team must be boy or girl", http.StatusBadRequest)
			return
		}
		team = t
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	session, err := h.service.CurrentSession(ctx)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}

	joined := joinedPayload{Role: roleDisplay, Session: session, Round: h.service.RoundStatus()}
	if !display {
		player, err := h.service.JoinPlayer(ctx, name, team)
		if err != nil {
			_ = conn.WriteJSON(errorMessage(err))
			return
		}
		joined.Role = "player"
		joined.Player = &player
	}
	if joined.Scores, err = h.service.Scores(ctx); err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	if q, ok := h.service.CurrentQuestion(ctx); ok {
		joined.Question = &q
	}

	updates, cancel, err := h.service.Subscribe(ctx, session.ID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer cancel()

	log := h.log.WithFields(logrus.Fields{"session": session.ID, "player": name, "role": joined.Role})
	log.Debug("ws client joined")

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Single writer; after a failed write the connection is closed so the
	// read loop ends, and the remaining queue is drained.
	go func() {
		defer close(writerDone)
		failed := false
		for msg := range send {
			if failed {
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("ws write failed")
				failed = true
				_ = conn.Close()
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					// The feed gave up on this subscriber; closing makes the
					// client reconnect and resync from a fresh joined message.
					log.Debug("event feed closed")
					_ = conn.Close()
					return
				}
				if !display && ev.Type == domain.EventPlayerAnswer {
					continue
				}
				select {
				case send <- outboundMessage[any]{Type: "event", Payload: ev}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "joined", Payload: joined}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			if display {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Code: CodeInvalid, Message: errDisplayCannotAnswer.Error()}}
				continue
			}
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuestionNo <= 0 {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Code: CodeInvalid, Message: "invalid answer payload"}}
				continue
			}
			remaining := -1
			if payload.TimeRemaining != nil {
				remaining = *payload.TimeRemaining
			}
			result, err := h.service.SubmitAnswer(ctx, domain.AnswerSubmission{
				SessionID:     session.ID,
				Player:        name,
				Team:          team,
				QuestionNo:    payload.QuestionNo,
				Answer:        payload.Answer,
				TimeRemaining: remaining,
			})
			if err != nil {
				send <- errorMessage(err)
				continue
			}
			send <- outboundMessage[any]{Type: "answerResult", Payload: result}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Code: CodeInvalid, Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
	log.Debug("ws client left")
}
