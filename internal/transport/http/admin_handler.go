package http

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"

	"tugwar-quiz-service/internal/app"
	"tugwar-quiz-service/internal/domain"
)

const qrSize = 320

// AdminHandler exposes the game master controls.
type AdminHandler struct {
	service   *app.GameService
	publicURL string
	log       logrus.FieldLogger
}

func NewAdminHandler(service *app.GameService, publicURL string, log logrus.FieldLogger) *AdminHandler {
	return &AdminHandler{service: service, publicURL: strings.TrimSuffix(publicURL, "/"), log: log}
}

type sessionView struct {
	Session  domain.Session   `json:"session"`
	Scores   domain.Scores    `json:"scores"`
	Round    app.RoundStatus  `json:"round"`
	Question *domain.Question `json:"question,omitempty"`
	JoinURL  string           `json:"joinUrl"`
}

type playerAnswersView struct {
	Player      string                `json:"player"`
	Answers     []domain.AnswerRecord `json:"answers"`
	AllAnswered bool                  `json:"allAnswered"`
}

// Register mounts the admin routes on mux.
func (h *AdminHandler) Register(mux *httprouter.Router) {
	mux.POST("/api/session", h.startSession)
	mux.GET("/api/session", h.getSession)
	mux.DELETE("/api/session", h.endSession)
	mux.POST("/api/session/reset", h.resetSession)
	mux.POST("/api/session/questions/:no/start", h.startQuestion)
	mux.POST("/api/session/questions/:no/reveal", h.revealQuestion)
	mux.POST("/api/session/end-game", h.endGame)
	mux.GET("/api/session/scores", h.scores)
	mux.GET("/api/session/qr", h.qr)
	mux.GET("/api/session/players/:name/answers", h.playerAnswers)
	mux.GET("/api/questions", h.questions)
}

func (h *AdminHandler) startSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	session, err := h.service.StartSession(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionView{
		Session: session,
		Round:   h.service.RoundStatus(),
		JoinURL: h.joinURL(r, session.ID),
	})
}

func (h *AdminHandler) getSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	session, err := h.service.CurrentSession(ctx)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	scores, err := h.service.Scores(ctx)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	view := sessionView{
		Session: session,
		Scores:  scores,
		Round:   h.service.RoundStatus(),
		JoinURL: h.joinURL(r, session.ID),
	}
	if q, ok := h.service.CurrentQuestion(ctx); ok {
		view.Question = &q
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *AdminHandler) endSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	session, err := h.service.EndSession(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *AdminHandler) resetSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := h.service.ResetSession(r.Context()); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) startQuestion(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	no, ok := h.questionNo(w, ps)
	if !ok {
		return
	}
	status, err := h.service.StartQuestion(r.Context(), no)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *AdminHandler) revealQuestion(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	no, ok := h.questionNo(w, ps)
	if !ok {
		return
	}
	status, err := h.service.RevealQuestion(r.Context(), no)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *AdminHandler) endGame(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	scores, err := h.service.EndGame(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

func (h *AdminHandler) scores(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	scores, err := h.service.Scores(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

func (h *AdminHandler) playerAnswers(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	session, err := h.service.CurrentSession(ctx)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	name := ps.ByName("name")
	answers, err := h.service.PlayerAnswers(ctx, session.ID, name)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	all, err := h.service.AllAnswered(ctx, session.ID, name)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, playerAnswersView{Player: name, Answers: answers, AllAnswered: all})
}

func (h *AdminHandler) questions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	set, err := h.service.Questions(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// qr renders the join URL of the active session as a PNG.
func (h *AdminHandler) qr(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	session, err := h.service.CurrentSession(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	png, err := qrcode.Encode(h.joinURL(r, session.ID), qrcode.Medium, qrSize)
	if err != nil {
		writeError(w, h.log, fmt.Errorf("qr generation: %w", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (h *AdminHandler) questionNo(w http.ResponseWriter, ps httprouter.Params) (int, bool) {
	no, err := strconv.Atoi(ps.ByName("no"))
	if err != nil || no <= 0 {
		writeJSON(w, http.StatusBadRequest, errorPayload{Code: CodeInvalid, Message: "question number must be a positive integer"})
		return 0, false
	}
	return no, true
}

func (h *AdminHandler) joinURL(r *http.Request, sessionID string) string {
	base := h.publicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/join?session=" + url.QueryEscape(sessionID)
}
