package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"tugwar-quiz-service/internal/domain"
)

// Error codes reported to clients.
const (
	CodeAlreadyAnswered = "already_answered"
	CodeNotAccepting    = "not_accepting"
	CodeNotFound        = "not_found"
	CodeInvalid         = "invalid"
	CodeConflict        = "conflict"
	CodeInternal        = "internal"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func classify(err error) (string, int) {
	switch {
	case errors.Is(err, domain.ErrAlreadyAnswered):
		return CodeAlreadyAnswered, http.StatusConflict
	case errors.Is(err, domain.ErrNotAccepting), errors.Is(err, domain.ErrPlayerExpired):
		return CodeNotAccepting, http.StatusConflict
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrGameOver):
		return CodeConflict, http.StatusConflict
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrNoActiveSession),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrQuestionSetNotFound),
		errors.Is(err, domain.ErrPlayerNotFound):
		return CodeNotFound, http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTeam):
		return CodeInvalid, http.StatusBadRequest
	}
	return CodeInternal, http.StatusInternalServerError
}

func newErrorPayload(err error) errorPayload {
	code, _ := classify(err)
	msg := err.Error()
	if code == CodeInternal {
		msg = "internal error"
	}
	return errorPayload{Code: code, Message: msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	code, status := classify(err)
	if code == CodeInternal {
		log.WithError(err).Error("request failed")
	}
	writeJSON(w, status, newErrorPayload(err))
}
