package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tugwar-quiz-service/internal/domain"
)

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestAdminRequiresSession(t *testing.T) {
	server, _ := newTestServer(t)

	resp := post(t, server.URL+"/api/session/questions/1/start")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var e errorPayload
	decode(t, resp, &e)
	assert.Equal(t, CodeNotFound, e.Code)
}

func TestAdminQuestionLifecycle(t *testing.T) {
	server, _ := newTestServer(t)

	resp := post(t, server.URL+"/api/session")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var view sessionView
	decode(t, resp, &view)
	assert.True(t, strings.HasPrefix(view.JoinURL, "http://quiz.test/join?session="))

	assert.Equal(t, http.StatusBadRequest, post(t, server.URL+"/api/session/questions/abc/start").StatusCode)
	assert.Equal(t, http.StatusNotFound, post(t, server.URL+"/api/session/questions/9/start").StatusCode)
	require.Equal(t, http.StatusOK, post(t, server.URL+"/api/session/questions/1/start").StatusCode)

	get, err := http.Get(server.URL + "/api/session")
	require.NoError(t, err)
	defer get.Body.Close()
	decode(t, get, &view)
	assert.Equal(t, "active", string(view.Round.State))
	require.NotNil(t, view.Question)
	assert.Empty(t, view.Question.Answer)

	require.Equal(t, http.StatusOK, post(t, server.URL+"/api/session/questions/1/reveal").StatusCode)
	assert.Equal(t, http.StatusConflict, post(t, server.URL+"/api/session/questions/1/start").StatusCode)

	resp = post(t, server.URL+"/api/session/end-game")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var scores domain.Scores
	decode(t, resp, &scores)
	assert.Equal(t, domain.Scores{}, scores)
}

func TestAdminQRCode(t *testing.T) {
	server, _ := newTestServer(t)
	post(t, server.URL+"/api/session")

	resp, err := http.Get(server.URL + "/api/session/qr")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "\x89PNG"))
}

func TestAdminPlayerAnswers(t *testing.T) {
	server, _ := newTestServer(t)
	post(t, server.URL+"/api/session")

	resp, err := http.Get(server.URL + "/api/session/players/Budi/answers")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view playerAnswersView
	decode(t, resp, &view)
	assert.Equal(t, "Budi", view.Player)
	assert.Empty(t, view.Answers)
	assert.False(t, view.AllAnswered)
}

func TestHealthAndMetrics(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	post(t, server.URL+"/api/session")
	metricsResp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	body, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "tugwar_sessions_started_total 1")
}
