package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"tugwar-quiz-service/internal/app"
	"tugwar-quiz-service/internal/domain"
	"tugwar-quiz-service/internal/infra/memory"
	"tugwar-quiz-service/internal/logger"
	"tugwar-quiz-service/internal/metrics"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.GameService) {
	t.Helper()
	reg := prometheus.NewRegistry()
	questions := memory.NewQuestionRepository(memory.NewStaticQuestionLoader(sampleQuestions()), time.Minute)
	service := app.NewGameService(memory.NewStore(), memory.NewFeed(), questions, app.Options{
		Logger:  logger.Discard(),
		Metrics: metrics.New(reg),
	})
	server := httptest.NewServer(NewRouter(service, RouterOptions{
		PublicURL: "http://quiz.test",
		Gatherer:  reg,
		Logger:    logger.Discard(),
	}))
	t.Cleanup(func() {
		server.Close()
		service.Close()
	})
	return server, service
}

func sampleQuestions() map[string]domain.QuestionSet {
	return map[string]domain.QuestionSet{
		"default": {
			ID: "default",
			Questions: []domain.Question{
				{No: 1, Prompt: "Lomba khas 17 Agustus memakai tali?", Answer: "tarik tambang", TimeSec: 15},
				{No: 2, Prompt: "Tahun proklamasi?", Answer: "1945", TimeSec: 10},
			},
		},
	}
}

func post(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// readUntil skips messages until one of type expect arrives.
func readUntil(t *testing.T, conn *websocket.Conn, expect string) json.RawMessage {
	t.Helper()
	for i := 0; i < 10; i++ {
		var msg wsMessage
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json waiting for %s: %v", expect, err)
		}
		if msg.Type == expect {
			return msg.Payload
		}
	}
	t.Fatalf("no %s message received", expect)
	return nil
}

func TestWebSocketAnswerFlow(t *testing.T) {
	server, _ := newTestServer(t)
	if resp := post(t, server.URL+"/api/session"); resp.StatusCode != http.StatusCreated {
		t.Fatalf("start session: status %d", resp.StatusCode)
	}

	conn := dial(t, server, "name=Budi&team=boy")
	var joined joinedPayload
	if err := json.Unmarshal(readUntil(t, conn, "joined"), &joined); err != nil {
		t.Fatalf("decode joined: %v", err)
	}
	if joined.Player == nil || joined.Player.Team != domain.TeamBoy {
		t.Fatalf("expected joined player on team boy, got %+v", joined.Player)
	}

	if resp := post(t, server.URL+"/api/session/questions/1/start"); resp.StatusCode != http.StatusOK {
		t.Fatalf("start question: status %d", resp.StatusCode)
	}
	var ev domain.Event
	if err := json.Unmarshal(readUntil(t, conn, "event"), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Type != domain.EventStartQuestion || ev.StartQuestion.Question.Answer != "" {
		t.Fatalf("expected start_question without answer, got %+v", ev)
	}

	answer := map[string]any{
		"type":    "answer",
		"payload": map[string]any{"questionNo": 1, "answer": "Tarik Tambang", "timeRemaining": 15},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	var result domain.AnswerResult
	if err := json.Unmarshal(readUntil(t, conn, "answerResult"), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Correct || result.Awarded < 40 || result.Scores.Boy != result.Awarded {
		t.Fatalf("unexpected result %+v", result)
	}

	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write duplicate: %v", err)
	}
	var e errorPayload
	if err := json.Unmarshal(readUntil(t, conn, "error"), &e); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if e.Code != CodeAlreadyAnswered {
		t.Fatalf("expected %s, got %s", CodeAlreadyAnswered, e.Code)
	}
}

func TestWebSocketDisplayReceivesAnswers(t *testing.T) {
	server, _ := newTestServer(t)
	post(t, server.URL+"/api/session")

	display := dial(t, server, "role=display")
	readUntil(t, display, "joined")
	player := dial(t, server, "name=Sari&team=girl")
	readUntil(t, player, "joined")

	post(t, server.URL+"/api/session/questions/1/start")
	readUntil(t, player, "event")

	err := player.WriteJSON(map[string]any{
		"type":    "answer",
		"payload": map[string]any{"questionNo": 1, "answer": "bola"},
	})
	if err != nil {
		t.Fatalf("write answer: %v", err)
	}
	readUntil(t, player, "answerResult")

	for i := 0; i < 5; i++ {
		var ev domain.Event
		if err := json.Unmarshal(readUntil(t, display, "event"), &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.Type == domain.EventPlayerAnswer {
			if ev.Answer.Player != "Sari" || ev.Answer.Score >= 0 {
				t.Fatalf("unexpected answer record %+v", ev.Answer)
			}
			return
		}
	}
	t.Fatalf("display never saw player_answer")
}

func TestWebSocketRejectsBadJoin(t *testing.T) {
	server, _ := newTestServer(t)
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?name=Budi&team=referee"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %+v", resp)
	}
}

func TestWebSocketWithoutSession(t *testing.T) {
	server, _ := newTestServer(t)
	conn := dial(t, server, "name=Budi&team=boy")
	var e errorPayload
	if err := json.Unmarshal(readUntil(t, conn, "error"), &e); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if e.Code != CodeNotFound {
		t.Fatalf("expected %s, got %s", CodeNotFound, e.Code)
	}
}
