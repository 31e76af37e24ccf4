package domain

import "time"

// EventType tags the payload carried by an Event.
type EventType string

const (
	EventStartQuestion EventType = "start_question"
	EventEndQuestion   EventType = "end_question"
	EventEndGame       EventType = "end_game"
	EventPlayerAnswer  EventType = "player_answer"
)

// StartQuestion announces a live question. The expected answer is never included.
type StartQuestion struct {
	Question       Question  `json:"question"`
	TotalQuestions int       `json:"totalQuestions"`
	Deadline       time.Time `json:"deadline"`
}

// EndQuestion reveals the canonical answer of a locked question.
type EndQuestion struct {
	QuestionNo    int    `json:"questionId"`
	CorrectAnswer string `json:"correctAnswer"`
	Reason        string `json:"reason"`
}

// EndGame carries the final scores. Winner is empty on a tie.
type EndGame struct {
	FinalScores    Scores `json:"finalScores"`
	Winner         Team   `json:"winner,omitempty"`
	TotalQuestions int    `json:"totalQuestions"`
}

// Event is a broadcast or ledger notification. Exactly one payload field is set,
// matching Type.
type Event struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Type      EventType `json:"type"`
	CreatedAt time.Time `json:"createdAt"`

	StartQuestion *StartQuestion `json:"startQuestion,omitempty"`
	EndQuestion   *EndQuestion   `json:"endQuestion,omitempty"`
	EndGame       *EndGame       `json:"endGame,omitempty"`
	Answer        *AnswerRecord  `json:"answer,omitempty"`
}

// Broadcast reports whether the event is admin-originated.
func (e Event) Broadcast() bool {
	return e.Type == EventStartQuestion || e.Type == EventEndQuestion || e.Type == EventEndGame
}
