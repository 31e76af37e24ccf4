package domain

import (
	"strings"
	"time"
)

// Team is one of the two sides pulling the rope.
type Team string

const (
	TeamBoy  Team = "boy"
	TeamGirl Team = "girl"
)

// Teams lists both teams in display order (left, right).
var Teams = []Team{TeamBoy, TeamGirl}

// ParseTeam normalizes raw input into a Team.
func ParseTeam(raw string) (Team, error) {
	t := Team(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", ErrInvalidTeam
	}
	return t, nil
}

func (t Team) Valid() bool {
	return t == TeamBoy || t == TeamGirl
}

// SessionStatus is the lifecycle marker of a game run.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// Session identifies one game run.
type Session struct {
	ID        string        `json:"id"`
	Status    SessionStatus `json:"status"`
	StartedAt time.Time     `json:"startedAt"`
	EndedAt   *time.Time    `json:"endedAt,omitempty"`
}

// Question is an ordered quiz item. No is unique within a question set.
type Question struct {
	No       int    `json:"no" yaml:"no"`
	Prompt   string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
	TimeSec  int    `json:"timeSec" yaml:"timeSec"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
	Keyword  string `json:"keyword,omitempty" yaml:"keyword,omitempty"`
}

// Public strips the expected answer so the question can be broadcast to players.
func (q Question) Public() Question {
	q.Answer = ""
	return q
}

// QuestionSet is an ordered collection of questions.
type QuestionSet struct {
	ID        string     `json:"id" yaml:"id"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// Find returns the question with the given sequence number.
func (s QuestionSet) Find(no int) (Question, bool) {
	for _, q := range s.Questions {
		if q.No == no {
			return q, true
		}
	}
	return Question{}, false
}

// Last returns the highest sequence number in the set, or 0 if empty.
func (s QuestionSet) Last() int {
	last := 0
	for _, q := range s.Questions {
		if q.No > last {
			last = q.No
		}
	}
	return last
}

// Prev returns the sequence number played right before no, or 0 when no is
// the first question.
func (s QuestionSet) Prev(no int) int {
	prev := 0
	for _, q := range s.Questions {
		if q.No < no && q.No > prev {
			prev = q.No
		}
	}
	return prev
}

// Scores holds the running totals of both teams. Values may go negative.
type Scores struct {
	Boy  int `json:"boy"`
	Girl int `json:"girl"`
}

// Get returns the score of a team.
func (s Scores) Get(team Team) int {
	if team == TeamGirl {
		return s.Girl
	}
	return s.Boy
}

// Set assigns the score of a team.
func (s *Scores) Set(team Team, v int) {
	if team == TeamGirl {
		s.Girl = v
		return
	}
	s.Boy = v
}

// Leader reports the leading team, or "" on a tie.
func (s Scores) Leader() Team {
	switch {
	case s.Boy > s.Girl:
		return TeamBoy
	case s.Girl > s.Boy:
		return TeamGirl
	}
	return ""
}

// Player is a participant registered in a session.
type Player struct {
	Name         string    `json:"name"`
	Team         Team      `json:"team"`
	SessionID    string    `json:"sessionId"`
	LastActivity time.Time `json:"lastActivity"`
}

// AnswerRecord is one graded submission. (Player, QuestionNo, SessionID) is unique.
type AnswerRecord struct {
	ID            string    `json:"id"`
	Player        string    `json:"player"`
	Team          Team      `json:"team"`
	QuestionNo    int       `json:"questionNo"`
	Answer        string    `json:"answer"`
	Correct       bool      `json:"correct"`
	Partial       int       `json:"partial"`
	Score         int       `json:"score"`
	TimeRemaining int       `json:"timeRemaining"`
	SessionID     string    `json:"sessionId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AnswerSubmission is the raw player input.
type AnswerSubmission struct {
	SessionID     string
	Player        string
	Team          Team
	QuestionNo    int
	Answer        string
	TimeRemaining int
}

// AnswerResult summarizes the outcome of an accepted submission.
type AnswerResult struct {
	QuestionNo int    `json:"questionNo"`
	Correct    bool   `json:"correct"`
	Partial    int    `json:"partial"`
	Unanswered bool   `json:"unanswered"`
	Awarded    int    `json:"awarded"`
	TeamScore  int    `json:"teamScore"`
	Scores     Scores `json:"scores"`
}
