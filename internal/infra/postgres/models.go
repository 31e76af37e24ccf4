package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"tugwar-quiz-service/internal/domain"
)

type sessionRow struct {
	bun.BaseModel `bun:"table:game_sessions,alias:gs"`

	SessionID string     `bun:"session_id,pk"`
	Status    string     `bun:"status,notnull"`
	StartedAt time.Time  `bun:"started_at,notnull"`
	EndedAt   *time.Time `bun:"ended_at"`
}

func (r sessionRow) toDomain() domain.Session {
	return domain.Session{
		ID:        r.SessionID,
		Status:    domain.SessionStatus(r.Status),
		StartedAt: r.StartedAt,
		EndedAt:   r.EndedAt,
	}
}

type teamScoreRow struct {
	bun.BaseModel `bun:"table:team_scores,alias:ts"`

	SessionID string    `bun:"session_id,pk"`
	Team      string    `bun:"team,pk"`
	Score     int       `bun:"score,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

type playerRow struct {
	bun.BaseModel `bun:"table:player_sessions,alias:ps"`

	SessionID    string    `bun:"session_id,pk"`
	PlayerName   string    `bun:"player_name,pk"`
	Team         string    `bun:"team,notnull"`
	LastActivity time.Time `bun:"last_activity,notnull"`
}

func (r playerRow) toDomain() domain.Player {
	return domain.Player{
		Name:         r.PlayerName,
		Team:         domain.Team(r.Team),
		SessionID:    r.SessionID,
		LastActivity: r.LastActivity,
	}
}

type answerRow struct {
	bun.BaseModel `bun:"table:player_answers,alias:pa"`

	ID            string    `bun:"id,pk"`
	PlayerName    string    `bun:"player_name,notnull"`
	Team          string    `bun:"team,notnull"`
	QuestionNo    int       `bun:"question_id,notnull"`
	Answer        string    `bun:"answer,notnull"`
	IsCorrect     bool      `bun:"is_correct,notnull"`
	Partial       int       `bun:"partial,notnull"`
	Score         int       `bun:"score,notnull"`
	TimeRemaining int       `bun:"time_remaining,notnull"`
	SessionID     string    `bun:"session_id,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}

func newAnswerRow(r domain.AnswerRecord) *answerRow {
	return &answerRow{
		ID:            r.ID,
		PlayerName:    r.Player,
		Team:          string(r.Team),
		QuestionNo:    r.QuestionNo,
		Answer:        r.Answer,
		IsCorrect:     r.Correct,
		Partial:       r.Partial,
		Score:         r.Score,
		TimeRemaining: r.TimeRemaining,
		SessionID:     r.SessionID,
		CreatedAt:     r.CreatedAt,
	}
}

func (r answerRow) toDomain() domain.AnswerRecord {
	return domain.AnswerRecord{
		ID:            r.ID,
		Player:        r.PlayerName,
		Team:          domain.Team(r.Team),
		QuestionNo:    r.QuestionNo,
		Answer:        r.Answer,
		Correct:       r.IsCorrect,
		Partial:       r.Partial,
		Score:         r.Score,
		TimeRemaining: r.TimeRemaining,
		SessionID:     r.SessionID,
		CreatedAt:     r.CreatedAt,
	}
}

type broadcastRow struct {
	bun.BaseModel `bun:"table:game_broadcast,alias:gb"`

	ID            string       `bun:"id,pk"`
	SessionID     string       `bun:"session_id,notnull"`
	BroadcastType string       `bun:"broadcast_type,notnull"`
	Payload       domain.Event `bun:"payload,type:jsonb,notnull"`
	CreatedAt     time.Time    `bun:"created_at,notnull"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:q"`

	SetID     string    `bun:"set_id,pk"`
	No        int       `bun:"question_id,pk"`
	Question  string    `bun:"question,notnull"`
	Answer    string    `bun:"answer,notnull"`
	TimeSec   int       `bun:"time_sec,notnull"`
	Category  string    `bun:"category,nullzero"`
	Keyword   string    `bun:"keyword,nullzero"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}
