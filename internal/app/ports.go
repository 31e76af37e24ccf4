package app

import (
	"context"
	"time"

	"tugwar-quiz-service/internal/domain"
)

// Store abstracts the session ledger (in-memory, Redis, Postgres).
//
// InsertAnswer must reject a second record for the same (player, question,
// session) with domain.ErrAlreadyAnswered, and IncrementScore must add the
// delta atomically rather than overwrite the total.
type Store interface {
	CreateSession(ctx context.Context, session domain.Session) error
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	ActiveSession(ctx context.Context) (domain.Session, error)
	EndSession(ctx context.Context, sessionID string, endedAt time.Time) error
	ResetSession(ctx context.Context, sessionID string) error

	UpsertPlayer(ctx context.Context, player domain.Player) error
	GetPlayer(ctx context.Context, sessionID, name string) (domain.Player, error)

	InsertAnswer(ctx context.Context, record domain.AnswerRecord) error
	HasAnswered(ctx context.Context, sessionID, player string, questionNo int) (bool, error)
	PlayerAnswers(ctx context.Context, sessionID, player string) ([]domain.AnswerRecord, error)

	IncrementScore(ctx context.Context, sessionID string, team domain.Team, delta int) (int, error)
	Scores(ctx context.Context, sessionID string) (domain.Scores, error)
}

// EventFeed persists broadcast rows and delivers events to listeners at least
// once. Consumers must tolerate duplicates and reordering.
type EventFeed interface {
	Publish(ctx context.Context, event domain.Event) error
	// Subscribe returns a channel of events for a session. The caller must
	// invoke the returned cancel function to avoid leaks.
	Subscribe(ctx context.Context, sessionID string) (<-chan domain.Event, func(), error)
}

// QuestionRepository loads question sets (from cache/backing store).
type QuestionRepository interface {
	GetQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}
