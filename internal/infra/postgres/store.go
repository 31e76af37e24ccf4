package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"tugwar-quiz-service/internal/domain"
)

const uniqueViolation = "23505"

// Store is a Postgres implementation of app.Store built on bun.
// The unique index on player_answers (player_name, question_id, session_id)
// enforces at-most-once scoring; team totals change only via score = score + ?.
type Store struct {
	db  *bun.DB
	now func() time.Time
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) CreateSession(ctx context.Context, session domain.Session) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := &sessionRow{
			SessionID: session.ID,
			Status:    string(session.Status),
			StartedAt: session.StartedAt,
			EndedAt:   session.EndedAt,
		}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		now := s.now()
		scores := make([]teamScoreRow, 0, len(domain.Teams))
		for _, t := range domain.Teams {
			scores = append(scores, teamScoreRow{SessionID: session.ID, Team: string(t), UpdatedAt: now})
		}
		if _, err := tx.NewInsert().Model(&scores).Exec(ctx); err != nil {
			return fmt.Errorf("init team scores: %w", err)
		}
		return nil
	})
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	var row sessionRow
	err := s.db.NewSelect().Model(&row).Where("session_id = ?", sessionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ActiveSession(ctx context.Context) (domain.Session, error) {
	var row sessionRow
	err := s.db.NewSelect().
		Model(&row).
		Where("status = ?", string(domain.SessionActive)).
		OrderExpr("started_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrNoActiveSession
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("active session: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) EndSession(ctx context.Context, sessionID string, endedAt time.Time) error {
	res, err := s.db.NewUpdate().
		Model((*sessionRow)(nil)).
		Set("status = ?", string(domain.SessionEnded)).
		Set("ended_at = ?", endedAt).
		Where("session_id = ?", sessionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *Store) ResetSession(ctx context.Context, sessionID string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		models := []interface{}{(*answerRow)(nil), (*broadcastRow)(nil), (*playerRow)(nil)}
		for _, m := range models {
			if _, err := tx.NewDelete().Model(m).Where("session_id = ?", sessionID).Exec(ctx); err != nil {
				return err
			}
		}
		_, err := tx.NewUpdate().
			Model((*teamScoreRow)(nil)).
			Set("score = 0").
			Set("updated_at = ?", s.now()).
			Where("session_id = ?", sessionID).
			Exec(ctx)
		return err
	})
}

func (s *Store) UpsertPlayer(ctx context.Context, player domain.Player) error {
	row := &playerRow{
		SessionID:    player.SessionID,
		PlayerName:   player.Name,
		Team:         string(player.Team),
		LastActivity: player.LastActivity,
	}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (session_id, player_name) DO UPDATE").
		Set("team = EXCLUDED.team").
		Set("last_activity = EXCLUDED.last_activity").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert player: %w", err)
	}
	return nil
}

func (s *Store) GetPlayer(ctx context.Context, sessionID, name string) (domain.Player, error) {
	var row playerRow
	err := s.db.NewSelect().
		Model(&row).
		Where("session_id = ?", sessionID).
		Where("player_name = ?", name).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("get player: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) InsertAnswer(ctx context.Context, record domain.AnswerRecord) error {
	_, err := s.db.NewInsert().Model(newAnswerRow(record)).Exec(ctx)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyAnswered
	}
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

func (s *Store) HasAnswered(ctx context.Context, sessionID, player string, questionNo int) (bool, error) {
	return s.db.NewSelect().
		Model((*answerRow)(nil)).
		Where("player_name = ?", player).
		Where("question_id = ?", questionNo).
		Where("session_id = ?", sessionID).
		Exists(ctx)
}

func (s *Store) PlayerAnswers(ctx context.Context, sessionID, player string) ([]domain.AnswerRecord, error) {
	var rows []answerRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("player_name = ?", player).
		Where("session_id = ?", sessionID).
		OrderExpr("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("player answers: %w", err)
	}
	records := make([]domain.AnswerRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.toDomain())
	}
	return records, nil
}

func (s *Store) IncrementScore(ctx context.Context, sessionID string, team domain.Team, delta int) (int, error) {
	var total int
	_, err := s.db.NewUpdate().
		Model((*teamScoreRow)(nil)).
		Set("score = score + ?", delta).
		Set("updated_at = ?", s.now()).
		Where("session_id = ?", sessionID).
		Where("team = ?", string(team)).
		Returning("score").
		Exec(ctx, &total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrSessionNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment score: %w", err)
	}
	return total, nil
}

func (s *Store) Scores(ctx context.Context, sessionID string) (domain.Scores, error) {
	var rows []teamScoreRow
	err := s.db.NewSelect().
		Model(&rows).
		Column("team", "score").
		Where("session_id = ?", sessionID).
		Scan(ctx)
	if err != nil {
		return domain.Scores{}, fmt.Errorf("scores: %w", err)
	}
	var scores domain.Scores
	for _, r := range rows {
		if t := domain.Team(r.Team); t.Valid() {
			scores.Set(t, r.Score)
		}
	}
	return scores, nil
}

// isUniqueViolation matches pgdriver.Error (and anything else exposing the
// Postgres error fields) carrying SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr interface{ Field(byte) string }
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == uniqueViolation
	}
	return false
}
